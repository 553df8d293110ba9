// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.beacon/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generative model, embedder model, pinned embedding dimension
//   - Storage: PostgreSQL + pgvector connection (see storage.go)
//   - Retrieval: page size, oversampling multiplier, scan cap
//   - Cache: answer cache TTL and capacity
//   - Search: external web search endpoint and domain allowlist
//
// Sensitive values (passwords, API keys) are masked in MarshalJSON and
// never logged. Validation is fail-fast: Load returns an error before any
// component is constructed when required credentials are missing.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the pinned embedding dimension is
	// out of range or does not match the indexed dimension.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidPageSize indicates the retrieval page size is out of range.
	ErrInvalidPageSize = errors.New("invalid page size")

	// ErrInvalidScanCap indicates the candidate scan cap is out of range.
	ErrInvalidScanCap = errors.New("invalid scan cap")

	// ErrInvalidCacheTTL indicates the cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidSearchURL indicates the external search base URL is invalid.
	ErrInvalidSearchURL = errors.New("invalid search base URL")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality; our pgvector schema is pinned to
	// DefaultEmbedderDimension and the two must match exactly.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension is the pinned vector dimension. It must match
	// the vector(N) column in db/migrations; a mismatch silently breaks
	// similarity search, so the store validates it on every write.
	DefaultEmbedderDimension = 768

	// DefaultModelName is the default generative model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultPageSize is the /search page size when the caller does not set one.
	DefaultPageSize = 10

	// MaxPageSize caps the per-request page size.
	MaxPageSize = 50

	// DefaultScanCap is the hard ceiling on similarity-search candidates
	// scanned for one query, filters included.
	DefaultScanCap = 1000
)

// Config stores the application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secret fields, update MarshalJSON as well.
type Config struct {
	// AI model configuration
	ModelName         string  `mapstructure:"model_name" json:"model_name"`
	Temperature       float32 `mapstructure:"temperature" json:"temperature"`
	EmbedderModel     string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int     `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	EmbedBatchSize    int     `mapstructure:"embed_batch_size" json:"embed_batch_size"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Retrieval configuration
	PageSize         int `mapstructure:"page_size" json:"page_size"`
	ScanCap          int `mapstructure:"scan_cap" json:"scan_cap"`
	FilterMultiplier int `mapstructure:"filter_multiplier" json:"filter_multiplier"`

	// Cache configuration
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	CacheCapacity   int `mapstructure:"cache_capacity" json:"cache_capacity"`

	// External web search configuration
	Search SearchConfig `mapstructure:"search" json:"search"`

	// HTTP server configuration
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`
}

// SearchConfig configures the external web search provider.
type SearchConfig struct {
	// BaseURL of a SearXNG-compatible JSON search endpoint.
	// Empty disables live web fusion; /search then serves corpus-only answers.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// AllowDomains restricts results to these domains. Enforced both as a
	// request parameter and as a post-response filter.
	AllowDomains []string `mapstructure:"allow_domains" json:"allow_domains"`

	// NumResults is the default number of external results per query.
	NumResults int `mapstructure:"num_results" json:"num_results"`

	// TimeoutMs is the per-call HTTP timeout in milliseconds.
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".beacon")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	viper.SetDefault("embed_batch_size", 100)

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "beacon")
	viper.SetDefault("postgres_password", "beacon_dev_password")
	viper.SetDefault("postgres_db_name", "beacon")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Retrieval defaults
	viper.SetDefault("page_size", DefaultPageSize)
	viper.SetDefault("scan_cap", DefaultScanCap)
	viper.SetDefault("filter_multiplier", 10)

	// Cache defaults
	viper.SetDefault("cache_ttl_seconds", 60)
	viper.SetDefault("cache_capacity", 256)

	// External search defaults
	viper.SetDefault("search.num_results", 5)
	viper.SetDefault("search.timeout_ms", 10000)

	// Server defaults
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("rate_burst", 60)
	viper.SetDefault("trust_proxy", false)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via viper; Validate only
// checks its presence.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "BEACON_MODEL_NAME")
	mustBind("embedder_model", "BEACON_EMBEDDER_MODEL")
	mustBind("embedder_dimension", "BEACON_EMBEDDER_DIMENSION")
	mustBind("listen_addr", "BEACON_LISTEN_ADDR")
	mustBind("rate_burst", "BEACON_RATE_BURST")
	mustBind("trust_proxy", "BEACON_TRUST_PROXY")
	mustBind("search.base_url", "BEACON_SEARCH_URL")
	mustBind("search.allow_domains", "BEACON_SEARCH_ALLOW_DOMAINS")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 bytes or
// fewer are fully masked; longer secrets keep the first and last two
// characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash". Names already containing "/" pass through.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return "googleai/" + c.ModelName
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
