package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// validSSLModes are the PostgreSQL SSL modes accepted by pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate performs fail-fast validation of the full configuration.
// It returns the first violation wrapped around a sentinel error so callers
// can test with errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 4096 {
		return fmt.Errorf("%w: dimension %d outside [1, 4096]", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}

	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}

	if c.Search.BaseURL != "" {
		u, err := url.Parse(c.Search.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidSearchURL, c.Search.BaseURL)
		}
	}

	// GEMINI_API_KEY is consumed directly by the Genkit plugin; a missing
	// key is startup-fatal here rather than a mid-request surprise.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
	}

	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d outside [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("%w: %d outside [1, %d]", ErrInvalidPageSize, c.PageSize, MaxPageSize)
	}
	if c.ScanCap < c.PageSize || c.ScanCap > 10000 {
		return fmt.Errorf("%w: %d outside [%d, 10000]", ErrInvalidScanCap, c.ScanCap, c.PageSize)
	}
	if c.FilterMultiplier < 1 {
		c.FilterMultiplier = 1
	}
	if c.CacheTTLSeconds < 1 || c.CacheTTLSeconds > 3600 {
		return fmt.Errorf("%w: %d outside [1, 3600] seconds", ErrInvalidCacheTTL, c.CacheTTLSeconds)
	}
	if c.CacheCapacity < 1 {
		c.CacheCapacity = 1
	}
	return nil
}
