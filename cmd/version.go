package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openinfra/beacon/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Beacon %s\n", AppVersion)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
	fmt.Fprintln(out)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Model: %s\n", cfg.ModelName)
	fmt.Fprintf(out, "  Temperature: %.2f\n", cfg.Temperature)
	fmt.Fprintf(out, "  Embedder: %s (%d dimensions)\n", cfg.EmbedderModel, cfg.EmbedderDimension)
	fmt.Fprintf(out, "  Database: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
	fmt.Fprintf(out, "  Listen: %s\n", cfg.ListenAddr)

	// Never print the full key.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		fmt.Fprintf(out, "  GEMINI_API_KEY: %s (configured)\n", maskKey(key))
	} else {
		fmt.Fprintln(out, "  GEMINI_API_KEY: Not set")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Hint: Please set GEMINI_API_KEY environment variable")
		fmt.Fprintln(out, "  export GEMINI_API_KEY=your-api-key")
	}

	return nil
}

func maskKey(key string) string {
	if len(key) < 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
