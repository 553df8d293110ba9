package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openinfra/beacon/internal/app"
	"github.com/openinfra/beacon/internal/config"
	"github.com/openinfra/beacon/internal/embed"
	"github.com/openinfra/beacon/internal/log"
)

var indexEstimate bool

var indexCmd = &cobra.Command{
	Use:   "index [file or directory]...",
	Short: "Ingest markdown documents into the vector store",
	Long: `Index chunks each document, embeds the chunks and writes them to the
document store. Files may carry a YAML front-matter header declaring
title, url, type, country, year and topic.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexEstimate, "estimate", false,
		"print the embedding cost estimate and exit without indexing")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexEstimate {
		paths, err := collectFiles(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no markdown files found")
		}
		return printEstimate(cmd, paths)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := cmd.Context()
	logger := log.New(log.Config{Level: slog.LevelInfo})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	var files, failed, stored, dropped int
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("stat %s: %w", arg, err)
		}
		if info.IsDir() {
			dr, err := a.Indexer.IndexDir(ctx, arg)
			if err != nil {
				return fmt.Errorf("indexing %s: %w", arg, err)
			}
			files += dr.Files
			failed += dr.Failed
			stored += dr.Stored
			dropped += dr.Dropped
			continue
		}

		files++
		res, err := a.Indexer.IndexFile(ctx, arg)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", arg, err)
		}
		stored += res.Stored
		dropped += res.Dropped
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks stored\n", res.DocID, res.Stored)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "done: %d files, %d failed, %d chunks stored, %d dropped\n",
		files, failed, stored, dropped)
	return nil
}

// printEstimate reports the approximate embedding cost without calling
// the provider.
func printEstimate(cmd *cobra.Command, paths []string) error {
	var texts []string
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		texts = append(texts, string(raw))
	}
	est := embed.EstimateCost(texts)
	fmt.Fprintf(cmd.OutOrStdout(),
		"%d files, %d chars, ~%d tokens, ~$%.4f\n",
		len(texts), est.Chars, est.Tokens, est.USD)
	return nil
}

// collectFiles expands the arguments into a list of markdown files.
func collectFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".md" {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}
	return paths, nil
}
