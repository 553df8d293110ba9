// Package cmd contains the beacon CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon - research assistant for public infrastructure governance",
	Long: `Beacon indexes infrastructure governance documents into a vector store
and answers research questions with cited, source-grounded summaries.

Use "beacon index" to ingest documents, "beacon ask" for one-off questions,
and "beacon serve" to run the JSON API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
