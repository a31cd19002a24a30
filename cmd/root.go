package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Transcription and text processing service",
	Long: `Scribe accepts audio files, YouTube URLs, documents, or raw text,
dispatches them to external transcription, synthesis, and LLM services,
and tracks each request as an asynchronous job queryable over HTTP.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
