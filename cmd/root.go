package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "raggy",
	Short: "Raggy - retrieval-augmented question answering over your documents",
	Long: `Raggy ingests documents into a vector-indexed store and answers
questions about them with citations back to the exact passages used.

Run 'raggy serve' to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
