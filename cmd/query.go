package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raggy-ai/raggy/internal/app"
	"github.com/raggy-ai/raggy/internal/retrieval"
)

var (
	queryTopK    int
	queryFilters []string
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question over the ingested corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top-k", retrieval.DefaultTopK, "number of chunks to retrieve")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "metadata filter key=value pair (repeatable)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(ctx context.Context, question string) error {
	filters, err := parseMetadata(queryFilters)
	if err != nil {
		return err
	}

	a, err := app.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setting up application: %w", err)
	}
	defer a.Close()

	res, err := a.RAG.Answer(ctx, question, queryTopK, filters)
	if err != nil {
		return err
	}

	fmt.Println(res.Answer)
	if len(res.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range res.Citations {
			loc := c.Title
			if c.SourceURL != "" {
				loc += " <" + c.SourceURL + ">"
			}
			fmt.Printf("  [%s] %s (chunk %d, score %.2f)\n", c.ChunkID, loc, c.ChunkIndex, c.Score)
		}
	}
	fmt.Printf("\nConfidence: %.2f (retrieve %dms, generate %dms)\n",
		res.Confidence, res.RetrieveMS, res.GenerateMS)
	return nil
}
