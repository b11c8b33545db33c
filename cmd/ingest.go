package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raggy-ai/raggy/internal/app"
	"github.com/raggy-ai/raggy/internal/docstore"
	"github.com/raggy-ai/raggy/internal/ingest"
)

var (
	ingestTitle    string
	ingestType     string
	ingestURL      string
	ingestMetadata []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a local document into the corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to the file name)")
	ingestCmd.Flags().StringVar(&ingestType, "type", docstore.SourceTypeMarkdown, "source type (md, txt, pdf, url)")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "canonical source URL")
	ingestCmd.Flags().StringArrayVar(&ingestMetadata, "meta", nil, "metadata key=value pair (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	metadata, err := parseMetadata(ingestMetadata)
	if err != nil {
		return err
	}

	title := ingestTitle
	if title == "" {
		title = filepath.Base(path)
	}

	a, err := app.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setting up application: %w", err)
	}
	defer a.Close()

	res, err := a.Ingest.Ingest(ctx, ingest.Request{
		SourceType: ingestType,
		SourceURL:  ingestURL,
		Title:      title,
		Content:    string(content),
		Metadata:   metadata,
	})
	if err != nil {
		return err
	}

	if res.Deduplicated {
		fmt.Printf("Already ingested: %s (%d chunks)\n", res.Document.ID, len(res.Chunks))
		return nil
	}
	fmt.Printf("Ingested %s: %d chunks (doc %s)\n", title, len(res.Chunks), res.Document.ID)
	return nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata pair %q, expected key=value", pair)
		}
		metadata[k] = v
	}
	return metadata, nil
}
