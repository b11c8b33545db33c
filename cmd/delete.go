package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raggy-ai/raggy/internal/app"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and all of its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", args[0], err)
		}

		a, err := app.Setup(cmd.Context())
		if err != nil {
			return fmt.Errorf("setting up application: %w", err)
		}
		defer a.Close()

		if err := a.Store.DeleteDocument(cmd.Context(), docID); err != nil {
			return err
		}
		fmt.Printf("Deleted document %s and its chunks.\n", docID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
