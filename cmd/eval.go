package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raggy-ai/raggy/internal/app"
	"github.com/raggy-ai/raggy/internal/eval"
)

var (
	evalFixtures string
	evalJSONOut  bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <questions.jsonl>",
	Short: "Run the evaluation harness against a labeled question set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEval(cmd.Context(), args[0])
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalFixtures, "fixtures", "", "fixture corpus to ingest before evaluating (JSONL)")
	evalCmd.Flags().BoolVar(&evalJSONOut, "json", false, "emit the full report as JSON")
	rootCmd.AddCommand(evalCmd)
}

func runEval(ctx context.Context, questionsPath string) error {
	questions, err := eval.LoadQuestions(questionsPath)
	if err != nil {
		return err
	}

	a, err := app.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setting up application: %w", err)
	}
	defer a.Close()

	runner := eval.NewRunner(a.Ingest, a.RAG, a.Store, eval.ThresholdsFromConfig(a.Config), a.Logger)

	if evalFixtures != "" {
		fixtures, err := eval.LoadFixtures(evalFixtures)
		if err != nil {
			return err
		}
		if err := runner.LoadCorpus(ctx, fixtures); err != nil {
			return err
		}
	}

	report, err := runner.Run(ctx, questions)
	if err != nil {
		return err
	}

	if evalJSONOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if !report.Passed {
		return fmt.Errorf("evaluation failed thresholds")
	}
	return nil
}

func printReport(report *eval.Report) {
	fmt.Printf("Questions scored: %d (%d answerable, %d unanswerable)\n",
		len(report.Questions), report.Answerable, report.Unanswerable)
	fmt.Printf("Retrieval hit rate:    %.2f\n", report.RetrievalHitRate)
	fmt.Printf("Citation correctness:  %.2f\n", report.CitationCorrectness)
	fmt.Printf("IDK rate:              %.2f\n", report.IDKRate)
	if report.Interrupted {
		fmt.Println("Run interrupted; report is partial.")
	}
	if report.Passed {
		fmt.Println("PASS")
	} else {
		fmt.Println("FAIL")
		for _, q := range report.Questions {
			if q.Err != "" {
				fmt.Printf("  %s: error: %s\n", q.ID, q.Err)
				continue
			}
			if q.Answerable && !q.RetrievalHit {
				fmt.Printf("  %s: no citation into the expected document\n", q.ID)
			}
			if !q.Answerable && !q.Refused {
				fmt.Printf("  %s: answered instead of refusing\n", q.ID)
			}
		}
	}
}
