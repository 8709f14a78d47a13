package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/indexer"
)

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index <documents.json|documents.jsonl>",
		Short: "Index normalized documents from a JSON array or JSON Lines file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			docs, err := indexer.LoadDocumentsFile(path)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("no documents in %s", path)
			}
			a.logger.Info("Loaded documents", zap.String("path", path), zap.Int("count", len(docs)))

			svc, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			stats, err := svc.Ingest(ctx, docs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nIndexing Statistics:\n")
			fmt.Fprintf(out, "  Status: %s\n", stats.Status)
			fmt.Fprintf(out, "  Documents Processed: %d\n", stats.DocumentsProcessed)
			fmt.Fprintf(out, "  Documents Failed: %d\n", stats.DocumentsFailed)
			fmt.Fprintf(out, "  Documents Skipped: %d\n", stats.DocumentsSkipped)
			fmt.Fprintf(out, "  Chunks Created: %d\n", stats.ChunksCreated)
			fmt.Fprintf(out, "  Chunks Removed: %d\n", stats.ChunksRemoved)
			fmt.Fprintf(out, "  Total Chunks: %d\n", stats.TotalChunks)
			fmt.Fprintf(out, "  Duration: %v\n", stats.Duration)

			if len(stats.Failures) > 0 {
				fmt.Fprintf(out, "\nFailures:\n")
				for _, f := range stats.Failures {
					fmt.Fprintf(out, "  - %s [%s]: %s\n", f.DocumentID, f.Stage, f.Reason)
				}
			}

			if stats.Status == indexer.StatusFailed {
				return fmt.Errorf("no documents were indexed")
			}
			return nil
		},
	}
}
