package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KRuddra/codefourrag/internal/embedder"
	"github.com/KRuddra/codefourrag/internal/storage"
)

const sampleText = "346.63 Operating under influence of intoxicant or other drug. " +
	"No person may drive or operate a motor vehicle while under the influence of an intoxicant."

func newEmbedCheckCmd(a *app) *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "embed-check",
		Short: "Generate one embedding with the configured provider and report timing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			emb, err := embedder.New(ctx, a.cfg.EmbeddingConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize embedder: %w", err)
			}
			defer func() { _ = emb.Close() }()

			fmt.Fprintf(out, "Testing embedding provider %s (%s)...\n", emb.Provider(), emb.Model())

			start := time.Now()
			first, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}
			elapsed := time.Since(start)

			// the second call is served from the embedding cache
			start = time.Now()
			if _, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text}); err != nil {
				return fmt.Errorf("cached embedding failed: %w", err)
			}
			cached := time.Since(start)

			fmt.Fprintf(out, "\nEmbedding:\n")
			fmt.Fprintf(out, "  Provider: %s\n", first.Provider)
			fmt.Fprintf(out, "  Model: %s\n", first.Model)
			fmt.Fprintf(out, "  Dimension: %d\n", first.Dimension)
			fmt.Fprintf(out, "  Duration: %v\n", elapsed)
			fmt.Fprintf(out, "  Cached Duration: %v\n", cached)
			fmt.Fprintf(out, "  Vector Backend: %s (%s)\n", a.cfg.VectorBackend, storage.BuildMode)

			if first.Dimension != emb.Dimension() || len(first.Vector) != first.Dimension {
				return fmt.Errorf("dimension mismatch: vector has %d values, provider reports %d",
					len(first.Vector), emb.Dimension())
			}
			fmt.Fprintln(out, "\nOK: embedding provider is working")
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", sampleText, "text to embed")
	return cmd
}
