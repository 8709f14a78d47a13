package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KRuddra/codefourrag/internal/pipeline"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		conversationID string
		jsonOut        bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question against the indexed corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			resp, err := svc.Chat(ctx, pipeline.ChatRequest{
				Message:        strings.Join(args, " "),
				ConversationID: conversationID,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Fprintf(out, "%s\n\n", resp.Response)
			fmt.Fprintf(out, "Confidence: %.2f\n", resp.Confidence)
			if len(resp.Flags) > 0 {
				fmt.Fprintf(out, "Flags: %s\n", strings.Join(resp.Flags, ", "))
			}
			if len(resp.Sources) > 0 {
				fmt.Fprintf(out, "\nSources:\n")
				for i, src := range resp.Sources {
					fmt.Fprintf(out, "  %d. %s (score %.3f)\n", i+1, sourceLabel(src.Metadata.Title, src.Metadata.SourceID), src.Score)
				}
			}
			fmt.Fprintf(out, "\nConversation: %s\n", resp.ConversationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the raw response as JSON")
	return cmd
}

func sourceLabel(title, sourceID string) string {
	if title == "" {
		return sourceID
	}
	return fmt.Sprintf("%s [%s]", title, sourceID)
}
