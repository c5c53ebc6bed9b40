package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/tgbridge/internal/query"
	"github.com/matheus3301/tgbridge/internal/store"
	"github.com/spf13/cobra"
)

func newMessagesCmd(app *App) *cobra.Command {
	var q query.MessageQuery
	var after, before string
	var days int

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List and search messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var err error
			if q.After, err = parseTimeFlag(after, days); err != nil {
				return err
			}
			if q.Before, err = parseTimePtr(before); err != nil {
				return err
			}
			return app.withQuery(func(ctx context.Context, s *query.Service) error {
				msgs, err := s.ListMessages(ctx, q)
				if err != nil {
					return err
				}
				return app.writeMessages(msgs)
			})
		},
	}

	cmd.Flags().Int64Var(&q.ChatID, "chat", 0, "only messages of this chat ID")
	cmd.Flags().Int64Var(&q.SenderID, "sender", 0, "only messages from this sender ID")
	cmd.Flags().StringVar(&q.Query, "query", "", "case-insensitive substring of the text")
	cmd.Flags().StringVar(&after, "after", "", "only messages at or after this time (RFC3339)")
	cmd.Flags().StringVar(&before, "before", "", "only messages at or before this time (RFC3339)")
	cmd.Flags().IntVar(&days, "days", 0, "only messages from the last N days (ignored with --after)")
	cmd.Flags().IntVar(&q.Limit, "limit", query.DefaultLimit, "max number of matches")
	cmd.Flags().IntVar(&q.Page, "page", 0, "zero-based page")
	cmd.Flags().BoolVar(&q.IncludeContext, "context", false, "surround each match with neighbouring messages")
	cmd.Flags().IntVar(&q.ContextBefore, "context-before", query.DefaultContextBefore, "older neighbours per match")
	cmd.Flags().IntVar(&q.ContextAfter, "context-after", query.DefaultContextAfter, "newer neighbours per match")

	return cmd
}

func newContextCmd(app *App) *cobra.Command {
	var before, after int

	cmd := &cobra.Command{
		Use:   "context <chat-id> <message-id>",
		Short: "Show a message with its neighbours",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			chatID, err := parseID("chat ID", args[0])
			if err != nil {
				return err
			}
			msgID, err := parseID("message ID", args[1])
			if err != nil {
				return err
			}
			return app.withQuery(func(ctx context.Context, s *query.Service) error {
				mc, err := s.GetMessageContext(ctx, msgID, chatID, before, after)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("message %d not found in chat %d", msgID, chatID)
				}
				if err != nil {
					return err
				}
				return app.writeContext(mc)
			})
		},
	}

	cmd.Flags().IntVar(&before, "before", query.DefaultContextBefore, "older messages to show")
	cmd.Flags().IntVar(&after, "after", query.DefaultContextAfter, "newer messages to show")

	return cmd
}

func (a *App) writeContext(mc *query.MessageContext) error {
	if a.JSON {
		return writeJSON(a.out, mc)
	}
	w := newTabWriter(a.out)
	if err := writeLine(w, "  TIME\tCHAT\tSENDER\tTEXT\tID"); err != nil {
		return err
	}
	for i := len(mc.Before) - 1; i >= 0; i-- {
		if err := writeMessageRow(w, "  ", mc.Before[i]); err != nil {
			return err
		}
	}
	if err := writeMessageRow(w, "> ", mc.Message); err != nil {
		return err
	}
	for _, m := range mc.After {
		if err := writeMessageRow(w, "  ", m); err != nil {
			return err
		}
	}
	return w.Flush()
}
