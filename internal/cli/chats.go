package cli

import (
	"context"
	"fmt"

	"github.com/matheus3301/tgbridge/internal/query"
	"github.com/matheus3301/tgbridge/internal/store"
	"github.com/spf13/cobra"
)

func newChatsCmd(app *App) *cobra.Command {
	var q query.ChatQuery
	var chatType, sortBy string

	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if chatType != "" {
				q.Type = store.ChatType(chatType)
				if !q.Type.Valid() {
					return fmt.Errorf("invalid type %q: use user, group, supergroup or channel", chatType)
				}
			}
			switch store.ChatSort(sortBy) {
			case store.SortLastActive, store.SortTitle:
				q.SortBy = store.ChatSort(sortBy)
			default:
				return fmt.Errorf("invalid sort %q: use last_active or title", sortBy)
			}

			return app.withQuery(func(ctx context.Context, s *query.Service) error {
				chats, err := s.ListChats(ctx, q)
				if err != nil {
					return err
				}
				return app.writeChats(chats)
			})
		},
	}

	cmd.Flags().StringVar(&q.Query, "query", "", "substring of title or username")
	cmd.Flags().StringVar(&chatType, "type", "", "filter by type: user|group|supergroup|channel")
	cmd.Flags().StringVar(&sortBy, "sort", string(store.SortLastActive), "order: last_active|title")
	cmd.Flags().IntVar(&q.Limit, "limit", query.DefaultLimit, "max number of chats")
	cmd.Flags().IntVar(&q.Page, "page", 0, "zero-based page")

	return cmd
}

func newChatCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <chat-id>",
		Short: "Show a single chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID("chat ID", args[0])
			if err != nil {
				return err
			}
			return app.withQuery(func(ctx context.Context, s *query.Service) error {
				chat, err := s.GetChat(ctx, id)
				if err != nil {
					return err
				}
				if chat == nil {
					return fmt.Errorf("chat %d not found", id)
				}
				return app.writeChat(chat)
			})
		},
	}
}

func newDirectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "direct <contact-id>",
		Short: "Show the one-to-one chat with a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID("contact ID", args[0])
			if err != nil {
				return err
			}
			return app.withQuery(func(ctx context.Context, s *query.Service) error {
				chat, err := s.GetDirectChatByContact(ctx, id)
				if err != nil {
					return err
				}
				if chat == nil {
					return fmt.Errorf("no direct chat with contact %d", id)
				}
				return app.writeChat(chat)
			})
		},
	}
}
