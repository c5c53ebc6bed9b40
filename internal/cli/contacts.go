package cli

import (
	"context"
	"fmt"

	"github.com/matheus3301/tgbridge/internal/query"
	"github.com/matheus3301/tgbridge/internal/store"
	"github.com/spf13/cobra"
)

func newContactsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "contacts <query>",
		Short: "Search contacts by name or username",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return app.withQuery(func(ctx context.Context, s *query.Service) error {
				contacts, err := s.SearchContacts(ctx, args[0])
				if err != nil {
					return err
				}
				if app.JSON {
					if contacts == nil {
						contacts = []store.Contact{}
					}
					return writeJSON(app.out, contacts)
				}
				w := newTabWriter(app.out)
				if err := writeLine(w, "NAME\tUSERNAME\tID"); err != nil {
					return err
				}
				for _, c := range contacts {
					if err := writef(w, "%s\t%s\t%d\n", safe(c.Name), safePtr(c.Username), c.ID); err != nil {
						return err
					}
				}
				return w.Flush()
			})
		},
	}
}

func newContactChatsCmd(app *App) *cobra.Command {
	var limit, page int

	cmd := &cobra.Command{
		Use:   "contact-chats <contact-id>",
		Short: "List the chats a contact takes part in",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID("contact ID", args[0])
			if err != nil {
				return err
			}
			return app.withQuery(func(ctx context.Context, s *query.Service) error {
				chats, err := s.GetContactChats(ctx, id, limit, page)
				if err != nil {
					return err
				}
				return app.writeChats(chats)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", query.DefaultLimit, "max number of chats")
	cmd.Flags().IntVar(&page, "page", 0, "zero-based page")

	return cmd
}

func newLastCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "last <contact-id>",
		Short: "Show the most recent message involving a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID("contact ID", args[0])
			if err != nil {
				return err
			}
			return app.withQuery(func(ctx context.Context, s *query.Service) error {
				m, err := s.GetLastInteraction(ctx, id)
				if err != nil {
					return err
				}
				if m == nil {
					return fmt.Errorf("no interaction with contact %d", id)
				}
				return app.writeMessages([]store.Message{*m})
			})
		},
	}
}
