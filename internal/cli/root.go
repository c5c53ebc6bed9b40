package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/matheus3301/tgbridge/internal/query"
	"github.com/matheus3301/tgbridge/internal/session"
	"github.com/matheus3301/tgbridge/internal/store"
	"github.com/spf13/cobra"
)

// App holds shared CLI configuration.
type App struct {
	Session string
	DBPath  string
	JSON    bool

	out io.Writer
}

// Execute runs the tgbctl entrypoint.
func Execute() {
	app := &App{out: os.Stdout}
	if err := NewRootCmd(app).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree around app.
func NewRootCmd(app *App) *cobra.Command {
	if app.out == nil {
		app.out = os.Stdout
	}
	cmd := &cobra.Command{
		Use:           "tgbctl",
		Short:         "Query the local Telegram mirror and talk to tgbridged",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(app.out)

	cmd.PersistentFlags().StringVar(&app.Session, "session", "", "session name (overrides config default)")
	cmd.PersistentFlags().StringVar(&app.DBPath, "db", "", "path to messages.db (defaults to the session's)")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "output JSON")

	cmd.AddCommand(newChatsCmd(app))
	cmd.AddCommand(newChatCmd(app))
	cmd.AddCommand(newDirectCmd(app))
	cmd.AddCommand(newMessagesCmd(app))
	cmd.AddCommand(newContextCmd(app))
	cmd.AddCommand(newContactsCmd(app))
	cmd.AddCommand(newContactChatsCmd(app))
	cmd.AddCommand(newLastCmd(app))
	cmd.AddCommand(newSendCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newDBCmd(app))

	return cmd
}

func (a *App) sessionName() (string, error) {
	return session.Resolve(a.Session)
}

func (a *App) dbPath() (string, error) {
	if a.DBPath != "" {
		return a.DBPath, nil
	}
	name, err := a.sessionName()
	if err != nil {
		return "", err
	}
	return session.AppDBPath(name), nil
}

func (a *App) openStore() (*store.DB, string, error) {
	path, err := a.dbPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, "", fmt.Errorf("no store at %s (has tgbridged run for this session?)", path)
	}
	db, err := store.OpenReadOnly(path)
	if err != nil {
		return nil, "", err
	}
	return db, path, nil
}

// withQuery opens the store read-only and runs fn against a query service.
func (a *App) withQuery(fn func(ctx context.Context, q *query.Service) error) error {
	db, _, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(context.Background(), query.New(db))
}

func parseID(name, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", name, value)
	}
	return id, nil
}
