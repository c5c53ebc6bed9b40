package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type dbInfo struct {
	Path          string `json:"path"`
	SchemaVersion uint   `json:"schemaVersion"`
	Dirty         bool   `json:"dirty"`
	Chats         int64  `json:"chats"`
	Messages      int64  `json:"messages"`
}

func newDBCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database helpers",
	}

	cmd.AddCommand(newDBInfoCmd(app))
	return cmd
}

func newDBInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show resolved DB path, schema version and row counts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			db, path, err := app.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			info := dbInfo{Path: path}
			if info.SchemaVersion, info.Dirty, err = db.SchemaVersion(context.Background()); err != nil {
				return err
			}
			if info.Chats, err = db.ChatCount(); err != nil {
				return err
			}
			if info.Messages, err = db.MessageCount(); err != nil {
				return err
			}

			if app.JSON {
				return writeJSON(app.out, info)
			}
			if err := writef(app.out, "Path: %s\n", info.Path); err != nil {
				return err
			}
			if err := writef(app.out, "Schema: v%d%s\n", info.SchemaVersion, dirtySuffix(info.Dirty)); err != nil {
				return err
			}
			if err := writef(app.out, "Chats: %d\n", info.Chats); err != nil {
				return err
			}
			return writef(app.out, "Messages: %d\n", info.Messages)
		},
	}
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}
