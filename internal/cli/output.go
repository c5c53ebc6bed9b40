package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/tgbridge/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(timeLayout)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return formatTime(*ts)
}

func safe(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func safePtr(s *string) string {
	if s == nil {
		return "-"
	}
	return safe(*s)
}

// oneLine flattens message text for table output.
func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeLine(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func (a *App) writeChats(chats []store.Chat) error {
	if a.JSON {
		if chats == nil {
			chats = []store.Chat{}
		}
		return writeJSON(a.out, chats)
	}
	w := newTabWriter(a.out)
	if err := writeLine(w, "LAST ACTIVE\tTYPE\tTITLE\tUSERNAME\tID"); err != nil {
		return err
	}
	for _, c := range chats {
		if err := writef(w, "%s\t%s\t%s\t%s\t%d\n", formatTimePtr(c.LastMessageTime), c.Type, safe(c.Title), safePtr(c.Username), c.ID); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (a *App) writeChat(c *store.Chat) error {
	if a.JSON {
		return writeJSON(a.out, c)
	}
	w := newTabWriter(a.out)
	rows := [][2]string{
		{"ID", fmt.Sprint(c.ID)},
		{"Title", safe(c.Title)},
		{"Username", safePtr(c.Username)},
		{"Type", string(c.Type)},
		{"Last Active", formatTimePtr(c.LastMessageTime)},
	}
	if err := writeLine(w, "FIELD\tVALUE"); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writef(w, "%s\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (a *App) writeMessages(msgs []store.Message) error {
	if a.JSON {
		if msgs == nil {
			msgs = []store.Message{}
		}
		return writeJSON(a.out, msgs)
	}
	w := newTabWriter(a.out)
	if err := writeLine(w, "TIME\tCHAT\tSENDER\tTEXT\tID"); err != nil {
		return err
	}
	for _, m := range msgs {
		if err := writeMessageRow(w, "", m); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeMessageRow(w io.Writer, marker string, m store.Message) error {
	sender := safe(m.SenderName)
	if m.IsFromMe {
		sender = "me"
	}
	return writef(w, "%s%s\t%s\t%s\t%s\t%d\n", marker, formatTime(m.Timestamp), safe(m.ChatTitle), sender, oneLine(m.Content, 80), m.ID)
}
