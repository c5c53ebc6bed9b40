package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const chatColumns = `id, title, username, type, last_message_time`

// UpsertChat inserts or replaces a chat record. The last write wins for every
// column, last_message_time included: a stale writer can move it backwards.
// A nil last_message_time keeps the stored one.
func (db *DB) UpsertChat(ctx context.Context, c *Chat) error {
	if !c.Type.Valid() {
		return fmt.Errorf("upsert chat %d: invalid type %q", c.ID, c.Type)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO chats (id, title, username, type, last_message_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			username = excluded.username,
			type = excluded.type,
			last_message_time = COALESCE(excluded.last_message_time, chats.last_message_time)`,
		c.ID, c.Title, nullString(c.Username), string(c.Type), nullMillis(c.LastMessageTime))
	return classify(err)
}

// GetChat returns a single chat by ID, or nil if it does not exist.
func (db *DB) GetChat(ctx context.Context, id int64) (*Chat, error) {
	return db.getChat(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
}

// GetDirectChat returns the one-to-one chat with a contact, or nil if the ID
// is unknown or does not belong to a user.
func (db *DB) GetDirectChat(ctx context.Context, contactID int64) (*Chat, error) {
	return db.getChat(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ? AND type = 'user'`, contactID)
}

func (db *DB) getChat(ctx context.Context, query string, args ...any) (*Chat, error) {
	c, err := scanChat(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListChats returns chats matching f. SortLastActive (the default) puts chats
// that never saw a message last.
func (db *DB) ListChats(ctx context.Context, f ChatFilter) ([]Chat, error) {
	var (
		conds []string
		args  []any
	)
	if f.Query != "" {
		conds = append(conds, `(LOWER(title) LIKE LOWER(?) ESCAPE '\' OR LOWER(username) LIKE LOWER(?) ESCAPE '\')`)
		args = append(args, likePattern(f.Query), likePattern(f.Query))
	}
	if f.Type != "" {
		conds = append(conds, `type = ?`)
		args = append(args, string(f.Type))
	}

	q := strings.Builder{}
	q.WriteString(`SELECT ` + chatColumns + ` FROM chats`)
	if len(conds) > 0 {
		q.WriteString(` WHERE ` + strings.Join(conds, " AND "))
	}
	switch f.SortBy {
	case SortTitle:
		q.WriteString(` ORDER BY title ASC, id ASC`)
	default:
		q.WriteString(` ORDER BY last_message_time IS NULL, last_message_time DESC, id ASC`)
	}
	q.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limitOrDefault(f.Limit), max(f.Offset, 0))

	return db.queryChats(ctx, q.String(), args...)
}

// SearchContacts returns user chats whose title or username contains query,
// ordered by title.
func (db *DB) SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, username, title
		FROM chats
		WHERE type = 'user'
			AND (LOWER(title) LIKE LOWER(?) ESCAPE '\' OR LOWER(username) LIKE LOWER(?) ESCAPE '\')
		ORDER BY title ASC, id ASC
		LIMIT ?`, likePattern(query), likePattern(query), limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var (
			c        Contact
			username sql.NullString
		)
		if err := rows.Scan(&c.ID, &username, &c.Name); err != nil {
			return nil, err
		}
		c.Username = stringPtr(username)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ContactChats returns the distinct chats a contact takes part in: its direct
// chat plus every chat where it sent a message, most recently active first.
func (db *DB) ContactChats(ctx context.Context, contactID int64, limit, offset int) ([]Chat, error) {
	return db.queryChats(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		WHERE c.id = ?
			OR EXISTS (SELECT 1 FROM messages m WHERE m.chat_id = c.id AND m.sender_id = ?)
		ORDER BY c.last_message_time IS NULL, c.last_message_time DESC, c.id ASC
		LIMIT ? OFFSET ?`, contactID, contactID, limitOrDefault(limit), max(offset, 0))
}

// FindRecipient returns the first chat whose title contains name or whose
// username equals it, or nil when nothing matches.
func (db *DB) FindRecipient(ctx context.Context, name string) (*Chat, error) {
	return db.getChat(ctx, `
		SELECT `+chatColumns+`
		FROM chats
		WHERE title LIKE ? ESCAPE '\' OR username = ?
		ORDER BY last_message_time IS NULL, last_message_time DESC, id ASC
		LIMIT 1`, likePattern(name), name)
}

func (db *DB) queryChats(ctx context.Context, query string, args ...any) ([]Chat, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (*Chat, error) {
	var (
		c        Chat
		username sql.NullString
		chatType string
		lastMsg  sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.Title, &username, &chatType, &lastMsg); err != nil {
		return nil, err
	}
	c.Type = ChatType(chatType)
	c.Username = stringPtr(username)
	if lastMsg.Valid {
		t := time.UnixMilli(lastMsg.Int64)
		c.LastMessageTime = &t
	}
	return &c, nil
}
