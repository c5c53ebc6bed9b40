package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const messageColumns = `m.id, m.chat_id, c.title, m.sender_id, m.sender_name, m.content, m.timestamp, m.is_from_me`

// UpsertMessage inserts or replaces a message (idempotent on id + chat_id).
// Messages without content are never stored; the call is a no-op.
// Returns ErrConstraint when the chat row does not exist yet.
func (db *DB) UpsertMessage(ctx context.Context, m *Message) error {
	if m.Content == "" {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, sender_name, content, timestamp, is_from_me)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, chat_id) DO UPDATE SET
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			content = excluded.content,
			timestamp = excluded.timestamp,
			is_from_me = excluded.is_from_me`,
		m.ID, m.ChatID, m.SenderID, m.SenderName, m.Content, m.Timestamp.UnixMilli(), m.IsFromMe)
	if err != nil {
		return fmt.Errorf("upsert message %d in chat %d: %w", m.ID, m.ChatID, classify(err))
	}
	return nil
}

// ListMessages returns messages matching f, newest first.
func (db *DB) ListMessages(ctx context.Context, f MessageFilter) ([]Message, error) {
	var (
		conds []string
		args  []any
	)
	if f.After != nil {
		conds = append(conds, `m.timestamp >= ?`)
		args = append(args, f.After.UnixMilli())
	}
	if f.Before != nil {
		conds = append(conds, `m.timestamp <= ?`)
		args = append(args, f.Before.UnixMilli())
	}
	if f.SenderID != 0 {
		conds = append(conds, `m.sender_id = ?`)
		args = append(args, f.SenderID)
	}
	if f.ChatID != 0 {
		conds = append(conds, `m.chat_id = ?`)
		args = append(args, f.ChatID)
	}
	if f.Query != "" {
		conds = append(conds, `LOWER(m.content) LIKE LOWER(?) ESCAPE '\'`)
		args = append(args, likePattern(f.Query))
	}

	q := strings.Builder{}
	q.WriteString(`SELECT ` + messageColumns + ` FROM messages m JOIN chats c ON m.chat_id = c.id`)
	if len(conds) > 0 {
		q.WriteString(` WHERE ` + strings.Join(conds, " AND "))
	}
	q.WriteString(` ORDER BY m.timestamp DESC, m.rowid DESC LIMIT ? OFFSET ?`)
	args = append(args, limitOrDefault(f.Limit), max(f.Offset, 0))

	return db.queryMessages(ctx, q.String(), args...)
}

// GetMessage returns one message. Returns ErrNotFound if the pair does not exist.
func (db *DB) GetMessage(ctx context.Context, id, chatID int64) (*Message, error) {
	m, err := scanMessage(db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN chats c ON m.chat_id = c.id
		WHERE m.id = ? AND m.chat_id = ?`, id, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d in chat %d: %w", id, chatID, ErrNotFound)
	}
	return m, err
}

// MessagesBefore returns up to n messages of a chat strictly older than ts,
// nearest first.
func (db *DB) MessagesBefore(ctx context.Context, chatID int64, ts time.Time, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN chats c ON m.chat_id = c.id
		WHERE m.chat_id = ? AND m.timestamp < ?
		ORDER BY m.timestamp DESC, m.rowid DESC
		LIMIT ?`, chatID, ts.UnixMilli(), n)
}

// MessagesAfter returns up to n messages of a chat strictly newer than ts,
// nearest first.
func (db *DB) MessagesAfter(ctx context.Context, chatID int64, ts time.Time, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN chats c ON m.chat_id = c.id
		WHERE m.chat_id = ? AND m.timestamp > ?
		ORDER BY m.timestamp ASC, m.rowid ASC
		LIMIT ?`, chatID, ts.UnixMilli(), n)
}

// LastInteraction returns the most recent message sent by the contact or
// exchanged in its direct chat, or nil if there is none.
func (db *DB) LastInteraction(ctx context.Context, contactID int64) (*Message, error) {
	m, err := scanMessage(db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN chats c ON m.chat_id = c.id
		WHERE m.sender_id = ? OR c.id = ?
		ORDER BY m.timestamp DESC, m.rowid DESC
		LIMIT 1`, contactID, contactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (db *DB) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func scanMessage(s scanner) (*Message, error) {
	var (
		m  Message
		ts int64
	)
	if err := s.Scan(&m.ID, &m.ChatID, &m.ChatTitle, &m.SenderID, &m.SenderName, &m.Content, &ts, &m.IsFromMe); err != nil {
		return nil, err
	}
	m.Timestamp = time.UnixMilli(ts)
	return &m, nil
}
