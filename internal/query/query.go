package query

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/tgbridge/internal/store"
)

const (
	DefaultLimit         = 20
	DefaultContextBefore = 1
	DefaultContextAfter  = 1
	maxContacts          = 50
)

// Service answers read queries over the local store.
type Service struct {
	db *store.DB
}

// New creates a query service.
func New(db *store.DB) *Service {
	return &Service{db: db}
}

// MessageQuery selects messages. Zero values disable a filter; Limit <= 0
// means DefaultLimit. Negative context sizes mean the defaults.
type MessageQuery struct {
	ChatID         int64
	SenderID       int64
	Query          string
	After          *time.Time
	Before         *time.Time
	Limit          int
	Page           int
	IncludeContext bool
	ContextBefore  int
	ContextAfter   int
}

// MessageContext is a message with its neighbours in the same chat. Before
// and After are both ordered nearest first.
type MessageContext struct {
	Message store.Message   `json:"message"`
	Before  []store.Message `json:"before"`
	After   []store.Message `json:"after"`
}

// ChatQuery selects chats.
type ChatQuery struct {
	Query  string
	Type   store.ChatType
	Limit  int
	Page   int
	SortBy store.ChatSort
}

func limitOf(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

func offsetOf(limit, page int) int {
	return limitOf(limit) * max(page, 0)
}

func contextSize(n, def int) int {
	if n < 0 {
		return def
	}
	return n
}

// ListMessages returns matching messages, newest first. With IncludeContext
// each match is expanded in place to its older neighbours (oldest first), the
// match itself, then its newer neighbours. Windows of nearby matches may
// overlap and duplicates are kept.
func (s *Service) ListMessages(ctx context.Context, q MessageQuery) ([]store.Message, error) {
	matches, err := s.db.ListMessages(ctx, store.MessageFilter{
		ChatID:   q.ChatID,
		SenderID: q.SenderID,
		Query:    q.Query,
		After:    q.After,
		Before:   q.Before,
		Limit:    limitOf(q.Limit),
		Offset:   offsetOf(q.Limit, q.Page),
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if !q.IncludeContext {
		return matches, nil
	}

	before := contextSize(q.ContextBefore, DefaultContextBefore)
	after := contextSize(q.ContextAfter, DefaultContextAfter)
	var out []store.Message
	for _, m := range matches {
		mc, err := s.contextOf(ctx, m, before, after)
		if err != nil {
			return nil, err
		}
		for i := len(mc.Before) - 1; i >= 0; i-- {
			out = append(out, mc.Before[i])
		}
		out = append(out, m)
		out = append(out, mc.After...)
	}
	return out, nil
}

// GetMessageContext returns a message with up to before older and after newer
// messages of the same chat. Returns store.ErrNotFound for an unknown pair.
func (s *Service) GetMessageContext(ctx context.Context, messageID, chatID int64, before, after int) (*MessageContext, error) {
	m, err := s.db.GetMessage(ctx, messageID, chatID)
	if err != nil {
		return nil, err
	}
	return s.contextOf(ctx, *m, contextSize(before, DefaultContextBefore), contextSize(after, DefaultContextAfter))
}

func (s *Service) contextOf(ctx context.Context, m store.Message, before, after int) (*MessageContext, error) {
	older, err := s.db.MessagesBefore(ctx, m.ChatID, m.Timestamp, before)
	if err != nil {
		return nil, fmt.Errorf("messages before %d: %w", m.ID, err)
	}
	newer, err := s.db.MessagesAfter(ctx, m.ChatID, m.Timestamp, after)
	if err != nil {
		return nil, fmt.Errorf("messages after %d: %w", m.ID, err)
	}
	return &MessageContext{Message: m, Before: older, After: newer}, nil
}

// ListChats returns chats matching q, most recently active first by default.
func (s *Service) ListChats(ctx context.Context, q ChatQuery) ([]store.Chat, error) {
	return s.db.ListChats(ctx, store.ChatFilter{
		Query:  q.Query,
		Type:   q.Type,
		Limit:  limitOf(q.Limit),
		Offset: offsetOf(q.Limit, q.Page),
		SortBy: q.SortBy,
	})
}

// GetChat returns a chat by ID, or nil.
func (s *Service) GetChat(ctx context.Context, chatID int64) (*store.Chat, error) {
	return s.db.GetChat(ctx, chatID)
}

// SearchContacts returns at most 50 contacts matching query, by name.
func (s *Service) SearchContacts(ctx context.Context, query string) ([]store.Contact, error) {
	return s.db.SearchContacts(ctx, query, maxContacts)
}

// GetDirectChatByContact returns the one-to-one chat with a contact, or nil.
func (s *Service) GetDirectChatByContact(ctx context.Context, contactID int64) (*store.Chat, error) {
	return s.db.GetDirectChat(ctx, contactID)
}

// GetContactChats returns the chats a contact takes part in.
func (s *Service) GetContactChats(ctx context.Context, contactID int64, limit, page int) ([]store.Chat, error) {
	return s.db.ContactChats(ctx, contactID, limitOf(limit), offsetOf(limit, page))
}

// GetLastInteraction returns the most recent message involving a contact, or nil.
func (s *Service) GetLastInteraction(ctx context.Context, contactID int64) (*store.Message, error) {
	return s.db.LastInteraction(ctx, contactID)
}
