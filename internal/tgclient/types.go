package tgclient

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/tgbridge/internal/entity"
)

var (
	// ErrUnknownPeer is returned when an ID has no cached entity and cannot
	// be fetched without an access hash.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrUnauthorized is returned by Run when the session has no login.
	ErrUnauthorized = errors.New("session not authorized")
	// ErrNotConnected is returned by calls made outside a running client.
	ErrNotConnected = errors.New("not connected")
)

// Dialog is one entry of the account's chat list. Date is the time of the
// top message and is zero when the server did not return it.
type Dialog struct {
	ID     int64
	Entity entity.Entity
	Name   string
	Date   time.Time
}

// Message is a text message as delivered by the network client. Chat is nil
// when the chat entity could not be resolved.
type Message struct {
	ID       int64
	ChatID   int64
	Chat     entity.Entity
	SenderID int64
	Text     string
	Date     time.Time
	Out      bool
}

// MessageHandler receives live new-message updates.
type MessageHandler func(ctx context.Context, m Message)
