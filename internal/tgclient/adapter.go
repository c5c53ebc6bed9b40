package tgclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/telegram/query/messages"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/matheus3301/tgbridge/internal/entity"
	"go.uber.org/zap"
)

// Adapter wraps the gotd client and manages the Telegram connection.
type Adapter struct {
	client *telegram.Client
	gaps   *updates.Manager
	cache  *peerCache
	logger *zap.Logger

	connected atomic.Bool
	self      atomic.Pointer[tg.User]
	handler   atomic.Pointer[MessageHandler]
}

// NewAdapter creates a Telegram adapter whose MTProto session is kept in
// sessionPath.
func NewAdapter(appID int, appHash, sessionPath string, logger *zap.Logger) *Adapter {
	a := &Adapter{
		cache:  newPeerCache(),
		logger: logger,
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		a.handleUpdate(ctx, e, u.Message)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		a.handleUpdate(ctx, e, u.Message)
		return nil
	})

	a.gaps = updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  logger.Named("gaps"),
	})
	a.client = telegram.NewClient(appID, appHash, telegram.Options{
		Logger:         logger.Named("mtproto"),
		SessionStorage: &session.FileStorage{Path: sessionPath},
		UpdateHandler:  a.gaps,
	})
	return a
}

// RegisterMessageHandler sets the handler for live new-message updates.
// Updates that arrive before a handler is set are dropped.
func (a *Adapter) RegisterMessageHandler(h MessageHandler) {
	a.handler.Store(&h)
}

// Run connects, checks the login and runs f while the connection is up.
// Live updates are only delivered while f runs. Returns ErrUnauthorized
// when the session needs a login first.
func (a *Adapter) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return a.client.Run(ctx, func(ctx context.Context) error {
		status, err := a.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrUnauthorized
		}

		self, err := a.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		a.self.Store(self)
		a.cache.applyUser(self)
		a.logger.Info("connected to Telegram", zap.Int64("user_id", self.ID), zap.String("username", self.Username))

		a.connected.Store(true)
		defer a.connected.Store(false)

		gapsCtx, cancel := context.WithCancel(ctx)
		gapsDone := make(chan error, 1)
		go func() {
			gapsDone <- a.gaps.Run(gapsCtx, a.client.API(), self.ID, updates.AuthOptions{})
		}()

		err = f(ctx)
		cancel()
		if gerr := <-gapsDone; gerr != nil && !errors.Is(gerr, context.Canceled) {
			a.logger.Warn("update manager stopped", zap.Error(gerr))
		}
		return err
	})
}

// Connected reports whether the client is connected with an authorized session.
func (a *Adapter) Connected() bool {
	return a.connected.Load()
}

// Authorized reports whether the stored session is logged in. It connects
// only for the duration of the check.
func (a *Adapter) Authorized(ctx context.Context) (bool, error) {
	var authorized bool
	err := a.client.Run(ctx, func(ctx context.Context) error {
		status, err := a.client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		authorized = status.Authorized
		return nil
	})
	return authorized, err
}

// Self returns the marked ID of the logged-in account.
func (a *Adapter) Self(context.Context) (int64, error) {
	self := a.self.Load()
	if self == nil {
		return 0, ErrNotConnected
	}
	return self.ID, nil
}

// Entity returns the cached entity for a marked ID. Basic groups are fetched
// on a cache miss since they need no access hash.
func (a *Adapter) Entity(ctx context.Context, id int64) (entity.Entity, error) {
	if p, ok := a.cache.get(id); ok {
		return p.entity, nil
	}
	if !a.Connected() {
		return nil, ErrNotConnected
	}
	if kind, raw := Unmark(id); kind == KindChat {
		res, err := a.client.API().MessagesGetChats(ctx, []int64{raw})
		if err != nil {
			return nil, fmt.Errorf("get chat %d: %w", id, err)
		}
		a.cache.applyChats(res.GetChats())
		if p, ok := a.cache.get(id); ok {
			return p.entity, nil
		}
	}
	return nil, fmt.Errorf("entity %d: %w", id, ErrUnknownPeer)
}

// EntityByUsername resolves a public username through the server.
func (a *Adapter) EntityByUsername(ctx context.Context, username string) (entity.Entity, error) {
	if !a.Connected() {
		return nil, ErrNotConnected
	}
	p, err := peers.Options{Logger: a.logger.Named("peers")}.Build(a.client.API()).ResolveDomain(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolve @%s: %w", username, err)
	}
	switch p := p.(type) {
	case peers.User:
		a.cache.applyUser(p.Raw())
	case peers.Chat:
		a.cache.applyChat(p.Raw())
	case peers.Channel:
		a.cache.applyChannel(p.Raw())
	default:
		return nil, fmt.Errorf("resolve @%s: %w", username, ErrUnknownPeer)
	}
	return a.Entity(ctx, markedID(p))
}

func markedID(p peers.Peer) int64 {
	switch p := p.(type) {
	case peers.Chat:
		return ChatID(p.Raw().ID)
	case peers.Channel:
		return ChannelID(p.Raw().ID)
	default:
		return p.ID()
	}
}

// pageSize is the server's cap on dialogs and messages per request.
const pageSize = 100

// Dialogs returns up to limit dialogs, most recent first.
func (a *Adapter) Dialogs(ctx context.Context, limit int) ([]Dialog, error) {
	if !a.Connected() {
		return nil, ErrNotConnected
	}
	return a.fetchDialogs(ctx, a.client.API(), limit)
}

// fetchDialogs pages through the dialog list until limit entries are read
// or the list ends. Dialogs whose top message is missing get a zero Date.
func (a *Adapter) fetchDialogs(ctx context.Context, api *tg.Client, limit int) ([]Dialog, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := dialogs.NewQueryBuilder(api).GetDialogs()
	iter := dialogs.NewIterator(dialogs.QueryFunc(func(ctx context.Context, req dialogs.Request) (tg.MessagesDialogsClass, error) {
		res, err := q.Query(ctx, req)
		if err != nil {
			return nil, err
		}
		a.cache.applyDialogsResult(res)
		return res, nil
	}), min(limit, pageSize))

	out := make([]Dialog, 0, min(limit, pageSize))
	for len(out) < limit && iter.Next(ctx) {
		elem := iter.Value()
		dlg, ok := elem.Dialog.(*tg.Dialog)
		if !ok {
			continue
		}
		id := PeerID(dlg.Peer)
		var e entity.Entity = entity.Other{ID: id, Kind: "unresolved"}
		if p, ok := a.cache.get(id); ok {
			e = p.entity
		}
		d := Dialog{ID: id, Entity: e, Name: entity.DisplayName(e)}
		if elem.Last != nil && elem.Last.GetID() == dlg.TopMessage {
			d.Date = time.Unix(int64(elem.Last.GetDate()), 0)
		}
		out = append(out, d)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("get dialogs: %w", err)
	}
	return out, nil
}

// Messages returns up to limit most recent messages of a chat, newest first.
// Service and empty messages are skipped.
func (a *Adapter) Messages(ctx context.Context, e entity.Entity, limit int) ([]Message, error) {
	if !a.Connected() {
		return nil, ErrNotConnected
	}
	input, err := a.inputPeer(e)
	if err != nil {
		return nil, err
	}
	out, err := a.fetchHistory(ctx, a.client.API(), input, limit)
	if err != nil {
		return nil, fmt.Errorf("get history of %d: %w", e.EntityID(), err)
	}
	return out, nil
}

// fetchHistory pages backwards through a chat until limit messages are read
// or the history ends.
func (a *Adapter) fetchHistory(ctx context.Context, api *tg.Client, input tg.InputPeerClass, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := messages.NewQueryBuilder(api).GetHistory(input)
	iter := messages.NewIterator(messages.QueryFunc(func(ctx context.Context, req messages.Request) (tg.MessagesMessagesClass, error) {
		res, err := q.Query(ctx, req)
		if err != nil {
			return nil, err
		}
		a.cache.applyMessagesResult(res)
		return res, nil
	}), min(limit, pageSize))

	out := make([]Message, 0, min(limit, pageSize))
	for read := 0; read < limit && iter.Next(ctx); read++ {
		if msg, ok := iter.Value().Msg.(*tg.Message); ok {
			out = append(out, a.convert(msg))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Sender resolves the entity that authored m.
func (a *Adapter) Sender(_ context.Context, m Message) (entity.Entity, error) {
	if p, ok := a.cache.get(m.SenderID); ok {
		return p.entity, nil
	}
	if self := a.self.Load(); self != nil && m.SenderID == self.ID {
		return personFromUser(self), nil
	}
	return nil, fmt.Errorf("sender %d of message %d: %w", m.SenderID, m.ID, ErrUnknownPeer)
}

// SendMessage sends a text message to e.
func (a *Adapter) SendMessage(ctx context.Context, e entity.Entity, text string) error {
	if !a.Connected() {
		return ErrNotConnected
	}
	input, err := a.inputPeer(e)
	if err != nil {
		return err
	}
	if _, err := message.NewSender(a.client.API()).To(input).Text(ctx, text); err != nil {
		return fmt.Errorf("send message to %d: %w", e.EntityID(), err)
	}
	return nil
}

func (a *Adapter) inputPeer(e entity.Entity) (tg.InputPeerClass, error) {
	if e == nil {
		return nil, ErrUnknownPeer
	}
	p, ok := a.cache.get(e.EntityID())
	if !ok {
		return nil, fmt.Errorf("input peer %d: %w", e.EntityID(), ErrUnknownPeer)
	}
	return p.input, nil
}

func (a *Adapter) convert(m *tg.Message) Message {
	chatID := PeerID(m.PeerID)
	msg := Message{
		ID:     int64(m.ID),
		ChatID: chatID,
		Text:   m.Message,
		Date:   time.Unix(int64(m.Date), 0),
		Out:    m.Out,
	}
	if p, ok := a.cache.get(chatID); ok {
		msg.Chat = p.entity
	}

	from, hasFrom := m.GetFromID()
	switch {
	case hasFrom:
		msg.SenderID = PeerID(from)
	case m.Out:
		if self := a.self.Load(); self != nil {
			msg.SenderID = self.ID
		}
	default:
		// Private chats carry no from_id: the peer is the author.
		msg.SenderID = chatID
	}
	return msg
}

func (a *Adapter) handleUpdate(ctx context.Context, e tg.Entities, raw tg.MessageClass) {
	a.cache.applyEntities(e)
	m, ok := raw.(*tg.Message)
	if !ok {
		return
	}
	h := a.handler.Load()
	if h == nil {
		a.logger.Debug("dropping update, no handler", zap.Int("msg_id", m.ID))
		return
	}
	(*h)(ctx, a.convert(m))
}
