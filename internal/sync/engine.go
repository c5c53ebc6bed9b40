package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/tgbridge/internal/bus"
	"github.com/matheus3301/tgbridge/internal/entity"
	"github.com/matheus3301/tgbridge/internal/store"
	"github.com/matheus3301/tgbridge/internal/tgclient"
	"go.uber.org/zap"
)

// Source is the part of the network client the engine reads from.
type Source interface {
	Self(ctx context.Context) (int64, error)
	Dialogs(ctx context.Context, limit int) ([]tgclient.Dialog, error)
	Messages(ctx context.Context, e entity.Entity, limit int) ([]tgclient.Message, error)
	Sender(ctx context.Context, m tgclient.Message) (entity.Entity, error)
}

// Executor runs fn on the context that owns the network client.
type Executor interface {
	Call(ctx context.Context, fn func(ctx context.Context) error) error
}

// Report summarizes one full sweep.
type Report struct {
	Dialogs  int           `json:"dialogs"`
	Synced   int           `json:"synced"`
	Failed   int           `json:"failed"`
	Messages int           `json:"messages"`
	Duration time.Duration `json:"duration"`
}

// Engine mirrors dialogs and messages into the store. Both the live path and
// the bulk path upsert the chat before any of its messages.
type Engine struct {
	db         *store.DB
	src        Source
	bus        *bus.Bus
	exec       Executor
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewEngine creates a new sync engine. A nil exec runs every step inline.
func NewEngine(db *store.DB, src Source, b *bus.Bus, exec Executor, logger *zap.Logger) *Engine {
	return &Engine{
		db:         db,
		src:        src,
		bus:        b,
		exec:       exec,
		reconciler: NewReconciler(db, logger),
		logger:     logger,
	}
}

func (e *Engine) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.exec == nil {
		return fn(ctx)
	}
	return e.exec.Call(ctx, fn)
}

// SyncDialogHistory stores the chat row of d and up to pageLimit of its most
// recent messages. Returns the number of messages stored.
func (e *Engine) SyncDialogHistory(ctx context.Context, d tgclient.Dialog, pageLimit int) (int, error) {
	class, err := entity.Classify(d.Entity)
	if err != nil {
		e.logger.Warn("skipping dialog", zap.Int64("chat_id", d.ID), zap.Error(err))
		return 0, nil
	}

	var lastActive *time.Time
	if !d.Date.IsZero() {
		date := d.Date
		lastActive = &date
	}
	if err := e.db.UpsertChat(ctx, &store.Chat{
		ID:              d.ID,
		Title:           class.Title,
		Username:        class.Username,
		Type:            class.Type,
		LastMessageTime: lastActive,
	}); err != nil {
		return 0, fmt.Errorf("upsert chat %d: %w", d.ID, err)
	}

	msgs, err := e.src.Messages(ctx, d.Entity, pageLimit)
	if err != nil {
		return 0, fmt.Errorf("fetch history of %d: %w", d.ID, err)
	}

	self, err := e.src.Self(ctx)
	if err != nil {
		return 0, fmt.Errorf("get self: %w", err)
	}

	stored := 0
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		senderID, senderName := int64(0), "Unknown"
		if s, err := e.src.Sender(ctx, m); err != nil {
			e.logger.Debug("sender unresolved", zap.Int64("chat_id", d.ID), zap.Int64("msg_id", m.ID), zap.Error(err))
		} else {
			senderID, senderName = s.EntityID(), entity.DisplayName(s)
		}

		if err := e.db.UpsertMessage(ctx, &store.Message{
			ID:         m.ID,
			ChatID:     d.ID,
			SenderID:   senderID,
			SenderName: senderName,
			Content:    m.Text,
			Timestamp:  m.Date,
			IsFromMe:   senderID == self,
		}); err != nil {
			e.logStoreError("failed to store history message", err, d.ID, m.ID)
			continue
		}
		stored++
		e.bus.Emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: d.ID, MessageID: m.ID})
	}

	e.bus.Emit(bus.KindDialogSynced, bus.DialogSynced{ChatID: d.ID, Title: class.Title, Stored: stored})
	return stored, nil
}

// SyncAllDialogs sweeps up to dialogLimit dialogs. A failing dialog is logged
// and counted, never fatal. Every dialog is its own step on the executor, so
// other work queued there runs between dialogs. It must not be called from
// the executor itself.
func (e *Engine) SyncAllDialogs(ctx context.Context, dialogLimit, pageLimit int) Report {
	start := time.Now()
	var report Report

	var dialogs []tgclient.Dialog
	err := e.run(ctx, func(ctx context.Context) error {
		var err error
		dialogs, err = e.src.Dialogs(ctx, dialogLimit)
		return err
	})
	if err != nil {
		e.logger.Error("failed to list dialogs", zap.Error(err))
		report.Failed++
		return e.finish(ctx, report, start)
	}
	report.Dialogs = len(dialogs)
	e.logger.Info("syncing dialogs", zap.Int("count", len(dialogs)))

	for _, d := range dialogs {
		if ctx.Err() != nil {
			e.logger.Warn("sweep interrupted", zap.Int("remaining", len(dialogs)-report.Synced-report.Failed))
			break
		}
		var stored int
		err := e.run(ctx, func(ctx context.Context) error {
			var err error
			stored, err = e.SyncDialogHistory(ctx, d, pageLimit)
			return err
		})
		if err != nil {
			e.logger.Warn("dialog sync failed", zap.Int64("chat_id", d.ID), zap.String("name", d.Name), zap.Error(err))
			report.Failed++
			continue
		}
		report.Synced++
		report.Messages += stored
	}
	return e.finish(ctx, report, start)
}

func (e *Engine) finish(ctx context.Context, report Report, start time.Time) Report {
	report.Duration = time.Since(start)
	if err := e.reconciler.RecordSweep(ctx, report); err != nil {
		e.logger.Warn("failed to record sweep checkpoint", zap.Error(err))
	}
	e.logger.Info("sync completed",
		zap.Int("dialogs", report.Dialogs),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
		zap.Int("messages", report.Messages),
		zap.Duration("duration", report.Duration),
	)
	e.bus.Emit(bus.KindSyncCompleted, report)
	return report
}

// HandleLiveEvent stores one message from the live update stream. Messages
// without text or without a resolvable chat are skipped.
func (e *Engine) HandleLiveEvent(ctx context.Context, m tgclient.Message) error {
	if m.Text == "" || m.Chat == nil {
		return nil
	}
	class, err := entity.Classify(m.Chat)
	if err != nil {
		e.logger.Warn("skipping live message", zap.Int64("chat_id", m.ChatID), zap.Error(err))
		return nil
	}

	date := m.Date
	if err := e.db.UpsertChat(ctx, &store.Chat{
		ID:              m.ChatID,
		Title:           class.Title,
		Username:        class.Username,
		Type:            class.Type,
		LastMessageTime: &date,
	}); err != nil {
		return fmt.Errorf("upsert chat %d: %w", m.ChatID, err)
	}

	sender, err := e.src.Sender(ctx, m)
	if err != nil {
		return fmt.Errorf("resolve sender of %d/%d: %w", m.ChatID, m.ID, err)
	}
	self, err := e.src.Self(ctx)
	if err != nil {
		return fmt.Errorf("get self: %w", err)
	}

	if err := e.db.UpsertMessage(ctx, &store.Message{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderID:   sender.EntityID(),
		SenderName: entity.DisplayName(sender),
		Content:    m.Text,
		Timestamp:  m.Date,
		IsFromMe:   sender.EntityID() == self,
	}); err != nil {
		return fmt.Errorf("upsert message %d: %w", m.ID, err)
	}

	e.bus.Emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: m.ChatID, MessageID: m.ID, Live: true})
	return nil
}

// LiveHandler adapts HandleLiveEvent to the network client's callback. It
// queues each message onto the executor and logs failures.
func (e *Engine) LiveHandler() tgclient.MessageHandler {
	return func(ctx context.Context, m tgclient.Message) {
		err := e.run(ctx, func(ctx context.Context) error {
			return e.HandleLiveEvent(ctx, m)
		})
		if err != nil {
			e.logStoreError("failed to handle live message", err, m.ChatID, m.ID)
		}
	}
}

func (e *Engine) logStoreError(msg string, err error, chatID, msgID int64) {
	fields := []zap.Field{zap.Int64("chat_id", chatID), zap.Int64("msg_id", msgID), zap.Error(err)}
	if errors.Is(err, store.ErrConstraint) {
		e.logger.Error(msg, fields...)
		return
	}
	e.logger.Warn(msg, fields...)
}
