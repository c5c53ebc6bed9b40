package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/tgbridge/internal/bus"
	"go.uber.org/zap"
)

// ActivityKey is the checkpoint key holding the daemon's activity counters.
const ActivityKey = "daemon_activity"

const (
	activityFlushInterval = 30 * time.Second
	activityFlushTimeout  = 5 * time.Second
)

// ActivitySnapshot counts what the daemon stored and sent since StartedAt.
type ActivitySnapshot struct {
	StartedAt       time.Time `json:"started_at"`
	LiveMessages    int64     `json:"live_messages"`
	HistoryMessages int64     `json:"history_messages"`
	DialogsSynced   int64     `json:"dialogs_synced"`
	Sweeps          int64     `json:"sweeps"`
	SendsOK         int64     `json:"sends_ok"`
	SendsFailed     int64     `json:"sends_failed"`
	LastEvent       time.Time `json:"last_event,omitzero"`
}

// CheckpointStore persists small key/value state.
type CheckpointStore interface {
	SetCheckpoint(ctx context.Context, key, value string) error
	GetCheckpoint(ctx context.Context, key string) (string, error)
}

// Activity counts message, sync and send events from the bus and keeps the
// totals in the store. Totals are written after every sweep, periodically
// while events arrive and on Stop.
type Activity struct {
	bus      *bus.Bus
	db       CheckpointStore
	logger   *zap.Logger
	interval time.Duration

	mu    sync.Mutex
	snap  ActivitySnapshot
	dirty bool

	unsubs []func()
	stop   chan struct{}
	done   chan struct{}
}

// NewActivity creates an activity recorder flushing every 30 seconds.
func NewActivity(b *bus.Bus, db CheckpointStore, logger *zap.Logger) *Activity {
	return &Activity{bus: b, db: db, logger: logger, interval: activityFlushInterval}
}

// Start subscribes to the bus and records events until Stop.
func (a *Activity) Start() {
	messages, unsubMessages := a.bus.Subscribe("message.", 1024)
	syncs, unsubSyncs := a.bus.Subscribe("sync.", 64)
	a.unsubs = []func(){unsubMessages, unsubSyncs}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})

	a.mu.Lock()
	a.snap = ActivitySnapshot{StartedAt: time.Now().UTC()}
	a.dirty = true
	a.mu.Unlock()

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				a.drain(messages)
				a.drain(syncs)
				return
			case evt := <-messages:
				a.record(evt)
			case evt := <-syncs:
				a.record(evt)
				if evt.Kind == bus.KindSyncCompleted {
					a.flush()
				}
			case <-ticker.C:
				a.flush()
			}
		}
	}()
}

// Stop records the events already queued and writes the final totals.
func (a *Activity) Stop() {
	if a.unsubs == nil {
		return
	}
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	close(a.stop)
	<-a.done
	a.flush()
}

// Snapshot returns the current totals.
func (a *Activity) Snapshot() ActivitySnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

func (a *Activity) drain(ch <-chan bus.Event) {
	for {
		select {
		case evt := <-ch:
			a.record(evt)
		default:
			return
		}
	}
}

func (a *Activity) record(evt bus.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch evt.Kind {
	case bus.KindMessageUpserted:
		if ref, ok := evt.Payload.(bus.MessageRef); ok && ref.Live {
			a.snap.LiveMessages++
		} else {
			a.snap.HistoryMessages++
		}
	case bus.KindDialogSynced:
		a.snap.DialogsSynced++
	case bus.KindSyncCompleted:
		a.snap.Sweeps++
	case bus.KindSendCompleted:
		a.snap.SendsOK++
	case bus.KindSendFailed:
		a.snap.SendsFailed++
	default:
		return
	}
	a.snap.LastEvent = evt.Timestamp
	a.dirty = true
}

func (a *Activity) flush() {
	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return
	}
	snap := a.snap
	a.dirty = false
	a.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		a.logger.Warn("failed to encode activity", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), activityFlushTimeout)
	defer cancel()
	if err := a.db.SetCheckpoint(ctx, ActivityKey, string(data)); err != nil {
		a.logger.Warn("failed to store activity", zap.Error(err))
		a.mu.Lock()
		a.dirty = true
		a.mu.Unlock()
	}
}

// ReadActivity loads the last stored totals. ok is false when the daemon
// never wrote any.
func ReadActivity(ctx context.Context, db CheckpointStore) (snap ActivitySnapshot, ok bool, err error) {
	raw, err := db.GetCheckpoint(ctx, ActivityKey)
	if err != nil || raw == "" {
		return ActivitySnapshot{}, false, err
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return ActivitySnapshot{}, false, fmt.Errorf("decode activity: %w", err)
	}
	return snap, true, nil
}
