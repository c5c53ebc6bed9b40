package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/tgbridge/internal/bus"
	intsync "github.com/matheus3301/tgbridge/internal/sync"
	"go.uber.org/zap"
)

// memCheckpoints keeps checkpoints in memory.
type memCheckpoints struct {
	mu     sync.Mutex
	values map[string]string
	writes int
	err    error
}

func (m *memCheckpoints) SetCheckpoint(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	m.writes++
	return nil
}

func (m *memCheckpoints) GetCheckpoint(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func TestActivityCountsEvents(t *testing.T) {
	b := bus.New()
	db := &memCheckpoints{}
	a := NewActivity(b, db, zap.NewNop())
	a.Start()

	b.Emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: 1, MessageID: 1})
	b.Emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: 1, MessageID: 2})
	b.Emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: 1, MessageID: 3, Live: true})
	b.Emit(bus.KindDialogSynced, bus.DialogSynced{ChatID: 1, Stored: 2})
	b.Emit(bus.KindSendCompleted, "req-1")
	b.Emit(bus.KindSendFailed, "req-2")
	b.Emit(bus.KindStatusChanged, nil)
	a.Stop()

	snap, ok, err := ReadActivity(context.Background(), db)
	if err != nil || !ok {
		t.Fatalf("ReadActivity: ok=%v err=%v", ok, err)
	}
	want := ActivitySnapshot{HistoryMessages: 2, LiveMessages: 1, DialogsSynced: 1, SendsOK: 1, SendsFailed: 1}
	if snap.HistoryMessages != want.HistoryMessages || snap.LiveMessages != want.LiveMessages ||
		snap.DialogsSynced != want.DialogsSynced || snap.SendsOK != want.SendsOK || snap.SendsFailed != want.SendsFailed {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.StartedAt.IsZero() || snap.LastEvent.IsZero() {
		t.Errorf("times not set: %+v", snap)
	}
	if got := a.Snapshot(); got.Sweeps != 0 || got.LiveMessages != 1 {
		t.Errorf("in-memory snapshot = %+v", got)
	}
}

func TestActivityFlushesAfterSweep(t *testing.T) {
	b := bus.New()
	db := &memCheckpoints{}
	a := NewActivity(b, db, zap.NewNop())
	a.interval = time.Hour
	a.Start()
	defer a.Stop()

	b.Emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: 1, MessageID: 1})
	b.Emit(bus.KindSyncCompleted, intsync.Report{Dialogs: 1, Synced: 1, Messages: 1})

	waitFor(t, func() bool {
		snap, ok, _ := ReadActivity(context.Background(), db)
		return ok && snap.Sweeps == 1
	})
}

func TestActivityRetriesFailedWrite(t *testing.T) {
	b := bus.New()
	db := &memCheckpoints{err: errors.New("disk full")}
	a := NewActivity(b, db, zap.NewNop())
	a.interval = time.Hour
	a.Start()

	b.Emit(bus.KindSendCompleted, "req-1")
	b.Emit(bus.KindSyncCompleted, intsync.Report{})
	waitFor(t, func() bool { return a.Snapshot().Sweeps == 1 })

	db.mu.Lock()
	db.err = nil
	db.mu.Unlock()
	a.Stop()

	snap, ok, err := ReadActivity(context.Background(), db)
	if err != nil || !ok || snap.SendsOK != 1 || snap.Sweeps != 1 {
		t.Errorf("after retry: %+v ok=%v err=%v", snap, ok, err)
	}
}

func TestReadActivityUnset(t *testing.T) {
	_, ok, err := ReadActivity(context.Background(), &memCheckpoints{})
	if err != nil || ok {
		t.Errorf("ok=%v err=%v, want false nil", ok, err)
	}
}
