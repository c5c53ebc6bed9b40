package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/tgbridge/internal/store"
	"go.uber.org/zap"
)

const (
	checkpointLastSweep   = "last_sweep_at"
	checkpointSweepReport = "last_sweep_report"
)

// Reconciler manages sync checkpoints.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// RecordSweep stores the completion time and summary of a sweep.
func (r *Reconciler) RecordSweep(ctx context.Context, report Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := r.db.SetCheckpoint(ctx, checkpointSweepReport, string(data)); err != nil {
		return fmt.Errorf("store sweep report: %w", err)
	}
	return r.db.SetCheckpoint(ctx, checkpointLastSweep, time.Now().UTC().Format(time.RFC3339))
}

// LastSweep returns when the last sweep finished and what it did. The time is
// zero if no sweep ever completed.
func (r *Reconciler) LastSweep(ctx context.Context) (time.Time, Report, error) {
	var report Report
	at, err := r.db.GetCheckpoint(ctx, checkpointLastSweep)
	if err != nil || at == "" {
		return time.Time{}, report, err
	}
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, report, fmt.Errorf("parse %s: %w", checkpointLastSweep, err)
	}
	raw, err := r.db.GetCheckpoint(ctx, checkpointSweepReport)
	if err != nil {
		return ts, report, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			r.logger.Warn("corrupt sweep report", zap.Error(err))
		}
	}
	return ts, report, nil
}
