package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/tgbridge/internal/loop"
	intsync "github.com/matheus3301/tgbridge/internal/sync"
	"github.com/matheus3301/tgbridge/internal/status"
	"github.com/matheus3301/tgbridge/internal/tgclient"
	"go.uber.org/zap"
)

const (
	minBackoff = time.Second
	maxBackoff = time.Minute
)

// Conn is the Telegram connection driven by the runner.
type Conn interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
	RegisterMessageHandler(h tgclient.MessageHandler)
}

// Syncer performs the startup sweep and consumes live messages.
type Syncer interface {
	SyncAllDialogs(ctx context.Context, dialogLimit, pageLimit int) intsync.Report
	LiveHandler() tgclient.MessageHandler
}

// Runner owns the work loop and the Telegram connection. The loop runs for
// the whole daemon lifetime; the connection is retried with backoff until
// the session needs a login or the runner is stopped.
type Runner struct {
	loop         *loop.Loop
	conn         Conn
	syncer       Syncer
	machine      *status.Machine
	dialogLimit  int
	historyLimit int
	logger       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. Nothing starts until Start.
func NewRunner(l *loop.Loop, conn Conn, syncer Syncer, machine *status.Machine, dialogLimit, historyLimit int, logger *zap.Logger) *Runner {
	return &Runner{
		loop:         l,
		conn:         conn,
		syncer:       syncer,
		machine:      machine,
		dialogLimit:  dialogLimit,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Start launches the loop and the connection goroutines.
func (r *Runner) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	r.conn.RegisterMessageHandler(r.syncer.LiveHandler())

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		if err := r.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("work loop failed", zap.Error(err))
		}
	}()
	go func() {
		defer r.wg.Done()
		r.connect(ctx)
	}()
}

// Stop cancels the connection and the loop and waits for both to exit.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) connect(ctx context.Context) {
	// The sweep submits onto the loop, which rejects work before Run starts.
	for !r.loop.Running() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}

	backoff := minBackoff
	for {
		r.transition(status.Connecting)
		online := false
		err := r.conn.Run(ctx, func(ctx context.Context) error {
			online = true
			return r.online(ctx)
		})
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, tgclient.ErrUnauthorized) {
			r.logger.Warn("session is not authorized, run the login command")
			r.transition(status.AuthRequired)
			return
		}
		if online {
			backoff = minBackoff
		}

		r.logger.Warn("telegram connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		r.transition(status.Reconnecting)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// online runs while the client is connected and authorized.
func (r *Runner) online(ctx context.Context) error {
	r.transition(status.Syncing)
	report := r.syncer.SyncAllDialogs(ctx, r.dialogLimit, r.historyLimit)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if report.Failed > 0 {
		r.transition(status.Degraded)
	} else {
		r.transition(status.Ready)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *Runner) transition(to status.State) {
	if err := r.machine.Transition(to); err != nil {
		r.logger.Warn("state transition rejected", zap.Error(err))
	}
}
