package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/tgbridge/internal/bus"
	"github.com/matheus3301/tgbridge/internal/entity"
	"github.com/matheus3301/tgbridge/internal/loop"
	"github.com/matheus3301/tgbridge/internal/store"
	"go.uber.org/zap"
)

// DefaultTimeout bounds how long Send waits for the network client.
const DefaultTimeout = 10 * time.Second

var (
	// ErrInvalidRequest is returned for a request missing recipient or message.
	ErrInvalidRequest = errors.New("recipient and message are required")
	// ErrTimeout is returned when the send did not finish in time. The send
	// itself keeps running and may still be delivered.
	ErrTimeout = errors.New("send timed out")
	// ErrRecipientNotFound is returned when no entity matches the recipient.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Client is the part of the network client a send needs.
type Client interface {
	Connected() bool
	Entity(ctx context.Context, id int64) (entity.Entity, error)
	EntityByUsername(ctx context.Context, username string) (entity.Entity, error)
	SendMessage(ctx context.Context, e entity.Entity, text string) error
}

// RecipientFinder looks a recipient up in the local store.
type RecipientFinder interface {
	FindRecipient(ctx context.Context, name string) (*store.Chat, error)
}

// Scheduler queues work onto the context that owns the client.
type Scheduler interface {
	Submit(ctx context.Context, task loop.Task) error
}

// Outcome is the terminal state of a send request.
type Outcome string

const (
	Completed        Outcome = "completed"
	TimedOut         Outcome = "timed_out"
	SchedulingFailed Outcome = "scheduling_failed"
	Rejected         Outcome = "rejected"
)

// Request is an outbound text message.
type Request struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// Result describes how a request ended. Success is only meaningful for
// Completed.
type Result struct {
	RequestID string
	Outcome   Outcome
	Success   bool
	Message   string
	Err       error
}

// Bridge hands send requests from caller goroutines to the client's
// execution loop and waits for the answer with a deadline.
type Bridge struct {
	sched   Scheduler
	client  Client
	finder  RecipientFinder
	bus     *bus.Bus
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a bridge. A non-positive timeout means DefaultTimeout.
func New(sched Scheduler, client Client, finder RecipientFinder, b *bus.Bus, timeout time.Duration, logger *zap.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{
		sched:   sched,
		client:  client,
		finder:  finder,
		bus:     b,
		timeout: timeout,
		logger:  logger,
	}
}

type unitResult struct {
	success bool
	message string
	err     error
}

// Send delivers req through the loop. It never returns later than the
// configured timeout; a send still running at that point is left to finish
// and its result is discarded.
func (b *Bridge) Send(ctx context.Context, req Request) Result {
	res := Result{RequestID: uuid.NewString()}
	log := b.logger.With(zap.String("request_id", res.RequestID), zap.String("recipient", req.Recipient))

	if strings.TrimSpace(req.Recipient) == "" || req.Message == "" {
		res.Outcome, res.Message, res.Err = Rejected, "Recipient and message are required", ErrInvalidRequest
		return res
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// Buffered so a unit finishing after the deadline never blocks the loop.
	done := make(chan unitResult, 1)
	err := b.sched.Submit(waitCtx, func(loopCtx context.Context) {
		ok, msg, err := b.deliver(loopCtx, req)
		done <- unitResult{success: ok, message: msg, err: err}
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return b.timedOut(log, res)
	case err != nil:
		log.Error("failed to schedule send", zap.Error(err))
		res.Outcome, res.Message, res.Err = SchedulingFailed, fmt.Sprintf("Error: %v", err), err
		return res
	}

	select {
	case r := <-done:
		res.Outcome, res.Success, res.Message, res.Err = Completed, r.success, r.message, r.err
		if r.success {
			log.Info("message sent")
			b.bus.Emit(bus.KindSendCompleted, res.RequestID)
		} else {
			log.Warn("send failed", zap.String("reason", r.message), zap.Error(r.err))
			b.bus.Emit(bus.KindSendFailed, res.RequestID)
		}
		return res
	case <-waitCtx.Done():
		return b.timedOut(log, res)
	}
}

func (b *Bridge) timedOut(log *zap.Logger, res Result) Result {
	log.Warn("send timed out", zap.Duration("timeout", b.timeout))
	b.bus.Emit(bus.KindSendFailed, res.RequestID)
	res.Outcome, res.Message, res.Err = TimedOut, "Request timed out while sending message", ErrTimeout
	return res
}

// deliver runs on the loop.
func (b *Bridge) deliver(ctx context.Context, req Request) (bool, string, error) {
	if !b.client.Connected() {
		return false, "Not connected to Telegram", nil
	}

	name, e, err := b.resolve(ctx, req.Recipient)
	if errors.Is(err, ErrRecipientNotFound) {
		return false, fmt.Sprintf("Recipient not found: %s", name), err
	}
	if err != nil {
		return false, fmt.Sprintf("Error sending message: %v", err), err
	}

	if err := b.client.SendMessage(ctx, e, req.Message); err != nil {
		return false, fmt.Sprintf("Error sending message: %v", err), err
	}
	return true, fmt.Sprintf("Message sent to %s", name), nil
}

// resolve maps a recipient to an entity: a numeric chat ID first, then a
// username, then a chat title or username match in the store. The returned
// name is the recipient as used in messages, without a leading @.
func (b *Bridge) resolve(ctx context.Context, recipient string) (string, entity.Entity, error) {
	if id, err := strconv.ParseInt(recipient, 10, 64); err == nil {
		e, err := b.client.Entity(ctx, id)
		return recipient, e, err
	}

	name := strings.TrimPrefix(recipient, "@")
	e, err := b.client.EntityByUsername(ctx, name)
	if err == nil {
		return name, e, nil
	}
	b.logger.Debug("username lookup failed, trying local store", zap.String("name", name), zap.Error(err))

	chat, err := b.finder.FindRecipient(ctx, name)
	if err != nil {
		return name, nil, fmt.Errorf("find recipient: %w", err)
	}
	if chat == nil {
		return name, nil, ErrRecipientNotFound
	}
	e, err = b.client.Entity(ctx, chat.ID)
	return name, e, err
}
