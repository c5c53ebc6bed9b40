package daemon

import (
	"github.com/matheus3301/tgbridge/internal/bus"
	"github.com/matheus3301/tgbridge/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reporting the daemon state. The
// empty name reports the same status.
const ServiceName = "tgbridge.Daemon"

// Health mirrors the state machine into the gRPC health service.
type Health struct {
	srv     *health.Server
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	unsub   func()
	stop    chan struct{}
	done    chan struct{}
}

// NewHealth creates a health reporter starting at NOT_SERVING.
func NewHealth(b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Health {
	h := &Health{
		srv:     health.NewServer(),
		bus:     b,
		machine: machine,
		logger:  logger,
	}
	h.set(machine.Current())
	return h
}

// Server returns the gRPC health implementation.
func (h *Health) Server() *health.Server {
	return h.srv
}

// Start follows state changes until Stop.
func (h *Health) Start() {
	ch, unsub := h.bus.Subscribe(bus.KindStatusChanged, 16)
	h.unsub = unsub
	h.stop = make(chan struct{})
	h.done = make(chan struct{})

	// A change published before Subscribe is not replayed.
	h.set(h.machine.Current())

	go func() {
		defer close(h.done)
		for {
			select {
			case <-h.stop:
				return
			case evt := <-ch:
				change, ok := evt.Payload.(status.StatusChange)
				if !ok {
					continue
				}
				h.logger.Info("daemon state changed", zap.String("from", string(change.From)), zap.String("to", string(change.To)))
				// Read back the machine: the bus may have dropped intermediate events.
				h.set(h.machine.Current())
			}
		}
	}()
}

// Stop ends the watcher and reports NOT_SERVING to remaining clients.
func (h *Health) Stop() {
	if h.unsub == nil {
		return
	}
	h.unsub()
	close(h.stop)
	<-h.done
	h.unsub = nil
	h.srv.Shutdown()
}

func (h *Health) set(s status.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.Serving() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
}
