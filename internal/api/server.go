package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/tgbridge/internal/bridge"
	"go.uber.org/zap"
)

// Sender is the send side of the command bridge.
type Sender interface {
	Send(ctx context.Context, req bridge.Request) bridge.Result
}

// Server is the local HTTP API.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

// NewServer creates an HTTP API server for addr.
func NewServer(addr string, sender Sender, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(sender, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the gin engine serving the API.
func NewRouter(sender Sender, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	h := &handler{sender: sender, logger: logger}
	r.POST("/api/send", h.send)
	// Wrong methods on known paths fall through to NoRoute as well.
	r.NoRoute(notFound)
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	s.logger.Info("HTTP API listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
