// Package api serves an opened archive collection over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	serverconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/server"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Server owns the gin engine and the http.Server serving it.
type Server struct {
	router *gin.Engine
	server *http.Server
	logger logger.Logger
}

// NewServer installs recovery, request id and access log middleware, then
// lets setupRoutes register handlers.
func NewServer(cfg *serverconfig.Config, log logger.Logger, setupRoutes func(*gin.Engine)) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	mode := gin.ReleaseMode
	if cfg.Debug {
		mode = gin.DebugMode
	}
	if gin.Mode() != mode {
		gin.SetMode(mode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log), RequestIDMiddleware(log), LoggerMiddleware(log))
	if setupRoutes != nil {
		setupRoutes(router)
	}

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: log,
	}
}

// Router returns the gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve listens on the configured address until ctx ends, then drains
// in-flight requests for at most DefaultShutdownTimeout. ready, when
// non-nil, receives the bound address once the listener is open.
func (s *Server) Serve(ctx context.Context, ready chan<- net.Addr) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	s.logger.Info("Serving archive", logger.String("address", ln.Addr().String()))
	if ready != nil {
		ready <- ln.Addr()
	}

	served := make(chan error, 1)
	go func() { served <- s.server.Serve(ln) }()

	select {
	case err = <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", s.server.Addr, err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err = s.server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("Stopped serving archive")
	return nil
}
