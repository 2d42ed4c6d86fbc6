// Package server runs the HTTP endpoints and tears down the graph layer
// after in-flight requests drain.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-graphtx/pkg/logging"
)

// DefaultShutdownTimeout bounds the drain of in-flight requests
const DefaultShutdownTimeout = 30 * time.Second

// GracefulServer wraps an HTTP server with graceful shutdown capabilities
type GracefulServer struct {
	server       *http.Server
	logger       logging.Logger
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	hooksMu sync.Mutex
	hooks   []func()
}

// NewGracefulServer creates a new graceful HTTP server
func NewGracefulServer(addr string, handler http.Handler, logger logging.Logger) *GracefulServer {
	return &GracefulServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger:     logging.OrDefault(logger).With(logging.Component("server")),
		shutdownCh: make(chan struct{}),
	}
}

// OnShutdown registers fn to run once the HTTP server has stopped. Hooks
// run in reverse registration order.
func (gs *GracefulServer) OnShutdown(fn func()) {
	gs.hooksMu.Lock()
	defer gs.hooksMu.Unlock()
	gs.hooks = append(gs.hooks, fn)
}

// Run listens on the configured address and blocks until ctx is done or
// SIGINT/SIGTERM arrives, then shuts down gracefully.
func (gs *GracefulServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}
	return gs.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (gs *GracefulServer) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		gs.logger.Info("Starting HTTP server", logging.String("addr", ln.Addr().String()))
		if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			gs.runHooks()
			return err
		}
		return nil
	case <-ctx.Done():
		gs.logger.Info("shutdown requested", logging.Error(context.Cause(ctx)))
	}

	return gs.Shutdown(DefaultShutdownTimeout)
}

// Shutdown drains the HTTP server and then runs the shutdown hooks. Only
// the first call does any work.
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("Initiating graceful shutdown", logging.Duration("timeout", timeout))
		if err := gs.server.Shutdown(ctx); err != nil {
			gs.shutdownErr = err
			gs.logger.Error("Error during shutdown", logging.Error(err))
		}

		gs.runHooks()
		gs.logger.Info("Server shutdown complete")
	})
	return gs.shutdownErr
}

func (gs *GracefulServer) runHooks() {
	gs.hooksMu.Lock()
	hooks := gs.hooks
	gs.hooks = nil
	gs.hooksMu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown is initiated
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}
