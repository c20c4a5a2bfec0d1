// Package server orchestrates the gateway: one shared bridge, any number of
// protocol adapters, and the optional metrics endpoint.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/adapter"
	"github.com/marmos91/drivebridge/pkg/bridge"
	"github.com/marmos91/drivebridge/pkg/metrics"
)

// Server manages the lifecycle of multiple protocol adapters sharing one
// bridge.
//
// Architecture:
// Each supported protocol (SFTP, FTP) is an Adapter implementation. All
// adapters share the same bridge, so every protocol sees the same remote
// store through the same metadata cache.
//
// Lifecycle:
//  1. Creation: New() with the bridge
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation triggers graceful shutdown
//
// Thread safety:
// AddAdapter() may be called concurrently before Serve(). Serve() must be
// called at most once.
type Server struct {
	bridge *bridge.Bridge

	// metricsServer is started alongside the adapters when non-nil
	metricsServer *metrics.Server

	// stopTimeout bounds graceful shutdown of each adapter
	stopTimeout time.Duration

	mu       sync.Mutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a Server over the given bridge.
//
// Panics if the bridge is nil (programmer error).
func New(b *bridge.Bridge, stopTimeout time.Duration) *Server {
	if b == nil {
		panic("bridge cannot be nil")
	}
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}

	return &Server{
		bridge:      b,
		stopTimeout: stopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// SetMetricsServer attaches a metrics endpoint that is started with the
// adapters and stopped with them.
func (s *Server) SetMetricsServer(ms *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = ms
}

// AddAdapter registers a protocol adapter and injects the shared bridge.
//
// Each adapter must use a distinct protocol and a distinct port; conflicts
// return an error. Panics if called after Serve() (programmer error).
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	for _, existing := range s.adapters {
		if existing.Protocol() == a.Protocol() {
			return fmt.Errorf("adapter for protocol %s already registered", a.Protocol())
		}
		if existing.Port() == a.Port() {
			return fmt.Errorf("port %d already in use by %s adapter", a.Port(), existing.Protocol())
		}
	}

	a.SetBridge(s.bridge)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", a.Protocol(), a.Port())
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// On shutdown all adapters receive Stop() in reverse registration order,
// each bounded by the configured stop timeout, and Serve waits for every
// adapter goroutine to finish before returning.
//
// Returns:
//   - context.Canceled when shutdown was triggered by context cancellation
//   - the adapter's error when one fails during startup or operation
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		panic("Serve() has already been called on this server instance")
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metricsServer
	s.mu.Unlock()

	logger.Info("Starting drivebridge with %d adapter(s)", len(adapters))

	if metricsServer != nil {
		// Start blocks until the context is cancelled, run it alongside
		// the adapters.
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server: %v", err)
			}
		}()
	}

	// Buffered so failing adapters never block their goroutines.
	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			logger.Info("Starting %s adapter on port %d", a.Protocol(), a.Port())

			if err := a.Serve(ctx); err != nil {
				// context.Canceled is expected during shutdown.
				if err != context.Canceled && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", a.Protocol(), err)
					errChan <- adapterError{protocol: a.Protocol(), err: err}
					return
				}
			}
			logger.Debug("%s adapter stopped", a.Protocol())
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("%s adapter failed: %v - stopping all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.stopAllAdapters(adapters)
	wg.Wait()

	if metricsServer != nil {
		if err := metricsServer.Stop(context.Background()); err != nil {
			logger.Warn("metrics server shutdown: %v", err)
		}
	}

	logger.Info("drivebridge stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters initiates graceful shutdown in reverse registration
// order, each Stop() bounded by the configured timeout.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	stopCtx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(stopCtx); err != nil {
			logger.Warn("%s adapter stop: %v", a.Protocol(), err)
		}
	}
}
