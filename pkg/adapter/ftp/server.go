// Package ftp exposes the bridge over the FTP protocol using
// github.com/fclairamb/ftpserverlib.
package ftp

import (
	"context"
	"fmt"
	"sync"

	ftpserver "github.com/fclairamb/ftpserverlib"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/adapter"
	"github.com/marmos91/drivebridge/pkg/bridge"
)

// FTPAdapter serves the bridge over FTP.
type FTPAdapter struct {
	cfg    Config
	bridge *bridge.Bridge

	mu      sync.Mutex
	server  *ftpserver.FtpServer
	stopped bool
}

// NewFTPAdapter creates an FTP adapter with the given configuration.
func NewFTPAdapter(cfg Config) *FTPAdapter {
	return &FTPAdapter{cfg: cfg}
}

// SetBridge injects the shared filesystem bridge.
func (a *FTPAdapter) SetBridge(b *bridge.Bridge) {
	a.bridge = b
}

// Protocol returns the protocol name.
func (a *FTPAdapter) Protocol() string {
	return "FTP"
}

// Port returns the configured control port.
func (a *FTPAdapter) Port() int {
	return a.cfg.Port
}

// Serve starts the FTP server and blocks until the context is cancelled or
// an unrecoverable error occurs.
func (a *FTPAdapter) Serve(ctx context.Context) error {
	if a.bridge == nil {
		return fmt.Errorf("ftp adapter: bridge not set")
	}

	server := ftpserver.NewFtpServer(&driver{
		ctx:    ctx,
		cfg:    a.cfg,
		bridge: a.bridge,
	})

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.server = server
	a.mu.Unlock()

	logger.Info("FTP adapter listening on %s:%d", a.cfg.BindAddress, a.cfg.Port)

	go func() {
		<-ctx.Done()
		_ = server.Stop()
	}()

	if err := server.ListenAndServe(); err != nil {
		if ctx.Err() != nil || a.isStopped() {
			return nil
		}
		return fmt.Errorf("ftp adapter: %w", err)
	}
	return nil
}

// Stop initiates graceful shutdown of the FTP server.
func (a *FTPAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	server := a.server
	a.mu.Unlock()

	if server == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- server.Stop() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("ftp adapter: shutdown timed out")
	}
}

func (a *FTPAdapter) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// compile-time interface check
var _ adapter.Adapter = (*FTPAdapter)(nil)
