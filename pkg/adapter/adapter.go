package adapter

import (
	"context"

	"github.com/marmos91/drivebridge/pkg/bridge"
)

// Adapter represents a protocol-specific server adapter managed by the
// gateway server.
//
// Each adapter implements a file transfer protocol (e.g., SFTP, FTP) and
// provides a unified interface for lifecycle management. All adapters share
// the same bridge, ensuring a consistent view of the remote store across
// protocols.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Bridge injection: SetBridge() provides shared backend access
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetBridge() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active transfers to complete (with timeout)
	//   - Clean up resources
	//   - Return context.Canceled or nil
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetBridge injects the shared filesystem bridge.
	//
	// Called exactly once by the server before Serve().
	SetBridge(b *bridge.Bridge)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// May be called concurrently with Serve() and must be idempotent.
	// The context bounds the shutdown; when it is cancelled remaining
	// connections are closed forcefully.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Port returns the TCP port the adapter listens on.
	Port() int
}
