package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/drivebridge/pkg/bridge"
	"github.com/marmos91/drivebridge/pkg/store/memory"
)

// fakeAdapter blocks in Serve until stopped or the context ends.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	hasBridge atomic.Bool
	stopped   atomic.Bool
	stopCh    chan struct{}
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stopCh: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
		return context.Canceled
	case <-f.stopCh:
		return nil
	}
}

func (f *fakeAdapter) SetBridge(*bridge.Bridge) { f.hasBridge.Store(true) }

func (f *fakeAdapter) Stop(context.Context) error {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.stopCh)
	}
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	b := bridge.New(memory.New(), bridge.Options{SpillDir: t.TempDir()})
	return New(b, time.Second)
}

func TestAddAdapter(t *testing.T) {
	s := newTestServer(t)

	a := newFakeAdapter("SFTP", 2022)
	require.NoError(t, s.AddAdapter(a))
	assert.True(t, a.hasBridge.Load())

	// Duplicate protocol rejected.
	err := s.AddAdapter(newFakeAdapter("SFTP", 3000))
	assert.ErrorContains(t, err, "already registered")

	// Port conflict rejected.
	err = s.AddAdapter(newFakeAdapter("FTP", 2022))
	assert.ErrorContains(t, err, "already in use")

	require.NoError(t, s.AddAdapter(newFakeAdapter("FTP", 2121)))
}

func TestServe_NoAdapters(t *testing.T) {
	s := newTestServer(t)

	err := s.Serve(context.Background())
	assert.ErrorContains(t, err, "no adapters registered")
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := newTestServer(t)

	sftp := newFakeAdapter("SFTP", 2022)
	ftp := newFakeAdapter("FTP", 2121)
	require.NoError(t, s.AddAdapter(sftp))
	require.NoError(t, s.AddAdapter(ftp))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}

	assert.True(t, sftp.stopped.Load())
	assert.True(t, ftp.stopped.Load())
}

func TestServe_AdapterFailureStopsAll(t *testing.T) {
	s := newTestServer(t)

	boom := errors.New("bind failed")
	failing := newFakeAdapter("SFTP", 2022)
	failing.serveErr = boom
	healthy := newFakeAdapter("FTP", 2121)

	require.NoError(t, s.AddAdapter(failing))
	require.NoError(t, s.AddAdapter(healthy))

	err := s.Serve(context.Background())
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "SFTP adapter error")
	assert.True(t, healthy.stopped.Load())
}
