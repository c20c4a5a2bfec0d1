package bridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/store"
)

// Writer buffers a file's incoming bytes locally and commits them to the
// store as one upload when closed.
//
// The store's upload API needs the final size up front (or a resumable
// session), so bytes spill to a local temporary file first. Close commits
// the spill content and then invalidates the affected cache entries;
// Abort discards everything and guarantees no partial object is left in
// the store (the upload has simply not started yet, or the store client
// cancels the session it opened).
//
// The spill file is removed on both commit and abort; it never survives
// as visible state.
//
// Thread safety:
// A Writer is for one session; calls are serialized internally.
type Writer struct {
	ctx    context.Context
	bridge *Bridge

	parentID   string
	existingID string
	name       string
	path       string

	mu        sync.Mutex
	spill     *os.File
	pos       int64
	size      int64
	aborted   bool
	committed bool
}

func newWriter(ctx context.Context, b *Bridge, parentID, existingID, name, path string) (*Writer, error) {
	spill, err := os.CreateTemp(b.opts.SpillDir, "drivebridge-upload-*")
	if err != nil {
		return nil, fmt.Errorf("open write %s: create spill file: %w", path, err)
	}

	return &Writer{
		ctx:        ctx,
		bridge:     b,
		parentID:   parentID,
		existingID: existingID,
		name:       name,
		path:       path,
		spill:      spill,
	}, nil
}

// Write appends at the current position.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.writeAtLocked(p, w.pos)
	w.pos += int64(n)
	return n, err
}

// WriteAt writes at an arbitrary offset. The spill file makes out-of-order
// protocol writes (SFTP clients send concurrent ranged WRITEs) cheap.
func (w *Writer) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeAtLocked(p, off)
}

func (w *Writer) writeAtLocked(p []byte, off int64) (int, error) {
	if w.aborted || w.committed || w.spill == nil {
		return 0, io.ErrClosedPipe
	}
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := w.spill.WriteAt(p, off)
	if end := off + int64(n); end > w.size {
		w.size = end
	}
	if err != nil {
		return n, fmt.Errorf("write %s: spill: %w", w.path, err)
	}
	return n, nil
}

// Truncate resizes the buffered content.
func (w *Writer) Truncate(size int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.aborted || w.committed || w.spill == nil {
		return io.ErrClosedPipe
	}
	if err := w.spill.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s: spill: %w", w.path, err)
	}
	w.size = size
	if w.pos > size {
		w.pos = size
	}
	return nil
}

// Close commits the buffered content to the store.
//
// After a successful commit the affected cache entries (the target object
// and its parent's listing) are invalidated before Close returns, so an
// immediate Stat or List reflects the write. Closing an aborted writer
// only cleans up.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.committed {
		return nil
	}
	if w.aborted || w.spill == nil {
		w.cleanupLocked()
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		// Session cancelled mid-upload: abort semantics, no partial object.
		w.abortLocked()
		return err
	}

	defer w.cleanupLocked()

	if _, err := w.spill.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("commit %s: rewind spill: %w", w.path, err)
	}

	obj, err := w.bridge.store.Upload(w.ctx, store.UploadSpec{
		ExistingID: w.existingID,
		ParentID:   w.parentID,
		Name:       w.name,
		Size:       w.size,
		Content:    w.spill,
	})
	if err != nil {
		return err
	}
	w.committed = true

	w.bridge.cache.InvalidateListing(w.parentID)
	w.bridge.cache.InvalidateObject(obj.ID)

	logger.Debug("write %s committed: %d bytes -> %s", w.path, w.size, obj.ID)
	return nil
}

// TransferError marks the in-progress upload as failed. Protocol servers
// call this on a write handle when the client connection drops
// mid-transfer, before closing it; the buffered bytes are discarded so the
// following Close only cleans up instead of committing a partial object.
func (w *Writer) TransferError(err error) {
	if err == nil {
		return
	}
	logger.Debug("write %s: transfer failed: %v", w.path, err)
	_ = w.Abort()
}

// Abort discards the buffered content. No object appears at the target
// path, and a partially transferred resumable session is cancelled by the
// store client. Safe to call more than once and after Close.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.committed {
		return fmt.Errorf("abort %s: already committed", w.path)
	}
	w.abortLocked()
	return nil
}

func (w *Writer) abortLocked() {
	if !w.aborted {
		w.aborted = true
		logger.Debug("write %s aborted after %d buffered bytes", w.path, w.size)
	}
	w.cleanupLocked()
}

// cleanupLocked removes the spill file. Idempotent.
func (w *Writer) cleanupLocked() {
	if w.spill == nil {
		return
	}
	name := w.spill.Name()
	_ = w.spill.Close()
	_ = os.Remove(name)
	w.spill = nil
}

// Size returns the current buffered content size.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// compile-time interface check
var _ io.WriteCloser = (*Writer)(nil)
