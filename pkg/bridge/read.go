package bridge

import (
	"context"
	"io"
	"sync"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/metrics"
	"github.com/marmos91/drivebridge/pkg/store"
)

// Reader streams a file's content from the store as a single continuous
// byte sequence.
//
// One ranged download backs the stream at a time. If the download breaks
// mid-transfer, the Reader re-issues the range request from the current
// position, up to a bounded number of resume attempts; the caller sees an
// uninterrupted stream. Offsets only move forward.
//
// Thread safety:
// A Reader is for one session; calls are serialized internally so a close
// racing a read is safe, but concurrent readers should each call OpenRead.
type Reader struct {
	ctx      context.Context
	store    store.Store
	objectID string
	metrics  metrics.BridgeMetrics

	mu      sync.Mutex
	pos     int64
	body    io.ReadCloser
	resumes int
	closed  bool
}

func newReader(ctx context.Context, st store.Store, objectID string, offset int64, resumeAttempts int, m metrics.BridgeMetrics) *Reader {
	return &Reader{
		ctx:      ctx,
		store:    st,
		objectID: objectID,
		metrics:  m,
		pos:      offset,
		resumes:  resumeAttempts,
	}
}

// Read implements io.Reader. The first call opens the underlying download
// lazily, so constructing a Reader is free.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.ErrClosedPipe
	}

	for {
		if r.body == nil {
			body, err := r.store.Download(r.ctx, r.objectID, r.pos)
			if err != nil {
				return 0, err
			}
			r.body = body
		}

		n, err := r.body.Read(p)
		r.pos += int64(n)

		switch {
		case err == nil || err == io.EOF:
			return n, err

		case r.ctx.Err() != nil:
			// Session cancelled: stop pulling further ranges.
			return n, r.ctx.Err()

		case r.resumes > 0:
			// Interrupted mid-transfer: drop the broken body and re-issue
			// the range from the current position.
			r.resumes--
			_ = r.body.Close()
			r.body = nil
			r.metrics.ReadResume()
			logger.Debug("read %s: stream broke at %d (%v), resuming (%d attempts left)",
				r.objectID, r.pos, err, r.resumes)
			if n > 0 {
				return n, nil
			}

		default:
			return n, err
		}
	}
}

// Close releases the underlying download. Safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.body != nil {
		err := r.body.Close()
		r.body = nil
		return err
	}
	return nil
}

// Offset returns the next offset Read will deliver.
func (r *Reader) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// compile-time interface check
var _ io.ReadCloser = (*Reader)(nil)
