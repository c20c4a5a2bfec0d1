package bridge

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/drivebridge/pkg/store"
	"github.com/marmos91/drivebridge/pkg/store/memory"
)

func TestReader_ResumesAfterInterruption(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	content := []byte("the quick brown fox jumps over the lazy dog")
	st.Seed(memory.RootID, "a.txt", false, content, time.Now())

	// The first download stream dies after 10 bytes; the reader must
	// re-issue the range and deliver the full content seamlessly.
	st.BreakDownloadAfter(10)

	r, err := b.OpenRead(context.Background(), "/a.txt", 0)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, 2, st.Calls("Download"))
}

func TestReader_ResumeBudgetExhausted(t *testing.T) {
	b, st := newTestBridge(t, Options{ReadResumeAttempts: 1})

	st.Seed(memory.RootID, "a.txt", false, []byte("0123456789abcdef"), time.Now())

	r, err := b.OpenRead(context.Background(), "/a.txt", 0)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	// Break twice: the single resume attempt covers the first break only.
	st.BreakDownloadAfter(4)
	buf := make([]byte, 4)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)

	st.BreakDownloadAfter(4)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)

	_, err = io.ReadFull(r, buf)
	assert.ErrorIs(t, err, store.ErrTransient)
}

func TestReader_ResumeContinuesFromOffset(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "a.txt", false, []byte("0123456789"), time.Now())
	st.BreakDownloadAfter(3)

	r, err := b.OpenRead(context.Background(), "/a.txt", 2)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	// No duplicated and no skipped bytes across the resume boundary.
	assert.Equal(t, "23456789", string(data))
	assert.Equal(t, int64(10), r.Offset())
}

func TestReader_ContextCancelStopsResume(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "a.txt", false, []byte("0123456789"), time.Now())
	st.BreakDownloadAfter(4)

	ctx, cancel := context.WithCancel(context.Background())
	r, err := b.OpenRead(ctx, "/a.txt", 0)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	buf := make([]byte, 4)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)

	// The stream is now broken; with the session cancelled the reader must
	// not re-issue the range.
	cancel()

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, st.Calls("Download"))
}

func TestReader_CloseIdempotent(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "a.txt", false, []byte("x"), time.Now())

	r, err := b.OpenRead(context.Background(), "/a.txt", 0)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestWriter_OutOfOrderWrites(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	w, err := b.OpenWrite(ctx, "/a.txt")
	require.NoError(t, err)

	// SFTP clients commonly deliver ranged writes out of order.
	_, err = w.WriteAt([]byte("world"), 6)
	require.NoError(t, err)
	_, err = w.WriteAt([]byte("hello "), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11), w.Size())

	require.NoError(t, w.Close())

	fi, err := b.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), fi.Size())

	content, ok := st.Content(fi.ID())
	require.True(t, ok)
	assert.Equal(t, []byte("hello world"), content)
}

func TestWriter_Truncate(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	w, err := b.OpenWrite(ctx, "/a.txt")
	require.NoError(t, err)

	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, w.Truncate(4))
	assert.Equal(t, int64(4), w.Size())

	require.NoError(t, w.Close())

	fi, err := b.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4), fi.Size())

	content, ok := st.Content(fi.ID())
	require.True(t, ok)
	assert.Equal(t, []byte("0123"), content)
}

func TestWriter_SpillFileLifecycle(t *testing.T) {
	spillDir := t.TempDir()
	st := memory.New()
	b := New(st, Options{
		RootFolderID: memory.RootID,
		SpillDir:     spillDir,
	})
	ctx := context.Background()

	t.Run("removed on commit", func(t *testing.T) {
		w, err := b.OpenWrite(ctx, "/committed.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte("data"))
		require.NoError(t, err)

		require.NotEmpty(t, spillFiles(t, spillDir))
		require.NoError(t, w.Close())
		assert.Empty(t, spillFiles(t, spillDir))
	})

	t.Run("removed on abort", func(t *testing.T) {
		w, err := b.OpenWrite(ctx, "/aborted.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte("data"))
		require.NoError(t, err)

		require.NotEmpty(t, spillFiles(t, spillDir))
		require.NoError(t, w.Abort())
		assert.Empty(t, spillFiles(t, spillDir))
	})
}

func spillFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "drivebridge-upload-*"))
	require.NoError(t, err)
	return matches
}

func TestWriter_TransferErrorAbortsCommit(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	w, err := b.OpenWrite(ctx, "/partial.bin")
	require.NoError(t, err)
	_, err = w.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)

	// A dropped client connection surfaces as a transfer error on the
	// handle before the protocol server closes it. The close that follows
	// must not commit the partial bytes.
	w.TransferError(errors.New("connection reset by peer"))
	require.NoError(t, w.Close())

	_, err = b.Stat(ctx, "/partial.bin")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, st.Calls("Upload"))
}

func TestWriter_TransferErrorNilIsNoOp(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	ctx := context.Background()

	w, err := b.OpenWrite(ctx, "/kept.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)

	w.TransferError(nil)
	require.NoError(t, w.Close())

	fi, err := b.Stat(ctx, "/kept.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4), fi.Size())
}

func TestWriter_WriteAfterAbort(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	w, err := b.OpenWrite(context.Background(), "/a.txt")
	require.NoError(t, err)

	require.NoError(t, w.Abort())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	// Abort is idempotent; aborting after commit is the only error case.
	require.NoError(t, w.Abort())
}

func TestWriter_AbortAfterCommit(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	w, err := b.OpenWrite(context.Background(), "/a.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Error(t, w.Abort())
}

func TestWriter_EmptyFile(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	ctx := context.Background()

	w, err := b.OpenWrite(ctx, "/empty.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	fi, err := b.Stat(ctx, "/empty.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size())
	assert.False(t, fi.IsDir())
}
