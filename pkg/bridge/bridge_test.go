package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/drivebridge/pkg/store"
	"github.com/marmos91/drivebridge/pkg/store/memory"
)

// recordingMetrics captures ObserveOperation calls for assertions.
type recordingMetrics struct {
	mu  sync.Mutex
	ops []observedOp
}

type observedOp struct {
	name string
	err  error
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, observedOp{name: op, err: err})
}

func (m *recordingMetrics) CacheHit(string)  {}
func (m *recordingMetrics) CacheMiss(string) {}
func (m *recordingMetrics) CacheEviction()   {}
func (m *recordingMetrics) ReadResume()      {}

func (m *recordingMetrics) observed() []observedOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]observedOp(nil), m.ops...)
}

func TestStat_FileAndDirectory(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	docs := st.Seed(memory.RootID, "docs", true, nil, time.Now())
	st.Seed(docs.ID, "a.txt", false, []byte("hello"), time.Now())

	ctx := context.Background()

	fi, err := b.Stat(ctx, "/docs")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Equal(t, "docs", fi.Name())

	fi, err = b.Stat(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.False(t, fi.IsDir())
	assert.Equal(t, int64(5), fi.Size())

	_, err = b.Stat(ctx, "/missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOperationMetrics_RecordFailures(t *testing.T) {
	rec := &recordingMetrics{}
	b, _ := newTestBridge(t, Options{Metrics: rec})
	ctx := context.Background()

	_, err := b.Stat(ctx, "/missing.txt")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = b.Stat(ctx, "/")
	require.NoError(t, err)

	ops := rec.observed()
	require.Len(t, ops, 2)
	assert.Equal(t, "Stat", ops[0].name)
	// The failure must be visible to the observer, not the nil the named
	// return held when the defer was registered.
	assert.ErrorIs(t, ops[0].err, store.ErrNotFound)
	assert.Equal(t, "Stat", ops[1].name)
	assert.NoError(t, ops[1].err)
}

func TestList_SortedAndClassified(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "zebra.txt", false, []byte("z"), time.Now())
	st.Seed(memory.RootID, "alpha.txt", false, []byte("a"), time.Now())

	infos, err := b.List(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha.txt", infos[0].Name())
	assert.Equal(t, "zebra.txt", infos[1].Name())

	_, err = b.List(context.Background(), "/alpha.txt")
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestMkdir(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.Mkdir(ctx, "/docs"))

	fi, err := b.Stat(ctx, "/docs")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	// Existing path: AlreadyExists, not a duplicate folder.
	err = b.Mkdir(ctx, "/docs")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	assert.Equal(t, 1, st.Calls("CreateFolder"))

	// Missing parent: NotFound.
	err = b.Mkdir(ctx, "/nope/child")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMkdir_InvalidatesParentListing(t *testing.T) {
	b, _ := newTestBridge(t, Options{CacheTTL: time.Minute})
	ctx := context.Background()

	// Prime the root listing cache.
	_, err := b.List(ctx, "/")
	require.NoError(t, err)

	require.NoError(t, b.Mkdir(ctx, "/fresh"))

	// The mkdir must be visible immediately, even though the parent's
	// listing was cached moments earlier.
	infos, err := b.List(ctx, "/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "fresh", infos[0].Name())
}

func TestRemove_File(t *testing.T) {
	b, st := newTestBridge(t, Options{CacheTTL: time.Minute})
	ctx := context.Background()

	st.Seed(memory.RootID, "a.txt", false, []byte("a"), time.Now())

	_, err := b.List(ctx, "/")
	require.NoError(t, err)

	require.NoError(t, b.Remove(ctx, "/a.txt"))

	// Immediate effects: gone from stat and from the parent's listing.
	_, err = b.Stat(ctx, "/a.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)

	infos, err := b.List(ctx, "/")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestRemove_NonEmptyDirectoryPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected by default", func(t *testing.T) {
		b, st := newTestBridge(t, Options{})
		docs := st.Seed(memory.RootID, "docs", true, nil, time.Now())
		st.Seed(docs.ID, "a.txt", false, []byte("a"), time.Now())

		err := b.Remove(ctx, "/docs")
		assert.ErrorIs(t, err, ErrDirectoryNotEmpty)

		// Nothing was deleted.
		_, err = b.Stat(ctx, "/docs/a.txt")
		assert.NoError(t, err)
	})

	t.Run("recursive when enabled", func(t *testing.T) {
		b, st := newTestBridge(t, Options{RecursiveDelete: true})
		docs := st.Seed(memory.RootID, "docs", true, nil, time.Now())
		st.Seed(docs.ID, "a.txt", false, []byte("a"), time.Now())

		require.NoError(t, b.Remove(ctx, "/docs"))

		_, err := b.Stat(ctx, "/docs")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRemove_EmptyDirectory(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	st.Seed(memory.RootID, "empty", true, nil, time.Now())

	require.NoError(t, b.Remove(ctx, "/empty"))
	_, err := b.Stat(ctx, "/empty")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRename(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	st.Seed(memory.RootID, "old.txt", false, []byte("data"), time.Now())
	dest := st.Seed(memory.RootID, "dest", true, nil, time.Now())

	require.NoError(t, b.Rename(ctx, "/old.txt", "/dest/new.txt"))

	_, err := b.Stat(ctx, "/old.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)

	fi, err := b.Stat(ctx, "/dest/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", fi.Name())
	_ = dest
}

func TestRename_DestinationCollision(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	a := st.Seed(memory.RootID, "a.txt", false, []byte("a"), time.Now())
	bObj := st.Seed(memory.RootID, "b.txt", false, []byte("b"), time.Now())

	// No silent overwrite.
	err := b.Rename(ctx, "/a.txt", "/b.txt")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	// Both objects unchanged.
	fiA, err := b.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, a.ID, fiA.ID())

	fiB, err := b.Stat(ctx, "/b.txt")
	require.NoError(t, err)
	assert.Equal(t, bObj.ID, fiB.ID())
}

func TestRename_MissingDestinationParent(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "a.txt", false, []byte("a"), time.Now())

	err := b.Rename(context.Background(), "/a.txt", "/nope/a.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRename_RoundTripPreservesIdentity(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	seeded := st.Seed(memory.RootID, "a.txt", false, []byte("a"), time.Now())

	require.NoError(t, b.Rename(ctx, "/a.txt", "/b.txt"))
	require.NoError(t, b.Rename(ctx, "/b.txt", "/a.txt"))

	fi, err := b.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, fi.ID())

	// No duplicate or orphaned object was created.
	infos, err := b.List(ctx, "/")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestWriteThenStat(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.Mkdir(ctx, "/docs"))

	w, err := b.OpenWrite(ctx, "/docs/a.txt")
	require.NoError(t, err)

	n, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.NoError(t, w.Close())

	fi, err := b.Stat(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(10), fi.Size())
	assert.False(t, fi.IsDir())
}

func TestWrite_OverwriteKeepsObjectID(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	seeded := st.Seed(memory.RootID, "a.txt", false, []byte("old content"), time.Now())

	w, err := b.OpenWrite(ctx, "/a.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	fi, err := b.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, fi.ID())
	assert.Equal(t, int64(3), fi.Size())

	content, ok := st.Content(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), content)
}

func TestWrite_AbortLeavesNoArtifact(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	w, err := b.OpenWrite(ctx, "/partial.txt")
	require.NoError(t, err)

	_, err = w.Write([]byte("some partial bytes"))
	require.NoError(t, err)

	require.NoError(t, w.Abort())
	require.NoError(t, w.Close())

	// Nothing reachable at the target path, and no upload ever started.
	_, err = b.Stat(ctx, "/partial.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, st.Calls("Upload"))
}

func TestWrite_CancelledContextAborts(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())

	w, err := b.OpenWrite(ctx, "/doomed.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("bytes"))
	require.NoError(t, err)

	cancel()

	err = w.Close()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, st.Calls("Upload"))
}

func TestOpenWrite_OnDirectory(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "docs", true, nil, time.Now())

	_, err := b.OpenWrite(context.Background(), "/docs")
	assert.ErrorIs(t, err, ErrIsDirectory)
}

func TestOpenRead(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	st.Seed(memory.RootID, "a.txt", false, []byte("hello world"), time.Now())

	r, err := b.OpenRead(ctx, "/a.txt", 0)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestOpenRead_AtOffset(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "a.txt", false, []byte("hello world"), time.Now())

	r, err := b.OpenRead(context.Background(), "/a.txt", 6)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestOpenRead_Classification(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	st.Seed(memory.RootID, "docs", true, nil, time.Now())
	st.SeedNativeDocument(memory.RootID, "native-doc")

	_, err := b.OpenRead(ctx, "/docs", 0)
	assert.ErrorIs(t, err, ErrIsDirectory)

	// Store-native documents are Unsupported, distinct from NotFound.
	_, err = b.OpenRead(ctx, "/native-doc", 0)
	assert.ErrorIs(t, err, store.ErrUnsupported)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	_, err = b.OpenRead(ctx, "/missing", 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentStatAndRemove(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	shared := st.Seed(memory.RootID, "shared", true, nil, time.Now())
	st.Seed(shared.ID, "x", false, []byte("x"), time.Now())

	var wg sync.WaitGroup
	results := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = b.Stat(ctx, "/shared/x")
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Remove(ctx, "/shared/x")
	}()

	wg.Wait()

	// Each stat deterministically saw the file or NotFound; nothing else.
	for i, err := range results {
		if err != nil {
			assert.ErrorIs(t, err, store.ErrNotFound, "stat %d returned unexpected error", i)
		}
	}
}

func TestRenameDuringWrite_WriteWins(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	seeded := st.Seed(memory.RootID, "p.txt", false, []byte("original"), time.Now())

	// Open the write first: it captures the object ID.
	w, err := b.OpenWrite(ctx, "/p.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("updated"))
	require.NoError(t, err)

	// Rename lands while the write is in flight.
	require.NoError(t, b.Rename(ctx, "/p.txt", "/q.txt"))

	// The write completes against the ID it already holds: no data lost.
	require.NoError(t, w.Close())

	content, ok := st.Content(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("updated"), content)

	fi, err := b.Stat(ctx, "/q.txt")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, fi.ID())
}

func TestErrorsPropagateUnmodified(t *testing.T) {
	b, st := newTestBridge(t, Options{})
	ctx := context.Background()

	st.FailNext("ListChildren", fmt.Errorf("token refresh: %w", store.ErrUnauthorized))

	_, err := b.List(ctx, "/")
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	st.FailNext("Delete", fmt.Errorf("edit conflict: %w", store.ErrConflict))
	st.Seed(memory.RootID, "locked.txt", false, []byte("x"), time.Now())

	err = b.Remove(ctx, "/locked.txt")
	assert.ErrorIs(t, err, store.ErrConflict)
}
