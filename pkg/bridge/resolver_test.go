package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/drivebridge/pkg/store"
	"github.com/marmos91/drivebridge/pkg/store/memory"
)

func newTestBridge(t *testing.T, opts Options) (*Bridge, *memory.MemoryStore) {
	t.Helper()
	st := memory.New()
	if opts.RootFolderID == "" {
		opts.RootFolderID = memory.RootID
	}
	if opts.SpillDir == "" {
		opts.SpillDir = t.TempDir()
	}
	return New(st, opts), st
}

func TestResolve_Root(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	obj, err := b.resolver.resolve(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, memory.RootID, obj.ID)
	assert.True(t, obj.IsDir)

	// Root resolution never touches the network.
	assert.Equal(t, 0, st.Calls("ListChildren"))
}

func TestResolve_NestedPath(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	docs := st.Seed(memory.RootID, "docs", true, nil, time.Now())
	report := st.Seed(docs.ID, "report.pdf", false, []byte("content"), time.Now())

	obj, err := b.resolver.resolve(context.Background(), "/docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, report.ID, obj.ID)
	assert.False(t, obj.IsDir)
}

func TestResolve_NotFoundFailsFast(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "docs", true, nil, time.Now())

	_, err := b.resolver.resolve(context.Background(), "/missing/deeper/still")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Only the root listing was fetched: resolution stops at the first
	// unmatched segment.
	assert.Equal(t, 1, st.Calls("ListChildren"))
}

func TestResolve_FileInTheMiddle(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	st.Seed(memory.RootID, "file.txt", false, []byte("x"), time.Now())

	_, err := b.resolver.resolve(context.Background(), "/file.txt/child")
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestResolve_SecondLookupHitsCache(t *testing.T) {
	b, st := newTestBridge(t, Options{CacheTTL: time.Minute})

	docs := st.Seed(memory.RootID, "docs", true, nil, time.Now())
	st.Seed(docs.ID, "a.txt", false, []byte("a"), time.Now())

	ctx := context.Background()

	first, err := b.resolver.resolve(ctx, "/docs/a.txt")
	require.NoError(t, err)
	callsAfterFirst := st.Calls("ListChildren")

	second, err := b.resolver.resolve(ctx, "/docs/a.txt")
	require.NoError(t, err)

	// Same ID, and no second round of network calls within the TTL.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, callsAfterFirst, st.Calls("ListChildren"))
}

func TestResolve_ExpiredCacheRefetches(t *testing.T) {
	b, st := newTestBridge(t, Options{CacheTTL: 20 * time.Millisecond})

	st.Seed(memory.RootID, "docs", true, nil, time.Now())

	ctx := context.Background()

	_, err := b.resolver.resolve(ctx, "/docs")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = b.resolver.resolve(ctx, "/docs")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Calls("ListChildren"))
}

func TestResolve_CollisionPrefersMostRecentlyModified(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	older := st.Seed(memory.RootID, "report", false, []byte("old"), time.Now().Add(-time.Hour))
	newer := st.Seed(memory.RootID, "report", false, []byte("new"), time.Now())

	obj, err := b.resolver.resolve(context.Background(), "/report")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, obj.ID)
	assert.NotEqual(t, older.ID, obj.ID)
}

func TestCollapseListing_Deterministic(t *testing.T) {
	now := time.Now()
	a := store.Object{ID: "a", Name: "x", ModifiedTime: now.Add(-time.Minute)}
	b := store.Object{ID: "b", Name: "x", ModifiedTime: now}

	// The winner does not depend on listing order.
	first := collapseListing("dir", []store.Object{a, b})
	second := collapseListing("dir", []store.Object{b, a})

	assert.Equal(t, "b", first["x"].ID)
	assert.Equal(t, "b", second["x"].ID)
}

func TestResolveParent(t *testing.T) {
	b, st := newTestBridge(t, Options{})

	docs := st.Seed(memory.RootID, "docs", true, nil, time.Now())

	parent, name, err := b.resolver.resolveParent(context.Background(), "/docs/new.txt")
	require.NoError(t, err)
	assert.Equal(t, docs.ID, parent.ID)
	assert.Equal(t, "new.txt", name)

	_, _, err = b.resolver.resolveParent(context.Background(), "/")
	assert.Error(t, err)
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/", nil},
		{"", nil},
		{"/a", []string{"a"}},
		{"/a/b/c", []string{"a", "b", "c"}},
		{"/a/b/", []string{"a", "b"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, splitPath(tt.path), "splitPath(%q)", tt.path)
	}
}
