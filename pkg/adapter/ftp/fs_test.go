package ftp

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/drivebridge/pkg/bridge"
	"github.com/marmos91/drivebridge/pkg/store"
	"github.com/marmos91/drivebridge/pkg/store/memory"
)

func newTestFs(t *testing.T) (afero.Fs, *memory.MemoryStore) {
	t.Helper()
	st := memory.New()
	b := bridge.New(st, bridge.Options{
		RootFolderID: memory.RootID,
		SpillDir:     t.TempDir(),
	})
	return newBridgeFs(context.Background(), b), st
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "/", normalize(""))
	assert.Equal(t, "/", normalize("/"))
	assert.Equal(t, "/a/b", normalize("a/b"))
	assert.Equal(t, "/a/b", normalize("/a/b/"))
	assert.Equal(t, "/a", normalize("/a/./b/.."))
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	fs, _ := newTestFs(t)

	f, err := fs.Create("/a.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err := fs.Stat("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), fi.Size())

	r, err := fs.Open("/a.txt")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestOpen_SeekForRestart(t *testing.T) {
	fs, st := newTestFs(t)

	st.Seed(memory.RootID, "a.txt", false, []byte("0123456789"), time.Now())

	f, err := fs.Open("/a.txt")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	// REST 6 then RETR.
	pos, err := f.Seek(6, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(data))

	// SeekEnd resolves against the stat size.
	pos, err = f.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(8), pos)

	data, err = io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "89", string(data))
}

func TestUpload_DataConnectionFailureDiscardsPartial(t *testing.T) {
	fs, st := newTestFs(t)

	f, err := fs.Create("/partial.bin")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)

	// The server reports a failed transfer on the handle before closing it;
	// the close must not commit the partial bytes as a complete object.
	te, ok := f.(interface{ TransferError(error) })
	require.True(t, ok)
	te.TransferError(errors.New("data connection closed"))
	require.NoError(t, f.Close())

	_, err = fs.Stat("/partial.bin")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, st.Calls("Upload"))
}

func TestOpenFile_AppendUnsupported(t *testing.T) {
	fs, _ := newTestFs(t)

	_, err := fs.OpenFile("/a.txt", os.O_WRONLY|os.O_APPEND, 0644)
	assert.ErrorIs(t, err, store.ErrUnsupported)
}

func TestMkdirAll(t *testing.T) {
	fs, _ := newTestFs(t)

	require.NoError(t, fs.MkdirAll("/a/b/c", 0755))

	fi, err := fs.Stat("/a/b/c")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	// Existing components are fine.
	require.NoError(t, fs.MkdirAll("/a/b/c/d", 0755))
}

func TestRenameAndRemove(t *testing.T) {
	fs, st := newTestFs(t)

	st.Seed(memory.RootID, "a.txt", false, []byte("a"), time.Now())

	require.NoError(t, fs.Rename("/a.txt", "/b.txt"))
	require.NoError(t, fs.Remove("/b.txt"))

	_, err := fs.Stat("/b.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReaddir_Paged(t *testing.T) {
	fs, st := newTestFs(t)

	st.Seed(memory.RootID, "a.txt", false, []byte("a"), time.Now())
	st.Seed(memory.RootID, "b.txt", false, []byte("b"), time.Now())
	st.Seed(memory.RootID, "c.txt", false, []byte("c"), time.Now())

	d, err := fs.Open("/")
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	first, err := d.Readdir(2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a.txt", first[0].Name())

	rest, err := d.Readdir(2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c.txt", rest[0].Name())

	_, err = d.Readdir(2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadOnlyHandleRejectsWrites(t *testing.T) {
	fs, st := newTestFs(t)

	st.Seed(memory.RootID, "a.txt", false, []byte("a"), time.Now())

	f, err := fs.Open("/a.txt")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, err = f.Write([]byte("x"))
	assert.Error(t, err)
	assert.Error(t, f.Truncate(0))
}

func TestAttributeCallsIgnored(t *testing.T) {
	fs, st := newTestFs(t)

	st.Seed(memory.RootID, "a.txt", false, []byte("a"), time.Now())

	assert.NoError(t, fs.Chmod("/a.txt", 0600))
	assert.NoError(t, fs.Chown("/a.txt", 1000, 1000))
	assert.NoError(t, fs.Chtimes("/a.txt", time.Now(), time.Now()))
}
