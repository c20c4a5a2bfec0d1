// afero.Fs implementation over the bridge. ftpserverlib drives client
// sessions through this interface.
package ftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/afero"

	"github.com/marmos91/drivebridge/pkg/bridge"
	"github.com/marmos91/drivebridge/pkg/store"
)

// bridgeFs adapts the bridge to afero.Fs for one client session.
type bridgeFs struct {
	ctx    context.Context
	bridge *bridge.Bridge
}

func newBridgeFs(ctx context.Context, b *bridge.Bridge) afero.Fs {
	return &bridgeFs{ctx: ctx, bridge: b}
}

func (f *bridgeFs) Name() string {
	return "drivebridge"
}

func (f *bridgeFs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func (f *bridgeFs) Open(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

func (f *bridgeFs) OpenFile(name string, flag int, _ os.FileMode) (afero.File, error) {
	name = normalize(name)

	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		if flag&os.O_APPEND != 0 {
			return nil, fmt.Errorf("open %s: append mode: %w", name, store.ErrUnsupported)
		}
		w, err := f.bridge.OpenWrite(f.ctx, name)
		if err != nil {
			return nil, err
		}
		return &writeFile{name: name, writer: w}, nil
	}

	fi, err := f.bridge.Stat(f.ctx, name)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return &dirFile{ctx: f.ctx, bridge: f.bridge, name: name, info: fi}, nil
	}
	return &readFile{ctx: f.ctx, bridge: f.bridge, name: name, info: fi}, nil
}

func (f *bridgeFs) Mkdir(name string, _ os.FileMode) error {
	return f.bridge.Mkdir(f.ctx, normalize(name))
}

func (f *bridgeFs) MkdirAll(p string, perm os.FileMode) error {
	p = normalize(p)
	if p == "/" {
		return nil
	}

	// Create missing components from the root down.
	partial := ""
	for _, component := range strings.Split(strings.Trim(p, "/"), "/") {
		partial += "/" + component
		err := f.bridge.Mkdir(f.ctx, partial)
		if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return err
		}
	}
	return nil
}

func (f *bridgeFs) Remove(name string) error {
	return f.bridge.Remove(f.ctx, normalize(name))
}

func (f *bridgeFs) RemoveAll(p string) error {
	// Directory emptiness policy lives in the bridge configuration.
	return f.bridge.Remove(f.ctx, normalize(p))
}

func (f *bridgeFs) Rename(oldname, newname string) error {
	return f.bridge.Rename(f.ctx, normalize(oldname), normalize(newname))
}

func (f *bridgeFs) Stat(name string) (os.FileInfo, error) {
	return f.bridge.Stat(f.ctx, normalize(name))
}

// Chmod, Chown and Chtimes have no representation in the store; they are
// accepted and ignored so clients that set modes after upload don't fail.
func (f *bridgeFs) Chmod(string, os.FileMode) error            { return nil }
func (f *bridgeFs) Chown(string, int, int) error               { return nil }
func (f *bridgeFs) Chtimes(string, time.Time, time.Time) error { return nil }

// normalize cleans protocol-supplied paths into the bridge's form.
func normalize(name string) string {
	if name == "" {
		return "/"
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return path.Clean(name)
}


// ============================================================================
// File handles
// ============================================================================

// readFile is a download handle. FTP's REST command becomes a Seek, which
// repositions the underlying ranged download.
type readFile struct {
	ctx    context.Context
	bridge *bridge.Bridge
	name   string
	info   *bridge.FileInfo

	mu     sync.Mutex
	reader *bridge.Reader
	pos    int64
}

func (f *readFile) Name() string { return f.name }

func (f *readFile) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader == nil {
		r, err := f.bridge.OpenRead(f.ctx, f.name, f.pos)
		if err != nil {
			return 0, err
		}
		f.reader = r
	}

	n, err := f.reader.Read(p)
	f.pos += int64(n)
	return n, err
}

func (f *readFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.pos + offset
	case io.SeekEnd:
		target = f.info.Size() + offset
	default:
		return 0, fmt.Errorf("seek %s: invalid whence %d", f.name, whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("seek %s: negative position %d", f.name, target)
	}

	if target != f.pos && f.reader != nil {
		_ = f.reader.Close()
		f.reader = nil
	}
	f.pos = target
	return target, nil
}

func (f *readFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader == nil {
		return nil
	}
	err := f.reader.Close()
	f.reader = nil
	return err
}

func (f *readFile) Stat() (os.FileInfo, error) { return f.info, nil }
func (f *readFile) Sync() error                { return nil }

func (f *readFile) ReadAt([]byte, int64) (int, error) {
	return 0, fmt.Errorf("read %s: %w", f.name, store.ErrUnsupported)
}
func (f *readFile) Write([]byte) (int, error) {
	return 0, fmt.Errorf("write %s: handle is read-only", f.name)
}
func (f *readFile) WriteAt([]byte, int64) (int, error) {
	return 0, fmt.Errorf("write %s: handle is read-only", f.name)
}
func (f *readFile) WriteString(string) (int, error) {
	return 0, fmt.Errorf("write %s: handle is read-only", f.name)
}
func (f *readFile) Truncate(int64) error {
	return fmt.Errorf("truncate %s: handle is read-only", f.name)
}
func (f *readFile) Readdir(int) ([]os.FileInfo, error) {
	return nil, fmt.Errorf("readdir %s: not a directory", f.name)
}
func (f *readFile) Readdirnames(int) ([]string, error) {
	return nil, fmt.Errorf("readdir %s: not a directory", f.name)
}

// writeFile is an upload handle backed by the bridge's spill-file writer.
type writeFile struct {
	name   string
	writer *bridge.Writer

	mu  sync.Mutex
	pos int64
}

func (f *writeFile) Name() string { return f.name }

func (f *writeFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.writer.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *writeFile) WriteAt(p []byte, off int64) (int, error) {
	return f.writer.WriteAt(p, off)
}

func (f *writeFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *writeFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = f.writer.Size() + offset
	default:
		return 0, fmt.Errorf("seek %s: invalid whence %d", f.name, whence)
	}
	if f.pos < 0 {
		return 0, fmt.Errorf("seek %s: negative position", f.name)
	}
	return f.pos, nil
}

func (f *writeFile) Truncate(size int64) error {
	return f.writer.Truncate(size)
}

// TransferError aborts the upload when the data connection fails, so the
// following Close cleans up instead of committing the partial bytes.
func (f *writeFile) TransferError(err error) {
	f.writer.TransferError(err)
}

// Close commits the upload.
func (f *writeFile) Close() error {
	return f.writer.Close()
}

func (f *writeFile) Sync() error { return nil }

func (f *writeFile) Read([]byte) (int, error) {
	return 0, fmt.Errorf("read %s: handle is write-only", f.name)
}
func (f *writeFile) ReadAt([]byte, int64) (int, error) {
	return 0, fmt.Errorf("read %s: handle is write-only", f.name)
}
func (f *writeFile) Stat() (os.FileInfo, error) {
	return nil, fmt.Errorf("stat %s: handle is write-only", f.name)
}
func (f *writeFile) Readdir(int) ([]os.FileInfo, error) {
	return nil, fmt.Errorf("readdir %s: not a directory", f.name)
}
func (f *writeFile) Readdirnames(int) ([]string, error) {
	return nil, fmt.Errorf("readdir %s: not a directory", f.name)
}

// dirFile is a directory handle serving paged listings.
type dirFile struct {
	ctx    context.Context
	bridge *bridge.Bridge
	name   string
	info   *bridge.FileInfo

	mu      sync.Mutex
	entries []os.FileInfo
	listed  bool
	offset  int
}

func (f *dirFile) Name() string { return f.name }

func (f *dirFile) Readdir(count int) ([]os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.listed {
		infos, err := f.bridge.List(f.ctx, f.name)
		if err != nil {
			return nil, err
		}
		f.entries = make([]os.FileInfo, 0, len(infos))
		for _, fi := range infos {
			f.entries = append(f.entries, fi)
		}
		f.listed = true
	}

	if count <= 0 {
		out := f.entries[f.offset:]
		f.offset = len(f.entries)
		return out, nil
	}

	if f.offset >= len(f.entries) {
		return nil, io.EOF
	}
	end := f.offset + count
	if end > len(f.entries) {
		end = len(f.entries)
	}
	out := f.entries[f.offset:end]
	f.offset = end
	return out, nil
}

func (f *dirFile) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names, nil
}

func (f *dirFile) Stat() (os.FileInfo, error) { return f.info, nil }
func (f *dirFile) Close() error               { return nil }
func (f *dirFile) Sync() error                { return nil }

func (f *dirFile) Read([]byte) (int, error) {
	return 0, fmt.Errorf("read %s: is a directory", f.name)
}
func (f *dirFile) ReadAt([]byte, int64) (int, error) {
	return 0, fmt.Errorf("read %s: is a directory", f.name)
}
func (f *dirFile) Seek(int64, int) (int64, error) {
	return 0, fmt.Errorf("seek %s: is a directory", f.name)
}
func (f *dirFile) Write([]byte) (int, error) {
	return 0, fmt.Errorf("write %s: is a directory", f.name)
}
func (f *dirFile) WriteAt([]byte, int64) (int, error) {
	return 0, fmt.Errorf("write %s: is a directory", f.name)
}
func (f *dirFile) WriteString(string) (int, error) {
	return 0, fmt.Errorf("write %s: is a directory", f.name)
}
func (f *dirFile) Truncate(int64) error {
	return fmt.Errorf("truncate %s: is a directory", f.name)
}

// compile-time interface checks
var (
	_ afero.Fs                    = (*bridgeFs)(nil)
	_ afero.File                  = (*readFile)(nil)
	_ afero.File                  = (*writeFile)(nil)
	_ afero.File                  = (*dirFile)(nil)
	_ ftpserver.FileTransferError = (*writeFile)(nil)
)
