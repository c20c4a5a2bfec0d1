package sftp

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/pkg/sftp"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/bridge"
	"github.com/marmos91/drivebridge/pkg/store"
)

// handlers implements the sftp request-server callbacks over the bridge.
type handlers struct {
	bridge *bridge.Bridge
}

func newHandlers(b *bridge.Bridge) sftp.Handlers {
	h := &handlers{bridge: b}
	return sftp.Handlers{
		FileGet:  h,
		FilePut:  h,
		FileCmd:  h,
		FileList: h,
	}
}

// mapError translates bridge/store errors into SFTP status codes so
// clients see ENOENT instead of a generic failure.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return sftp.ErrSSHFxNoSuchFile
	case errors.Is(err, store.ErrUnauthorized):
		return sftp.ErrSSHFxPermissionDenied
	case errors.Is(err, store.ErrUnsupported):
		return sftp.ErrSSHFxOpUnsupported
	default:
		// AlreadyExists, DirectoryNotEmpty, Conflict and the rest have no
		// protocol-level code in SFTP v3; the message travels with Failure.
		return err
	}
}

// Fileread handles download requests.
func (h *handlers) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	// Open lazily: the client tells us the offsets through ReadAt.
	return &fileReaderAt{
		ctx:    r.Context(),
		bridge: h.bridge,
		path:   r.Filepath,
	}, nil
}

// The request server reports dropped connections through this optional
// interface; the writer aborts so partial uploads never commit.
var _ sftp.TransferError = (*bridge.Writer)(nil)

// Filewrite handles upload requests. The bridge's writer buffers locally
// and commits on close, so out-of-order SFTP write packets are fine.
func (h *handlers) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	w, err := h.bridge.OpenWrite(r.Context(), r.Filepath)
	if err != nil {
		return nil, mapError(err)
	}
	return w, nil
}

// Filecmd handles metadata mutations.
func (h *handlers) Filecmd(r *sftp.Request) error {
	ctx := r.Context()

	switch r.Method {
	case "Mkdir":
		return mapError(h.bridge.Mkdir(ctx, r.Filepath))

	case "Remove", "Rmdir":
		return mapError(h.bridge.Remove(ctx, r.Filepath))

	case "Rename", "PosixRename":
		return mapError(h.bridge.Rename(ctx, r.Filepath, r.Target))

	case "Setstat":
		// Permissions and timestamps have no representation in the store;
		// accept and ignore so clients that chmod after upload don't fail.
		logger.Debug("sftp: ignoring setstat on %s", r.Filepath)
		return nil

	case "Symlink", "Link":
		return sftp.ErrSSHFxOpUnsupported

	default:
		return sftp.ErrSSHFxOpUnsupported
	}
}

// Filelist handles directory listings and stat requests.
func (h *handlers) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	ctx := r.Context()

	switch r.Method {
	case "List":
		infos, err := h.bridge.List(ctx, r.Filepath)
		if err != nil {
			return nil, mapError(err)
		}
		entries := make([]os.FileInfo, 0, len(infos))
		for _, fi := range infos {
			entries = append(entries, fi)
		}
		return listerat(entries), nil

	case "Stat", "Lstat":
		fi, err := h.bridge.Stat(ctx, r.Filepath)
		if err != nil {
			return nil, mapError(err)
		}
		return listerat([]os.FileInfo{fi}), nil

	default:
		return nil, sftp.ErrSSHFxOpUnsupported
	}
}

// listerat serves FileInfo slices to the paging protocol reads.
type listerat []os.FileInfo

func (l listerat) ListAt(entries []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(entries, l[offset:])
	if n < len(entries) {
		return n, io.EOF
	}
	return n, nil
}

// fileReaderAt adapts the bridge's sequential reader to the random-access
// interface the sftp server wants.
//
// SFTP clients read sequentially in practice; when an offset matches the
// current stream position the read continues on the open download. A
// mismatched offset reopens the stream there.
type fileReaderAt struct {
	ctx    context.Context
	bridge *bridge.Bridge
	path   string

	mu     sync.Mutex
	reader *bridge.Reader
	offset int64
}

func (f *fileReaderAt) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader != nil && f.offset != off {
		_ = f.reader.Close()
		f.reader = nil
	}
	if f.reader == nil {
		r, err := f.bridge.OpenRead(f.ctx, f.path, off)
		if err != nil {
			return 0, mapError(err)
		}
		f.reader = r
		f.offset = off
	}

	n, err := io.ReadFull(f.reader, p)
	f.offset += int64(n)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

func (f *fileReaderAt) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader == nil {
		return nil
	}
	err := f.reader.Close()
	f.reader = nil
	return err
}
