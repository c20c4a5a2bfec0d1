package bridge

import (
	"io/fs"
	"os"
	"time"

	"github.com/marmos91/drivebridge/pkg/store"
)

// FileInfo is the bridge's stat result. It implements fs.FileInfo so
// protocol adapters can hand it to their frameworks directly.
//
// The store has no POSIX permission model; the bridge reports fixed modes
// (0755 for directories, 0644 for files) the way the original path-based
// protocols expect.
type FileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
	id      string
}

func newFileInfo(obj store.Object) *FileInfo {
	size := obj.Size
	if obj.IsDir {
		size = 0
	}
	return &FileInfo{
		name:    obj.Name,
		size:    size,
		modTime: obj.ModifiedTime,
		isDir:   obj.IsDir,
		id:      obj.ID,
	}
}

func (fi *FileInfo) Name() string { return fi.name }
func (fi *FileInfo) Size() int64  { return fi.size }

func (fi *FileInfo) Mode() os.FileMode {
	if fi.isDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

func (fi *FileInfo) ModTime() time.Time { return fi.modTime }
func (fi *FileInfo) IsDir() bool        { return fi.isDir }
func (fi *FileInfo) Sys() any           { return nil }

// ID returns the underlying store object ID.
func (fi *FileInfo) ID() string { return fi.id }

// compile-time interface check
var _ fs.FileInfo = (*FileInfo)(nil)
