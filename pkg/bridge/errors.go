package bridge

import "errors"

// Bridge operations surface two layers of classified errors. Store-level
// conditions (not found, already exists, unauthorized, rate limited,
// conflict, unsupported content) propagate unmodified as the store
// package's sentinels so protocol adapters can map each kind to a protocol
// status code. The sentinels below cover conditions only the bridge can
// detect.
var (
	// ErrDirectoryNotEmpty is returned by Remove on a non-empty directory
	// when recursive deletion is disabled.
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrNotDirectory is returned when a directory operation (List, child
	// resolution) hits a file.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory is returned when a content operation (OpenRead,
	// OpenWrite) hits a directory.
	ErrIsDirectory = errors.New("is a directory")
)
