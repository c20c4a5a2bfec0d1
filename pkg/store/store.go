// Package store defines the object store abstraction the filesystem bridge
// is built on: a flat collection of objects identified by opaque IDs, each
// carrying zero or more parent IDs, reached through an authenticated,
// rate-limited remote API.
//
// The package contains the data model (Object), the classified error
// sentinels, and the Store interface. Implementations live in subpackages:
//
//   - drive: Google-Drive-style REST API over HTTP with OAuth2 bearer tokens
//   - memory: in-memory store for tests and development
//
// Store implementations own retry-on-transient-failure logic only. They never
// cache: caching is the bridge's concern.
package store

import (
	"context"
	"io"
)

// Store is the typed surface over the remote object store, one method per
// store operation.
//
// Every method takes a context and respects its cancellation. Failures are
// classified into the package's sentinel errors (see errors.go); anything
// else is an implementation bug.
//
// Thread safety:
// Implementations must be safe for concurrent use. A retry loop inside one
// call blocks only that call.
type Store interface {
	// ListChildren returns the direct children of the given folder.
	//
	// The listing is complete (implementations follow pagination) but makes
	// no uniqueness guarantee on names: the store permits two children with
	// the same display name. Callers resolve collisions.
	ListChildren(ctx context.Context, parentID string) ([]Object, error)

	// GetObject fetches current metadata for one object by ID.
	GetObject(ctx context.Context, id string) (Object, error)

	// CreateFolder creates an empty folder named name under parentID.
	CreateFolder(ctx context.Context, parentID, name string) (Object, error)

	// Upload writes content per the spec and returns the resulting object
	// metadata. Implementations choose between a single-shot upload and a
	// resumable chunked session based on spec.Size.
	//
	// If the upload fails or ctx is cancelled mid-transfer, no partial
	// object may remain visible: implementations must cancel any resumable
	// session they started.
	Upload(ctx context.Context, spec UploadSpec) (Object, error)

	// Rename updates an object's display name and/or moves it between
	// parents in one metadata update call. Empty newParentID (with matching
	// empty oldParentID) leaves parents unchanged.
	Rename(ctx context.Context, id, newName, oldParentID, newParentID string) (Object, error)

	// Delete removes the object. Deleting a folder deletes its subtree on
	// the store side.
	Delete(ctx context.Context, id string) error

	// Download opens the object's content for reading starting at offset.
	// The returned reader is a single forward-only range; callers that need
	// resume-on-interruption re-issue Download at the new offset.
	//
	// Returns ErrUnsupported for store-native documents without binary
	// content.
	Download(ctx context.Context, id string, offset int64) (io.ReadCloser, error)
}
