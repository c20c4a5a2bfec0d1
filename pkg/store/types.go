package store

import (
	"io"
	"time"
)

// FolderMIMEType is the MIME type the remote store uses to mark folder
// objects. Folders are a distinct object kind with no content body.
const FolderMIMEType = "application/vnd.google-apps.folder"

// nativeDocPrefix marks store-native document formats (documents,
// spreadsheets, ...) that have no binary content body and therefore cannot
// be downloaded as-is.
const nativeDocPrefix = "application/vnd.google-apps."

// Object is the bridge's view of one remote object (file or folder).
//
// The remote store owns the ground truth; an Object is always a transient,
// locally held copy of the metadata as of some past API call.
type Object struct {
	// ID is the opaque store identifier. It is stable for the object's
	// lifetime and globally unique within the account, even across renames.
	ID string

	// Name is the display name. The store does not enforce uniqueness
	// within a parent; callers must be prepared for collisions.
	Name string

	// ParentIDs lists the IDs of the object's parents. Zero parents means
	// root-attached or orphaned; more than one means the object is reachable
	// via multiple paths.
	ParentIDs []string

	// IsDir reports whether the object is a folder.
	IsDir bool

	// Size is the content size in bytes. Zero for folders and for
	// store-native documents without a binary body.
	Size int64

	// ModifiedTime is the store's last-modification timestamp.
	ModifiedTime time.Time

	// ContentHash is the store-computed content checksum, when available.
	ContentHash string

	// MIMEType distinguishes folders and store-native documents from
	// ordinary binary content.
	MIMEType string
}

// IsNativeDocument reports whether the object is a store-native document
// format with no binary export. Such objects cannot be read through the
// bridge and are surfaced as ErrUnsupported, not converted.
func (o Object) IsNativeDocument() bool {
	if o.MIMEType == FolderMIMEType {
		return false
	}
	return len(o.MIMEType) > len(nativeDocPrefix) && o.MIMEType[:len(nativeDocPrefix)] == nativeDocPrefix
}

// UploadSpec describes one content upload.
//
// When ExistingID is set the upload replaces that object's content (the
// object keeps its ID); otherwise a new object named Name is created under
// ParentID.
type UploadSpec struct {
	// ExistingID is the ID of the object to overwrite, or empty to create.
	ExistingID string

	// ParentID is the parent folder for newly created objects.
	// Ignored when ExistingID is set.
	ParentID string

	// Name is the display name for newly created objects.
	// Ignored when ExistingID is set.
	Name string

	// Size is the total content length in bytes. It must be exact: the
	// store's upload API requires either the final size up front or a
	// resumable session addressed by byte ranges.
	Size int64

	// Content supplies the bytes to upload.
	Content io.Reader
}
