package store

import "errors"

// ============================================================================
// Classified Store Errors
// ============================================================================

// These sentinels classify remote store failures so that callers can react
// without parsing implementation-specific errors. Store implementations wrap
// them with context:
//
//	return Object{}, fmt.Errorf("get %s: %w", id, store.ErrNotFound)
//
// and callers classify with errors.Is:
//
//	if errors.Is(err, store.ErrNotFound) { ... }
//
// ErrRateLimited and ErrTransient are retried inside the store client with
// exponential backoff; they only surface after retries are exhausted. All
// other kinds propagate immediately.
var (
	// ErrNotFound indicates the requested object does not exist, or was
	// deleted between listing and access (confirmed 404 from the store).
	ErrNotFound = errors.New("object not found")

	// ErrAlreadyExists indicates an object with the target name already
	// exists where the operation would create one.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrUnauthorized indicates the bearer credential was rejected.
	//
	// The store client does not refresh credentials; the external
	// authentication collaborator owns that. Callers surface this once per
	// operation and expect the protocol layer to refresh and retry.
	ErrUnauthorized = errors.New("credential rejected by store")

	// ErrRateLimited indicates the store rejected the call due to API
	// quota. Retried internally; surfaced only after retries exhaust.
	ErrRateLimited = errors.New("store rate limit exceeded")

	// ErrTransient indicates a temporary failure (5xx, connection reset).
	// Retried internally; surfaced only after retries exhaust.
	ErrTransient = errors.New("transient store failure")

	// ErrConflict indicates the store detected a concurrent modification.
	ErrConflict = errors.New("conflicting store modification")

	// ErrUnsupported indicates the object is a store-native document with
	// no binary export. Distinct from ErrNotFound: the object exists but
	// its content cannot be served.
	ErrUnsupported = errors.New("store-native document has no binary content")
)

// IsRetryable reports whether an error is one of the internally retried
// classifications.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
