// Package memory implements store.Store entirely in memory.
//
// The memory store is used by the bridge's tests and as a throwaway
// development backend. Beyond the Store contract it offers test hooks:
// direct seeding (including deliberate name collisions, which the real
// store permits), per-operation call counters, one-shot fault injection,
// and mid-stream download interruption.
//
// Characteristics:
//   - Volatile: all data lost when the store is garbage collected
//   - Thread-safe: a single mutex guards all state
//   - Faithful to the remote model: flat id-addressed objects with parent
//     references, duplicate names allowed, folders deleted with subtree
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/drivebridge/pkg/store"
)

// RootID is the fixed ID of the store's root folder.
const RootID = "root"

type memObject struct {
	obj     store.Object
	content []byte
}

// MemoryStore implements store.Store with in-memory state.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]*memObject
	nextID  int

	// calls counts invocations per operation name, for tests that assert
	// cache behavior ("no second network call").
	calls map[string]int

	// failNext holds one-shot injected errors per operation name.
	failNext map[string]error

	// breakDownloadAfter > 0 makes the next Download reader fail after
	// that many bytes, then resets.
	breakDownloadAfter int64
}

// New creates an empty MemoryStore containing only the root folder.
func New() *MemoryStore {
	s := &MemoryStore{
		objects:  make(map[string]*memObject),
		calls:    make(map[string]int),
		failNext: make(map[string]error),
	}
	s.objects[RootID] = &memObject{
		obj: store.Object{
			ID:           RootID,
			Name:         "/",
			IsDir:        true,
			MIMEType:     store.FolderMIMEType,
			ModifiedTime: time.Now(),
		},
	}
	return s
}

// ============================================================================
// Test hooks
// ============================================================================

// Seed inserts an object directly, bypassing the Store API. Duplicate names
// under one parent are allowed, mirroring the remote store.
func (s *MemoryStore) Seed(parentID, name string, isDir bool, content []byte, modified time.Time) store.Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := store.Object{
		ID:           s.generateID(),
		Name:         name,
		ParentIDs:    []string{parentID},
		IsDir:        isDir,
		Size:         int64(len(content)),
		ModifiedTime: modified,
		MIMEType:     "application/octet-stream",
	}
	if isDir {
		obj.MIMEType = store.FolderMIMEType
		obj.Size = 0
	}
	s.objects[obj.ID] = &memObject{obj: obj, content: append([]byte(nil), content...)}
	return obj
}

// SeedNativeDocument inserts a store-native document (no binary export).
func (s *MemoryStore) SeedNativeDocument(parentID, name string) store.Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := store.Object{
		ID:           s.generateID(),
		Name:         name,
		ParentIDs:    []string{parentID},
		ModifiedTime: time.Now(),
		MIMEType:     "application/vnd.google-apps.document",
	}
	s.objects[obj.ID] = &memObject{obj: obj}
	return obj
}

// FailNext injects err into the next invocation of the named operation
// (ListChildren, GetObject, CreateFolder, Upload, Rename, Delete, Download).
func (s *MemoryStore) FailNext(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[operation] = err
}

// BreakDownloadAfter makes the next Download reader fail with a transient
// error after n bytes. Subsequent downloads succeed, so resuming readers
// can be exercised.
func (s *MemoryStore) BreakDownloadAfter(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakDownloadAfter = n
}

// Calls returns how many times the named operation was invoked.
func (s *MemoryStore) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// Content returns a copy of an object's content, for assertions.
func (s *MemoryStore) Content(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.objects[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), m.content...), true
}

// generateID must be called with the mutex held.
func (s *MemoryStore) generateID() string {
	s.nextID++
	return fmt.Sprintf("obj-%04d", s.nextID)
}

// enter records the call and pops any injected fault.
// Must be called with the mutex held.
func (s *MemoryStore) enter(operation string) error {
	s.calls[operation]++
	if err, ok := s.failNext[operation]; ok {
		delete(s.failNext, operation)
		return err
	}
	return nil
}

// ============================================================================
// store.Store implementation
// ============================================================================

// ListChildren returns the direct children of the given folder.
func (s *MemoryStore) ListChildren(ctx context.Context, parentID string) ([]store.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("ListChildren"); err != nil {
		return nil, err
	}

	parent, ok := s.objects[parentID]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", parentID, store.ErrNotFound)
	}
	if !parent.obj.IsDir {
		return nil, fmt.Errorf("list %s: not a folder: %w", parentID, store.ErrNotFound)
	}

	var children []store.Object
	for _, m := range s.objects {
		for _, p := range m.obj.ParentIDs {
			if p == parentID {
				children = append(children, m.obj)
				break
			}
		}
	}
	return children, nil
}

// GetObject fetches one object's metadata.
func (s *MemoryStore) GetObject(ctx context.Context, id string) (store.Object, error) {
	if err := ctx.Err(); err != nil {
		return store.Object{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("GetObject"); err != nil {
		return store.Object{}, err
	}

	m, ok := s.objects[id]
	if !ok {
		return store.Object{}, fmt.Errorf("get %s: %w", id, store.ErrNotFound)
	}
	return m.obj, nil
}

// CreateFolder creates an empty folder under parentID.
func (s *MemoryStore) CreateFolder(ctx context.Context, parentID, name string) (store.Object, error) {
	if err := ctx.Err(); err != nil {
		return store.Object{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("CreateFolder"); err != nil {
		return store.Object{}, err
	}

	if _, ok := s.objects[parentID]; !ok {
		return store.Object{}, fmt.Errorf("create folder under %s: %w", parentID, store.ErrNotFound)
	}

	obj := store.Object{
		ID:           s.generateID(),
		Name:         name,
		ParentIDs:    []string{parentID},
		IsDir:        true,
		MIMEType:     store.FolderMIMEType,
		ModifiedTime: time.Now(),
	}
	s.objects[obj.ID] = &memObject{obj: obj}
	return obj, nil
}

// Upload writes content: replace when ExistingID is set, create otherwise.
// Like the remote store, creating does not check for name collisions.
func (s *MemoryStore) Upload(ctx context.Context, spec store.UploadSpec) (store.Object, error) {
	if err := ctx.Err(); err != nil {
		return store.Object{}, err
	}

	// Read outside the lock: the reader may be slow or context-bound.
	content, err := io.ReadAll(spec.Content)
	if err != nil {
		return store.Object{}, fmt.Errorf("upload: read content: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("Upload"); err != nil {
		return store.Object{}, err
	}

	if spec.ExistingID != "" {
		m, ok := s.objects[spec.ExistingID]
		if !ok {
			return store.Object{}, fmt.Errorf("upload to %s: %w", spec.ExistingID, store.ErrNotFound)
		}
		m.content = content
		m.obj.Size = int64(len(content))
		m.obj.ModifiedTime = time.Now()
		return m.obj, nil
	}

	if _, ok := s.objects[spec.ParentID]; !ok {
		return store.Object{}, fmt.Errorf("upload under %s: %w", spec.ParentID, store.ErrNotFound)
	}

	obj := store.Object{
		ID:           s.generateID(),
		Name:         spec.Name,
		ParentIDs:    []string{spec.ParentID},
		Size:         int64(len(content)),
		ModifiedTime: time.Now(),
		MIMEType:     "application/octet-stream",
	}
	s.objects[obj.ID] = &memObject{obj: obj, content: content}
	return obj, nil
}

// Rename updates the object's name and optionally moves it between parents.
func (s *MemoryStore) Rename(ctx context.Context, id, newName, oldParentID, newParentID string) (store.Object, error) {
	if err := ctx.Err(); err != nil {
		return store.Object{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("Rename"); err != nil {
		return store.Object{}, err
	}

	m, ok := s.objects[id]
	if !ok {
		return store.Object{}, fmt.Errorf("rename %s: %w", id, store.ErrNotFound)
	}

	moving := newParentID != "" && newParentID != oldParentID
	if moving {
		if _, ok := s.objects[newParentID]; !ok {
			return store.Object{}, fmt.Errorf("rename %s into %s: %w", id, newParentID, store.ErrNotFound)
		}
	}

	m.obj.Name = newName
	if moving {
		parents := make([]string, 0, len(m.obj.ParentIDs))
		for _, p := range m.obj.ParentIDs {
			if p != oldParentID {
				parents = append(parents, p)
			}
		}
		m.obj.ParentIDs = append(parents, newParentID)
	}
	m.obj.ModifiedTime = time.Now()
	return m.obj, nil
}

// Delete removes the object; folders take their subtree with them.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("Delete"); err != nil {
		return err
	}

	if _, ok := s.objects[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, store.ErrNotFound)
	}
	s.deleteSubtree(id)
	return nil
}

// deleteSubtree must be called with the mutex held.
func (s *MemoryStore) deleteSubtree(id string) {
	delete(s.objects, id)
	for childID, m := range s.objects {
		for _, p := range m.obj.ParentIDs {
			if p == id {
				s.deleteSubtree(childID)
				break
			}
		}
	}
}

// Download opens the object's content starting at offset.
func (s *MemoryStore) Download(ctx context.Context, id string, offset int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("Download"); err != nil {
		return nil, err
	}

	m, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", id, store.ErrNotFound)
	}
	if m.obj.IsNativeDocument() {
		return nil, fmt.Errorf("download %s: %w", id, store.ErrUnsupported)
	}

	content := m.content
	if offset >= int64(len(content)) {
		content = nil
	} else {
		content = content[offset:]
	}
	rc := io.NopCloser(bytes.NewReader(append([]byte(nil), content...)))

	if s.breakDownloadAfter > 0 {
		rc = &breakingReader{inner: rc, after: s.breakDownloadAfter}
		s.breakDownloadAfter = 0
	}
	return rc, nil
}

// breakingReader fails with a transient error once `after` bytes were read.
type breakingReader struct {
	inner io.ReadCloser
	after int64
	read  int64
}

func (b *breakingReader) Read(p []byte) (int, error) {
	if b.read >= b.after {
		return 0, fmt.Errorf("connection lost: %w", store.ErrTransient)
	}
	if remaining := b.after - b.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := b.inner.Read(p)
	b.read += int64(n)
	return n, err
}

func (b *breakingReader) Close() error {
	return b.inner.Close()
}

// compile-time interface check
var _ store.Store = (*MemoryStore)(nil)
