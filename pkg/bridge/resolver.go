package bridge

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/store"
)

// resolver maps protocol paths to store objects by walking directory
// listings segment by segment, consulting the cache before the network.
//
// The store's id/parent graph permits multiple parents per object; the
// resolver presents a canonical single-parent view by always reaching an
// object through the parent it was most recently listed under. Identity
// stays with the object ID, so a concurrent rename never invalidates an
// ID a caller already holds.
type resolver struct {
	store  store.Store
	cache  *Cache
	rootID string
}

// rootObject synthesizes the root folder. The root resolves to the
// configured folder ID without a network call.
func (r *resolver) rootObject() store.Object {
	return store.Object{
		ID:       r.rootID,
		Name:     "/",
		IsDir:    true,
		MIMEType: store.FolderMIMEType,
	}
}

// splitPath slices a normalized absolute path into segments.
// "/" yields no segments.
func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// parentPath returns the parent directory of a normalized absolute path.
func parentPath(p string) string {
	return path.Dir(strings.TrimRight(p, "/"))
}

// baseName returns the final segment of a normalized absolute path.
func baseName(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}

// listing returns the collapsed child listing for a directory, from cache
// when fresh, otherwise fetched from the store and cached.
func (r *resolver) listing(ctx context.Context, dirID string) (map[string]store.Object, error) {
	if cached, ok := r.cache.GetListing(dirID); ok {
		return cached, nil
	}

	children, err := r.store.ListChildren(ctx, dirID)
	if err != nil {
		return nil, err
	}

	collapsed := collapseListing(dirID, children)
	r.cache.PutListing(dirID, collapsed)

	// Each child doubles as an object-metadata entry: a later Stat on the
	// child should not need another network call.
	for _, child := range collapsed {
		r.cache.PutObject(child)
	}

	return collapsed, nil
}

// collapseListing turns a raw child list into a name-keyed map, resolving
// duplicate names deterministically: the most recently modified object
// wins, the shadowed one is logged.
func collapseListing(dirID string, children []store.Object) map[string]store.Object {
	collapsed := make(map[string]store.Object, len(children))
	for _, child := range children {
		existing, ok := collapsed[child.Name]
		if !ok {
			collapsed[child.Name] = child
			continue
		}

		keep, shadow := existing, child
		if child.ModifiedTime.After(existing.ModifiedTime) {
			keep, shadow = child, existing
		}
		collapsed[child.Name] = keep
		logger.Warn("name collision in folder %s: %q shadows object %s (modified %s)",
			dirID, keep.Name, shadow.ID, shadow.ModifiedTime.Format("2006-01-02 15:04:05"))
	}
	return collapsed
}

// resolve walks the path from the root and returns the object it denotes.
//
// Resolution fails fast with store.ErrNotFound on the first segment without
// a matching child; there is no partial or case-insensitive matching.
func (r *resolver) resolve(ctx context.Context, p string) (store.Object, error) {
	current := r.rootObject()

	for _, segment := range splitPath(p) {
		if !current.IsDir {
			return store.Object{}, fmt.Errorf("%s: %w", p, ErrNotDirectory)
		}

		children, err := r.listing(ctx, current.ID)
		if err != nil {
			return store.Object{}, err
		}

		child, ok := children[segment]
		if !ok {
			return store.Object{}, fmt.Errorf("%s: %w", p, store.ErrNotFound)
		}
		current = child
	}

	return current, nil
}

// resolveParent resolves the parent directory of p and returns it together
// with p's final segment. Fails with store.ErrNotFound if the parent does
// not exist and ErrNotDirectory if it is a file.
func (r *resolver) resolveParent(ctx context.Context, p string) (store.Object, string, error) {
	name := baseName(p)
	if name == "/" || name == "." {
		return store.Object{}, "", fmt.Errorf("%s: path has no parent", p)
	}

	parent, err := r.resolve(ctx, parentPath(p))
	if err != nil {
		return store.Object{}, "", err
	}
	if !parent.IsDir {
		return store.Object{}, "", fmt.Errorf("%s: %w", parentPath(p), ErrNotDirectory)
	}
	return parent, name, nil
}
