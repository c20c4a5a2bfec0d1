// Package bridge translates path-based filesystem operations into calls
// against an id-addressed object store.
//
// The bridge is the surface protocol adapters consume: Stat, List, Mkdir,
// Remove, Rename, OpenRead, OpenWrite, each taking a normalized absolute
// path. Internally it composes a path resolver, a time-bounded metadata
// cache, and a streaming layer for content transfers. Every call is
// stateless from the bridge's perspective; nothing carries over between
// operations beyond what the cache holds.
//
// Error contract: store sentinels (store.ErrNotFound, store.ErrAlreadyExists,
// store.ErrUnauthorized, store.ErrConflict, store.ErrUnsupported) and bridge
// sentinels (ErrDirectoryNotEmpty, ErrNotDirectory, ErrIsDirectory)
// propagate unmodified so the protocol layer can map them to status codes.
// Rate-limited and transient store failures are retried inside the store
// client and only surface after retries exhaust.
package bridge

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/metrics"
	"github.com/marmos91/drivebridge/pkg/store"
)

// Options configures a Bridge.
type Options struct {
	// RootFolderID is the store ID the path "/" resolves to.
	// Default: "root".
	RootFolderID string

	// CacheTTL bounds how long metadata cache entries are trusted.
	// Default: 30s.
	CacheTTL time.Duration

	// CacheMaxEntries bounds the cache size (LRU eviction).
	// Default: 4096.
	CacheMaxEntries int

	// SpillDir is where uploads are buffered before commit.
	// Default: os.TempDir().
	SpillDir string

	// RecursiveDelete controls Remove on non-empty directories: delete the
	// subtree when true, fail with ErrDirectoryNotEmpty when false.
	RecursiveDelete bool

	// ReadResumeAttempts is how many times an interrupted download stream
	// is transparently re-issued. Default: 3.
	ReadResumeAttempts int

	// Metrics records operation counts/latencies and cache hit rates.
	// Nil disables collection.
	Metrics metrics.BridgeMetrics
}

func (o *Options) applyDefaults() {
	if o.RootFolderID == "" {
		o.RootFolderID = "root"
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 30 * time.Second
	}
	if o.CacheMaxEntries <= 0 {
		o.CacheMaxEntries = 4096
	}
	if o.SpillDir == "" {
		o.SpillDir = os.TempDir()
	}
	if o.ReadResumeAttempts <= 0 {
		o.ReadResumeAttempts = 3
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNoopBridgeMetrics()
	}
}

// Bridge is the filesystem view over an object store. One Bridge instance
// owns one cache and is shared by all protocol sessions.
//
// Thread safety:
// All methods are safe for concurrent use. The cache locks per shard, so
// operations on unrelated directories do not serialize. Streams returned
// by OpenRead/OpenWrite are each for use by one session at a time.
type Bridge struct {
	store    store.Store
	cache    *Cache
	resolver resolver
	opts     Options
	metrics  metrics.BridgeMetrics
}

// New creates a Bridge over the given store.
func New(st store.Store, opts Options) *Bridge {
	opts.applyDefaults()

	cache := NewCache(opts.CacheTTL, opts.CacheMaxEntries, opts.Metrics)

	return &Bridge{
		store: st,
		cache: cache,
		resolver: resolver{
			store:  st,
			cache:  cache,
			rootID: opts.RootFolderID,
		},
		opts:    opts,
		metrics: opts.Metrics,
	}
}

// Cache exposes the bridge's metadata cache, mainly for tests and for
// operational cache flushes.
func (b *Bridge) Cache() *Cache {
	return b.cache
}

// observe records one completed operation.
func (b *Bridge) observe(op string, start time.Time, err error) {
	b.metrics.ObserveOperation(op, time.Since(start), err)
}

// Stat resolves a path and returns its metadata.
func (b *Bridge) Stat(ctx context.Context, path string) (fi *FileInfo, err error) {
	start := time.Now()
	defer func() { b.observe("Stat", start, err) }()

	obj, err := b.resolver.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return newFileInfo(obj), nil
}

// List returns the entries of a directory, sorted by name.
func (b *Bridge) List(ctx context.Context, path string) (infos []*FileInfo, err error) {
	start := time.Now()
	defer func() { b.observe("List", start, err) }()

	obj, err := b.resolver.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if !obj.IsDir {
		return nil, fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}

	children, err := b.resolver.listing(ctx, obj.ID)
	if err != nil {
		return nil, err
	}

	infos = make([]*FileInfo, 0, len(children))
	for _, child := range children {
		infos = append(infos, newFileInfo(child))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].name < infos[j].name })
	return infos, nil
}

// Mkdir creates a directory at path. The parent must exist; an existing
// object at path fails with store.ErrAlreadyExists.
func (b *Bridge) Mkdir(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { b.observe("Mkdir", start, err) }()

	parent, name, err := b.resolver.resolveParent(ctx, path)
	if err != nil {
		return err
	}

	children, err := b.resolver.listing(ctx, parent.ID)
	if err != nil {
		return err
	}
	if _, exists := children[name]; exists {
		return fmt.Errorf("%s: %w", path, store.ErrAlreadyExists)
	}

	folder, err := b.store.CreateFolder(ctx, parent.ID, name)
	if err != nil {
		return err
	}

	// The parent's listing is stale the moment the folder exists; drop it
	// before reporting success so an immediate List reflects the mkdir.
	b.cache.InvalidateListing(parent.ID)
	b.cache.PutObject(folder)

	logger.Debug("mkdir %s -> %s", path, folder.ID)
	return nil
}

// Remove deletes the object at path. Directories with children follow the
// configured policy: recursive delete, or ErrDirectoryNotEmpty.
func (b *Bridge) Remove(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { b.observe("Remove", start, err) }()

	parent, name, err := b.resolver.resolveParent(ctx, path)
	if err != nil {
		return err
	}

	children, err := b.resolver.listing(ctx, parent.ID)
	if err != nil {
		return err
	}
	obj, exists := children[name]
	if !exists {
		return fmt.Errorf("%s: %w", path, store.ErrNotFound)
	}

	recursive := false
	if obj.IsDir {
		// Decide emptiness on a fresh listing: a TTL-stale view must not
		// turn a non-empty delete into data loss or a spurious failure.
		grandchildren, listErr := b.store.ListChildren(ctx, obj.ID)
		if listErr != nil {
			return listErr
		}
		if len(grandchildren) > 0 {
			if !b.opts.RecursiveDelete {
				return fmt.Errorf("%s: %w", path, ErrDirectoryNotEmpty)
			}
			recursive = true
		}
	}

	if err := b.store.Delete(ctx, obj.ID); err != nil {
		return err
	}

	if recursive {
		// The delete invalidated every descendant's listing and object
		// entry; the blast radius is unbounded, so clear everything.
		b.cache.InvalidateAll()
	} else {
		b.cache.InvalidateListing(parent.ID)
		b.cache.InvalidateObject(obj.ID)
		if obj.IsDir {
			b.cache.InvalidateListing(obj.ID)
		}
	}

	logger.Debug("remove %s (%s, recursive=%v)", path, obj.ID, recursive)
	return nil
}

// Rename moves/renames oldPath to newPath in one metadata update call.
// The destination parent must exist and the destination name must be free:
// there is no silent overwrite.
func (b *Bridge) Rename(ctx context.Context, oldPath, newPath string) (err error) {
	start := time.Now()
	defer func() { b.observe("Rename", start, err) }()

	if oldPath == newPath {
		_, err := b.resolver.resolve(ctx, oldPath)
		return err
	}

	oldParent, oldName, err := b.resolver.resolveParent(ctx, oldPath)
	if err != nil {
		return err
	}
	oldChildren, err := b.resolver.listing(ctx, oldParent.ID)
	if err != nil {
		return err
	}
	obj, exists := oldChildren[oldName]
	if !exists {
		return fmt.Errorf("%s: %w", oldPath, store.ErrNotFound)
	}

	newParent, newName, err := b.resolver.resolveParent(ctx, newPath)
	if err != nil {
		return err
	}
	newChildren, err := b.resolver.listing(ctx, newParent.ID)
	if err != nil {
		return err
	}
	if _, collision := newChildren[newName]; collision {
		return fmt.Errorf("%s: %w", newPath, store.ErrAlreadyExists)
	}

	if _, err := b.store.Rename(ctx, obj.ID, newName, oldParent.ID, newParent.ID); err != nil {
		return err
	}

	b.cache.InvalidateListing(oldParent.ID)
	b.cache.InvalidateListing(newParent.ID)
	b.cache.InvalidateObject(obj.ID)

	logger.Debug("rename %s -> %s (%s)", oldPath, newPath, obj.ID)
	return nil
}

// OpenRead opens the file at path for reading starting at offset.
//
// Store-native documents without a binary export fail with
// store.ErrUnsupported; directories fail with ErrIsDirectory. Payload bytes
// bypass the metadata cache entirely.
func (b *Bridge) OpenRead(ctx context.Context, path string, offset int64) (r *Reader, err error) {
	start := time.Now()
	defer func() { b.observe("OpenRead", start, err) }()

	obj, err := b.resolver.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if obj.IsDir {
		return nil, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}
	if obj.IsNativeDocument() {
		return nil, fmt.Errorf("%s (%s): %w", path, obj.MIMEType, store.ErrUnsupported)
	}

	return newReader(ctx, b.store, obj.ID, offset, b.opts.ReadResumeAttempts, b.metrics), nil
}

// OpenWrite opens the file at path for writing.
//
// The parent must exist. If an object already exists at path its content is
// replaced on commit (addressed by the ID captured here, so a concurrent
// rename cannot misdirect the write). Bytes are buffered in a local spill
// file; nothing reaches the store until Close, and an aborted write leaves
// no remote artifact.
func (b *Bridge) OpenWrite(ctx context.Context, path string) (w *Writer, err error) {
	start := time.Now()
	defer func() { b.observe("OpenWrite", start, err) }()

	parent, name, err := b.resolver.resolveParent(ctx, path)
	if err != nil {
		return nil, err
	}

	children, err := b.resolver.listing(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	existingID := ""
	if existing, ok := children[name]; ok {
		if existing.IsDir {
			return nil, fmt.Errorf("%s: %w", path, ErrIsDirectory)
		}
		existingID = existing.ID
	}

	return newWriter(ctx, b, parent.ID, existingID, name, path)
}
