package bridge

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"

	"github.com/marmos91/drivebridge/pkg/metrics"
	"github.com/marmos91/drivebridge/pkg/store"
)

// cacheShards fixes the number of independently locked cache segments.
// Per-shard locking keeps a mutation in one directory from serializing
// lookups in unrelated directories.
const cacheShards = 16

// Cache is the bridge's time-bounded metadata cache.
//
// It holds two keyspaces: per-directory child listings (parent ID ->
// name -> Object, with collisions already collapsed by the resolver) and
// per-object metadata (object ID -> Object). Every entry carries its
// insertion time; entries older than the TTL are never returned.
//
// The cache is a pure data structure: it never performs network I/O. A miss
// is reported to the caller, which fetches and then populates the cache.
//
// Strategy:
//   - TTL expiration from insertion time (no sliding extension)
//   - LRU eviction per shard when full
//   - Explicit invalidation on every mutation the bridge performs
//
// Thread safety:
// Each shard is guarded by its own mutex; all operations touch exactly one
// shard except InvalidateAll.
type Cache struct {
	ttl         time.Duration
	maxPerShard int
	shards      [cacheShards]cacheShard
	metrics     metrics.BridgeMetrics
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lru     *list.List
}

// cacheEntry holds either a directory listing or a single object's
// metadata, depending on which keyspace the key belongs to.
type cacheEntry struct {
	listing    map[string]store.Object
	object     store.Object
	insertedAt time.Time
	lruNode    *list.Element
}

// NewCache creates a Cache with the given TTL and total entry bound.
func NewCache(ttl time.Duration, maxEntries int, m metrics.BridgeMetrics) *Cache {
	if m == nil {
		m = metrics.NewNoopBridgeMetrics()
	}

	perShard := maxEntries / cacheShards
	if perShard < 1 {
		perShard = 1
	}

	c := &Cache{
		ttl:         ttl,
		maxPerShard: perShard,
		metrics:     m,
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*cacheEntry)
		c.shards[i].lru = list.New()
	}
	return c
}

func (c *Cache) shard(key string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.shards[h.Sum32()%cacheShards]
}

func listingKey(parentID string) string { return "dir:" + parentID }
func objectKey(id string) string        { return "obj:" + id }

// get returns the unexpired entry for key, touching its LRU position.
func (c *Cache) get(key string) *cacheEntry {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if time.Since(entry.insertedAt) > c.ttl {
		// Expired entries are evicted on access so the shard does not fill
		// with dead weight between mutations.
		s.lru.Remove(entry.lruNode)
		delete(s.entries, key)
		return nil
	}
	s.lru.MoveToFront(entry.lruNode)
	return entry
}

// put inserts or overwrites the entry for key, evicting the least recently
// used entry if the shard is full.
func (c *Cache) put(key string, entry *cacheEntry) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.insertedAt = time.Now()

	if existing, ok := s.entries[key]; ok {
		entry.lruNode = existing.lruNode
		entry.lruNode.Value = key
		s.entries[key] = entry
		s.lru.MoveToFront(entry.lruNode)
		return
	}

	if len(s.entries) >= c.maxPerShard {
		oldest := s.lru.Back()
		if oldest != nil {
			s.lru.Remove(oldest)
			delete(s.entries, oldest.Value.(string))
			c.metrics.CacheEviction()
		}
	}

	entry.lruNode = s.lru.PushFront(key)
	s.entries[key] = entry
}

// invalidate removes the entry for key if present.
func (c *Cache) invalidate(key string) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		s.lru.Remove(entry.lruNode)
		delete(s.entries, key)
	}
}

// GetListing returns the cached child listing of a directory, if fresh.
func (c *Cache) GetListing(parentID string) (map[string]store.Object, bool) {
	entry := c.get(listingKey(parentID))
	if entry == nil || entry.listing == nil {
		c.metrics.CacheMiss("listing")
		return nil, false
	}
	c.metrics.CacheHit("listing")
	return entry.listing, true
}

// PutListing stores a directory's collapsed child listing.
func (c *Cache) PutListing(parentID string, listing map[string]store.Object) {
	c.put(listingKey(parentID), &cacheEntry{listing: listing})
}

// InvalidateListing drops a directory's cached listing.
func (c *Cache) InvalidateListing(parentID string) {
	c.invalidate(listingKey(parentID))
}

// GetObject returns cached metadata for one object, if fresh.
func (c *Cache) GetObject(id string) (store.Object, bool) {
	entry := c.get(objectKey(id))
	if entry == nil || entry.listing != nil {
		c.metrics.CacheMiss("object")
		return store.Object{}, false
	}
	c.metrics.CacheHit("object")
	return entry.object, true
}

// PutObject stores one object's metadata.
func (c *Cache) PutObject(obj store.Object) {
	c.put(objectKey(obj.ID), &cacheEntry{object: obj})
}

// InvalidateObject drops one object's cached metadata.
func (c *Cache) InvalidateObject(id string) {
	c.invalidate(objectKey(id))
}

// InvalidateAll clears the whole cache. Used after mutations whose blast
// radius is hard to bound, such as recursive deletes.
func (c *Cache) InvalidateAll() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.entries = make(map[string]*cacheEntry)
		s.lru = list.New()
		s.mu.Unlock()
	}
}

// Len returns the current number of entries across all shards.
func (c *Cache) Len() int {
	total := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}
