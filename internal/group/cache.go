package group

import (
	"container/list"
	"sync"
)

// DefaultCacheBytes is the default byte budget for the entity cache.
const DefaultCacheBytes = 512 * 1024

// Cache is a byte-budgeted LRU map from current group name to the single
// live Group instance for that name. Evicted groups are simply dropped;
// the next lookup reloads them from the provider.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	bytes    int64
	entries  map[string]*list.Element
	lru      *list.List // front is most recently used
}

type cacheEntry struct {
	name  string
	group *Group
	size  int64
}

// NewCache returns a cache bounded to maxBytes (DefaultCacheBytes when <= 0).
func NewCache(maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	return &Cache{
		maxBytes: maxBytes,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached group for name, marking it recently used.
func (c *Cache) Get(name string) (*Group, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).group, true
}

// Put inserts g under its current name, replacing any previous entry and
// evicting least-recently-used entries until the budget holds.
func (c *Cache) Put(g *Group) {
	name := g.Name()
	size := g.CachedSize()
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[name]; ok {
		entry := el.Value.(*cacheEntry)
		c.bytes += size - entry.size
		entry.group = g
		entry.size = size
		c.lru.MoveToFront(el)
	} else {
		el := c.lru.PushFront(&cacheEntry{name: name, group: g, size: size})
		c.entries[name] = el
		c.bytes += size
	}
	for c.bytes > c.maxBytes && c.lru.Len() > 1 {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	el := c.lru.Back()
	if el == nil {
		return
	}
	entry := el.Value.(*cacheEntry)
	c.lru.Remove(el)
	delete(c.entries, entry.name)
	c.bytes -= entry.size
}

// Remove drops the entry for name, reporting whether it was present.
func (c *Cache) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[name]
	if !ok {
		return false
	}
	entry := el.Value.(*cacheEntry)
	c.lru.Remove(el)
	delete(c.entries, name)
	c.bytes -= entry.size
	return true
}

// Rename re-keys the entry from oldName to newName atomically, so there is
// no window where the group is reachable under neither name. Reports
// whether oldName was cached.
func (c *Cache) Rename(oldName, newName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[oldName]
	if !ok {
		return false
	}
	entry := el.Value.(*cacheEntry)
	delete(c.entries, oldName)
	if prev, taken := c.entries[newName]; taken {
		stale := prev.Value.(*cacheEntry)
		c.lru.Remove(prev)
		c.bytes -= stale.size
	}
	entry.name = newName
	c.bytes += int64(len(newName) - len(oldName))
	entry.size += int64(len(newName) - len(oldName))
	c.entries[newName] = el
	return true
}

// Len returns the number of cached groups.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes returns the current accounted footprint.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}
