// Package cache provides a caller-owned cache of loaded tables. The
// cache is an explicit handle injected into the snapshot store's read
// path, never shared process state, so concurrent or test-isolated
// usage does not leak between owners.
package cache

import (
	"container/list"
	"sync"

	"github.com/tablo-db/tablo/internal/table"
)

const defaultMaxEntries = 32

// TableCache is a size-bounded LRU cache mapping snapshot names to
// loaded tables. Unlike the table engine itself the cache is safe for
// concurrent use: multiple readers may share one handle.
type TableCache struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List
	entries    map[string]*list.Element
}

type cacheEntry struct {
	name  string
	table *table.Table
}

// New creates a cache bounded to maxEntries tables. Non-positive
// bounds fall back to the default.
func New(maxEntries int) *TableCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &TableCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Get returns the cached table for a name, marking it most recently
// used. A miss returns ok=false.
func (c *TableCache) Get(name string) (*table.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).table, true
}

// Put stores a table under a name, evicting the least recently used
// entry when the cache is full.
func (c *TableCache) Put(name string, t *table.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[name]; ok {
		el.Value.(*cacheEntry).table = t
		c.order.MoveToFront(el)
		return
	}
	c.entries[name] = c.order.PushFront(&cacheEntry{name: name, table: t})
	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).name)
	}
}

// Invalidate drops one entry. Absent names are ignored.
func (c *TableCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[name]; ok {
		c.order.Remove(el)
		delete(c.entries, name)
	}
}

// Clear drops every entry.
func (c *TableCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Len returns the number of cached tables.
func (c *TableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
