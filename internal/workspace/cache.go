// Package workspace provides the run-scoped file content cache and the
// directory scanner used to describe the workspace to the planner.
package workspace

import (
	"sort"
	"sync"
)

// Cache maps workspace-relative paths to last-known full file content.
// An entry is created on first read or write of a path within a run and
// overwritten whole on every subsequent write; it is never a mix of old
// and new content.
//
// The baseline pipeline is sequential, so a single mutex is sufficient.
// Access is path-scoped so a concurrent extension only needs to move to
// per-path locking, not change the interface.
type Cache struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get returns the cached content for path and whether an entry exists.
func (c *Cache) Get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.entries[path]
	return content, ok
}

// Put stores content as the full last-known content of path.
func (c *Cache) Put(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = content
}

// Delete removes the entry for path, if any.
func (c *Cache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Paths returns the cached paths in sorted order.
func (c *Cache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
