package schema

import "sync"

// Cache memoizes soup metadata by name. It is owned by a store handle and
// dropped when the handle is reset.
type Cache struct {
	mu    sync.RWMutex
	soups map[string]Soup
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{soups: make(map[string]Soup)}
}

// Get returns a copy of the cached soup.
func (c *Cache) Get(name string) (Soup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.soups[name]
	if !ok {
		return Soup{}, false
	}
	return s.Clone(), true
}

// Put caches a copy of s under s.Name.
func (c *Cache) Put(s Soup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.soups[s.Name] = s.Clone()
}

// Invalidate forgets one soup.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.soups, name)
}

// Reset forgets every soup.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.soups)
}

// Len returns the number of cached soups.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.soups)
}
