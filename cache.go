package density

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

const defaultCacheCapacity = 8

// ModelCache is an LRU cache of neighborhood models keyed by model id, so a
// model referenced by several potential vectors is decoded only once.
type ModelCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*NeighborhoodModel
	lru     []uuid.UUID // oldest first for eviction
	maxSize int
}

// NewModelCache returns a cache holding at most maxSize models. maxSize <= 0
// selects the default of 8.
func NewModelCache(maxSize int) *ModelCache {
	if maxSize <= 0 {
		maxSize = defaultCacheCapacity
	}
	return &ModelCache{
		entries: make(map[uuid.UUID]*NeighborhoodModel, maxSize),
		lru:     make([]uuid.UUID, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get returns the model with the given id, calling load on a miss. Errors
// from load are returned as is and nothing is cached.
func (c *ModelCache) Get(id uuid.UUID, load func() (*NeighborhoodModel, error)) (*NeighborhoodModel, error) {
	c.mu.Lock()
	if m, ok := c.entries[id]; ok {
		c.touch(id)
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	m, err := load()
	if err != nil {
		return nil, err
	}
	c.Put(m)
	return m, nil
}

// Put adds m under its id, evicting the least recently used model if the
// cache is full.
func (c *ModelCache) Put(m *NeighborhoodModel) {
	id := m.ID()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		c.entries[id] = m
		c.touch(id)
		return
	}
	for len(c.lru) >= c.maxSize {
		delete(c.entries, c.lru[0])
		c.lru = c.lru[1:]
	}
	c.entries[id] = m
	c.lru = append(c.lru, id)
}

// Remove drops the model with the given id.
func (c *ModelCache) Remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	if i := slices.Index(c.lru, id); i >= 0 {
		c.lru = slices.Delete(c.lru, i, i+1)
	}
}

// Len returns the number of cached models.
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// touch marks id as most recently used. c.mu must be held.
func (c *ModelCache) touch(id uuid.UUID) {
	if i := slices.Index(c.lru, id); i >= 0 {
		c.lru = append(slices.Delete(c.lru, i, i+1), id)
	}
}
