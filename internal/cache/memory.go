package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is a concurrent-safe LRU of namespaces with TTL expiration.
type Memory struct {
	mu            sync.Mutex
	entries       map[string]*memoryEntry
	order         []string // front=oldest, back=newest
	maxNamespaces int
	ttl           time.Duration
	now           func() time.Time
	hits          atomic.Int64
	misses        atomic.Int64
}

type memoryEntry struct {
	fields    map[string][]byte
	createdAt time.Time
}

// NewMemory creates a Memory cache holding at most maxNamespaces namespaces,
// each expiring ttl after it was created.
func NewMemory(maxNamespaces int, ttl time.Duration) *Memory {
	if maxNamespaces <= 0 {
		maxNamespaces = 10000
	}
	return &Memory{
		entries:       make(map[string]*memoryEntry),
		maxNamespaces: maxNamespaces,
		ttl:           ttl,
		now:           time.Now,
	}
}

// Get implements Cache.
func (c *Memory) Get(_ context.Context, namespace, field string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[namespace]
	if ok && c.ttl > 0 && c.now().Sub(e.createdAt) > c.ttl {
		delete(c.entries, namespace)
		c.removeFromOrder(namespace)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	v, ok := e.fields[field]
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}

	c.removeFromOrder(namespace)
	c.order = append(c.order, namespace)
	c.hits.Add(1)
	return v, true, nil
}

// Set implements Cache. The namespace TTL starts at its first write.
func (c *Memory) Set(_ context.Context, namespace, field string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[namespace]; ok {
		e.fields[field] = value
		c.removeFromOrder(namespace)
		c.order = append(c.order, namespace)
		return nil
	}

	for len(c.entries) >= c.maxNamespaces && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[namespace] = &memoryEntry{
		fields:    map[string][]byte{field: value},
		createdAt: c.now(),
	}
	c.order = append(c.order, namespace)
	return nil
}

// Delete implements Cache.
func (c *Memory) Delete(_ context.Context, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, namespace)
	c.removeFromOrder(namespace)
	return nil
}

// Close implements Cache.
func (c *Memory) Close() error { return nil }

// Stats returns cache performance statistics.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Namespaces:    n,
		MaxNamespaces: c.maxNamespaces,
		Hits:          hits,
		Misses:        misses,
		HitRate:       rate,
	}
}

func (c *Memory) removeFromOrder(namespace string) {
	for i, k := range c.order {
		if k == namespace {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
