package portal

import (
	"context"
	"sync"
	"time"
)

// State describes a collection cache. Loaded stays false until the first
// successful fetch; LastErr is the error of the most recent failed call.
type State struct {
	Loaded    bool      `json:"loaded"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetched_at"`
	LastErr   error     `json:"-"`
}

// Collection caches a whole table. Every refresh replaces the cached rows
// wholesale; a refresh that started before one that already applied is
// dropped so a slow response cannot bring back older rows.
type Collection[T any] struct {
	name  string
	fetch func(ctx context.Context) ([]T, error)

	mu        sync.RWMutex
	items     []T
	loaded    bool
	fetchedAt time.Time
	lastErr   error
	started   uint64
	applied   uint64
}

// NewCollection creates an empty cache that loads rows with fetch.
func NewCollection[T any](name string, fetch func(ctx context.Context) ([]T, error)) *Collection[T] {
	return &Collection[T]{name: name, fetch: fetch}
}

// Refresh re-reads the table. On error the cached rows are kept.
func (c *Collection[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.started++
	seq := c.started
	c.mu.Unlock()

	items, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		err = storeErr(c.name, "select", err)
		c.lastErr = err
		return err
	}
	if seq < c.applied {
		return nil
	}
	c.applied = seq
	c.items = items
	c.loaded = true
	c.fetchedAt = time.Now().UTC()
	c.lastErr = nil
	return nil
}

// All returns a copy of the cached rows.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Find returns the first cached row matching pred.
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if pred(it) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// State reports whether the cache is loaded and how the last call went.
func (c *Collection[T]) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{Loaded: c.loaded, Count: len(c.items), FetchedAt: c.fetchedAt, LastErr: c.lastErr}
}

func (c *Collection[T]) fail(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
