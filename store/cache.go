package store

import (
	"runtime"
	"sync"
	"weak"

	"github.com/google/uuid"
)

// assetCache is the per-asset-kind cache slot a Store keeps for
// SystemPrompt, Message, Conversation, and Agent. Postgres-backed stores
// use weakCache (entries vanish once nothing else holds the value,
// mirroring store.py's weakref.WeakValueDictionary — the DB remains the
// source of truth); MemoryStore uses strongCache (entries are the only
// copy that exists, so they must never be collected out from under it).
type assetCache[T any] interface {
	get(id uuid.UUID) (T, bool)
	put(id uuid.UUID, v T)
	delete(id uuid.UUID)
	all() []T
	clear()
}

type weakCache[T any] struct {
	mu sync.Mutex
	m  map[uuid.UUID]weak.Pointer[T]
}

func newWeakCache[T any]() *weakCache[T] {
	return &weakCache[T]{m: map[uuid.UUID]weak.Pointer[T]{}}
}

func (c *weakCache[T]) get(id uuid.UUID) (T, bool) {
	c.mu.Lock()
	wp, ok := c.m[id]
	c.mu.Unlock()
	if !ok {
		var zero T
		return zero, false
	}
	if v := wp.Value(); v != nil {
		return *v, true
	}
	var zero T
	return zero, false
}

func (c *weakCache[T]) put(id uuid.UUID, v T) {
	ptr := &v
	wp := weak.Make(ptr)
	c.mu.Lock()
	c.m[id] = wp
	c.mu.Unlock()
	runtime.AddCleanup(ptr, func(wp weak.Pointer[T]) {
		c.mu.Lock()
		if cur, ok := c.m[id]; ok && cur == wp {
			delete(c.m, id)
		}
		c.mu.Unlock()
	}, wp)
}

func (c *weakCache[T]) delete(id uuid.UUID) {
	c.mu.Lock()
	delete(c.m, id)
	c.mu.Unlock()
}

func (c *weakCache[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.m))
	for _, wp := range c.m {
		if v := wp.Value(); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func (c *weakCache[T]) clear() {
	c.mu.Lock()
	c.m = map[uuid.UUID]weak.Pointer[T]{}
	c.mu.Unlock()
}

// strongCache backs MemoryStore: there is no database to fall back to, so
// every cached value must survive for the lifetime of the store.
type strongCache[T any] struct {
	mu sync.RWMutex
	m  map[uuid.UUID]T
}

func newStrongCache[T any]() *strongCache[T] {
	return &strongCache[T]{m: map[uuid.UUID]T{}}
}

func (c *strongCache[T]) get(id uuid.UUID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[id]
	return v, ok
}

func (c *strongCache[T]) put(id uuid.UUID, v T) {
	c.mu.Lock()
	c.m[id] = v
	c.mu.Unlock()
}

func (c *strongCache[T]) delete(id uuid.UUID) {
	c.mu.Lock()
	delete(c.m, id)
	c.mu.Unlock()
}

func (c *strongCache[T]) all() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.m))
	for _, v := range c.m {
		out = append(out, v)
	}
	return out
}

func (c *strongCache[T]) clear() {
	c.mu.Lock()
	c.m = map[uuid.UUID]T{}
	c.mu.Unlock()
}
