package vulkan

import (
	"sync"
	"sync/atomic"
)

// handleCounter hands out the opaque handles the engine sees. Every table of
// a backend shares one counter so a handle is never valid in two tables.
type handleCounter struct {
	next atomic.Uint64
}

func (c *handleCounter) take() uint64 {
	return c.next.Add(1)
}

/**
 * @brief Maps engine handles of one kind to the Vulkan objects behind them.
 */
type handleTable[K ~uint64, V any] struct {
	mu      sync.RWMutex
	counter *handleCounter
	items   map[K]V
}

func newHandleTable[K ~uint64, V any](counter *handleCounter) *handleTable[K, V] {
	return &handleTable[K, V]{
		counter: counter,
		items:   make(map[K]V),
	}
}

func (t *handleTable[K, V]) insert(value V) K {
	key := K(t.counter.take())
	t.mu.Lock()
	t.items[key] = value
	t.mu.Unlock()
	return key
}

func (t *handleTable[K, V]) get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[key]
	return v, ok
}

// remove deletes the entry and returns what it held.
func (t *handleTable[K, V]) remove(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[key]
	if ok {
		delete(t.items, key)
	}
	return v, ok
}

// drain empties the table, returning every value it held.
func (t *handleTable[K, V]) drain() []V {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]V, 0, len(t.items))
	for k, v := range t.items {
		out = append(out, v)
		delete(t.items, k)
	}
	return out
}

func (t *handleTable[K, V]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
