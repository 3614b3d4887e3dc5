package draftsync

import (
	"context"
	"sync"
)

// cell is the default in-memory DraftProvider, exclusively owned by one
// engine instance.
type cell[T any] struct {
	mu    sync.Mutex
	value T
	ok    bool
}

func (c *cell[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.value, c.ok
}

func (c *cell[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
	c.ok = true
}

func (c *cell[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	c.value = zero
	c.ok = false
}

// mirror is the write-only-mode Source: a locally tracked authoritative
// value with no fetch side. Loading and Err never report, so the status
// domain of a write-only engine omits "loading" entirely. Each engine
// instance gets its own mirror; instances are not kept consistent with each
// other in this mode.
type mirror[T any] struct {
	mu    sync.Mutex
	value T
	ok    bool
}

func (m *mirror[T]) Value() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.value, m.ok
}

func (m *mirror[T]) SetValue(value T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.value = value
	m.ok = ok
}

func (m *mirror[T]) Loading() bool { return false }

func (m *mirror[T]) Err() error { return nil }

func (m *mirror[T]) Refetch(context.Context) {}
