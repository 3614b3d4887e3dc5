package draftstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"
)

// Provider adapts one key in a Store to the draftsync.DraftProvider
// contract: an in-memory draft slot with write-through persistence. The
// in-memory copy is authoritative for the engine; persistence failures are
// logged and do not disturb the running session (the provider interface is
// deliberately error-free, so a broken disk degrades to in-memory behavior
// rather than blocking edits).
//
// Several engine instances may share one Provider; mutation is synchronous
// under the provider's lock.
type Provider[T any] struct {
	store  *Store
	key    string
	logger *slog.Logger

	mu    sync.Mutex
	value T
	ok    bool
}

// NewProvider loads any persisted draft under key and returns a Provider
// bound to it. A corrupt payload is treated as no draft (logged, then
// overwritten by the next Set).
func NewProvider[T any](store *Store, key string, logger *slog.Logger) (*Provider[T], error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider[T]{
		store:  store,
		key:    key,
		logger: logger,
	}

	record, err := store.GetDraft(context.Background(), key)
	if errors.Is(err, ErrNotFound) {
		return p, nil
	}

	if err != nil {
		return nil, err
	}

	var value T
	if err := json.Unmarshal(record.Payload, &value); err != nil {
		logger.Warn("ignoring corrupt persisted draft",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		return p, nil
	}

	p.value = value
	p.ok = true

	return p, nil
}

// Get returns the current draft and whether one is set.
func (p *Provider[T]) Get() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.value, p.ok
}

// Set replaces the draft and persists it.
func (p *Provider[T]) Set(value T) {
	p.mu.Lock()
	p.value = value
	p.ok = true
	p.mu.Unlock()

	payload, err := json.Marshal(value)
	if err != nil {
		p.logger.Error("draft persistence skipped: encoding failed",
			slog.String("key", p.key),
			slog.String("error", err.Error()),
		)

		return
	}

	if err := p.store.PutDraft(context.Background(), p.key, payload); err != nil {
		p.logger.Error("draft persistence failed",
			slog.String("key", p.key),
			slog.String("error", err.Error()),
		)
	}
}

// Clear removes the draft and its persisted row.
func (p *Provider[T]) Clear() {
	p.mu.Lock()

	var zero T
	p.value = zero
	p.ok = false

	p.mu.Unlock()

	if err := p.store.DeleteDraft(context.Background(), p.key); err != nil {
		p.logger.Error("draft deletion failed",
			slog.String("key", p.key),
			slog.String("error", err.Error()),
		)
	}
}
