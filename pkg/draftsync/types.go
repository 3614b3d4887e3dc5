package draftsync

import (
	"context"
	"time"
)

// DraftProvider owns a draft slot: a value that may be absent. Absent means
// "no local edits pending", not "value is empty". The engine's default
// provider is a private in-memory cell; supplying an external provider lets
// several engine instances share one draft, so edits made through one are
// visible to all without a round-trip.
//
// Implementations must be safe for concurrent use. The engine delegates Get,
// Set, and Clear verbatim and keeps no local copy. No validation is
// performed on values: callers who rely on change detection must pass values
// that are structurally distinct from the previous draft.
type DraftProvider[T any] interface {
	// Get returns the current draft and whether one is set.
	Get() (T, bool)

	// Set replaces the draft.
	Set(value T)

	// Clear removes the draft, returning the slot to the absent state.
	Clear()
}

// Source is the remote pull collaborator: it owns the last-known
// authoritative value and the flags describing the fetch side. Satisfied by
// remotehttp.Client and filesource.Source; the engine falls back to a
// private in-memory mirror when none is supplied (write-only mode).
//
// The engine only reads Value, Loading, and Err, writes through SetValue
// during optimistic apply and rollback, and calls Refetch when a commit
// settles. Any polling or fetch retry policy belongs to the implementation.
type Source[T any] interface {
	// Value returns the authoritative value and whether one is known.
	Value() (T, bool)

	// SetValue overwrites the cached authoritative value. ok=false marks the
	// value unknown (used when rolling back an optimistic apply over an
	// initially empty cache).
	SetValue(value T, ok bool)

	// Loading reports whether the initial fetch is still outstanding.
	Loading() bool

	// Err returns the last fetch error, or nil.
	Err() error

	// Refetch asynchronously re-reads the authoritative value so it
	// converges to the remote's canonical state. Must not block.
	Refetch(ctx context.Context)
}

// CommitFunc is the remote push collaborator: it persists value and returns
// nil once the remote accepts it. The engine invokes it in its own goroutine
// with the engine's lifetime context; at most one invocation is in flight
// per engine instance.
type CommitFunc[T any] func(ctx context.Context, value T) error

// MergeFunc resolves a conflict between a remote-side value and a newer
// local draft. It must be pure. On commit failure the value that failed to
// save is passed as remote and the user's newer edits as local, so a correct
// merge preserves both.
type MergeFunc[T any] func(remote, local T) T

// Snapshot captures the authoritative value as it was when a commit began.
// It is carried through the commit explicitly and used only for rollback;
// it is discarded once the commit settles.
type Snapshot[T any] struct {
	Value T
	OK    bool
}

// Hooks are caller-supplied extension points around a commit attempt. The
// engine always runs its own internal steps (optimistic apply, rollback,
// merge, resynchronization) first; hooks are informational and cannot
// suppress the internal recovery. All hooks are invoked without the engine
// lock held.
type Hooks[T any] struct {
	// OnStart is invoked after the optimistic apply, before the transport
	// call, with the value being committed.
	OnStart func(value T)

	// OnError is invoked after rollback and draft conflict resolution when
	// the commit fails.
	OnError func(err error, value T, snap Snapshot[T])

	// OnSettled is invoked after every commit attempt, success or failure.
	OnSettled func(value T, err error)
}

// AutoSave configures debounced automatic commits. Wait is the debounce
// window after the most recent edit; MaxWait, if positive, forces a commit
// at least once per window of continuous editing.
type AutoSave struct {
	Wait    time.Duration
	MaxWait time.Duration
}

// NavigationGuard is the navigation-intercept collaborator: while
// registered, leaving the current view requires confirmation. The engine
// registers it while a draft is pending and AlertIfUnsavedChanges is set,
// and unregisters it on teardown. Register and Unregister are called with
// the engine lock held and must not call back into the engine.
type NavigationGuard interface {
	Register()
	Unregister()
}
