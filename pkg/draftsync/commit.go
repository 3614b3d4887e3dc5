package draftsync

import (
	"log/slog"

	"github.com/google/uuid"
)

// startCommitLocked runs the Idle → Committing transition. In order: the
// prior authoritative value is snapshotted, the draft is applied
// optimistically so readers see the save before the network returns, the
// draft slot is cleared, and the transport call is dispatched. A trigger
// with no draft set is a no-op; a trigger while a commit is in flight is
// deferred to the next cycle rather than spawning a parallel one.
func (e *Engine[T]) startCommitLocked() {
	if e.closed {
		return
	}

	value, ok := e.draft.Get()
	if !ok {
		return
	}

	if e.committing {
		e.queued = true
		return
	}

	prev, prevOK := e.source.Value()
	snap := Snapshot[T]{Value: prev, OK: prevOK}

	e.source.SetValue(value, true)
	e.draft.Clear()
	e.updateGuardLocked()

	e.committing = true
	e.commitErr = nil

	attemptID := uuid.New().String()

	e.logger.Info("commit starting",
		slog.String("attempt_id", attemptID),
		slog.Bool("had_authoritative", prevOK),
	)

	go e.runCommit(attemptID, value, snap)
}

// runCommit invokes the transport and settles. Runs in its own goroutine;
// exactly one exists per engine while a commit is in flight.
func (e *Engine[T]) runCommit(attemptID string, value T, snap Snapshot[T]) {
	if e.hooks.OnStart != nil {
		e.hooks.OnStart(value)
	}

	err := e.commit(e.ctx, value)

	e.settleCommit(attemptID, value, snap, err)
}

// settleCommit runs the Committing → Settled transition. On failure the
// authoritative value is rolled back to the snapshot and the draft is
// resolved against edits made during the in-flight window, using the draft's
// value at the moment the failure is observed:
//
//   - no edits happened meanwhile: the failed value is restored so the user
//     can retry or keep editing it;
//   - edits happened and a merge function exists: merge(failed, current)
//     preserves both;
//   - edits happened and no merge function exists: the failed value
//     overwrites them (the documented lossy default).
//
// On both outcomes a resynchronization is requested from the source so the
// cache converges to the remote's canonical post-write state. Internal steps
// always complete before caller hooks run.
func (e *Engine[T]) settleCommit(attemptID string, value T, snap Snapshot[T], err error) {
	e.mu.Lock()

	e.committing = false

	if err != nil {
		e.commitErr = err
		e.source.SetValue(snap.Value, snap.OK)

		current, ok := e.draft.Get()

		switch {
		case !ok:
			e.draft.Set(value)
		case e.merge != nil:
			e.draft.Set(e.merge(value, current))
		default:
			e.draft.Set(value)
		}

		e.updateGuardLocked()

		e.logger.Warn("commit failed, rolled back",
			slog.String("attempt_id", attemptID),
			slog.Bool("merged_concurrent_edits", ok && e.merge != nil),
			slog.String("error", err.Error()),
		)
	} else {
		e.logger.Info("commit settled",
			slog.String("attempt_id", attemptID),
		)
	}

	queued := e.queued
	e.queued = false
	closed := e.closed

	e.mu.Unlock()

	e.source.Refetch(e.ctx)

	if err != nil && e.hooks.OnError != nil {
		e.hooks.OnError(err, value, snap)
	}

	if e.hooks.OnSettled != nil {
		e.hooks.OnSettled(value, err)
	}

	// Replay a save request that arrived while this commit was in flight.
	// Edits accumulated in the draft during the window are picked up here.
	if queued && !closed {
		e.mu.Lock()
		e.requestCommitLocked()
		e.mu.Unlock()
	}
}
