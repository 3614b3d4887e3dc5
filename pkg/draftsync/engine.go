package draftsync

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"

	"github.com/driftlock/draftsync/pkg/debounce"
)

// ErrNoCommitFunc is returned by New when Config.Commit is missing.
var ErrNoCommitFunc = errors.New("draftsync: Config.Commit is required")

// Config holds the options for New. Commit is the only required field.
type Config[T any] struct {
	// Commit is the remote push collaborator.
	Commit CommitFunc[T]

	// Source is the remote pull collaborator. Nil enables write-only mode:
	// the engine tracks its own in-memory authoritative mirror and the
	// "loading" status never occurs.
	Source Source[T]

	// Merge resolves conflicts between a remote-side value and a newer local
	// draft. When nil, the remote/failed side wins: commit failures restore
	// the failed value over newer edits (the documented lossy default), and
	// background refreshes never touch a defined draft.
	Merge MergeFunc[T]

	// AutoSave enables debounced automatic commits. Nil means manual save
	// only — no timer is created and scheduling is a no-op.
	AutoSave *AutoSave

	// Equal reports whether the draft matches the authoritative value, used
	// only for status derivation. Nil falls back to reflect.DeepEqual.
	Equal func(a, b T) bool

	// Draft is an externally owned draft provider shared between engine
	// instances. Nil gives the engine a private in-memory slot.
	Draft DraftProvider[T]

	// Guard intercepts navigation while unsaved edits exist. Only consulted
	// when AlertIfUnsavedChanges is set.
	Guard NavigationGuard

	// AlertIfUnsavedChanges registers Guard whenever a draft is pending.
	AlertIfUnsavedChanges bool

	// CommitsDisabled starts the engine with the commit gate closed: save
	// requests are queued (at most one) until SetMutateEnabled(true).
	CommitsDisabled bool

	// Hooks are caller extension points around each commit attempt.
	Hooks Hooks[T]

	// Context bounds the engine's background work (commits and refetches).
	// Nil means context.Background().
	Context context.Context

	// Logger for engine activity. Nil means slog.Default().
	Logger *slog.Logger
}

// Engine reconciles one draft against one authoritative remote value. All
// exported methods are safe for concurrent use. Failures never propagate as
// panics or returned errors: every failure resolves to a well-defined local
// state surfaced through Status and CommitErr.
type Engine[T any] struct {
	commit         CommitFunc[T]
	source         Source[T]
	merge          MergeFunc[T]
	equal          func(a, b T) bool
	hooks          Hooks[T]
	guard          NavigationGuard
	alertIfUnsaved bool
	logger         *slog.Logger
	ctx            context.Context

	// sched debounces autosave commit requests; nil when autosave is off.
	sched *debounce.Debouncer

	mu          sync.Mutex
	draft       DraftProvider[T]
	gateEnabled bool
	gatePending bool
	committing  bool
	queued      bool // save request deferred because a commit is in flight
	commitErr   error
	guardOn     bool
	closed      bool
}

// New validates cfg and creates an Engine. The engine owns no goroutines at
// rest; it spawns one per in-flight commit.
func New[T any](cfg *Config[T]) (*Engine[T], error) {
	if cfg.Commit == nil {
		return nil, ErrNoCommitFunc
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	source := cfg.Source
	if source == nil {
		source = &mirror[T]{}
	}

	draft := cfg.Draft
	if draft == nil {
		draft = &cell[T]{}
	}

	equal := cfg.Equal
	if equal == nil {
		equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}

	e := &Engine[T]{
		commit:         cfg.Commit,
		source:         source,
		merge:          cfg.Merge,
		equal:          equal,
		hooks:          cfg.Hooks,
		guard:          cfg.Guard,
		alertIfUnsaved: cfg.AlertIfUnsavedChanges,
		logger:         logger,
		ctx:            ctx,
		draft:          draft,
		gateEnabled:    !cfg.CommitsDisabled,
	}

	if cfg.AutoSave != nil {
		opts := []debounce.Option{}
		if cfg.AutoSave.MaxWait > 0 {
			opts = append(opts, debounce.WithMaxWait(cfg.AutoSave.MaxWait))
		}

		e.sched = debounce.New(e.scheduledSave, cfg.AutoSave.Wait, opts...)
	}

	return e, nil
}

// Draft returns the current draft value and whether one is set.
func (e *Engine[T]) Draft() (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.draft.Get()
}

// SetDraft records a local edit. With autosave enabled this arms (or
// re-arms) the debounced commit; edits made while a commit is in flight
// accumulate here and are picked up by the next commit cycle.
func (e *Engine[T]) SetDraft(value T) {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return
	}

	e.draft.Set(value)
	e.updateGuardLocked()

	sched := e.sched
	e.mu.Unlock()

	// The scheduler is armed only by edits, never by autosave being enabled
	// with an empty draft.
	if sched != nil {
		sched.Call()
	}
}

// ClearDraft discards any pending local edits. An already-armed autosave
// fire becomes a no-op because the draft is absent when it triggers.
func (e *Engine[T]) ClearDraft() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.draft.Clear()
	e.updateGuardLocked()
}

// Save cancels any scheduled autosave and requests a commit immediately.
// Calling Save with no draft set is a no-op. If the commit gate is closed
// the request is queued and replayed when the gate reopens; if a commit is
// already in flight the request is deferred to the next cycle. Failures are
// surfaced through Status and CommitErr, never returned.
func (e *Engine[T]) Save() {
	if e.sched != nil {
		e.sched.Stop()
	}

	e.mu.Lock()
	e.requestCommitLocked()
	e.mu.Unlock()
}

// scheduledSave is the debounce callback for autosave fires.
func (e *Engine[T]) scheduledSave() {
	e.mu.Lock()
	e.requestCommitLocked()
	e.mu.Unlock()
}

// SetMutateEnabled opens or closes the commit gate. Re-opening the gate with
// a queued request issues exactly one commit and clears the queue flag.
func (e *Engine[T]) SetMutateEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	was := e.gateEnabled
	e.gateEnabled = enabled

	if enabled && !was && e.gatePending {
		e.gatePending = false
		e.startCommitLocked()
	}
}

// ApplyRemote merges an authoritative value delivered outside of a commit
// (poll or refresh) into an in-progress draft. Without a merge function, or
// without a defined draft, it is a no-op: local edits always win over
// unmerged background updates, so unsaved input is never silently discarded.
func (e *Engine[T]) ApplyRemote(value T) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.merge == nil {
		return
	}

	current, ok := e.draft.Get()
	if !ok {
		return
	}

	e.draft.Set(e.merge(value, current))
}

// Status derives the current save status. Never cached.
func (e *Engine[T]) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return resolveStatus(statusInput{
		loading:    e.source.Loading(),
		committing: e.committing,
		commitErr:  e.commitErr != nil,
		fetchErr:   e.source.Err() != nil,
		draftClean: e.draftCleanLocked(),
	})
}

// draftCleanLocked reports whether there is nothing to save: no draft, or a
// draft equal to the authoritative value.
func (e *Engine[T]) draftCleanLocked() bool {
	draft, ok := e.draft.Get()
	if !ok {
		return true
	}

	authoritative, known := e.source.Value()

	return known && e.equal(draft, authoritative)
}

// CommitInFlight reports whether a commit is currently outstanding.
func (e *Engine[T]) CommitInFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.committing
}

// CommitErr returns the error from the most recent failed commit, or nil.
// It is cleared when the next commit starts.
func (e *Engine[T]) CommitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.commitErr
}

// Close tears the engine down: the autosave timer is canceled (a commit that
// has not fired yet will not fire afterward) and the navigation guard is
// unregistered. An already-in-flight remote commit is not retractable and
// runs to completion, but its settle no longer starts follow-up commits.
func (e *Engine[T]) Close() error {
	if e.sched != nil {
		e.sched.Stop()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true

	if e.guard != nil && e.guardOn {
		e.guard.Unregister()
		e.guardOn = false
	}

	return nil
}

// updateGuardLocked re-evaluates the navigation guard against the current
// draft-definedness and the alert flag. Called on every transition that can
// change either.
func (e *Engine[T]) updateGuardLocked() {
	if e.guard == nil {
		return
	}

	_, dirty := e.draft.Get()
	want := e.alertIfUnsaved && dirty && !e.closed

	if want == e.guardOn {
		return
	}

	if want {
		e.guard.Register()
	} else {
		e.guard.Unregister()
	}

	e.guardOn = want
}

// requestCommitLocked routes a save request through the gate: forwarded when
// the gate is open, queued (at most once) when closed.
func (e *Engine[T]) requestCommitLocked() {
	if e.closed {
		return
	}

	if !e.gateEnabled {
		e.gatePending = true
		return
	}

	e.startCommitLocked()
}
