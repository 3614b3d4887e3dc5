// Package filesource provides an authoritative-value source backed by a
// JSON file on disk. The file is typically maintained by another process
// (an exporter, another tool's save file); this package watches it and
// republishes decoded values so an engine can merge concurrent edits.
package filesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"

	"github.com/driftlock/draftsync/pkg/debounce"
)

const (
	defaultReloadWait = 100 * time.Millisecond

	watchErrInitBackoff = 100 * time.Millisecond
	watchErrMaxBackoff  = 10 * time.Second
	watchErrBackoffMult = 2
)

// Config configures a file-backed source.
type Config struct {
	// Path is the JSON file holding the authoritative value. Required.
	Path string

	// ReloadWait coalesces bursts of filesystem events before reloading.
	// Editors and atomic-save tools emit several events per save.
	// Defaults to 100ms.
	ReloadWait time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Source watches a JSON file and exposes its decoded contents. It satisfies
// the draftsync.Source contract: Value/SetValue/Loading/Err plus Refetch.
type Source[T any] struct {
	path   string
	logger *slog.Logger

	reload *debounce.Debouncer

	mu       sync.Mutex
	value    T
	ok       bool
	loading  bool
	err      error
	onUpdate func(T)
}

// New creates a source and performs the initial load. A missing file is not
// an error; the source simply has no value until the file appears.
func New[T any](cfg Config) (*Source[T], error) {
	if cfg.Path == "" {
		return nil, errors.New("filesource: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wait := cfg.ReloadWait
	if wait <= 0 {
		wait = defaultReloadWait
	}

	s := &Source[T]{
		path:   cfg.Path,
		logger: logger,
	}
	s.reload = debounce.New(s.load, wait)

	s.load()

	return s, nil
}

// SetOnUpdate registers a callback invoked after each successful reload with
// the freshly decoded value. Used to feed the engine's remote-merge path.
func (s *Source[T]) SetOnUpdate(fn func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onUpdate = fn
}

// Value returns the last decoded value and whether one exists.
func (s *Source[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.value, s.ok
}

// SetValue overrides the cached value. The engine calls this for its
// optimistic apply; the file itself is not written (the file's owner is the
// other process).
func (s *Source[T]) SetValue(value T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = value
	s.ok = ok
}

// Loading reports whether a reload is underway with no value cached yet.
func (s *Source[T]) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

// Err returns the most recent load error, cleared by a successful load.
func (s *Source[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Refetch reloads the file synchronously.
func (s *Source[T]) Refetch(_ context.Context) {
	s.load()
}

// load reads and decodes the file, then notifies the update callback.
func (s *Source[T]) load() {
	s.mu.Lock()
	if !s.ok {
		s.loading = true
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		// Not created yet. Keep whatever value we had.
		s.mu.Lock()
		s.loading = false
		s.err = nil
		s.mu.Unlock()

		return
	}

	if err != nil {
		s.setLoadError(fmt.Errorf("filesource: reading %s: %w", s.path, err))
		return
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		s.setLoadError(fmt.Errorf("filesource: decoding %s: %w", s.path, err))
		return
	}

	s.mu.Lock()
	s.value = value
	s.ok = true
	s.loading = false
	s.err = nil
	fn := s.onUpdate
	s.mu.Unlock()

	s.logger.Debug("file source reloaded", slog.String("path", s.path))

	if fn != nil {
		fn(value)
	}
}

func (s *Source[T]) setLoadError(err error) {
	s.mu.Lock()
	s.loading = false
	s.err = err
	s.mu.Unlock()

	s.logger.Warn("file source load failed", slog.String("error", err.Error()))
}

// Watch runs until ctx is canceled, reloading the file when it changes. The
// watch is registered on the parent directory so atomic saves (write temp,
// rename over target) are observed as Create events on the target path.
func (s *Source[T]) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filesource: creating watcher: %w", err)
	}
	defer watcher.Close()
	defer s.reload.Stop()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("filesource: watching %s: %w", dir, err)
	}

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			s.handleFsEvent(event)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			// Exponential backoff prevents a tight loop under sustained
			// errors (e.g., kernel buffer overflow).
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errBackoff):
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}
		}
	}
}

// handleFsEvent schedules a debounced reload for events on the watched file.
func (s *Source[T]) handleFsEvent(event fsnotify.Event) {
	// Ignore chmod events. Mode changes don't alter contents.
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if filepath.Clean(event.Name) != filepath.Clean(s.path) {
		return
	}

	s.logger.Debug("file source change detected",
		slog.String("path", s.path),
		slog.String("op", event.Op.String()),
	)

	s.reload.Call()
}
