// Package remotehttp provides JSON-over-HTTP implementations of the
// draftsync remote collaborators: a pull side that caches the authoritative
// value behind GET, and a push side that persists values with POST. Retry
// with exponential backoff lives here, not in the engine — transport policy
// belongs to the collaborator.
package remotehttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

// Defaults for retry policy and request timeouts.
const (
	defaultMaxRetries = 3
	defaultRetryBase  = 250 * time.Millisecond
	userAgent         = "draftsync/0.1"
)

// ErrNoFetchURL is returned by Fetch and Refetch when the client was built
// without a fetch endpoint (push-only configuration).
var ErrNoFetchURL = errors.New("remotehttp: no fetch URL configured")

// StatusError reports a non-2xx response that was not retried away.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remotehttp: unexpected status %d: %s", e.Code, e.Body)
}

// Config holds the options for NewClient. At least one of FetchURL and
// CommitURL must be set.
type Config struct {
	FetchURL   string        // GET endpoint returning the authoritative value as JSON
	CommitURL  string        // POST endpoint accepting a value as JSON
	HTTPClient *http.Client  // nil → http.DefaultClient
	MaxRetries uint64        // retries per request on transient failures; 0 → 3
	RetryBase  time.Duration // base backoff for exponential retry; 0 → 250ms
	Logger     *slog.Logger  // nil → slog.Default()
}

// Client is a remote collaborator pair over HTTP. It satisfies
// draftsync.Source for the pull side; its Commit method satisfies
// draftsync.CommitFunc for the push side. All methods are safe for
// concurrent use.
type Client[T any] struct {
	fetchURL   string
	commitURL  string
	hc         *http.Client
	maxRetries uint64
	retryBase  time.Duration
	logger     *slog.Logger
	group      singleflight.Group

	mu              sync.Mutex
	value           T
	ok              bool
	loading         bool
	err             error
	onUpdate        func(T)
	commitsInFlight int
	commitErr       error
}

// NewClient creates a Client. The type parameter is the value type
// exchanged with the remote.
func NewClient[T any](cfg Config) (*Client[T], error) {
	if cfg.FetchURL == "" && cfg.CommitURL == "" {
		return nil, errors.New("remotehttp: at least one of FetchURL and CommitURL is required")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	retryBase := cfg.RetryBase
	if retryBase == 0 {
		retryBase = defaultRetryBase
	}

	return &Client[T]{
		fetchURL:   cfg.FetchURL,
		commitURL:  cfg.CommitURL,
		hc:         hc,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		logger:     logger,
	}, nil
}

// SetOnUpdate installs a callback invoked (without the client lock held)
// whenever a fetch delivers a new authoritative value. Wire it to
// Engine.ApplyRemote to merge background refreshes into an in-progress
// draft. Must be called before the first fetch.
func (c *Client[T]) SetOnUpdate(fn func(value T)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onUpdate = fn
}

// Value returns the cached authoritative value and whether one is known.
func (c *Client[T]) Value() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.value, c.ok
}

// SetValue overwrites the cached authoritative value. The engine writes
// through here during optimistic apply and rollback.
func (c *Client[T]) SetValue(value T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
	c.ok = ok
}

// Loading reports whether the initial fetch is still outstanding.
func (c *Client[T]) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loading
}

// Err returns the last fetch error, or nil.
func (c *Client[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// Refetch asynchronously re-reads the authoritative value. Errors surface
// through Err; concurrent refetches are deduplicated.
func (c *Client[T]) Refetch(ctx context.Context) {
	if c.fetchURL == "" {
		return
	}

	go func() {
		if err := c.Fetch(ctx); err != nil {
			c.logger.Warn("refetch failed",
				slog.String("url", c.fetchURL),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Fetch synchronously reads the authoritative value from the fetch endpoint
// and updates the cache. Concurrent fetches collapse into one request.
func (c *Client[T]) Fetch(ctx context.Context) error {
	if c.fetchURL == "" {
		return ErrNoFetchURL
	}

	c.mu.Lock()
	if !c.ok {
		c.loading = true
	}
	c.mu.Unlock()

	result, err, _ := c.group.Do("fetch", func() (any, error) {
		return c.doFetch(ctx)
	})

	c.mu.Lock()
	c.loading = false

	if err != nil {
		c.err = err
		c.mu.Unlock()

		return err
	}

	value := result.(T)
	c.value = value
	c.ok = true
	c.err = nil
	onUpdate := c.onUpdate
	c.mu.Unlock()

	if onUpdate != nil {
		onUpdate(value)
	}

	return nil
}

// doFetch performs the GET with retry on transient failures.
func (c *Client[T]) doFetch(ctx context.Context) (T, error) {
	var out T

	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fetchURL, nil)
		if err != nil {
			return fmt.Errorf("remotehttp: creating fetch request: %w", err)
		}

		req.Header.Set("User-Agent", userAgent)

		resp, err := c.hc.Do(req)
		if err != nil {
			// Network errors are retryable; context cancellation is not.
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("remotehttp: decoding fetch response: %w", err)
		}

		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return out, nil
}

// Commit persists value to the commit endpoint. It satisfies
// draftsync.CommitFunc. Transient failures are retried with backoff before
// the error is reported to the engine.
func (c *Client[T]) Commit(ctx context.Context, value T) error {
	if c.commitURL == "" {
		return errors.New("remotehttp: no commit URL configured")
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("remotehttp: encoding commit payload: %w", err)
	}

	c.mu.Lock()
	c.commitsInFlight++
	c.mu.Unlock()

	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(
			ctx, http.MethodPost, c.commitURL, bytes.NewReader(payload),
		)
		if reqErr != nil {
			return fmt.Errorf("remotehttp: creating commit request: %w", reqErr)
		}

		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.hc.Do(req)
		if doErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return retry.RetryableError(doErr)
		}
		defer resp.Body.Close()

		return checkStatus(resp)
	})

	c.mu.Lock()
	c.commitsInFlight--
	c.commitErr = err
	c.mu.Unlock()

	return err
}

// CommitInFlight reports whether any commit request is outstanding.
func (c *Client[T]) CommitInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commitsInFlight > 0
}

// CommitErr returns the error from the most recent commit, or nil.
func (c *Client[T]) CommitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commitErr
}

// Poll fetches at the given interval until ctx is canceled. Fetch failures
// are logged and the loop continues; the collaborator owns its own retry
// policy.
func (c *Client[T]) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Fetch(ctx); err != nil {
				c.logger.Warn("poll fetch failed",
					slog.String("url", c.fetchURL),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// backoff returns the retry policy for one logical request.
func (c *Client[T]) backoff() retry.Backoff {
	return retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
}

// checkStatus classifies a response: 2xx passes, 5xx and 429 are retryable,
// everything else is a permanent StatusError. The body is read for the error
// message and always drained so the connection can be reused.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	statusErr := &StatusError{Code: resp.StatusCode, Body: string(body)}

	if resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusTooManyRequests {
		return retry.RetryableError(statusErr)
	}

	return statusErr
}
