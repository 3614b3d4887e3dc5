package remotehttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogWriter adapts testing.T.Log to io.Writer for slog output.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type note struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func TestClient_FetchUpdatesCache(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(note{Title: "plan", Body: "v1"})
	}))
	defer srv.Close()

	c, err := NewClient[note](Config{
		FetchURL: srv.URL,
		Logger:   testLogger(t),
	})
	require.NoError(t, err)

	var updates atomic.Int64

	c.SetOnUpdate(func(note) { updates.Add(1) })

	_, known := c.Value()
	assert.False(t, known, "no value before first fetch")

	require.NoError(t, c.Fetch(context.Background()))

	got, known := c.Value()
	require.True(t, known)
	assert.Equal(t, note{Title: "plan", Body: "v1"}, got)
	assert.False(t, c.Loading())
	assert.NoError(t, c.Err())
	assert.Equal(t, int64(1), updates.Load())
}

func TestClient_FetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_ = json.NewEncoder(w).Encode(note{Title: "plan"})
	}))
	defer srv.Close()

	c, err := NewClient[note](Config{
		FetchURL:  srv.URL,
		RetryBase: time.Millisecond,
		Logger:    testLogger(t),
	})
	require.NoError(t, err)

	require.NoError(t, c.Fetch(context.Background()))
	assert.Equal(t, int64(3), hits.Load(), "two 503s then success")
}

func TestClient_FetchPermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient[note](Config{
		FetchURL:  srv.URL,
		RetryBase: time.Millisecond,
		Logger:    testLogger(t),
	})
	require.NoError(t, err)

	fetchErr := c.Fetch(context.Background())
	require.Error(t, fetchErr)

	var statusErr *StatusError
	require.ErrorAs(t, fetchErr, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, int64(1), hits.Load(), "4xx must not be retried")

	assert.Error(t, c.Err(), "fetch failure surfaces through Err")
	assert.False(t, c.Loading())
}

func TestClient_CommitPostsJSON(t *testing.T) {
	t.Parallel()

	var got note

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient[note](Config{
		CommitURL: srv.URL,
		Logger:    testLogger(t),
	})
	require.NoError(t, err)

	require.NoError(t, c.Commit(context.Background(), note{Title: "plan", Body: "v2"}))
	assert.Equal(t, note{Title: "plan", Body: "v2"}, got)
	assert.NoError(t, c.CommitErr())
	assert.False(t, c.CommitInFlight())
}

func TestClient_CommitPermanentErrorSurfaces(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "validation failed", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, err := NewClient[note](Config{
		CommitURL: srv.URL,
		RetryBase: time.Millisecond,
		Logger:    testLogger(t),
	})
	require.NoError(t, err)

	commitErr := c.Commit(context.Background(), note{Title: "bad"})
	require.Error(t, commitErr)

	var statusErr *StatusError
	require.ErrorAs(t, commitErr, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Code)
	assert.Equal(t, int64(1), hits.Load())
	assert.Error(t, c.CommitErr())
}

func TestClient_SetValueOverridesCache(t *testing.T) {
	t.Parallel()

	c, err := NewClient[note](Config{
		FetchURL: "http://unused.invalid",
		Logger:   testLogger(t),
	})
	require.NoError(t, err)

	// Optimistic apply path: the engine writes through without a fetch.
	c.SetValue(note{Title: "optimistic"}, true)

	got, known := c.Value()
	require.True(t, known)
	assert.Equal(t, note{Title: "optimistic"}, got)

	// Rollback to unknown.
	c.SetValue(note{}, false)

	_, known = c.Value()
	assert.False(t, known)
}

func TestClient_PollFetchesUntilCanceled(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(note{Title: "tick"})
	}))
	defer srv.Close()

	c, err := NewClient[note](Config{
		FetchURL: srv.URL,
		Logger:   testLogger(t),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		c.Poll(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return hits.Load() >= 2 },
		2*time.Second, time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not stop on context cancellation")
	}
}

func TestClient_SubscribeRefetchesOnNotification(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int64

	fetchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(note{Title: "fresh"})
	}))
	defer fetchSrv.Close()

	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		// Two change notifications, then hold the connection open.
		_ = conn.Write(r.Context(), websocket.MessageText, []byte("changed"))
		_ = conn.Write(r.Context(), websocket.MessageText, []byte("changed"))

		<-r.Context().Done()
	}))
	defer wsSrv.Close()

	c, err := NewClient[note](Config{
		FetchURL: fetchSrv.URL,
		Logger:   testLogger(t),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- c.Subscribe(ctx, "ws"+wsSrv.URL[len("http"):])
	}()

	require.Eventually(t, func() bool { return fetches.Load() >= 2 },
		2*time.Second, time.Millisecond)

	got, known := c.Value()
	require.True(t, known)
	assert.Equal(t, note{Title: "fresh"}, got)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not stop on context cancellation")
	}
}

func TestNewClient_RequiresAnEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewClient[note](Config{})
	require.Error(t, err)
}
