package filesource

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

type settings struct {
	Theme string `json:"theme"`
	Zoom  int    `json:"zoom"`
}

func writeJSON(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

func TestNew_LoadsExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	writeJSON(t, path, `{"theme":"dark","zoom":2}`)

	src, err := New[settings](Config{Path: path, Logger: testLogger(t)})
	require.NoError(t, err)

	value, ok := src.Value()
	require.True(t, ok)
	assert.Equal(t, settings{Theme: "dark", Zoom: 2}, value)
	assert.False(t, src.Loading())
	assert.NoError(t, src.Err())
}

func TestNew_MissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")

	src, err := New[settings](Config{Path: path, Logger: testLogger(t)})
	require.NoError(t, err)

	_, ok := src.Value()
	assert.False(t, ok)
	assert.NoError(t, src.Err())
}

func TestNew_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := New[settings](Config{})
	require.Error(t, err)
}

func TestSource_CorruptFileSurfacesError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	writeJSON(t, path, `{broken`)

	src, err := New[settings](Config{Path: path, Logger: testLogger(t)})
	require.NoError(t, err)

	assert.Error(t, src.Err())

	// A good write followed by Refetch clears the error.
	writeJSON(t, path, `{"theme":"light"}`)
	src.Refetch(context.Background())

	assert.NoError(t, src.Err())

	value, ok := src.Value()
	require.True(t, ok)
	assert.Equal(t, "light", value.Theme)
}

func TestSource_SetValueOverridesCache(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	writeJSON(t, path, `{"theme":"dark"}`)

	src, err := New[settings](Config{Path: path, Logger: testLogger(t)})
	require.NoError(t, err)

	src.SetValue(settings{Theme: "override"}, true)

	value, ok := src.Value()
	require.True(t, ok)
	assert.Equal(t, "override", value.Theme)

	// Refetch restores the on-disk value.
	src.Refetch(context.Background())

	value, ok = src.Value()
	require.True(t, ok)
	assert.Equal(t, "dark", value.Theme)
}

func TestSource_WatchReloadsOnWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	writeJSON(t, path, `{"theme":"dark"}`)

	src, err := New[settings](Config{
		Path:       path,
		ReloadWait: 20 * time.Millisecond,
		Logger:     testLogger(t),
	})
	require.NoError(t, err)

	updates := make(chan settings, 4)
	src.SetOnUpdate(func(v settings) { updates <- v })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	writeJSON(t, path, `{"theme":"light","zoom":3}`)

	select {
	case v := <-updates:
		assert.Equal(t, settings{Theme: "light", Zoom: 3}, v)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Watch to return")
	}
}

func TestSource_WatchPicksUpAtomicSave(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	writeJSON(t, path, `{"theme":"dark"}`)

	src, err := New[settings](Config{
		Path:       path,
		ReloadWait: 20 * time.Millisecond,
		Logger:     testLogger(t),
	})
	require.NoError(t, err)

	updates := make(chan settings, 4)
	src.SetOnUpdate(func(v settings) { updates <- v })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = src.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)

	// Editor-style atomic save: write a temp file, rename over the target.
	tmp := filepath.Join(dir, "settings.json.tmp")
	writeJSON(t, tmp, `{"theme":"renamed"}`)
	require.NoError(t, os.Rename(tmp, path))

	select {
	case v := <-updates:
		assert.Equal(t, "renamed", v.Theme)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload after rename")
	}
}
