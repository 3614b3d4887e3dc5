package draftstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noteDraft struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func TestProvider_StartsEmpty(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	provider, err := NewProvider[noteDraft](store, "note-1", testLogger(t))
	require.NoError(t, err)

	_, ok := provider.Get()
	assert.False(t, ok)
}

func TestProvider_SetWritesThrough(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	provider, err := NewProvider[noteDraft](store, "note-1", testLogger(t))
	require.NoError(t, err)

	provider.Set(noteDraft{Title: "t", Body: "b"})

	value, ok := provider.Get()
	require.True(t, ok)
	assert.Equal(t, noteDraft{Title: "t", Body: "b"}, value)

	record, err := store.GetDraft(context.Background(), "note-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"t","body":"b"}`, string(record.Payload))
}

func TestProvider_ClearRemovesRow(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	provider, err := NewProvider[noteDraft](store, "note-1", testLogger(t))
	require.NoError(t, err)

	provider.Set(noteDraft{Body: "b"})
	provider.Clear()

	_, ok := provider.Get()
	assert.False(t, ok)

	_, err = store.GetDraft(context.Background(), "note-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProvider_LoadsPersistedDraft(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	first, err := NewProvider[noteDraft](store, "note-1", testLogger(t))
	require.NoError(t, err)
	first.Set(noteDraft{Title: "kept"})

	// A fresh provider over the same key sees the persisted draft.
	second, err := NewProvider[noteDraft](store, "note-1", testLogger(t))
	require.NoError(t, err)

	value, ok := second.Get()
	require.True(t, ok)
	assert.Equal(t, "kept", value.Title)
}

func TestProvider_CorruptPayloadTreatedAsAbsent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutDraft(ctx, "note-1", []byte(`{not json`)))

	provider, err := NewProvider[noteDraft](store, "note-1", testLogger(t))
	require.NoError(t, err)

	_, ok := provider.Get()
	assert.False(t, ok)

	// The next Set overwrites the bad row.
	provider.Set(noteDraft{Body: "fixed"})

	record, err := store.GetDraft(ctx, "note-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"","body":"fixed"}`, string(record.Payload))
}

func TestProvider_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	a, err := NewProvider[noteDraft](store, "note-a", testLogger(t))
	require.NoError(t, err)
	b, err := NewProvider[noteDraft](store, "note-b", testLogger(t))
	require.NoError(t, err)

	a.Set(noteDraft{Body: "a"})

	_, ok := b.Get()
	assert.False(t, ok)
}
