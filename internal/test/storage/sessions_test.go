package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack-design-backend/internal/models"
	"pack-design-backend/internal/storage"
)

func newTestStore(t *testing.T) *storage.SessionStore {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewSessionStore(db)
	require.NoError(t, err)
	return store
}

func TestGetOrCreateReturnsFreshState(t *testing.T) {
	store := newTestStore(t)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", state.SessionID)
	assert.Equal(t, 1, state.Step)
	assert.Equal(t, models.BaselinePending, state.BaselinePhase)
	assert.Equal(t, models.LockNotAsked, state.LockPhase)
	assert.NotNil(t, state.Spec.Dimensions)
	assert.Empty(t, state.Images)
	assert.Empty(t, state.History)
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)

	state.Step = 5
	state.Spec.ProductType = "jar"
	state.Spec.Dimensions["outer_diameter_mm"] = 60
	state.LockPhase = models.LockAsked
	state.Images = append(state.Images, models.ImageVersion{ImageID: "img-1", Version: 1, Prompt: "concept"})
	state.History = append(state.History, models.ChatMessage{Role: "user", Content: "hello"})
	require.NoError(t, store.Save(state))

	loaded, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Step)
	assert.Equal(t, "jar", loaded.Spec.ProductType)
	assert.Equal(t, 60.0, loaded.Spec.Dimensions["outer_diameter_mm"])
	assert.Equal(t, models.LockAsked, loaded.LockPhase)
	require.Len(t, loaded.Images, 1)
	assert.Equal(t, "img-1", loaded.Images[0].ImageID)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "hello", loaded.History[0].Content)
}

func TestSaveIsUpsert(t *testing.T) {
	store := newTestStore(t)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	state.Step = 3
	require.NoError(t, store.Save(state))
	state.Step = 6
	require.NoError(t, store.Save(state))

	loaded, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.Step)
}

func TestSessionsAreIsolated(t *testing.T) {
	store := newTestStore(t)

	a, err := store.GetOrCreate("a")
	require.NoError(t, err)
	a.Step = 7
	require.NoError(t, store.Save(a))

	b, err := store.GetOrCreate("b")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Step)
}

func TestResetKeepsSessionID(t *testing.T) {
	store := newTestStore(t)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	state.Step = 6
	state.LockPhase = models.LockConfirmed
	state.CadCode = "import cadquery as cq"
	require.NoError(t, store.Save(state))

	state.Reset()
	require.NoError(t, store.Save(state))

	loaded, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", loaded.SessionID)
	assert.Equal(t, 1, loaded.Step)
	assert.False(t, loaded.Locked())
	assert.Empty(t, loaded.CadCode)
}
