package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack-design-backend/internal/cache"
	"pack-design-backend/internal/handlers"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/storage"
)

func newSessionRouter(t *testing.T) (*gin.Engine, *storage.SessionStore, *cache.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewSessionStore(db)
	require.NoError(t, err)
	diskCache, err := cache.New(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	handler := handlers.NewSessionHandler(store, diskCache)
	router := gin.New()
	router.GET("/api/session/:session_id", handler.Get)
	router.POST("/api/session/clear", handler.Clear)
	router.POST("/api/baseline/skip", handler.SkipBaseline)
	router.POST("/api/cache/clear", handler.ClearCache)
	return router, store, diskCache
}

func TestSessionGetCreatesFreshState(t *testing.T) {
	router, _, _ := newSessionRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/session/new-session", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "new-session", resp.State.SessionID)
	assert.Equal(t, 1, resp.State.Step)
}

func TestSessionClearResetsState(t *testing.T) {
	router, store, _ := newSessionRouter(t)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	state.Step = 6
	state.LockPhase = models.LockConfirmed
	require.NoError(t, store.Save(state))

	body, _ := json.Marshal(models.SessionClearRequest{SessionID: "s1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/session/clear", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Session state cleared.")

	reloaded, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Step)
	assert.False(t, reloaded.Locked())
}

func TestBaselineSkipAdvancesToStepFour(t *testing.T) {
	router, store, _ := newSessionRouter(t)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	state.Step = 3
	state.BaselineAsset = &models.BaselineMatch{AssetRelPath: "jar.png"}
	require.NoError(t, store.Save(state))

	body, _ := json.Marshal(models.BaselineSkipRequest{SessionID: "s1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/baseline/skip", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.BaselineSkipResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Proceeding without baseline selection.", resp.Message)
	assert.Equal(t, 4, resp.Step)

	reloaded, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Nil(t, reloaded.BaselineAsset)
	assert.Equal(t, 4, reloaded.Step)
}

func TestBaselineSkipDoesNotRegressStep(t *testing.T) {
	router, store, _ := newSessionRouter(t)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	state.Step = 6
	require.NoError(t, store.Save(state))

	body, _ := json.Marshal(models.BaselineSkipRequest{SessionID: "s1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/baseline/skip", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	reloaded, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, 6, reloaded.Step)
}

func TestCacheClearReportsRemovedFiles(t *testing.T) {
	router, _, diskCache := newSessionRouter(t)
	require.NoError(t, diskCache.PutImage("concept", "k", "img", "data:image/png;base64,AAAA"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/cache/clear", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.CacheClearResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Cache cleared.", resp.Message)
	assert.Equal(t, 1, resp.RemovedFiles)
}
