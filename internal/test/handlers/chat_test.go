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

	"pack-design-backend/internal/catalog"
	"pack-design-backend/internal/config"
	"pack-design-backend/internal/handlers"
	"pack-design-backend/internal/logger"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/storage"
	"pack-design-backend/internal/straive"
	"pack-design-backend/internal/workflow"
)

// newChatRouter wires a chat endpoint against a temp database and an
// unconfigured provider client, so every response is the deterministic one.
func newChatRouter(t *testing.T) (*gin.Engine, *storage.SessionStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewSessionStore(db)
	require.NoError(t, err)
	cat, err := catalog.New(db, filepath.Join(dir, "assets"), logger.NewNop())
	require.NoError(t, err)

	cfg := &config.Config{
		DBPath:           filepath.Join(dir, "test.db"),
		AssetsDir:        filepath.Join(dir, "assets"),
		SessionImagesDir: filepath.Join(dir, "session_images"),
	}
	client := straive.NewClient(cfg, logger.NewNop())

	router := gin.New()
	chatHandler := handlers.NewChatHandler(cfg, store, cat, client, logger.NewNop())
	router.POST("/api/chat", chatHandler.Chat)
	return router, store
}

func postChat(t *testing.T, router *gin.Engine, sessionID, message string) (*httptest.ResponseRecorder, models.ChatResponse) {
	t.Helper()
	body, err := json.Marshal(models.ChatRequest{SessionID: sessionID, UserMessage: message})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp models.ChatResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestChatRejectsInvalidBody(t *testing.T) {
	router, _ := newChatRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(`{"session_id":"s1"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request")
}

func TestChatIncompleteSpecAsksQuestions(t *testing.T) {
	router, _ := newChatRouter(t)

	w, resp := postChat(t, router, "s1", "I want a jar")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, resp.Step)
	assert.Contains(t, resp.AssistantMessage, "To continue, I need:")
	assert.NotEmpty(t, resp.RequiredQuestions)
	assert.False(t, resp.CanGenerateImage)
	assert.Contains(t, resp.SpecSummary, "Product Type: jar")
}

func TestChatFullIntentReachesBaselineDecision(t *testing.T) {
	router, _ := newChatRouter(t)

	w, resp := postChat(t, router, "s1", "I want a 50 ml PP jar with screw cap, minimal style")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 3, resp.Step)
	// The catalog is empty, so the decision is the new-concept branch. The
	// decision message is protocol output and must come back verbatim.
	assert.Equal(t, workflow.BaselineNewConceptMessage, resp.AssistantMessage)
	assert.True(t, resp.CanGenerateImage)
	assert.Empty(t, resp.RequiredQuestions)
}

func TestChatStatePersistsAcrossRequests(t *testing.T) {
	router, store := newChatRouter(t)

	_, resp := postChat(t, router, "s1", "I want a 50 ml PP jar with screw cap, minimal style")
	require.Equal(t, 3, resp.Step)

	_, resp = postChat(t, router, "s1", "ok proceed")
	assert.Equal(t, 4, resp.Step)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, 4, state.Step)
	assert.Len(t, state.History, 4)
}
