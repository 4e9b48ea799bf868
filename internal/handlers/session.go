package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pack-design-backend/internal/cache"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/storage"
)

type SessionHandler struct {
	store *storage.SessionStore
	cache *cache.Cache
}

func NewSessionHandler(store *storage.SessionStore, diskCache *cache.Cache) *SessionHandler {
	return &SessionHandler{store: store, cache: diskCache}
}

func (h *SessionHandler) Get(c *gin.Context) {
	state, err := h.store.GetOrCreate(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{State: state})
}

// Clear resets the session to a fresh step-1 state while keeping its id.
func (h *SessionHandler) Clear(c *gin.Context) {
	var req models.SessionClearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	state.Reset()
	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.SessionClearResponse{Message: "Session state cleared."})
}

// SkipBaseline proceeds without a baseline selection.
func (h *SessionHandler) SkipBaseline(c *gin.Context) {
	var req models.BaselineSkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	state.BaselineAsset = nil
	if state.Step < 4 {
		state.Step = 4
	}
	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.BaselineSkipResponse{Message: "Proceeding without baseline selection.", Step: state.Step})
}

// ClearCache removes every cached provider output and CAD run artifact.
func (h *SessionHandler) ClearCache(c *gin.Context) {
	removed, err := h.cache.ClearAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to clear cache", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.CacheClearResponse{Message: "Cache cleared.", RemovedFiles: removed})
}
