package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pack-design-backend/internal/catalog"
	"pack-design-backend/internal/config"
	"pack-design-backend/internal/logger"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/storage"
	"pack-design-backend/internal/straive"
	"pack-design-backend/internal/workflow"
)

type ChatHandler struct {
	cfg     *config.Config
	store   *storage.SessionStore
	catalog *catalog.Catalog
	client  *straive.Client
	log     *logger.Logger
}

func NewChatHandler(cfg *config.Config, store *storage.SessionStore, cat *catalog.Catalog, client *straive.Client, log *logger.Logger) *ChatHandler {
	return &ChatHandler{cfg: cfg, store: store, catalog: cat, client: client, log: log}
}

// turnMatcher adapts the catalog to the state machine's matcher contract,
// auto-indexing new assets first when configured. Index failures are logged
// and the existing metadata is used.
type turnMatcher struct {
	h      *ChatHandler
	c      *gin.Context
	apiKey string
}

func (m turnMatcher) FindMatches(spec *models.DesignSpec, minScore, limit int) ([]models.BaselineMatch, error) {
	if m.h.cfg.AutoIndexAssets {
		indexed, total, err := m.h.catalog.IndexAssets(m.c.Request.Context(), m.h.client, false, m.apiKey)
		if err != nil {
			m.h.log.Warn("auto asset indexing failed, continuing with existing metadata", "error", err)
		} else if indexed > 0 {
			m.h.log.Info("auto-indexed new assets before baseline search", "indexed", indexed, "total", total)
		}
	}
	return m.h.catalog.FindMatches(spec, minScore, limit)
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	apiKey := requestAPIKey(c)

	msg, flags, err := workflow.HandleTurn(state, req.UserMessage, turnMatcher{h: h, c: c, apiKey: apiKey})
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "baseline matching failed", Message: err.Error()})
		return
	}

	assistantMessage := msg.Text
	if msg.Kind.Polishable() && assistantMessage != "" {
		tail := state.History
		if len(tail) > 8 {
			tail = tail[len(tail)-8:]
		}
		polished, err := h.client.Chat(c.Request.Context(), workflow.SystemPrompt, tail,
			"Rewrite this response with concise senior packaging engineer tone while preserving exact meaning and workflow constraints: "+msg.Text,
			apiKey)
		if err != nil {
			h.log.Warn("chat polish failed, using deterministic response", "error", err)
		} else if strings.TrimSpace(polished) != "" {
			assistantMessage = strings.TrimSpace(polished)
			if len(state.History) > 0 && state.History[len(state.History)-1].Role == "assistant" {
				state.History[len(state.History)-1].Content = assistantMessage
			}
		}
	}

	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		AssistantMessage:  assistantMessage,
		Step:              state.Step,
		SpecSummary:       workflow.SpecSummary(&state.Spec),
		RequiredQuestions: flags.RequiredQuestions,
		CanGenerateImage:  flags.CanGenerateImage,
		CanIterateImage:   flags.CanIterateImage,
		CanLock:           flags.CanLock,
		CanGenerateCad:    flags.CanGenerateCad,
	})
}
