package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pack-design-backend/internal/logger"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/pdfbrief"
	"pack-design-backend/internal/storage"
	"pack-design-backend/internal/straive"
	"pack-design-backend/internal/workflow"
)

const maxBriefSize = 12 * 1024 * 1024

type BriefHandler struct {
	store  *storage.SessionStore
	client *straive.Client
	log    *logger.Logger
}

func NewBriefHandler(store *storage.SessionStore, client *straive.Client, log *logger.Logger) *BriefHandler {
	return &BriefHandler{store: store, client: client, log: log}
}

// Upload ingests a marketing brief PDF: deterministic extraction first, then
// the LLM extraction overlaid on top. Resets any prior baseline decision so
// the next chat turn re-runs the search against the new spec.
func (h *BriefHandler) Upload(c *gin.Context) {
	sessionID := strings.TrimSpace(c.PostForm("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "session_id is required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "file is required", Message: err.Error()})
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Only PDF files are supported for marketing brief upload."})
		return
	}
	if fileHeader.Size > maxBriefSize {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "PDF is too large. Maximum supported size is 12 MB."})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read uploaded file", Message: err.Error()})
		return
	}
	defer file.Close()
	raw, err := io.ReadAll(io.LimitReader(file, maxBriefSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read uploaded file", Message: err.Error()})
		return
	}
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Uploaded PDF is empty."})
		return
	}
	if len(raw) > maxBriefSize {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "PDF is too large. Maximum supported size is 12 MB."})
		return
	}

	text, err := pdfbrief.ExtractText(raw)
	if err != nil || text == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Could not extract readable text from PDF."})
		return
	}

	state, err := h.store.GetOrCreate(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}

	workflow.UpdateSpecFromMessage(&state.Spec, text)

	extracted, err := h.client.ExtractBriefSpec(c.Request.Context(), text, requestAPIKey(c))
	if err != nil {
		h.log.Warn("brief AI extraction failed, using deterministic parse only", "error", err)
		extracted = straive.BriefExtraction{}
	}
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = strings.ToLower(strings.TrimSpace(v))
		}
	}
	overlay(&state.Spec.ProductType, extracted.ProductType)
	overlay(&state.Spec.SizeOrVolume, extracted.SizeOrVolume)
	overlay(&state.Spec.IntendedMaterial, extracted.IntendedMaterial)
	overlay(&state.Spec.ClosureType, extracted.ClosureType)
	overlay(&state.Spec.DesignStyle, extracted.DesignStyle)
	for k, v := range extracted.Dimensions {
		state.Spec.Dimensions[k] = v
	}

	state.MissingFields = workflow.MissingFields(&state.Spec)
	state.RequiredQuestions = workflow.RequiredQuestionsForMissing(state.MissingFields)
	state.BaselineDecision = ""
	state.BaselinePhase = models.BaselinePending
	state.BaselineMatches = []models.BaselineMatch{}
	state.BaselineAsset = nil
	state.History = append(state.History, models.ChatMessage{
		Role:    "system",
		Content: "Marketing brief uploaded: " + fileHeader.Filename,
	})

	var message string
	if len(state.MissingFields) > 0 {
		state.Step = 1
		message = "Marketing brief processed. Some mandatory fields are still missing."
	} else {
		state.Step = 3
		message = "Marketing brief processed. Design spec extracted and ready for baseline search."
	}

	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.BriefUploadResponse{
		Message:           message,
		Step:              state.Step,
		SpecSummary:       workflow.SpecSummary(&state.Spec),
		RequiredQuestions: state.RequiredQuestions,
	})
}
