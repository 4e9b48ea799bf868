package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pack-design-backend/internal/imaging"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/storage"
)

type VersionsHandler struct {
	store      *storage.SessionStore
	imageStore *imaging.SessionImageStore
}

func NewVersionsHandler(store *storage.SessionStore, imageStore *imaging.SessionImageStore) *VersionsHandler {
	return &VersionsHandler{store: store, imageStore: imageStore}
}

// Approve marks an image version as the CAD source. Any stale CAD artifacts
// from a previously approved version are dropped.
func (h *VersionsHandler) Approve(c *gin.Context) {
	var req models.VersionApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}

	target := state.ImageByVersion(req.Version)
	if target == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: fmt.Sprintf("Version v%d not found.", req.Version)})
		return
	}
	if target.LocalImagePath == "" {
		// Repair local path if an old state row lacks it.
		dataURL, localPath, err := h.imageStore.Materialize(c.Request.Context(), req.SessionID, target.Version, target.ImageURLOrBase64, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to materialize approved image", Message: err.Error()})
			return
		}
		target.ImageURLOrBase64 = dataURL
		target.LocalImagePath = localPath
	}

	state.ApprovedImageID = target.ImageID
	state.ApprovedImageVersion = target.Version
	state.ApprovedImageLocalPath = target.LocalImagePath
	state.ClearCadArtifacts()
	if state.Step < 6 {
		state.Step = 6
	}

	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.VersionApproveResponse{
		Message:         fmt.Sprintf("Version v%d approved for STEP CAD generation.", target.Version),
		ApprovedVersion: target.Version,
	})
}
