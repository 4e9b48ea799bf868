package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pack-design-backend/internal/cache"
	"pack-design-backend/internal/imaging"
	"pack-design-backend/internal/logger"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/storage"
	"pack-design-backend/internal/straive"
)

type ImagesHandler struct {
	store      *storage.SessionStore
	client     *straive.Client
	cache      *cache.Cache
	imageStore *imaging.SessionImageStore
	log        *logger.Logger
}

func NewImagesHandler(store *storage.SessionStore, client *straive.Client, diskCache *cache.Cache, imageStore *imaging.SessionImageStore, log *logger.Logger) *ImagesHandler {
	return &ImagesHandler{store: store, client: client, cache: diskCache, imageStore: imageStore, log: log}
}

func (h *ImagesHandler) appendVersion(state *models.SessionState, imageID, dataURL, prompt, localPath string) models.ImageVersion {
	if imageID == "" {
		imageID = uuid.New().String()
	}
	image := models.ImageVersion{
		ImageID:          imageID,
		ImageURLOrBase64: dataURL,
		Version:          len(state.Images) + 1,
		Prompt:           prompt,
		LocalImagePath:   localPath,
	}
	state.Images = append(state.Images, image)
	return image
}

// Generate creates a new 2D concept. A fresh concept restarts the iteration
// cycle: step moves to 4 and all lock/approval/CAD state is dropped.
func (h *ImagesHandler) Generate(c *gin.Context) {
	var req models.ImageGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	if state.Step < 3 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Workflow has not reached STEP 3."})
		return
	}
	apiKey := requestAPIKey(c)

	cacheKey := cache.HashText(normalizePrompt(req.Prompt))
	entry, cached := h.cache.GetImage("concept", cacheKey)
	var generated straive.ImageResult
	if cached {
		generated = straive.ImageResult{ImageID: entry.ImageID, ImageURLOrBase64: entry.ImageDataURL}
	} else {
		generated, err = h.client.ImageGenerate(c.Request.Context(), req.Prompt, apiKey)
		if err != nil {
			c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "image generation failed", Message: err.Error()})
			return
		}
	}

	dataURL, localPath, err := h.imageStore.Materialize(c.Request.Context(), req.SessionID, len(state.Images)+1, generated.ImageURLOrBase64, apiKey)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "failed to materialize image", Message: err.Error()})
		return
	}
	if !cached {
		if err := h.cache.PutImage("concept", cacheKey, generated.ImageID, dataURL); err != nil {
			h.log.Warn("concept cache write failed", "error", err)
		}
	}

	image := h.appendVersion(state, generated.ImageID, dataURL, req.Prompt, localPath)

	state.Step = 4
	state.LockPhase = models.LockNotAsked
	state.CadCode = ""
	state.DesignSummary = ""
	state.ClearApproval()

	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.ImageResponse{
		ImageID:          image.ImageID,
		ImageURLOrBase64: image.ImageURLOrBase64,
		Version:          image.Version,
	})
}

// Edit iterates on the latest session visual. Iteration always starts from
// the newest version so the design stays continuous; the request's image_id
// is only a fallback reference.
func (h *ImagesHandler) Edit(c *gin.Context) {
	var req models.ImageEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	if len(state.Images) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No reference image found. Generate or adopt a concept first."})
		return
	}
	if state.Locked() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Design is locked. Iteration is not allowed."})
		return
	}
	if state.Step < 4 {
		state.Step = 4
	}
	apiKey := requestAPIKey(c)

	latest := state.LatestImage()
	latestRef := latest.LocalImagePath
	if latestRef == "" {
		latestRef = latest.ImageURLOrBase64
	}
	if latestRef == "" {
		latestRef = req.ImageID
	}
	latestRef = imaging.NormalizeRefForEdit(latestRef)

	sourceBlob, _, err := imaging.ResolveBytes(c.Request.Context(), latestRef, apiKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to resolve reference image", Message: err.Error()})
		return
	}
	editKey := cache.HashText(cache.HashBytes(sourceBlob) + "::" + normalizePrompt(req.InstructionPrompt))
	entry, cached := h.cache.GetImage("edit", editKey)
	var edited straive.ImageResult
	if cached {
		edited = straive.ImageResult{ImageID: entry.ImageID, ImageURLOrBase64: entry.ImageDataURL}
	} else {
		edited, err = h.client.ImageEdit(c.Request.Context(), latestRef, req.InstructionPrompt, apiKey)
		if err != nil {
			h.log.Error("image edit failed", "session", req.SessionID, "error", err)
			c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Image edit failed", Message: err.Error()})
			return
		}
	}

	dataURL, localPath, err := h.imageStore.Materialize(c.Request.Context(), req.SessionID, len(state.Images)+1, edited.ImageURLOrBase64, apiKey)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "failed to materialize image", Message: err.Error()})
		return
	}
	if !cached {
		if err := h.cache.PutImage("edit", editKey, edited.ImageID, dataURL); err != nil {
			h.log.Warn("edit cache write failed", "error", err)
		}
	}

	image := h.appendVersion(state, edited.ImageID, dataURL, req.InstructionPrompt, localPath)
	state.ClearApproval()

	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.ImageResponse{
		ImageID:          image.ImageID,
		ImageURLOrBase64: image.ImageURLOrBase64,
		Version:          image.Version,
	})
}

// AdoptBaseline turns a matched catalog asset into the next image version.
func (h *ImagesHandler) AdoptBaseline(c *gin.Context) {
	var req models.BaselineAdoptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}

	var match *models.BaselineMatch
	for i := range state.BaselineMatches {
		if state.BaselineMatches[i].AssetRelPath == req.AssetRelPath {
			match = &state.BaselineMatches[i]
			break
		}
	}
	if match == nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Selected baseline match is not available for this session."})
		return
	}
	state.BaselineAsset = match

	info, err := os.Stat(match.AssetPath)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Baseline asset file not found."})
		return
	}
	blob, err := os.ReadFile(match.AssetPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read baseline asset", Message: err.Error()})
		return
	}
	mime := imaging.DetectMime(blob, "")
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(blob))

	absPath, err := filepath.Abs(match.AssetPath)
	if err != nil {
		absPath = match.AssetPath
	}
	image := h.appendVersion(state, "baseline-"+uuid.New().String(), dataURL,
		"Adopted baseline asset: "+match.Filename, absPath)

	state.ClearApproval()
	if state.Step < 4 {
		state.Step = 4
	}

	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.ImageResponse{
		ImageID:          image.ImageID,
		ImageURLOrBase64: image.ImageURLOrBase64,
		Version:          image.Version,
	})
}
