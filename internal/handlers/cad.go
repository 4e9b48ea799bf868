package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pack-design-backend/internal/cache"
	"pack-design-backend/internal/cad"
	"pack-design-backend/internal/imaging"
	"pack-design-backend/internal/logger"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/storage"
	"pack-design-backend/internal/straive"
	"pack-design-backend/internal/workflow"
)

const cadSystemPrompt = "You are a senior mechanical CAD engineer and geometric reconstruction specialist.\n\n" +
	"Return ONLY Python code for CadQuery that creates closed BREP solids and exports a STEP file.\n" +
	"No markdown fences, no explanation, no STL, no mesh operations.\n" +
	"Use mm units, realistic manufacturable geometry, and keep script deterministic.\n" +
	"Script must define geometry variables and call cq.exporters.export(..., <step_path>)."

const defaultFixAttempts = 3

type CadHandler struct {
	store      *storage.SessionStore
	client     *straive.Client
	cache      *cache.Cache
	imageStore *imaging.SessionImageStore
	runner     *cad.Runner
	log        *logger.Logger
}

func NewCadHandler(store *storage.SessionStore, client *straive.Client, diskCache *cache.Cache, imageStore *imaging.SessionImageStore, runner *cad.Runner, log *logger.Logger) *CadHandler {
	return &CadHandler{store: store, client: client, cache: diskCache, imageStore: imageStore, runner: runner, log: log}
}

// Generate is the deterministic dimension-driven CAD gate: it validates the
// locked spec's dimensions and renders the CadQuery template without calling
// any provider.
func (h *CadHandler) Generate(c *gin.Context) {
	var req models.CadGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	if !state.Locked() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Design is not locked. Confirm the lock before CAD generation."})
		return
	}

	result, err := cad.Generate(&state.Spec)
	if err != nil {
		var missingErr *cad.MissingDimensionsError
		var unsupportedErr *cad.UnsupportedTypeError
		if errors.As(err, &missingErr) || errors.As(err, &unsupportedErr) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "CAD generation failed", Message: err.Error()})
		return
	}

	state.CadCode = result.CadCode
	state.DesignSummary = result.Summary
	if state.Step < 7 {
		state.Step = 7
	}
	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.CadGenerateResponse{
		CadCode:       result.CadCode,
		DesignSummary: result.Summary,
	})
}

// Sheet renders a 2D CAD drawing sheet by running an image edit over the
// approved version.
func (h *CadHandler) Sheet(c *gin.Context) {
	var req models.CadSheetGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	if state.ApprovedImageLocalPath == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Approve a version first before generating CAD drawing sheet."})
		return
	}
	approvedBlob, err := os.ReadFile(state.ApprovedImageLocalPath)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Approved source image file is missing on disk."})
		return
	}
	apiKey := requestAPIKey(c)

	cacheKey := cache.HashText(cache.HashBytes(approvedBlob) + "::" + normalizePrompt(req.Prompt))
	entry, cached := h.cache.GetImage("cadsheet", cacheKey)
	var edited straive.ImageResult
	if cached {
		edited = straive.ImageResult{ImageID: entry.ImageID, ImageURLOrBase64: entry.ImageDataURL}
	} else {
		edited, err = h.client.ImageEdit(c.Request.Context(), state.ApprovedImageLocalPath, req.Prompt, apiKey)
		if err != nil {
			c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "CAD sheet generation failed", Message: err.Error()})
			return
		}
	}

	name := "cad_sheet_" + uuid.New().String()[:8]
	dataURL, localPath, err := h.imageStore.MaterializeNamed(c.Request.Context(), req.SessionID, name, edited.ImageURLOrBase64, apiKey)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "failed to materialize CAD sheet", Message: err.Error()})
		return
	}
	imageID := edited.ImageID
	if imageID == "" {
		imageID = "cad-sheet-" + uuid.New().String()[:8]
	}
	if !cached {
		if err := h.cache.PutImage("cadsheet", cacheKey, imageID, dataURL); err != nil {
			h.log.Warn("cadsheet cache write failed", "error", err)
		}
	}

	state.CadSheetPrompt = req.Prompt
	state.CadSheetImageID = imageID
	state.CadSheetImageURLOrBase64 = dataURL
	state.CadSheetImageLocalPath = localPath
	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.CadSheetGenerateResponse{
		Message:          fmt.Sprintf("CAD drawing sheet generated from approved version v%d.", state.ApprovedImageVersion),
		ImageID:          state.CadSheetImageID,
		ImageURLOrBase64: state.CadSheetImageURLOrBase64,
	})
}

func (h *CadHandler) publicFilePath(urlPath string) string {
	rel := strings.TrimPrefix(urlPath, "/session-files/")
	return filepath.Join(h.imageStore.BaseDir, filepath.FromSlash(rel))
}

// executeAndPersist validates and runs a CadQuery script, then records the
// public artifact paths on the session. Returns (codeFile, stepFile) URL
// paths on success.
func (h *CadHandler) executeAndPersist(c *gin.Context, state *models.SessionState, cadCode string) (string, string, error) {
	if err := cad.ValidateScript(cadCode); err != nil {
		return "", "", err
	}
	scriptPath, stepPath, err := h.runner.Execute(c.Request.Context(), cadCode, imaging.SafeSessionKey(state.SessionID))
	if err != nil {
		return "", "", err
	}

	codeFile := h.imageStore.PublicPath(scriptPath)
	stepFile := h.imageStore.PublicPath(stepPath)
	if codeFile == "" || stepFile == "" {
		return "", "", fmt.Errorf("CAD artifacts were written outside the session files directory")
	}

	state.CadModelCode = cadCode
	state.CadModelLastError = ""
	state.CadModelCodePath = codeFile
	state.CadStepFile = stepFile
	if state.Step < 7 {
		state.Step = 7
	}
	return codeFile, stepFile, h.store.Save(state)
}

func (h *CadHandler) failureResponse(c *gin.Context, state *models.SessionState, message, cadCode, errorDetail string, attempts int) {
	state.CadModelCode = cadCode
	state.CadModelLastError = errorDetail
	state.CadModelCodePath = ""
	state.CadStepFile = ""
	if err := h.store.Save(state); err != nil {
		h.log.Error("failed to save session after CAD failure", "session", state.SessionID, "error", err)
	}
	c.JSON(http.StatusOK, models.CadModelGenerateResponse{
		Message:     message,
		Success:     false,
		CadCode:     cadCode,
		ErrorDetail: errorDetail,
		Cached:      false,
		Attempts:    attempts,
	})
}

type cadStepCacheEntry struct {
	CadCode  string `json:"cad_code"`
	CodeFile string `json:"code_file"`
	StepFile string `json:"step_file"`
}

// ModelGenerate asks the vision-capable model for a CadQuery script from the
// approved image, executes it sandboxed, and persists the STEP artifact.
func (h *CadHandler) ModelGenerate(c *gin.Context) {
	var req models.CadModelGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	if state.ApprovedImageLocalPath == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Approve a version first before generating CAD model."})
		return
	}
	approvedBlob, err := os.ReadFile(state.ApprovedImageLocalPath)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Approved source image file is missing on disk."})
		return
	}
	apiKey := requestAPIKey(c)

	cacheKey := cache.HashText(cache.HashBytes(approvedBlob) + "::" + normalizePrompt(req.Prompt))
	var cachedEntry cadStepCacheEntry
	if h.cache.GetJSON("cadstep", cacheKey, &cachedEntry) &&
		cachedEntry.CadCode != "" && cachedEntry.CodeFile != "" && cachedEntry.StepFile != "" {
		codePath := h.publicFilePath(cachedEntry.CodeFile)
		stepPath := h.publicFilePath(cachedEntry.StepFile)
		if fileExists(codePath) && fileExists(stepPath) {
			state.CadModelPrompt = req.Prompt
			state.CadModelCode = cachedEntry.CadCode
			state.CadModelLastError = ""
			state.CadModelCodePath = cachedEntry.CodeFile
			state.CadStepFile = cachedEntry.StepFile
			if state.Step < 7 {
				state.Step = 7
			}
			if err := h.store.Save(state); err != nil {
				c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
				return
			}
			c.JSON(http.StatusOK, models.CadModelGenerateResponse{
				Message:  fmt.Sprintf("CAD model loaded from cache for approved version v%d.", state.ApprovedImageVersion),
				Success:  true,
				CadCode:  cachedEntry.CadCode,
				CodeFile: cachedEntry.CodeFile,
				StepFile: cachedEntry.StepFile,
				Cached:   true,
			})
			return
		}
	}

	userPrompt := strings.TrimSpace(req.Prompt) +
		"\n\nINPUT CONTEXT:\n" +
		"- Approved image path: " + state.ApprovedImageLocalPath + "\n" +
		"- Session spec summary: " + workflow.SpecSummary(&state.Spec) + "\n" +
		"- Output a single executable Python script only."
	approvedMime := imaging.DetectMime(approvedBlob, "")

	llmText, err := h.client.CadCodegen(c.Request.Context(), cadSystemPrompt, userPrompt, approvedBlob, approvedMime, apiKey)
	if err != nil {
		h.failureResponse(c, state, "CAD generation failed: provider error.", "", err.Error(), 0)
		return
	}
	if strings.TrimSpace(llmText) == "" {
		h.failureResponse(c, state, "CAD generation failed: LLM returned empty output.", "", "LLM returned empty CAD script output.", 0)
		return
	}

	cadCode := cad.ExtractPythonCode(llmText)
	codeFile, stepFile, err := h.executeAndPersist(c, state, cadCode)
	if err != nil {
		h.failureResponse(c, state, "CAD execution failed. Fix code and retry.", cadCode, err.Error(), 0)
		return
	}

	if err := h.cache.PutJSON("cadstep", cacheKey, cadStepCacheEntry{CadCode: cadCode, CodeFile: codeFile, StepFile: stepFile}); err != nil {
		h.log.Warn("cadstep cache write failed", "error", err)
	}
	state.CadModelPrompt = req.Prompt
	if err := h.store.Save(state); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save session", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.CadModelGenerateResponse{
		Message:  fmt.Sprintf("CAD STEP model generated from approved version v%d.", state.ApprovedImageVersion),
		Success:  true,
		CadCode:  cadCode,
		CodeFile: codeFile,
		StepFile: stepFile,
	})
}

// RunCode executes caller-supplied CadQuery code against the sandbox.
func (h *CadHandler) RunCode(c *gin.Context) {
	var req models.CadModelRunCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	cadCode := strings.TrimSpace(req.CadCode)
	if cadCode == "" {
		h.failureResponse(c, state, "No CAD code provided.", "", "CAD code is empty.", 0)
		return
	}

	codeFile, stepFile, err := h.executeAndPersist(c, state, cadCode)
	if err != nil {
		h.failureResponse(c, state, "CAD execution failed. Fix code and retry.", cadCode, err.Error(), 0)
		return
	}
	c.JSON(http.StatusOK, models.CadModelGenerateResponse{
		Message:  "CAD code executed successfully and STEP generated.",
		Success:  true,
		CadCode:  cadCode,
		CodeFile: codeFile,
		StepFile: stepFile,
	})
}

// FixCode is the bounded auto-fix loop: execute, on failure feed the error
// back to the model for a corrected script, up to max_attempts times.
func (h *CadHandler) FixCode(c *gin.Context) {
	var req models.CadModelFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	state, err := h.store.GetOrCreate(req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	code := strings.TrimSpace(req.CadCode)
	if code == "" {
		h.failureResponse(c, state, "No CAD code provided.", "", "CAD code is empty.", 0)
		return
	}
	apiKey := requestAPIKey(c)

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultFixAttempts
	}

	lastError := strings.TrimSpace(req.ErrorDetail)
	if lastError == "" {
		lastError = strings.TrimSpace(state.CadModelLastError)
	}

	attempts := 0
	for attempts < maxAttempts {
		attempts++
		codeFile, stepFile, err := h.executeAndPersist(c, state, code)
		if err == nil {
			c.JSON(http.StatusOK, models.CadModelGenerateResponse{
				Message:  fmt.Sprintf("CAD code fixed and STEP generated in %d attempt(s).", attempts),
				Success:  true,
				CadCode:  code,
				CodeFile: codeFile,
				StepFile: stepFile,
				Attempts: attempts,
			})
			return
		}
		lastError = err.Error()

		fixPrompt := "Fix this CadQuery Python script so it executes successfully and exports at least one .step file.\n" +
			"Return only corrected Python code.\n\n" +
			"Execution error:\n" + lastError + "\n\n" +
			"Current code:\n" + code
		llmText, err := h.client.CadCodegen(c.Request.Context(), cadSystemPrompt, fixPrompt, nil, "", apiKey)
		if err != nil {
			h.log.Warn("cad auto-fix codegen failed", "session", req.SessionID, "error", err)
			break
		}
		if strings.TrimSpace(llmText) == "" {
			break
		}
		code = cad.ExtractPythonCode(llmText)
	}

	if lastError == "" {
		lastError = "Auto-fix failed without error output."
	}
	h.failureResponse(c, state,
		fmt.Sprintf("Auto-fix did not produce a STEP file after %d attempt(s).", attempts),
		code, lastError, attempts)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
