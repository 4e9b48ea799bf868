package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pack-design-backend/internal/catalog"
	"pack-design-backend/internal/models"
	"pack-design-backend/internal/recommend"
	"pack-design-backend/internal/storage"
	"pack-design-backend/internal/straive"
)

type AssetsHandler struct {
	catalog *catalog.Catalog
	client  *straive.Client
	store   *storage.SessionStore
}

func NewAssetsHandler(cat *catalog.Catalog, client *straive.Client, store *storage.SessionStore) *AssetsHandler {
	return &AssetsHandler{catalog: cat, client: client, store: store}
}

func (h *AssetsHandler) Index(c *gin.Context) {
	var req models.AssetIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	indexed, total, err := h.catalog.IndexAssets(c.Request.Context(), h.client, req.ForceReindex, requestAPIKey(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "asset indexing failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.AssetIndexResponse{IndexedCount: indexed, TotalAssets: total})
}

func (h *AssetsHandler) Catalog(c *gin.Context) {
	items, err := h.catalog.ListCatalog(300)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to list catalog", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.AssetCatalogResponse{Total: len(items), Items: items})
}

// Recommendations derives edit suggestions from the session's current spec.
func (h *AssetsHandler) Recommendations(c *gin.Context) {
	state, err := h.store.GetOrCreate(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load session", Message: err.Error()})
		return
	}
	recs := recommend.BuildEditRecommendations(&state.Spec)
	c.JSON(http.StatusOK, models.EditRecommendationsResponse{Count: len(recs), Recommendations: recs})
}
