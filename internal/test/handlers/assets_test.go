package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
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
)

func newAssetsRouter(t *testing.T) (*gin.Engine, *storage.SessionStore, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewSessionStore(db)
	require.NoError(t, err)
	assetsDir := filepath.Join(dir, "assets")
	cat, err := catalog.New(db, assetsDir, logger.NewNop())
	require.NoError(t, err)

	cfg := &config.Config{
		DBPath:           filepath.Join(dir, "test.db"),
		AssetsDir:        assetsDir,
		SessionImagesDir: filepath.Join(dir, "session_images"),
	}
	client := straive.NewClient(cfg, logger.NewNop())

	handler := handlers.NewAssetsHandler(cat, client, store)
	router := gin.New()
	router.POST("/api/assets/index", handler.Index)
	router.GET("/api/assets/catalog", handler.Catalog)
	router.GET("/api/recommendations/:session_id", handler.Recommendations)
	return router, store, assetsDir
}

// The unconfigured provider falls back to filename-token metadata, so indexing
// works offline against descriptive asset names.
func TestAssetIndexAndCatalog(t *testing.T) {
	router, _, assetsDir := newAssetsRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "jar_glass_screw_50ml.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "bottle_pet_fliptop.png"), []byte("png"), 0o644))

	body, _ := json.Marshal(models.AssetIndexRequest{ForceReindex: false})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/assets/index", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var indexResp models.AssetIndexResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &indexResp))
	assert.Equal(t, 2, indexResp.IndexedCount)
	assert.Equal(t, 2, indexResp.TotalAssets)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/assets/catalog", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var catalogResp models.AssetCatalogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &catalogResp))
	assert.Equal(t, 2, catalogResp.Total)
	assert.Len(t, catalogResp.Items, 2)
}

func TestRecommendationsForSessionSpec(t *testing.T) {
	router, store, _ := newAssetsRouter(t)

	state, err := store.GetOrCreate("s1")
	require.NoError(t, err)
	state.Spec.ProductType = "jar"
	state.Spec.ClosureType = "screw"
	require.NoError(t, store.Save(state))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/recommendations/s1", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.EditRecommendationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Contains(t, resp.Recommendations, "Refine cap knurl band for better grip and consistent rhythm.")
}

func TestRecommendationsEmptyForFreshSession(t *testing.T) {
	router, _, _ := newAssetsRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/recommendations/fresh", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.EditRecommendationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.Empty(t, resp.Recommendations)
}
