package main

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pack-design-backend/internal/cache"
	"pack-design-backend/internal/cad"
	"pack-design-backend/internal/catalog"
	"pack-design-backend/internal/config"
	"pack-design-backend/internal/handlers"
	"pack-design-backend/internal/imaging"
	applogger "pack-design-backend/internal/logger"
	"pack-design-backend/internal/middleware"
	"pack-design-backend/internal/storage"
	"pack-design-backend/internal/straive"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := applogger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Shared SQLite database for sessions and the asset catalog
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	sessionStore, err := storage.NewSessionStore(db)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	assetCatalog, err := catalog.New(db, cfg.AssetsDir, appLog)
	if err != nil {
		log.Fatalf("Failed to initialize asset catalog: %v", err)
	}

	cadRunDir := filepath.Join(cfg.SessionImagesDir, "cad_runs")
	if err := os.MkdirAll(cadRunDir, 0o755); err != nil {
		log.Fatalf("Failed to create CAD run directory: %v", err)
	}
	diskCache, err := cache.New(cfg.CacheDir, cadRunDir)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	imageStore, err := imaging.NewSessionImageStore(cfg.SessionImagesDir)
	if err != nil {
		log.Fatalf("Failed to initialize session image store: %v", err)
	}

	straiveClient := straive.NewClient(cfg, appLog)
	runner := cad.NewRunner(cfg.PythonBin, cadRunDir)
	limiter := middleware.NewRateLimiter(120, 60*time.Second)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	chatHandler := handlers.NewChatHandler(cfg, sessionStore, assetCatalog, straiveClient, appLog)
	briefHandler := handlers.NewBriefHandler(sessionStore, straiveClient, appLog)
	assetsHandler := handlers.NewAssetsHandler(assetCatalog, straiveClient, sessionStore)
	imagesHandler := handlers.NewImagesHandler(sessionStore, straiveClient, diskCache, imageStore, appLog)
	versionsHandler := handlers.NewVersionsHandler(sessionStore, imageStore)
	cadHandler := handlers.NewCadHandler(sessionStore, straiveClient, diskCache, imageStore, runner, appLog)
	sessionHandler := handlers.NewSessionHandler(sessionStore, diskCache)

	// Setup router
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Straive-Api-Key")
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthHandler.Health)

	api := router.Group("/api")
	api.POST("/chat", limiter.Middleware("chat"), chatHandler.Chat)
	api.POST("/brief/upload", limiter.Middleware("brief-upload"), briefHandler.Upload)

	api.POST("/assets/index", limiter.Middleware("assets-index"), assetsHandler.Index)
	api.GET("/assets/catalog", limiter.Middleware("assets-catalog"), assetsHandler.Catalog)
	api.GET("/recommendations/:session_id", limiter.Middleware("recommendations"), assetsHandler.Recommendations)

	api.POST("/image/generate", limiter.Middleware("image-generate"), imagesHandler.Generate)
	api.POST("/image/edit", limiter.Middleware("image-edit"), imagesHandler.Edit)
	api.POST("/image/adopt-baseline", limiter.Middleware("image-adopt-baseline"), imagesHandler.AdoptBaseline)
	api.POST("/baseline/skip", limiter.Middleware("baseline-skip"), sessionHandler.SkipBaseline)

	api.POST("/version/approve", limiter.Middleware("version-approve"), versionsHandler.Approve)

	api.POST("/cad/generate", limiter.Middleware("cad-generate"), cadHandler.Generate)
	api.POST("/cad-sheet/generate", limiter.Middleware("cad-sheet-generate"), cadHandler.Sheet)
	api.POST("/cad/model/generate", limiter.Middleware("cad-model-generate"), cadHandler.ModelGenerate)
	api.POST("/cad/model/run-code", limiter.Middleware("cad-model-run-code"), cadHandler.RunCode)
	api.POST("/cad/model/fix-code", limiter.Middleware("cad-model-fix-code"), cadHandler.FixCode)

	api.POST("/cache/clear", limiter.Middleware("cache-clear"), sessionHandler.ClearCache)
	api.POST("/session/clear", limiter.Middleware("session-clear"), sessionHandler.Clear)
	api.GET("/session/:session_id", limiter.Middleware("session"), sessionHandler.Get)

	// Static mounts for catalog assets, session artifacts, and the UI
	router.Static("/asset-files", cfg.AssetsDir)
	router.Static("/session-files", cfg.SessionImagesDir)
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		router.Static("/static", cfg.StaticDir)
		router.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticDir, "index.html"))
		})
	}

	appLog.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
