package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	// Straive provider
	StraiveAPIKey    string
	ChatURL          string
	ImageGenerateURL string
	ImageEditURL     string
	CadCodegenURL    string
	ModelName        string

	// Storage
	DBPath           string
	AssetsDir        string
	CacheDir         string
	SessionImagesDir string
	StaticDir        string

	// Workflow
	AutoIndexAssets bool

	// CAD script execution
	PythonBin string

	// Server
	Port        string
	Environment string
	CORSOrigins []string
}

func Load() (*Config, error) {
	origins := []string{}
	for _, o := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cfg := &Config{
		StraiveAPIKey:    getEnv("STRAIVE_API_KEY", ""),
		ChatURL:          getEnv("STRAIVE_CHAT_URL", "https://llmfoundry.straive.com/openai/v1/chat/completions"),
		ImageGenerateURL: getEnv("STRAIVE_IMAGE_GENERATE_URL", "https://llmfoundry.straive.com/openai/v1/images/generations"),
		ImageEditURL:     getEnv("STRAIVE_IMAGE_EDIT_URL", "https://llmfoundry.straive.com/openai/v1/images/edits"),
		CadCodegenURL:    getEnv("CAD_CODEGEN_URL", "https://llmfoundry.straive.com/openai/v1/chat/completions"),
		ModelName:        getEnv("STRAIVE_MODEL", "gpt-5.2"),

		DBPath:           getEnv("APP_DB_PATH", "app.db"),
		AssetsDir:        getEnv("ASSETS_DIR", "assets"),
		CacheDir:         getEnv("CACHE_DIR", "tmp_runtime/cache"),
		SessionImagesDir: getEnv("SESSION_IMAGES_DIR", "tmp_runtime/session_images"),
		StaticDir:        getEnv("STATIC_DIR", "static"),

		AutoIndexAssets: getEnv("AUTO_INDEX_ASSETS", "false") == "true",

		PythonBin: getEnv("CAD_PYTHON_BIN", "python3"),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		CORSOrigins: origins,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the storage paths the server cannot run without. The
// provider API key is deliberately optional: unconfigured providers degrade
// to deterministic fallbacks.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("APP_DB_PATH is required")
	}
	if c.AssetsDir == "" {
		return fmt.Errorf("ASSETS_DIR is required")
	}
	if c.SessionImagesDir == "" {
		return fmt.Errorf("SESSION_IMAGES_DIR is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
