package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgallion1/notegest/internal/render"
)

type Config struct {
	Port string

	// Auth
	NotegestAPIKey string

	// Image extraction service
	ImageServiceURL    string
	ImageServiceAPIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Conversion defaults
	DefaultDialect  string
	DefaultNotebook string

	// Run manifest (sqlite path, empty disables it)
	ManifestPath string

	// Job state
	JobTTL time.Duration

	// Latency stats window
	StatsWindow time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8095"),

		NotegestAPIKey: os.Getenv("NOTEGEST_API_KEY"),

		ImageServiceURL:    os.Getenv("IMAGE_SERVICE_URL"),
		ImageServiceAPIKey: os.Getenv("IMAGE_SERVICE_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		DefaultDialect:  envOr("DEFAULT_DIALECT", string(render.Obsidian)),
		DefaultNotebook: envOr("DEFAULT_NOTEBOOK", "OneNote"),

		ManifestPath: os.Getenv("MANIFEST_PATH"),

		JobTTL:      envDuration("JOB_TTL", 1*time.Hour),
		StatsWindow: envDuration("STATS_WINDOW", 1*time.Hour),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.NotegestAPIKey == "" {
		return fmt.Errorf("NOTEGEST_API_KEY is required")
	}
	if _, err := render.ParseDialect(c.DefaultDialect); err != nil {
		return fmt.Errorf("DEFAULT_DIALECT: %w", err)
	}
	if c.ImageServiceURL != "" && c.ImageServiceAPIKey == "" {
		return fmt.Errorf("IMAGE_SERVICE_API_KEY is required when IMAGE_SERVICE_URL is set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
