package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	CatalogURL      string
	DBPath          string
	SongDir         string
	PathTemplate    string
	Workers         int
	BandwidthKBps   int // per worker; 0 means unlimited
	TransferTimeout time.Duration
	RetryCount      int
	AutoDownload    bool
	TrashRemoved    bool
	LogLevel        string
	LogFormat       string
}

// Load loads configuration from the environment with defaults. A .env file
// in the working directory is honored if present.
func Load() *Config {
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	defaultSongDir := filepath.Join(home, "Songs")
	defaultDBPath := filepath.Join(home, ".karasync", "karasync.db")

	return &Config{
		Port:            getEnv("PORT", "8095"),
		CatalogURL:      getEnv("CATALOG_URL", "https://catalog.example.com"),
		DBPath:          getEnv("DB_PATH", defaultDBPath),
		SongDir:         getEnv("SONG_DIR", defaultSongDir),
		PathTemplate:    getEnv("PATH_TEMPLATE", "{{.Artist}} - {{.Title}}/{{.Artist}} - {{.Title}}"),
		Workers:         getEnvInt("SYNC_WORKERS", 4),
		BandwidthKBps:   getEnvInt("BANDWIDTH_KBPS", 0),
		TransferTimeout: getEnvDuration("TRANSFER_TIMEOUT", 60*time.Second),
		RetryCount:      getEnvInt("TRANSFER_RETRIES", 3),
		AutoDownload:    getEnvBool("AUTO_DOWNLOAD", true),
		TrashRemoved:    getEnvBool("TRASH_REMOVED_SONGS", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns detailed errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Port == "" {
		errs = append(errs, "PORT cannot be empty")
	} else if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
	}

	if c.CatalogURL == "" {
		errs = append(errs, "CATALOG_URL cannot be empty")
	} else if !strings.HasPrefix(c.CatalogURL, "http://") && !strings.HasPrefix(c.CatalogURL, "https://") {
		errs = append(errs, fmt.Sprintf("CATALOG_URL must be an http(s) URL, got: %s", c.CatalogURL))
	}
	if c.DBPath == "" {
		errs = append(errs, "DB_PATH cannot be empty")
	}
	if c.SongDir == "" {
		errs = append(errs, "SONG_DIR cannot be empty")
	}
	if c.PathTemplate == "" {
		errs = append(errs, "PATH_TEMPLATE cannot be empty")
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Sprintf("SYNC_WORKERS must be at least 1, got: %d", c.Workers))
	}
	if c.BandwidthKBps < 0 {
		errs = append(errs, fmt.Sprintf("BANDWIDTH_KBPS cannot be negative, got: %d", c.BandwidthKBps))
	}
	if c.TransferTimeout <= 0 {
		errs = append(errs, "TRANSFER_TIMEOUT must be positive")
	}
	if c.RetryCount < 1 {
		errs = append(errs, fmt.Sprintf("TRANSFER_RETRIES must be at least 1, got: %d", c.RetryCount))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
