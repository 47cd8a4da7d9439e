package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers for the channel configuration.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// MaxTickInterval keeps daily/weekly minute matching from skipping a minute.
const MaxTickInterval = 60 * time.Second

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken          string
	TelegramRatePerSec     int
	TelegramMaxMessageSize int

	YouTrackBaseURL        string
	YouTrackAPIEndpoint    string
	YouTrackAuthorization  string // sent verbatim as the Authorization header
	YouTrackMaxIssues      int
	YouTrackIssueFields    string
	YouTrackIssueIDField   string
	YouTrackRequestTimeout time.Duration

	TickInterval  time.Duration
	StorageDriver string
	StoragePath   string
	DatabaseURL   string
	LinkStyle     string

	LogLevel    string
	Environment string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.YouTrackBaseURL = strings.TrimRight(os.Getenv("YOUTRACK_BASE_URL"), "/")
	if cfg.YouTrackBaseURL == "" {
		return nil, fmt.Errorf("YOUTRACK_BASE_URL is not set")
	}
	cfg.YouTrackAPIEndpoint = strings.TrimRight(getEnv("YOUTRACK_API_ENDPOINT", cfg.YouTrackBaseURL+"/api"), "/")
	cfg.YouTrackAuthorization = os.Getenv("YOUTRACK_AUTHORIZATION_HEADER")
	cfg.YouTrackIssueFields = getEnv("YOUTRACK_ISSUE_FIELDS", "id,idReadable,created,summary,resolved,reporter(email),tags(name)")
	cfg.YouTrackIssueIDField = getEnv("YOUTRACK_ISSUE_ID_FIELD", "id")

	if cfg.YouTrackMaxIssues, err = getEnvInt("YOUTRACK_MAX_ISSUES", 100); err != nil {
		return nil, err
	}
	if cfg.YouTrackRequestTimeout, err = getEnvDuration("YOUTRACK_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.TickInterval, err = getEnvDuration("TICK_INTERVAL", MaxTickInterval); err != nil {
		return nil, err
	}
	if cfg.TickInterval <= 0 || cfg.TickInterval > MaxTickInterval {
		return nil, fmt.Errorf("invalid TICK_INTERVAL %s: must be > 0 and <= %s", cfg.TickInterval, MaxTickInterval)
	}

	if cfg.TelegramRatePerSec, err = getEnvInt("TELEGRAM_RATE_PER_SEC", 20); err != nil {
		return nil, err
	}
	if cfg.TelegramMaxMessageSize, err = getEnvInt("TELEGRAM_MAX_MESSAGE_SIZE", 4096); err != nil {
		return nil, err
	}

	cfg.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", StorageFile))
	switch cfg.StorageDriver {
	case StorageFile:
		cfg.StoragePath = getEnv("STORAGE_PATH", "channels.yaml")
	case StorageSQLite:
		cfg.StoragePath = getEnv("STORAGE_PATH", "channels.db")
	case StoragePostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q (use file, sqlite or postgres)", cfg.StorageDriver)
	}

	cfg.LinkStyle = strings.ToLower(getEnv("LINK_STYLE", "markdown"))
	if cfg.LinkStyle != "markdown" && cfg.LinkStyle != "slack" {
		return nil, fmt.Errorf("invalid LINK_STYLE %q (use markdown or slack)", cfg.LinkStyle)
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
