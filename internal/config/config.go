package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/planner"
)

// Backend kinds.
const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"
	BackendGroq   = "groq"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
	StoreFile   = "file"
)

// Config holds the configuration for the application.
type Config struct {
	Port         string
	DatabasePath string
	StoreDriver  string
	StorePath    string
	CatalogPath  string
	LogLevel     slog.Level

	BackendKind    string
	BackendURL     string
	BackendAPIKey  string
	BackendTimeout time.Duration
	BackendRPS     float64
	GeminiAPIKey   string
	GeminiModel    string
	GroqAPIKey     string

	MaxParallelFetches   int
	SuggestDebounce      time.Duration
	MetricsRetentionDays int

	// Telegram Config
	TelegramBotToken     string
	TelegramWebhookURL   string
	TelegramAllowUserIDs []int64
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{
		Port:                 getenv("PORT", "8080"),
		DatabasePath:         getenv("DATABASE_PATH", "data/planner.db"),
		StoreDriver:          getenv("STORE_DRIVER", StoreSQLite),
		StorePath:            os.Getenv("STORE_PATH"),
		CatalogPath:          os.Getenv("CATALOG_PATH"),
		BackendKind:          getenv("BACKEND_KIND", BackendHTTP),
		BackendURL:           strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
		BackendAPIKey:        os.Getenv("BACKEND_API_KEY"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		GroqAPIKey:           os.Getenv("GROQ_API_KEY"),
		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:   os.Getenv("TELEGRAM_WEBHOOK_URL"),
		BackendTimeout:       30 * time.Second,
		BackendRPS:           5,
		MaxParallelFetches:   planner.DefaultMaxParallel,
		SuggestDebounce:      250 * time.Millisecond,
		MetricsRetentionDays: 30,
	}

	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	switch cfg.StoreDriver {
	case StoreSQLite:
	case StoreBadger, StoreFile:
		if cfg.StorePath == "" {
			cfg.StorePath = "data/" + cfg.StoreDriver
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.BackendKind {
	case BackendHTTP:
		if cfg.BackendURL == "" {
			return nil, fmt.Errorf("BACKEND_URL environment variable not set")
		}
	case BackendGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case BackendGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unknown BACKEND_KIND %q", cfg.BackendKind)
	}

	if v := os.Getenv("BACKEND_TIMEOUT"); v != "" {
		if cfg.BackendTimeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid BACKEND_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("BACKEND_RPS"); v != "" {
		if cfg.BackendRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid BACKEND_RPS: %w", err)
		}
	}
	if v := os.Getenv("SUGGEST_DEBOUNCE"); v != "" {
		if cfg.SuggestDebounce, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid SUGGEST_DEBOUNCE: %w", err)
		}
	}
	if cfg.MaxParallelFetches, err = positiveInt("MAX_PARALLEL_FETCHES", cfg.MaxParallelFetches); err != nil {
		return nil, err
	}
	if cfg.MetricsRetentionDays, err = positiveInt("METRICS_RETENTION_DAYS", cfg.MetricsRetentionDays); err != nil {
		return nil, err
	}

	// Telegram Config (optional for the HTTP server, required for the bot)
	for _, s := range strings.Split(os.Getenv("TELEGRAM_ALLOW_USER_IDS"), ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOW_USER_IDS entry %q: %w", s, err)
		}
		cfg.TelegramAllowUserIDs = append(cfg.TelegramAllowUserIDs, id)
	}

	return cfg, nil
}

// ParseLevel maps LOG_LEVEL to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// NewLogger returns a text logger on stderr at the configured level.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}

// LoadCatalog reads the filter catalog from CatalogPath, or returns the
// built-in one when no path is configured.
func (c *Config) LoadCatalog() (*filters.Catalog, error) {
	if c.CatalogPath == "" {
		return filters.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(c.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return filters.ParseCatalog(data)
}

// IsAllowed reports whether a Telegram user may use the bot. An empty
// allow list admits everyone.
func (c *Config) IsAllowed(userID int64) bool {
	if len(c.TelegramAllowUserIDs) == 0 {
		return true
	}
	for _, id := range c.TelegramAllowUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func positiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
