// Package app holds the application's dependencies and the planner
// controllers of the users that are currently active.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/metrics"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/shared"
	"cookidoo-planner/internal/storage"
	"cookidoo-planner/internal/suggest"
)

// Options carries the optional dependencies of an App.
type Options struct {
	Logger      *slog.Logger
	Catalog     *filters.Catalog
	MaxParallel int
	Suggester   *suggest.Debouncer
	Metrics     *metrics.Store
	// DataPath is reported in the health check.
	DataPath string
}

// App holds the application's dependencies.
type App struct {
	store     storage.Store
	backend   planner.Backend
	suggester *suggest.Debouncer
	metrics   *metrics.Store
	catalog   *filters.Catalog
	opts      planner.Options
	dataPath  string
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*planner.Controller
}

// New creates and initializes a new App instance.
func New(store storage.Store, backend planner.Backend, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Catalog == nil {
		opts.Catalog = filters.DefaultCatalog()
	}
	return &App{
		store:     store,
		backend:   backend,
		suggester: opts.Suggester,
		metrics:   opts.Metrics,
		catalog:   opts.Catalog,
		opts: planner.Options{
			Logger:      opts.Logger,
			Catalog:     opts.Catalog,
			MaxParallel: opts.MaxParallel,
		},
		dataPath: opts.DataPath,
		logger:   opts.Logger,
		sessions: make(map[string]*planner.Controller),
	}
}

// Catalog returns the filter catalog in use.
func (a *App) Catalog() *filters.Catalog {
	return a.catalog
}

// Planner returns the user's controller, loading the stored configuration
// the first time the user shows up. A store that cannot be read yields the
// default configuration.
func (a *App) Planner(ctx context.Context, userID string) (*planner.Controller, error) {
	a.mu.Lock()
	c, ok := a.sessions[userID]
	a.mu.Unlock()
	if ok {
		return c, nil
	}

	persister := storage.NewPersister(a.store, userID, a.logger)
	cfg, err := persister.LoadConfig(ctx)
	if err != nil {
		if shared.IsValidation(err) {
			return nil, err
		}
		a.logger.Warn("using default config", "user", userID, "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// another request may have started the session while we were loading
	if c, ok := a.sessions[userID]; ok {
		return c, nil
	}
	c = planner.New(cfg, a.backend, persister, a.opts)
	a.sessions[userID] = c
	a.logger.Debug("planner session started", "user", userID)
	return c, nil
}

// Logout clears the user's plan and ends the session. The configuration
// stays stored.
func (a *App) Logout(userID string) {
	a.mu.Lock()
	c, ok := a.sessions[userID]
	delete(a.sessions, userID)
	a.mu.Unlock()
	if ok {
		c.Clear()
	}
}

// ExportConfig returns the user's configuration as an indented blob.
func (a *App) ExportConfig(ctx context.Context, userID string) ([]byte, error) {
	a.mu.Lock()
	c := a.sessions[userID]
	a.mu.Unlock()

	var cfg storage.Config
	if c != nil {
		cfg = c.Config()
	} else {
		var err error
		if cfg, err = storage.NewPersister(a.store, userID, a.logger).LoadConfig(ctx); err != nil {
			return nil, err
		}
	}
	data, err := storage.Serialize(cfg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent config: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ImportConfig replaces the user's configuration with a blob. Malformed
// fields fall back to defaults; filters the catalog does not know are rejected.
func (a *App) ImportConfig(ctx context.Context, userID string, data []byte) error {
	cfg := storage.Deserialize(data, a.logger.With("user", userID))

	a.mu.Lock()
	c := a.sessions[userID]
	a.mu.Unlock()
	if c != nil {
		return c.ReplaceConfig(ctx, cfg)
	}

	if err := a.catalog.Validate(cfg.Filters); err != nil {
		return err
	}
	for _, o := range cfg.Overrides {
		if err := a.catalog.ValidateOverride(o); err != nil {
			return err
		}
	}
	return storage.NewPersister(a.store, userID, a.logger).SaveConfig(ctx, cfg)
}

// DeleteConfig ends the user's session and removes the stored configuration.
// The next session starts from defaults.
func (a *App) DeleteConfig(ctx context.Context, userID string) error {
	a.Logout(userID)
	if err := storage.NewPersister(a.store, userID, a.logger).DeleteConfig(ctx); err != nil {
		return err
	}
	a.logger.Info("configuration deleted", "user", userID)
	return nil
}

// Suggest returns ingredient suggestions for a search box identified by key.
func (a *App) Suggest(ctx context.Context, key, query string) ([]string, error) {
	if a.suggester == nil {
		return nil, nil
	}
	return a.suggester.Suggest(ctx, key, query)
}

// Usage returns backend call totals for the last days. Without a metrics
// store it reports nothing.
func (a *App) Usage(ctx context.Context, days int) ([]metrics.DailyUsage, error) {
	if a.metrics == nil {
		return nil, nil
	}
	return a.metrics.GetDailyUsage(ctx, days)
}

// CleanupMetrics removes call records older than the given number of days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	if a.metrics == nil {
		return 0, nil
	}
	n, err := a.metrics.Cleanup(ctx, days)
	if err != nil {
		return 0, err
	}
	a.logger.Info("metrics cleanup", "removed", n, "older_than_days", days)
	return n, nil
}

// Health reports process metrics.
func (a *App) Health() metrics.SysHealth {
	return metrics.GetSysHealth(a.dataPath)
}
