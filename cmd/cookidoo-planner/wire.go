package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"cookidoo-planner/internal/app"
	"cookidoo-planner/internal/backend"
	"cookidoo-planner/internal/config"
	"cookidoo-planner/internal/database"
	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/llm"
	"cookidoo-planner/internal/metrics"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/storage"
	"cookidoo-planner/internal/suggest"
)

// services is everything a command needs, plus what must be closed on exit.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *database.DB
	store   storage.Store
	metrics *metrics.Store
	app     *app.App
	closers []func() error
}

func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// loadServices opens storage and, when withBackend is set, the recipe backend.
// Offline commands such as config export skip the backend.
func loadServices(ctx context.Context, withBackend bool) (*services, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	s := &services{cfg: cfg, logger: logger}

	s.db, err = database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s.closers = append(s.closers, s.db.Close)
	s.metrics = metrics.NewStore(s.db.SQL)

	if err := s.openStore(); err != nil {
		s.Close()
		return nil, err
	}

	catalog, err := cfg.LoadCatalog()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	var be planner.Backend = offlineBackend{}
	var suggester *suggest.Debouncer
	if withBackend {
		inner, err := s.newBackend(ctx, catalog)
		if err != nil {
			s.Close()
			return nil, err
		}
		instrumented := backend.NewInstrumented(backend.NewEnricher(inner, logger), s.metrics, logger)
		suggester = suggest.NewDebouncer(instrumented, cfg.SuggestDebounce, logger)
		be = instrumented
	}

	dataPath := cfg.StorePath
	if dataPath == "" {
		dataPath = filepath.Dir(cfg.DatabasePath)
	}
	s.app = app.New(s.store, be, app.Options{
		Logger:      logger,
		Catalog:     catalog,
		MaxParallel: cfg.MaxParallelFetches,
		Suggester:   suggester,
		Metrics:     s.metrics,
		DataPath:    dataPath,
	})
	return s, nil
}

func (s *services) openStore() error {
	switch s.cfg.StoreDriver {
	case config.StoreBadger:
		bs, err := storage.OpenBadgerStore(s.cfg.StorePath, s.logger)
		if err != nil {
			return err
		}
		s.store = bs
		s.closers = append(s.closers, bs.Close)
	case config.StoreFile:
		fs, err := storage.NewFileStore(s.cfg.StorePath)
		if err != nil {
			return fmt.Errorf("failed to initialize file store: %w", err)
		}
		s.store = fs
	default:
		s.store = storage.NewRepository(s.db.SQL)
	}
	return nil
}

func (s *services) newBackend(ctx context.Context, catalog *filters.Catalog) (planner.Backend, error) {
	cfg := s.cfg
	switch cfg.BackendKind {
	case config.BackendGemini:
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
		s.closers = append(s.closers, gemini.Close)
		return backend.NewLLM(gemini, catalog, s.logger), nil
	case config.BackendGroq:
		return backend.NewLLM(llm.NewGroqClient(cfg.GroqAPIKey, cfg.BackendTimeout), catalog, s.logger), nil
	default:
		h, err := backend.NewHTTP(backend.HTTPConfig{
			BaseURL: cfg.BackendURL,
			APIKey:  cfg.BackendAPIKey,
			Timeout: cfg.BackendTimeout,
			RPS:     cfg.BackendRPS,
			Logger:  s.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize backend client: %w", err)
		}
		return h, nil
	}
}

// offlineBackend backs commands that never generate.
type offlineBackend struct{}

var errOffline = errors.New("recipe backend not available in this command")

func (offlineBackend) GenerateMany(context.Context, planner.PlanRequest) (planner.Plan, error) {
	return nil, errOffline
}

func (offlineBackend) GenerateOne(context.Context, planner.SlotRequest) (*recipe.Recipe, error) {
	return nil, errOffline
}
