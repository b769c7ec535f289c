package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cookidoo-planner/internal/metrics"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/shared"
)

// Operation labels for recorded calls.
const (
	OpGenerateMany = "generate_many"
	OpGenerateOne  = "generate_one"
	OpSuggest      = "suggest"
)

// CallRecorder stores call metadata. *metrics.Store implements it.
type CallRecorder interface {
	RecordMeta(ctx context.Context, meta shared.CallMeta) error
}

// IngredientSuggester is implemented by backends that can suggest ingredient names.
type IngredientSuggester interface {
	SuggestIngredients(ctx context.Context, query string, limit int) ([]string, error)
}

// Instrumented records every backend call in Prometheus and, when a
// recorder is set, in the call log.
type Instrumented struct {
	next     planner.Backend
	recorder CallRecorder
	logger   *slog.Logger
}

// NewInstrumented wraps a backend. recorder may be nil.
func NewInstrumented(next planner.Backend, recorder CallRecorder, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{next: next, recorder: recorder, logger: logger}
}

func (i *Instrumented) GenerateMany(ctx context.Context, req planner.PlanRequest) (planner.Plan, error) {
	ctx, usage := withUsage(ctx)
	start := time.Now()
	plan, err := i.next.GenerateMany(ctx, req)
	outcome := metrics.OutcomeOK
	if err == nil && len(plan) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	i.observe(ctx, OpGenerateMany, outcome, err, usage.get(), time.Since(start))
	return plan, err
}

func (i *Instrumented) GenerateOne(ctx context.Context, req planner.SlotRequest) (*recipe.Recipe, error) {
	ctx, usage := withUsage(ctx)
	start := time.Now()
	r, err := i.next.GenerateOne(ctx, req)
	outcome := metrics.OutcomeOK
	if err == nil && r == nil {
		outcome = metrics.OutcomeEmpty
	}
	i.observe(ctx, OpGenerateOne, outcome, err, usage.get(), time.Since(start))
	return r, err
}

// SuggestIngredients forwards to the wrapped backend when it can suggest.
func (i *Instrumented) SuggestIngredients(ctx context.Context, query string, limit int) ([]string, error) {
	s, ok := i.next.(IngredientSuggester)
	if !ok {
		return nil, nil
	}
	ctx, usage := withUsage(ctx)
	start := time.Now()
	names, err := s.SuggestIngredients(ctx, query, limit)
	outcome := metrics.OutcomeOK
	if err == nil && len(names) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	i.observe(ctx, OpSuggest, outcome, err, usage.get(), time.Since(start))
	return names, err
}

func (i *Instrumented) observe(ctx context.Context, op, outcome string, err error, usage shared.TokenUsage, latency time.Duration) {
	if err != nil {
		outcome = metrics.OutcomeError
		i.logger.Warn("backend call failed", "operation", op, "error", err, "duration", latency)
	}
	metrics.BackendCalls.WithLabelValues(op, outcome).Inc()
	metrics.BackendLatency.WithLabelValues(op).Observe(latency.Seconds())

	if i.recorder == nil {
		return
	}
	meta := shared.CallMeta{Operation: op, Outcome: outcome, Usage: usage, Latency: latency}
	if err := i.recorder.RecordMeta(context.WithoutCancel(ctx), meta); err != nil {
		i.logger.Warn("failed to record backend call", "operation", op, "error", err)
	}
}

type usageKey struct{}

// usageBox collects token usage reported by a backend during one call.
type usageBox struct {
	mu    sync.Mutex
	usage shared.TokenUsage
}

func withUsage(ctx context.Context) (context.Context, *usageBox) {
	box := &usageBox{}
	return context.WithValue(ctx, usageKey{}, box), box
}

func (b *usageBox) get() shared.TokenUsage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage
}

// reportUsage adds token usage to the call in ctx, if it is being instrumented.
func reportUsage(ctx context.Context, u shared.TokenUsage) {
	box, ok := ctx.Value(usageKey{}).(*usageBox)
	if !ok {
		return
	}
	box.mu.Lock()
	defer box.mu.Unlock()
	box.usage.PromptTokens += u.PromptTokens
	box.usage.CompletionTokens += u.CompletionTokens
	box.usage.TotalTokens += u.TotalTokens
	if u.Model != "" {
		box.usage.Model = u.Model
	}
}
