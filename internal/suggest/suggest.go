// Package suggest serves ingredient suggestions for a search box: queries
// are debounced per caller and identical in-flight queries share one lookup.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"cookidoo-planner/internal/metrics"
)

const (
	// MinQueryLen is the shortest query that is looked up.
	MinQueryLen = 2
	// Limit caps the number of suggestions returned.
	Limit = 10
)

// ErrSuperseded is returned to a caller whose query was replaced by a newer
// one from the same key before it finished.
var ErrSuperseded = errors.New("suggestion query superseded")

// Source looks up ingredient names.
type Source interface {
	SuggestIngredients(ctx context.Context, query string, limit int) ([]string, error)
}

// Debouncer sits between a search box and a Source.
type Debouncer struct {
	source Source
	delay  time.Duration
	logger *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	seq   map[string]uint64
}

func NewDebouncer(source Source, delay time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{source: source, delay: delay, logger: logger, seq: make(map[string]uint64)}
}

// Suggest waits for the debounce delay and looks the query up unless the
// same key asked again in the meantime. Queries shorter than MinQueryLen
// return no suggestions.
func (d *Debouncer) Suggest(ctx context.Context, key, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	mine := d.next(key)
	if utf8.RuneCountInString(query) < MinQueryLen {
		metrics.SuggestQueries.WithLabelValues("short").Inc()
		return nil, nil
	}

	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if !d.current(key, mine) {
		metrics.SuggestQueries.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}

	ch := d.group.DoChan(strings.ToLower(query), func() (any, error) {
		return d.source.SuggestIngredients(context.WithoutCancel(ctx), query, Limit)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		metrics.SuggestQueries.WithLabelValues(metrics.OutcomeError).Inc()
		d.logger.Warn("ingredient suggestion failed", "query", query, "error", res.Err)
		return nil, fmt.Errorf("suggest ingredients: %w", res.Err)
	}
	if !d.current(key, mine) {
		metrics.SuggestQueries.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}

	names := clean(res.Val.([]string))
	outcome := metrics.OutcomeOK
	if len(names) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.SuggestQueries.WithLabelValues(outcome).Inc()
	return names, nil
}

func (d *Debouncer) next(key string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq[key]++
	return d.seq[key]
}

func (d *Debouncer) current(key string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq[key] == seq
}

// clean drops blanks and case-insensitive duplicates and caps the list.
func clean(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, min(len(names), Limit))
	for _, n := range names {
		n = strings.TrimSpace(n)
		k := strings.ToLower(n)
		if n == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
		if len(out) == Limit {
			break
		}
	}
	return out
}
