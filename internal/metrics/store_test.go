package metrics

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookidoo-planner/internal/database"
	"cookidoo-planner/internal/shared"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "metrics.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RecordMeta(ctx, shared.CallMeta{
		Operation: "generate_many",
		Outcome:   OutcomeOK,
		Usage:     shared.TokenUsage{PromptTokens: 100, CompletionTokens: 40, Model: "gemini"},
		Latency:   200 * time.Millisecond,
	}))
	require.NoError(t, s.Record(ctx, CallRecord{Operation: "generate_one", Outcome: OutcomeError, LatencyMS: 400}))
	require.NoError(t, s.Record(ctx, CallRecord{
		Operation: "generate_one",
		Outcome:   OutcomeOK,
		LatencyMS: 10,
		Timestamp: time.Now().UTC().AddDate(0, 0, -40),
	}))

	t.Run("DailyUsage", func(t *testing.T) {
		usage, err := s.GetDailyUsage(ctx, 7)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, 2, usage[0].Calls)
		assert.Equal(t, 1, usage[0].Failures)
		assert.Equal(t, 100, usage[0].TotalPrompt)
		assert.Equal(t, 40, usage[0].TotalCompletion)
		assert.Equal(t, int64(300), usage[0].AvgLatencyMS)
	})

	t.Run("Cleanup", func(t *testing.T) {
		n, err := s.Cleanup(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		usage, err := s.GetDailyUsage(ctx, 60)
		require.NoError(t, err)
		require.Len(t, usage, 1)
	})
}

func TestGetSysHealth(t *testing.T) {
	h := GetSysHealth(t.TempDir())
	assert.Positive(t, h.Goroutines)
	assert.Equal(t, "0 B", h.DataDiskSize)

	assert.Empty(t, GetSysHealth("").DataDiskSize)
}
