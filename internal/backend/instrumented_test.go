package backend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookidoo-planner/internal/metrics"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/shared"
	"cookidoo-planner/internal/slots"
)

type fakeRecorder struct {
	mu    sync.Mutex
	metas []shared.CallMeta
}

func (f *fakeRecorder) RecordMeta(_ context.Context, meta shared.CallMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metas = append(f.metas, meta)
	return nil
}

func TestInstrumented(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordsOutcomes", func(t *testing.T) {
		rec := &fakeRecorder{}
		next := &stubBackend{recipe: &recipe.Recipe{ID: "r1"}}
		b := NewInstrumented(next, rec, nil)

		_, err := b.GenerateOne(ctx, planner.SlotRequest{})
		require.NoError(t, err)

		next.recipe = nil
		_, err = b.GenerateOne(ctx, planner.SlotRequest{})
		require.NoError(t, err)

		next.err = errors.New("down")
		_, err = b.GenerateMany(ctx, planner.PlanRequest{})
		require.Error(t, err)

		require.Len(t, rec.metas, 3)
		assert.Equal(t, OpGenerateOne, rec.metas[0].Operation)
		assert.Equal(t, metrics.OutcomeOK, rec.metas[0].Outcome)
		assert.Equal(t, metrics.OutcomeEmpty, rec.metas[1].Outcome)
		assert.Equal(t, OpGenerateMany, rec.metas[2].Operation)
		assert.Equal(t, metrics.OutcomeError, rec.metas[2].Outcome)
	})

	t.Run("CollectsTokenUsage", func(t *testing.T) {
		rec := &fakeRecorder{}
		gen := &fakeGenerator{replies: []string{`{"recipes": [{"day": 0, "slot": "dinner_main", "name": "Dal"}]}`}}
		b := NewInstrumented(NewLLM(gen, nil, nil), rec, nil)

		plan, err := b.GenerateMany(ctx, planner.PlanRequest{
			Days: map[slots.Day][]slots.SlotKey{slots.Monday: {slots.DinnerMain}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Dal", plan[slots.Monday][slots.DinnerMain].Name)

		require.Len(t, rec.metas, 1)
		assert.Equal(t, 100, rec.metas[0].Usage.PromptTokens)
		assert.Equal(t, 20, rec.metas[0].Usage.CompletionTokens)
		assert.Equal(t, "fake", rec.metas[0].Usage.Model)
	})

	t.Run("Suggest", func(t *testing.T) {
		gen := &fakeGenerator{replies: []string{`{"ingredients": ["Tofu"]}`}}
		names, err := NewInstrumented(NewLLM(gen, nil, nil), nil, nil).SuggestIngredients(ctx, "to", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"Tofu"}, names)

		names, err = NewInstrumented(&stubBackend{}, nil, nil).SuggestIngredients(ctx, "to", 10)
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}
