package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookidoo-planner/internal/database"
	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/shared"
	"cookidoo-planner/internal/slots"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("MissingIsNil", func(t *testing.T) {
		blob, err := s.Load(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, blob)
	})

	t.Run("SaveLoadOverwrite", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "anna", []byte(`{"ratio":1}`)))
		require.NoError(t, s.Save(ctx, "anna", []byte(`{"ratio":2}`)))
		blob, err := s.Load(ctx, "anna")
		require.NoError(t, err)
		assert.JSONEq(t, `{"ratio":2}`, string(blob))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "anna"))
		blob, err := s.Load(ctx, "anna")
		require.NoError(t, err)
		assert.Nil(t, blob)
		assert.NoError(t, s.Delete(ctx, "anna"))
	})

	t.Run("InvalidUser", func(t *testing.T) {
		_, err := s.Load(ctx, "../etc")
		assert.True(t, shared.IsValidation(err))
		assert.True(t, shared.IsValidation(s.Save(ctx, " ", nil)))
	})
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "configs")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Save(context.Background(), "ben", []byte(`{}`)))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ben.json", entries[0].Name())
}

func TestRepository(t *testing.T) {
	db, err := database.NewDB(filepath.Join(t.TempDir(), "planner.db"), discardLogger())
	require.NoError(t, err)
	defer db.Close()

	r := NewRepository(db.SQL)
	exerciseStore(t, r)

	ctx := context.Background()
	require.NoError(t, r.Save(ctx, "carla", []byte(`{}`)))
	require.NoError(t, r.Save(ctx, "ben", []byte(`{}`)))
	users, err := r.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ben", "carla"}, users)
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadgerStore("", discardLogger())
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Close())
	_, err = s.Load(context.Background(), "anna")
	assert.True(t, errors.Is(err, ErrClosed))
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Save(context.Context, string, []byte) error   { return f.err }
func (f failingStore) Delete(context.Context, string) error         { return f.err }

func TestPersister(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	p := NewPersister(s, "dora", discardLogger())

	t.Run("DefaultsWhenMissing", func(t *testing.T) {
		cfg, err := p.LoadConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("SaveThenLoad", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Matrix, _, _ = cfg.Matrix.SetMain(slots.Monday, slots.Lunch, true)
		cfg.Filters, _, _ = cfg.Filters.AddExclude("Tofu")
		cfg.Overrides[slots.Friday] = filters.Override{MaxTime: filters.IntPtr(20)}

		require.NoError(t, p.SaveConfig(ctx, cfg))
		got, err := p.LoadConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)
	})

	t.Run("LoadFailureReturnsDefaults", func(t *testing.T) {
		boom := errors.New("disk gone")
		cfg, err := NewPersister(failingStore{err: boom}, "dora", discardLogger()).LoadConfig(ctx)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, DefaultConfig(), cfg)
	})
}
