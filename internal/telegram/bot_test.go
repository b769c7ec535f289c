package telegram

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookidoo-planner/internal/app"
	"cookidoo-planner/internal/config"
	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/slots"
	"cookidoo-planner/internal/storage"
)

type stubBackend struct{}

func (stubBackend) GenerateMany(_ context.Context, req planner.PlanRequest) (planner.Plan, error) {
	plan := make(planner.Plan)
	for day, keys := range req.Days {
		plan[day] = make(map[slots.SlotKey]*recipe.Recipe)
		for _, k := range keys {
			plan[day][k] = &recipe.Recipe{ID: day.String() + "-" + string(k), Name: "Linsen_Eintopf", TotalTime: 45 * 60}
		}
	}
	return plan, nil
}

func (stubBackend) GenerateOne(_ context.Context, req planner.SlotRequest) (*recipe.Recipe, error) {
	return &recipe.Recipe{ID: "one-" + string(req.Slot), Name: "Tomatensuppe", TotalTime: 20 * 60}, nil
}

func newTestBot(t *testing.T, allowed ...int64) *Bot {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	a := app.New(store, stubBackend{}, app.Options{Logger: logger})
	return &Bot{app: a, cfg: &config.Config{TelegramAllowUserIDs: allowed}, logger: logger}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  string
		args []string
	}{
		{"/plan", "plan", []string{}},
		{"/Reroll@cookbot mon dinner_main", "reroll", []string{"mon", "dinner_main"}},
		{"  /exclude  fresh  coriander ", "exclude", []string{"fresh", "coriander"}},
		{"hello", "", nil},
		{"", "", nil},
	}
	for _, tt := range tests {
		cmd, args := parseCommand(tt.text)
		if cmd != tt.cmd {
			t.Errorf("parseCommand(%q) cmd = %q, want %q", tt.text, cmd, tt.cmd)
		}
		if strings.Join(args, " ") != strings.Join(tt.args, " ") {
			t.Errorf("parseCommand(%q) args = %v, want %v", tt.text, args, tt.args)
		}
	}
}

func TestFormatPlanMarkdown(t *testing.T) {
	var v planner.View
	for i := range v.Days {
		v.Days[i] = planner.DayView{Day: slots.Day(i), Name: slots.Day(i).String(), State: planner.Unconfigured}
	}
	v.Generated = true
	v.Days[0] = planner.DayView{
		Name:   "Monday",
		State:  planner.Populated,
		Active: []slots.SlotKey{slots.LunchMain, slots.DinnerMain},
		Entries: map[slots.SlotKey]recipe.Recipe{
			slots.LunchMain: {Name: "Chili_sin_Carne", TotalTime: 45 * 60},
		},
	}

	out := formatPlanMarkdown(v)

	if !strings.Contains(out, "📅 *Weekly Meal Plan*") {
		t.Error("Missing plan header")
	}
	if !strings.Contains(out, "*Monday*") {
		t.Error("Missing Monday heading")
	}
	if !strings.Contains(out, `• Lunch main: Chili\_sin\_Carne (45 Min.)`) {
		t.Errorf("Missing escaped lunch entry:\n%s", out)
	}
	if !strings.Contains(out, "• Dinner main: _nothing found_") {
		t.Error("Missing empty dinner entry")
	}
	if strings.Contains(out, "Tuesday") {
		t.Error("Unconfigured days should be skipped")
	}
	if strings.Contains(out, "/generate") {
		t.Error("Generated plan should not ask to generate")
	}

	v.Generated = false
	if !strings.Contains(formatPlanMarkdown(v), "Send /generate") {
		t.Error("Missing generate hint")
	}
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("Help", func(t *testing.T) {
		b := newTestBot(t)
		assert.Equal(t, helpText, b.handleCommand(ctx, 1, "/help"))
		assert.Equal(t, helpText, b.handleCommand(ctx, 1, "what now?"))
		assert.Equal(t, "Unknown command. Send /help.", b.handleCommand(ctx, 1, "/dance"))
	})

	t.Run("GenerateAndReroll", func(t *testing.T) {
		b := newTestBot(t)
		out := b.handleCommand(ctx, 7, "/plan")
		assert.Contains(t, out, "Send /generate")
		assert.Contains(t, out, "• Dinner main\n")

		out = b.handleCommand(ctx, 7, "/generate")
		assert.Contains(t, out, `• Dinner main: Linsen\_Eintopf (45 Min.)`)
		assert.NotContains(t, out, "Send /generate")

		out = b.handleCommand(ctx, 7, "/reroll wed dinner_main")
		assert.Contains(t, out, "Tomatensuppe (20 Min.)")

		out = b.handleCommand(ctx, 7, "/reroll someday dinner_main")
		assert.Contains(t, out, "⚠️")
		assert.Contains(t, out, "unknown day")
	})

	t.Run("Toggle", func(t *testing.T) {
		b := newTestBot(t)
		out := b.handleCommand(ctx, 7, "/on mon lunch")
		assert.Contains(t, out, "• Lunch main")

		b.handleCommand(ctx, 7, "/on mon m_v")
		c, err := b.app.Planner(ctx, userKey(7))
		require.NoError(t, err)
		assert.True(t, c.Config().Matrix.IsActive(slots.Monday, slots.LunchStarter))

		b.handleCommand(ctx, 7, "/off mon lunch")
		assert.False(t, c.Config().Matrix.IsActive(slots.Monday, slots.LunchMain))
		assert.False(t, c.Config().Matrix.IsActive(slots.Monday, slots.LunchStarter))

		assert.Contains(t, b.handleCommand(ctx, 7, "/off mon"), "expected <day> <slot>")
		assert.Contains(t, b.handleCommand(ctx, 7, "/on mon brunch"), "unknown slot")
	})

	t.Run("Ingredients", func(t *testing.T) {
		b := newTestBot(t)
		out := b.handleCommand(ctx, 7, "/exclude Koriander")
		assert.Contains(t, out, "• Exclude: Koriander")
		assert.Equal(t, "Already on the list.", b.handleCommand(ctx, 7, "/exclude Koriander"))
		assert.Equal(t, "Usage: /prefer <ingredient>", b.handleCommand(ctx, 7, "/prefer"))

		out = b.handleCommand(ctx, 7, "/prefer Kichererbsen")
		assert.Contains(t, out, "• Prefer: Kichererbsen")

		c, err := b.app.Planner(ctx, userKey(7))
		require.NoError(t, err)
		assert.Equal(t, filters.Ingredients{"Kichererbsen"}, c.Config().Filters.Prefer)
	})

	t.Run("LogoutKeepsSettings", func(t *testing.T) {
		b := newTestBot(t)
		b.handleCommand(ctx, 7, "/exclude Pilze")
		b.handleCommand(ctx, 7, "/generate")
		assert.Contains(t, b.handleCommand(ctx, 7, "/logout"), "Plan cleared")

		out := b.handleCommand(ctx, 7, "/plan")
		assert.Contains(t, out, "Send /generate")
		assert.Contains(t, b.handleCommand(ctx, 7, "/filters"), "• Exclude: Pilze")
	})

	t.Run("MetricsAdminOnly", func(t *testing.T) {
		b := newTestBot(t, 1, 2)
		assert.Contains(t, b.handleCommand(ctx, 2, "/metrics"), "Admin only")

		out := b.handleCommand(ctx, 1, "/metrics")
		assert.Contains(t, out, "📊 *Usage & Health Report*")
		assert.Contains(t, out, "_No data yet_")
		assert.Contains(t, out, "Goroutines")
	})
}
