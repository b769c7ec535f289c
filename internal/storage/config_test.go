package storage

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/slots"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func randomConfig(r *rand.Rand) Config {
	cfg := DefaultConfig()
	var m slots.SlotMatrix
	for _, d := range slots.AllDays {
		for _, g := range []slots.Group{slots.Lunch, slots.Dinner} {
			if r.Intn(2) == 0 {
				continue
			}
			m, _, _ = m.SetMain(d, g, true)
			for _, sub := range g.Subs() {
				if r.Intn(2) == 0 {
					m, _, _ = m.SetSub(d, sub, true)
				}
			}
		}
	}
	cfg.Matrix = m

	pick := func(pool []string) []string {
		var out []string
		for _, s := range pool {
			if r.Intn(3) == 0 {
				out = append(out, s)
			}
		}
		return out
	}
	minutes := func() *int {
		if r.Intn(2) == 0 {
			return nil
		}
		return filters.IntPtr(5 + r.Intn(120))
	}

	cfg.Filters.Categories = pick([]string{"vegan", "vegetarisch", "low carb"})
	cfg.Filters.Cuisines = pick([]string{"indisch", "asiatisch", "mediterran"})
	cfg.Filters.MaxTimeLunch = minutes()
	cfg.Filters.MaxTimeDinner = minutes()
	cfg.Filters.Ratio = r.Intn(101)
	for _, s := range pick([]string{"Tofu", "Pilze", "Koriander", "tofu"}) {
		cfg.Filters, _, _ = cfg.Filters.AddExclude(s)
	}
	for _, s := range pick([]string{"Reis", "Linsen"}) {
		cfg.Filters, _, _ = cfg.Filters.AddPrefer(s)
	}
	for _, d := range slots.AllDays {
		cfg.Overrides[d] = filters.Override{
			Categories: pick([]string{"vegan", "dessert-only"}),
			Cuisines:   pick([]string{"italienisch"}),
			MaxTime:    minutes(),
		}
	}
	return cfg
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		want := randomConfig(r)
		data, err := Serialize(want)
		require.NoError(t, err)
		got := Deserialize(data, discardLogger())
		require.Equal(t, want, got, "iteration %d: %s", i, data)
	}
}

func TestSerializeShape(t *testing.T) {
	data, err := Serialize(DefaultConfig())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.EqualValues(t, Version, m["version"])
	assert.EqualValues(t, 70, m["ratio"])
	assert.Equal(t, []any{}, m["categories"])

	day := m["dayConfig"].(map[string]any)["3"].(map[string]any)
	assert.Equal(t, map[string]any{"m": false, "a": true, "m_v": false, "m_d": false, "a_v": false, "a_d": false}, day)

	override := m["dayFilterOverride"].(map[string]any)["0"].(map[string]any)
	assert.Nil(t, override["max_time"])
}

func TestDeserializeTolerance(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, cfg Config)
	}{
		{
			name:  "Empty",
			input: ``,
			check: func(t *testing.T, cfg Config) { assert.Equal(t, DefaultConfig(), cfg) },
		},
		{
			name:  "NotAnObject",
			input: `[1,2,3]`,
			check: func(t *testing.T, cfg Config) { assert.Equal(t, DefaultConfig(), cfg) },
		},
		{
			name:  "MissingKeysUseDefaults",
			input: `{"version":2,"ratio":40}`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 40, cfg.Filters.Ratio)
				assert.Equal(t, slots.DefaultMatrix(), cfg.Matrix)
				assert.Nil(t, cfg.Filters.Categories)
			},
		},
		{
			name:  "NonArraysBecomeEmpty",
			input: `{"categories":"vegan","cuisines":{"a":1},"excludeIngredients":42,"ratio":55}`,
			check: func(t *testing.T, cfg Config) {
				assert.Nil(t, cfg.Filters.Categories)
				assert.Nil(t, cfg.Filters.Cuisines)
				assert.Nil(t, cfg.Filters.Exclude)
				assert.Equal(t, 55, cfg.Filters.Ratio)
			},
		},
		{
			name:  "UnknownFieldsIgnored",
			input: `{"theme":"dark","ratio":10,"dayConfig":{"0":{"m":true,"x":true}}}`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 10, cfg.Filters.Ratio)
				assert.Equal(t, []slots.SlotKey{slots.LunchMain}, cfg.Matrix.ActiveSlots(slots.Monday))
			},
		},
		{
			name:  "BadRatio",
			input: `{"ratio":250}`,
			check: func(t *testing.T, cfg Config) { assert.Equal(t, filters.DefaultRatio, cfg.Filters.Ratio) },
		},
		{
			name:  "NonStringArrayItemsSkipped",
			input: `{"preferIngredients":["Reis",3," Reis ",null,"Linsen"]}`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, filters.Ingredients{"Reis", "Linsen"}, cfg.Filters.Prefer)
			},
		},
		{
			name:  "MaxTimeVariants",
			input: `{"maxTimeLunch":"30","maxTimeDinner":-5}`,
			check: func(t *testing.T, cfg Config) {
				require.NotNil(t, cfg.Filters.MaxTimeLunch)
				assert.Equal(t, 30, *cfg.Filters.MaxTimeLunch)
				assert.Nil(t, cfg.Filters.MaxTimeDinner)
			},
		},
		{
			name:  "CascadeEnforced",
			input: `{"dayConfig":{"4":{"m":false,"m_v":true,"a":true,"a_d":true}}}`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, []slots.SlotKey{slots.DinnerMain, slots.DinnerDessert}, cfg.Matrix.ActiveSlots(slots.Friday))
			},
		},
		{
			name:  "DayNotAnObjectKeepsDefault",
			input: `{"dayConfig":{"1":true,"2":{"a":false}}}`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, []slots.SlotKey{slots.DinnerMain}, cfg.Matrix.ActiveSlots(slots.Tuesday))
				assert.Empty(t, cfg.Matrix.ActiveSlots(slots.Wednesday))
			},
		},
		{
			name:  "LegacyDays",
			input: `{"days":[0,2,"x",9],"custom_ratio":50}`,
			check: func(t *testing.T, cfg Config) {
				active := cfg.Matrix.ActiveDaySlotMap()
				assert.Equal(t, map[slots.Day][]slots.SlotKey{
					slots.Monday:    {slots.DinnerMain},
					slots.Wednesday: {slots.DinnerMain},
				}, active)
			},
		},
		{
			name:  "OverrideStringOrArray",
			input: `{"dayFilterOverride":{"4":{"category":"","cuisine":"indisch","max_time":25},"5":{"category":["dessert-only"],"cuisine":7},"6":null}}`,
			check: func(t *testing.T, cfg Config) {
				fri := cfg.Overrides[slots.Friday]
				assert.Nil(t, fri.Categories)
				assert.Equal(t, []string{"indisch"}, fri.Cuisines)
				require.NotNil(t, fri.MaxTime)
				assert.Equal(t, 25, *fri.MaxTime)

				sat := cfg.Overrides[slots.Saturday]
				assert.Equal(t, []string{"dessert-only"}, sat.Categories)
				assert.Nil(t, sat.Cuisines)
				assert.True(t, cfg.Overrides[slots.Sunday].IsEmpty())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Deserialize([]byte(tt.input), discardLogger()))
		})
	}
}

func TestDeserializeLogsWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	Deserialize([]byte(`{"ratio":"lots","categories":5}`), logger)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "field=ratio")
	assert.Contains(t, out, "field=categories")
}
