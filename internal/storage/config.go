// Package storage serializes the user's planner configuration and keeps it
// in one of several stores.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/metrics"
	"cookidoo-planner/internal/slots"
)

// Version is the blob format written by Serialize. Blobs without a version
// are the legacy format that only knew a list of enabled days.
const Version = 2

// Config is everything that survives a session: slot activation, global
// filters and per-day overrides. The plan itself is never persisted.
type Config struct {
	Matrix    slots.SlotMatrix
	Filters   filters.FilterSet
	Overrides filters.Overrides
}

// DefaultConfig is used for new users and for blobs that cannot be read at all.
func DefaultConfig() Config {
	return Config{
		Matrix:  slots.DefaultMatrix(),
		Filters: filters.Default(),
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	return Config{
		Matrix:    c.Matrix,
		Filters:   c.Filters.Clone(),
		Overrides: c.Overrides.Clone(),
	}
}

type blob struct {
	Version            int                     `json:"version"`
	Categories         []string                `json:"categories"`
	Cuisines           []string                `json:"cuisines"`
	MaxTimeLunch       *int                    `json:"maxTimeLunch"`
	MaxTimeDinner      *int                    `json:"maxTimeDinner"`
	Ratio              int                     `json:"ratio"`
	DayConfig          map[string]dayBlob      `json:"dayConfig"`
	DayFilterOverride  map[string]overrideBlob `json:"dayFilterOverride"`
	ExcludeIngredients []string                `json:"excludeIngredients"`
	PreferIngredients  []string                `json:"preferIngredients"`
}

type dayBlob map[string]bool

type overrideBlob struct {
	Category []string `json:"category"`
	Cuisine  []string `json:"cuisine"`
	MaxTime  *int     `json:"max_time"`
}

// Serialize encodes the configuration as a versioned JSON blob.
func Serialize(c Config) ([]byte, error) {
	b := blob{
		Version:            Version,
		Categories:         nonNil(c.Filters.Categories),
		Cuisines:           nonNil(c.Filters.Cuisines),
		MaxTimeLunch:       c.Filters.MaxTimeLunch,
		MaxTimeDinner:      c.Filters.MaxTimeDinner,
		Ratio:              c.Filters.Ratio,
		DayConfig:          make(map[string]dayBlob, slots.DaysPerWeek),
		DayFilterOverride:  make(map[string]overrideBlob, slots.DaysPerWeek),
		ExcludeIngredients: nonNil(c.Filters.Exclude),
		PreferIngredients:  nonNil(c.Filters.Prefer),
	}
	for _, d := range slots.AllDays {
		day := make(dayBlob, slots.SlotsPerDay)
		for _, k := range slots.Canonical {
			day[k.BlobKey()] = c.Matrix.IsActive(d, k)
		}
		key := strconv.Itoa(int(d))
		b.DayConfig[key] = day

		o := c.Overrides[d]
		b.DayFilterOverride[key] = overrideBlob{
			Category: nonNil(o.Categories),
			Cuisine:  nonNil(o.Cuisines),
			MaxTime:  o.MaxTime,
		}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Deserialize decodes a blob. It never fails: every field that is missing or
// malformed falls back to its default and a warning is logged.
func Deserialize(data []byte, logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	d := &decoder{logger: logger}
	cfg := DefaultConfig()

	if len(bytes.TrimSpace(data)) == 0 {
		return cfg
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil || root == nil {
		d.warn("", "blob is not a JSON object")
		return cfg
	}

	version := 0
	if raw, ok := root["version"]; ok {
		if v, ok := d.number(raw); ok {
			version = v
		} else {
			d.warn("version", "not a number")
		}
	}
	if version > Version {
		logger.Warn("config blob is newer than this build", "version", version, "supported", Version)
	}

	cfg.Filters.Categories = d.stringList(root, "categories")
	cfg.Filters.Cuisines = d.stringList(root, "cuisines")
	cfg.Filters.MaxTimeLunch = d.maxTime(root["maxTimeLunch"], "maxTimeLunch")
	cfg.Filters.MaxTimeDinner = d.maxTime(root["maxTimeDinner"], "maxTimeDinner")
	cfg.Filters.Ratio = d.ratio(root)
	cfg.Filters.Exclude = filters.Dedupe(d.stringList(root, "excludeIngredients"))
	cfg.Filters.Prefer = filters.Dedupe(d.stringList(root, "preferIngredients"))

	if raw, ok := root["dayConfig"]; ok {
		cfg.Matrix = d.dayConfig(raw)
	} else if raw, ok := root["days"]; ok && version == 0 {
		cfg.Matrix = d.legacyDays(raw)
	}
	matrix, fixed := cfg.Matrix.Normalize()
	for day, removed := range fixed {
		d.warn("dayConfig."+strconv.Itoa(int(day)), fmt.Sprintf("sub slots %v active without main", removed))
	}
	cfg.Matrix = matrix

	if raw, ok := root["dayFilterOverride"]; ok {
		cfg.Overrides = d.overrides(raw)
	}

	if d.warnings > 0 {
		metrics.ConfigDecodeWarnings.Add(float64(d.warnings))
	}
	return cfg
}

type decoder struct {
	logger   *slog.Logger
	warnings int
}

func (d *decoder) warn(field, reason string) {
	d.warnings++
	d.logger.Warn("config field reset to default", "field", field, "reason", reason)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// number accepts integral JSON numbers and numeric strings.
func (d *decoder) number(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		return n, err == nil
	}
	return 0, false
}

func (d *decoder) stringList(root map[string]json.RawMessage, field string) []string {
	raw, ok := root[field]
	if !ok || isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		d.warn(field, "not an array")
		return nil
	}
	return d.stringItems(items, field)
}

func (d *decoder) stringItems(items []json.RawMessage, field string) []string {
	var out []string
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			d.warn(fmt.Sprintf("%s[%d]", field, i), "not a string")
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stringOrList is used for override fields, which older clients wrote as a
// single string with "" meaning no override.
func (d *decoder) stringOrList(raw json.RawMessage, field string) []string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return []string{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		d.warn(field, "neither a string nor an array")
		return nil
	}
	return d.stringItems(items, field)
}

func (d *decoder) maxTime(raw json.RawMessage, field string) *int {
	if isNull(raw) {
		return nil
	}
	n, ok := d.number(raw)
	if !ok || n <= 0 {
		// an empty string is how the form wrote "no limit"
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) == "" {
			return nil
		}
		d.warn(field, "not a positive number of minutes")
		return nil
	}
	return filters.IntPtr(n)
}

func (d *decoder) ratio(root map[string]json.RawMessage) int {
	raw, ok := root["ratio"]
	if !ok || isNull(raw) {
		return filters.DefaultRatio
	}
	n, ok := d.number(raw)
	if !ok || n < 0 || n > 100 {
		d.warn("ratio", "not a number between 0 and 100")
		return filters.DefaultRatio
	}
	return n
}

func (d *decoder) dayConfig(raw json.RawMessage) slots.SlotMatrix {
	matrix := slots.DefaultMatrix()
	var days map[string]json.RawMessage
	if err := json.Unmarshal(raw, &days); err != nil {
		d.warn("dayConfig", "not an object")
		return matrix
	}
	for key, dayRaw := range days {
		day, err := slots.ParseDay(key)
		if err != nil {
			continue
		}
		var flags map[string]json.RawMessage
		if err := json.Unmarshal(dayRaw, &flags); err != nil || flags == nil {
			d.warn("dayConfig."+key, "not an object")
			continue
		}
		var row slots.DaySlots
		for _, k := range slots.Canonical {
			v, ok := flags[k.BlobKey()]
			if !ok || isNull(v) {
				continue
			}
			var on bool
			if err := json.Unmarshal(v, &on); err != nil {
				d.warn("dayConfig."+key+"."+k.BlobKey(), "not a boolean")
				continue
			}
			row[k.Index()] = on
		}
		matrix[day] = row
	}
	return matrix
}

// legacyDays maps the v1 list of enabled day indexes to dinner mains.
func (d *decoder) legacyDays(raw json.RawMessage) slots.SlotMatrix {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		d.warn("days", "not an array")
		return slots.DefaultMatrix()
	}
	var matrix slots.SlotMatrix
	for i, item := range items {
		n, ok := d.number(item)
		if !ok || !slots.Day(n).Valid() {
			d.warn(fmt.Sprintf("days[%d]", i), "not a day index")
			continue
		}
		matrix[n][slots.DinnerMain.Index()] = true
	}
	return matrix
}

func (d *decoder) overrides(raw json.RawMessage) filters.Overrides {
	var out filters.Overrides
	var days map[string]json.RawMessage
	if err := json.Unmarshal(raw, &days); err != nil {
		d.warn("dayFilterOverride", "not an object")
		return out
	}
	for key, dayRaw := range days {
		day, err := slots.ParseDay(key)
		if err != nil {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(dayRaw, &fields); err != nil {
			if !isNull(dayRaw) {
				d.warn("dayFilterOverride."+key, "not an object")
			}
			continue
		}
		prefix := "dayFilterOverride." + key + "."
		out[day] = filters.Override{
			Categories: d.stringOrList(fields["category"], prefix+"category"),
			Cuisines:   d.stringOrList(fields["cuisine"], prefix+"cuisine"),
			MaxTime:    d.maxTime(fields["max_time"], prefix+"max_time"),
		}
	}
	return out
}
