// Package filters holds the global recipe filters, the per-day overrides and
// the rules that resolve them into the effective filter of a day.
package filters

import (
	"slices"

	"cookidoo-planner/internal/slots"
)

// DefaultRatio is the default percentage of recipes taken from the user's own collection.
const DefaultRatio = 70

// FilterSet is the global filter configuration.
type FilterSet struct {
	Categories    []string    `json:"categories" validate:"dive,required,catalog_category"`
	Cuisines      []string    `json:"cuisines" validate:"dive,required,catalog_cuisine"`
	MaxTimeLunch  *int        `json:"maxTimeLunch,omitempty" validate:"omitempty,gt=0"`
	MaxTimeDinner *int        `json:"maxTimeDinner,omitempty" validate:"omitempty,gt=0"`
	Ratio         int         `json:"ratio" validate:"gte=0,lte=100"`
	Exclude       Ingredients `json:"excludeIngredients" validate:"dive,required"`
	Prefer        Ingredients `json:"preferIngredients" validate:"dive,required"`
}

// Default returns a FilterSet with no restrictions and the default ratio.
func Default() FilterSet {
	return FilterSet{Ratio: DefaultRatio}
}

// Clone returns a deep copy.
func (f FilterSet) Clone() FilterSet {
	f.Categories = slices.Clone(f.Categories)
	f.Cuisines = slices.Clone(f.Cuisines)
	f.MaxTimeLunch = clonePtr(f.MaxTimeLunch)
	f.MaxTimeDinner = clonePtr(f.MaxTimeDinner)
	f.Exclude = slices.Clone(f.Exclude)
	f.Prefer = slices.Clone(f.Prefer)
	return f
}

// ActiveCount is the number of dimensions that differ from the defaults.
func (f FilterSet) ActiveCount() int {
	n := 0
	if len(f.Categories) > 0 {
		n++
	}
	if len(f.Cuisines) > 0 {
		n++
	}
	if f.MaxTimeLunch != nil || f.MaxTimeDinner != nil {
		n++
	}
	if f.Ratio != DefaultRatio {
		n++
	}
	if len(f.Exclude) > 0 {
		n++
	}
	if len(f.Prefer) > 0 {
		n++
	}
	return n
}

// Override replaces individual global fields for one day. Empty fields fall back.
type Override struct {
	Categories []string `json:"categories" validate:"dive,required,catalog_category"`
	Cuisines   []string `json:"cuisines" validate:"dive,required,catalog_cuisine"`
	MaxTime    *int     `json:"maxTime,omitempty" validate:"omitempty,gt=0"`
}

func (o Override) IsEmpty() bool {
	return len(o.Categories) == 0 && len(o.Cuisines) == 0 && o.MaxTime == nil
}

func (o Override) Clone() Override {
	return Override{
		Categories: slices.Clone(o.Categories),
		Cuisines:   slices.Clone(o.Cuisines),
		MaxTime:    clonePtr(o.MaxTime),
	}
}

// Overrides is indexed by day.
type Overrides [slots.DaysPerWeek]Override

func (o Overrides) Clone() Overrides {
	var out Overrides
	for i := range o {
		out[i] = o[i].Clone()
	}
	return out
}

// Effective is the filter a backend request runs with for one day.
type Effective struct {
	Categories    []string `json:"categories"`
	Cuisines      []string `json:"cuisines"`
	MaxTimeLunch  *int     `json:"maxTimeLunch,omitempty"`
	MaxTimeDinner *int     `json:"maxTimeDinner,omitempty"`
}

// Resolve merges an override onto the global filters. Ratio and ingredient
// lists are never overridden.
func Resolve(global FilterSet, o Override) Effective {
	e := Effective{
		Categories:    slices.Clone(global.Categories),
		Cuisines:      slices.Clone(global.Cuisines),
		MaxTimeLunch:  clonePtr(global.MaxTimeLunch),
		MaxTimeDinner: clonePtr(global.MaxTimeDinner),
	}
	if len(o.Categories) > 0 {
		e.Categories = slices.Clone(o.Categories)
	}
	if len(o.Cuisines) > 0 {
		e.Cuisines = slices.Clone(o.Cuisines)
	}
	if o.MaxTime != nil {
		e.MaxTimeLunch = clonePtr(o.MaxTime)
		e.MaxTimeDinner = clonePtr(o.MaxTime)
	}
	return e
}

// MaxTimeFor picks the limit of the meal group the slot belongs to.
func (e Effective) MaxTimeFor(slot slots.SlotKey) *int {
	if slot.Group() == slots.Lunch {
		return e.MaxTimeLunch
	}
	return e.MaxTimeDinner
}

// MaxTimeFor resolves the max time for a single slot of a day.
func MaxTimeFor(global FilterSet, o Override, slot slots.SlotKey) *int {
	return Resolve(global, o).MaxTimeFor(slot)
}

// IntPtr is a convenience for optional minute values.
func IntPtr(v int) *int {
	return &v
}

func clonePtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
