package planner

import (
	"context"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/slots"
)

// Backend picks recipes. Implementations own transport concerns such as
// timeouts and retries; the controller only sees results or failures.
type Backend interface {
	GenerateMany(ctx context.Context, req PlanRequest) (Plan, error)
	GenerateOne(ctx context.Context, req SlotRequest) (*recipe.Recipe, error)
}

// PlanRequest asks for a recipe for every active slot of the week.
type PlanRequest struct {
	Days               map[slots.Day][]slots.SlotKey   `json:"days"`
	Filters            map[slots.Day]filters.Effective `json:"filters"`
	Ratio              int                             `json:"ratio"`
	ExcludeIngredients []string                        `json:"exclude_ingredients"`
	PreferIngredients  []string                        `json:"prefer_ingredients"`
}

// SlotRequest asks for a single recipe.
type SlotRequest struct {
	Day                slots.Day         `json:"day"`
	Slot               slots.SlotKey     `json:"slot"`
	Filter             filters.Effective `json:"filter"`
	Ratio              int               `json:"ratio"`
	ExcludeIngredients []string          `json:"exclude_ingredients"`
	PreferIngredients  []string          `json:"prefer_ingredients"`
	ExcludeRecipeIDs   []string          `json:"exclude_recipe_ids"`
}

// MaxTime is the limit in minutes that applies to the requested slot.
func (r SlotRequest) MaxTime() *int {
	return r.Filter.MaxTimeFor(r.Slot)
}

// Plan is a backend response. A nil recipe means nothing matched.
type Plan map[slots.Day]map[slots.SlotKey]*recipe.Recipe
