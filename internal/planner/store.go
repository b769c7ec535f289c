package planner

import (
	"maps"

	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/slots"
)

// Store holds the generated plan: a sparse (day, slot) map of recipes, the
// displayed slot per day and whether a bulk generate ever succeeded.
// It is not safe for concurrent use; the Controller guards it.
type Store struct {
	entries   map[slots.Day]map[slots.SlotKey]recipe.Recipe
	nav       map[slots.Day]slots.SlotKey
	generated bool
}

func NewStore() *Store {
	return &Store{
		entries: make(map[slots.Day]map[slots.SlotKey]recipe.Recipe),
		nav:     make(map[slots.Day]slots.SlotKey),
	}
}

func (s *Store) Get(day slots.Day, slot slots.SlotKey) (recipe.Recipe, bool) {
	r, ok := s.entries[day][slot]
	return r, ok
}

func (s *Store) Set(day slots.Day, slot slots.SlotKey, r recipe.Recipe) {
	if s.entries[day] == nil {
		s.entries[day] = make(map[slots.SlotKey]recipe.Recipe)
	}
	s.entries[day][slot] = r
}

func (s *Store) Delete(day slots.Day, slot slots.SlotKey) {
	delete(s.entries[day], slot)
	if len(s.entries[day]) == 0 {
		delete(s.entries, day)
	}
}

// Replace swaps in a complete set of entries and marks the plan generated.
func (s *Store) Replace(entries map[slots.Day]map[slots.SlotKey]recipe.Recipe) {
	s.entries = make(map[slots.Day]map[slots.SlotKey]recipe.Recipe, len(entries))
	for day, row := range entries {
		for slot, r := range row {
			s.Set(day, slot, r)
		}
	}
	s.generated = true
}

// Clear drops every entry and nav pointer and resets the generated flag.
func (s *Store) Clear() {
	s.entries = make(map[slots.Day]map[slots.SlotKey]recipe.Recipe)
	s.nav = make(map[slots.Day]slots.SlotKey)
	s.generated = false
}

func (s *Store) Generated() bool {
	return s.generated
}

func (s *Store) Nav(day slots.Day) (slots.SlotKey, bool) {
	k, ok := s.nav[day]
	return k, ok
}

// SyncNav keeps the day's pointer if it is still active, otherwise moves it
// to the first active slot or clears it.
func (s *Store) SyncNav(m slots.SlotMatrix, day slots.Day) {
	if cur, ok := s.nav[day]; ok && m.IsActive(day, cur) {
		return
	}
	active := m.ActiveSlots(day)
	if len(active) == 0 {
		delete(s.nav, day)
		return
	}
	s.nav[day] = active[0]
}

func (s *Store) setNav(day slots.Day, slot slots.SlotKey) {
	s.nav[day] = slot
}

// RecipeIDs lists the ids of every entry except the given one.
func (s *Store) RecipeIDs(skipDay slots.Day, skipSlot slots.SlotKey) []string {
	var ids []string
	for _, day := range slots.AllDays {
		for _, slot := range slots.Canonical {
			if day == skipDay && slot == skipSlot {
				continue
			}
			if r, ok := s.entries[day][slot]; ok && r.ID != "" {
				ids = append(ids, r.ID)
			}
		}
	}
	return ids
}

// Snapshot is a deep copy of the store.
type Snapshot struct {
	Entries   map[slots.Day]map[slots.SlotKey]recipe.Recipe
	Nav       map[slots.Day]slots.SlotKey
	Generated bool
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Entries:   make(map[slots.Day]map[slots.SlotKey]recipe.Recipe, len(s.entries)),
		Nav:       maps.Clone(s.nav),
		Generated: s.generated,
	}
	for day, row := range s.entries {
		snap.Entries[day] = maps.Clone(row)
	}
	return snap
}
