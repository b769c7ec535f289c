package slots

import (
	"cookidoo-planner/internal/shared"
)

// DaySlots holds the activation flags of one day in canonical order.
type DaySlots [SlotsPerDay]bool

// SlotMatrix is the per-day activation state. It is a value type: every
// transition returns a new matrix and leaves the receiver untouched.
type SlotMatrix [DaysPerWeek]DaySlots

// Change lists the slots a transition turned on or off.
type Change struct {
	Added   []SlotKey
	Removed []SlotKey
}

func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// DefaultMatrix activates dinner_main on every day.
func DefaultMatrix() SlotMatrix {
	var m SlotMatrix
	for d := range m {
		m[d][DinnerMain.Index()] = true
	}
	return m
}

func checkDay(day Day) error {
	if !day.Valid() {
		return shared.Invalid("day", "index %d out of range", int(day))
	}
	return nil
}

// IsActive reports whether the slot is active on the day. Invalid input is inactive.
func (m SlotMatrix) IsActive(day Day, slot SlotKey) bool {
	i := slot.Index()
	if !day.Valid() || i < 0 {
		return false
	}
	return m[day][i]
}

// SetMain switches a group's main slot. Deactivating a main also deactivates
// both sub slots; Change.Removed carries every slot that was active before.
func (m SlotMatrix) SetMain(day Day, group Group, active bool) (SlotMatrix, Change, error) {
	if err := checkDay(day); err != nil {
		return m, Change{}, err
	}
	if !group.Valid() {
		return m, Change{}, shared.Invalid("group", "unknown meal group %q", group)
	}
	next := m
	main := group.Main()
	if active {
		if m.IsActive(day, main) {
			return next, Change{}, nil
		}
		next[day][main.Index()] = true
		return next, Change{Added: []SlotKey{main}}, nil
	}

	var removed []SlotKey
	// canonical order: starter, main, dessert
	for _, k := range [3]SlotKey{group.Subs()[0], main, group.Subs()[1]} {
		if m.IsActive(day, k) {
			removed = append(removed, k)
		}
		next[day][k.Index()] = false
	}
	return next, Change{Removed: removed}, nil
}

// SetSub switches a starter or dessert slot. Activating a sub whose main is
// inactive is rejected as a no-op.
func (m SlotMatrix) SetSub(day Day, slot SlotKey, active bool) (SlotMatrix, Change, error) {
	if err := checkDay(day); err != nil {
		return m, Change{}, err
	}
	if !slot.Valid() {
		return m, Change{}, shared.Invalid("slot", "unknown slot %q", slot)
	}
	if slot.IsMain() {
		return m, Change{}, shared.Invalid("slot", "%s is a main slot", slot)
	}
	was := m.IsActive(day, slot)
	if was == active {
		return m, Change{}, nil
	}
	if active && !m.IsActive(day, slot.Group().Main()) {
		return m, Change{}, nil
	}
	next := m
	next[day][slot.Index()] = active
	if active {
		return next, Change{Added: []SlotKey{slot}}, nil
	}
	return next, Change{Removed: []SlotKey{slot}}, nil
}

// ActiveSlots returns the active slots of a day in canonical order.
func (m SlotMatrix) ActiveSlots(day Day) []SlotKey {
	if !day.Valid() {
		return nil
	}
	var out []SlotKey
	for i, on := range m[day] {
		if on {
			out = append(out, Canonical[i])
		}
	}
	return out
}

// ActiveDaySlotMap returns the active slots of every day that has at least one.
func (m SlotMatrix) ActiveDaySlotMap() map[Day][]SlotKey {
	out := make(map[Day][]SlotKey)
	for _, d := range AllDays {
		if active := m.ActiveSlots(d); len(active) > 0 {
			out[d] = active
		}
	}
	return out
}

// Normalize enforces the parent/child rule, turning off subs whose main is
// off. It returns the slots it had to deactivate per day.
func (m SlotMatrix) Normalize() (SlotMatrix, map[Day][]SlotKey) {
	fixed := make(map[Day][]SlotKey)
	next := m
	for _, d := range AllDays {
		for _, g := range [2]Group{Lunch, Dinner} {
			if next.IsActive(d, g.Main()) {
				continue
			}
			for _, sub := range g.Subs() {
				if next.IsActive(d, sub) {
					next[d][sub.Index()] = false
					fixed[d] = append(fixed[d], sub)
				}
			}
		}
	}
	return next, fixed
}

// Step walks the active slots of a day starting from the given slot,
// wrapping around. A slot that is not active starts from the first one.
func (m SlotMatrix) Step(day Day, from SlotKey, step int) (SlotKey, bool) {
	active := m.ActiveSlots(day)
	if len(active) == 0 {
		return "", false
	}
	pos := -1
	for i, k := range active {
		if k == from {
			pos = i
			break
		}
	}
	if pos < 0 {
		return active[0], true
	}
	n := len(active)
	return active[((pos+step)%n+n)%n], true
}

// Next returns the active slot after from, wrapping.
func (m SlotMatrix) Next(day Day, from SlotKey) (SlotKey, bool) {
	return m.Step(day, from, 1)
}

// Prev returns the active slot before from, wrapping.
func (m SlotMatrix) Prev(day Day, from SlotKey) (SlotKey, bool) {
	return m.Step(day, from, -1)
}
