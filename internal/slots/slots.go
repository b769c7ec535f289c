// Package slots models the weekly slot matrix: which of the six meal slots
// are active on each of the seven days.
package slots

import (
	"strconv"
	"strings"

	"cookidoo-planner/internal/shared"
)

// Day is an ordinal weekday, Monday = 0.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// DaysPerWeek is the number of days in the matrix.
const DaysPerWeek = 7

var dayNames = [DaysPerWeek]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// AllDays lists the days in week order.
var AllDays = [DaysPerWeek]Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func (d Day) Valid() bool {
	return d >= Monday && d <= Sunday
}

func (d Day) String() string {
	if !d.Valid() {
		return "Day(" + strconv.Itoa(int(d)) + ")"
	}
	return dayNames[d]
}

// ParseDay accepts an index ("0".."6"), a full English name or a three letter prefix.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		d := Day(n)
		if !d.Valid() {
			return 0, shared.Invalid("day", "index %d out of range", n)
		}
		return d, nil
	}
	lower := strings.ToLower(s)
	if len(lower) >= 3 {
		for i, name := range dayNames {
			if strings.HasPrefix(strings.ToLower(name), lower) {
				return Day(i), nil
			}
		}
	}
	return 0, shared.Invalid("day", "unknown day %q", s)
}

// Group is a meal group holding one main and two sub slots.
type Group string

const (
	Lunch  Group = "lunch"
	Dinner Group = "dinner"
)

func (g Group) Valid() bool {
	return g == Lunch || g == Dinner
}

// Main returns the main slot of the group.
func (g Group) Main() SlotKey {
	if g == Lunch {
		return LunchMain
	}
	return DinnerMain
}

// Subs returns the starter and dessert slots of the group.
func (g Group) Subs() [2]SlotKey {
	if g == Lunch {
		return [2]SlotKey{LunchStarter, LunchDessert}
	}
	return [2]SlotKey{DinnerStarter, DinnerDessert}
}

// ParseGroup validates a group name.
func ParseGroup(s string) (Group, error) {
	g := Group(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", shared.Invalid("group", "unknown meal group %q", s)
	}
	return g, nil
}

// SlotKey identifies one of the six meal positions of a day.
type SlotKey string

const (
	LunchStarter  SlotKey = "lunch_starter"
	LunchMain     SlotKey = "lunch_main"
	LunchDessert  SlotKey = "lunch_dessert"
	DinnerStarter SlotKey = "dinner_starter"
	DinnerMain    SlotKey = "dinner_main"
	DinnerDessert SlotKey = "dinner_dessert"
)

// SlotsPerDay is the number of slots in a day.
const SlotsPerDay = 6

// Canonical is the fixed slot order used for display, requests and navigation.
var Canonical = [SlotsPerDay]SlotKey{LunchStarter, LunchMain, LunchDessert, DinnerStarter, DinnerMain, DinnerDessert}

// blobKeys are the short keys used in the persisted dayConfig object.
var blobKeys = [SlotsPerDay]string{"m_v", "m", "m_d", "a_v", "a", "a_d"}

// Index returns the canonical position of the slot, or -1.
func (s SlotKey) Index() int {
	for i, k := range Canonical {
		if k == s {
			return i
		}
	}
	return -1
}

func (s SlotKey) Valid() bool {
	return s.Index() >= 0
}

// Group derives the meal group from the key prefix.
func (s SlotKey) Group() Group {
	if strings.HasPrefix(string(s), "lunch") {
		return Lunch
	}
	return Dinner
}

func (s SlotKey) IsMain() bool {
	return s == LunchMain || s == DinnerMain
}

// Kind is "starter", "main" or "dessert".
func (s SlotKey) Kind() string {
	_, kind, _ := strings.Cut(string(s), "_")
	return kind
}

// BlobKey returns the short persisted key (m, a, m_v, ...).
func (s SlotKey) BlobKey() string {
	if i := s.Index(); i >= 0 {
		return blobKeys[i]
	}
	return ""
}

// FromBlobKey maps a short persisted key back to its slot.
func FromBlobKey(k string) (SlotKey, bool) {
	for i, b := range blobKeys {
		if b == k {
			return Canonical[i], true
		}
	}
	return "", false
}

// ParseSlot accepts either the long slot name or the short persisted key.
func ParseSlot(s string) (SlotKey, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if k := SlotKey(s); k.Valid() {
		return k, nil
	}
	if k, ok := FromBlobKey(s); ok {
		return k, nil
	}
	return "", shared.Invalid("slot", "unknown slot %q", s)
}
