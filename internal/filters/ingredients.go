package filters

import (
	"slices"
	"strings"

	"cookidoo-planner/internal/shared"
)

// Kind selects one of the two ingredient lists.
type Kind string

const (
	Exclude Kind = "exclude"
	Prefer  Kind = "prefer"
)

// ParseKind validates an ingredient list name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Exclude, Prefer:
		return k, nil
	}
	return "", shared.Invalid("kind", "unknown ingredient list %q", s)
}

// Ingredients is an ordered list of unique, trimmed, non-empty names.
type Ingredients []string

// Add trims text and appends it unless it is empty or already present.
// It reports whether the list changed.
func (l Ingredients) Add(text string) (Ingredients, bool, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return l, false, shared.Invalid("ingredient", "must not be empty")
	}
	if slices.Contains(l, name) {
		return l, false, nil
	}
	return append(slices.Clone(l), name), true, nil
}

// Remove drops the entry at index. Out of range is a no-op.
func (l Ingredients) Remove(index int) (Ingredients, bool) {
	if index < 0 || index >= len(l) {
		return l, false
	}
	return slices.Delete(slices.Clone(l), index, index+1), true
}

// List returns the list selected by kind.
func (f FilterSet) List(kind Kind) Ingredients {
	if kind == Prefer {
		return f.Prefer
	}
	return f.Exclude
}

// AddIngredient returns a copy of f with text added to the selected list.
func (f FilterSet) AddIngredient(kind Kind, text string) (FilterSet, bool, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return f, false, err
	}
	next, changed, err := f.List(kind).Add(text)
	if err != nil || !changed {
		return f, false, err
	}
	return f.withList(kind, next), true, nil
}

// RemoveIngredient returns a copy of f without the entry at index.
func (f FilterSet) RemoveIngredient(kind Kind, index int) (FilterSet, bool, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return f, false, err
	}
	next, changed := f.List(kind).Remove(index)
	if !changed {
		return f, false, nil
	}
	return f.withList(kind, next), true, nil
}

func (f FilterSet) AddExclude(text string) (FilterSet, bool, error) {
	return f.AddIngredient(Exclude, text)
}

func (f FilterSet) AddPrefer(text string) (FilterSet, bool, error) {
	return f.AddIngredient(Prefer, text)
}

func (f FilterSet) withList(kind Kind, l Ingredients) FilterSet {
	out := f.Clone()
	if kind == Prefer {
		out.Prefer = l
	} else {
		out.Exclude = l
	}
	return out
}

// Dedupe trims every entry and drops empties and repeats, keeping first occurrence order.
func Dedupe(in []string) Ingredients {
	var out Ingredients
	for _, s := range in {
		out, _, _ = out.Add(s)
	}
	return out
}
