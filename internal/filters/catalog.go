package filters

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"cookidoo-planner/internal/shared"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Entry is one selectable category or cuisine with the search terms it expands to.
type Entry struct {
	ID    string   `yaml:"id"`
	Terms []string `yaml:"terms"`
}

// Catalog enumerates the categories and cuisines a filter may reference.
// An empty list accepts any value.
type Catalog struct {
	Categories []Entry `yaml:"categories"`
	Cuisines   []Entry `yaml:"cuisines"`

	validate *validator.Validate
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for _, e := range slices.Concat(c.Categories, c.Cuisines) {
		if e.ID == "" {
			return nil, errors.New("catalog entry without id")
		}
	}
	c.init()
	return &c, nil
}

func (c *Catalog) init() {
	c.validate = validator.New()
	_ = c.validate.RegisterValidation("catalog_category", func(fl validator.FieldLevel) bool {
		return c.HasCategory(fl.Field().String())
	})
	_ = c.validate.RegisterValidation("catalog_cuisine", func(fl validator.FieldLevel) bool {
		return c.HasCuisine(fl.Field().String())
	})
}

func (c *Catalog) HasCategory(id string) bool {
	return has(c.Categories, id)
}

func (c *Catalog) HasCuisine(id string) bool {
	return has(c.Cuisines, id)
}

// Terms expands category and cuisine ids into search terms. Unknown ids
// stand for themselves.
func (c *Catalog) Terms(ids []string) []string {
	all := slices.Concat(c.Categories, c.Cuisines)
	var out []string
	for _, id := range ids {
		i := slices.IndexFunc(all, func(e Entry) bool { return e.ID == id })
		if i < 0 || len(all[i].Terms) == 0 {
			out = append(out, id)
			continue
		}
		out = append(out, all[i].Terms...)
	}
	return out
}

func has(entries []Entry, id string) bool {
	if len(entries) == 0 {
		return true
	}
	return slices.ContainsFunc(entries, func(e Entry) bool { return e.ID == id })
}

// Validate checks a FilterSet against the catalog.
func (c *Catalog) Validate(f FilterSet) error {
	return c.check(f)
}

// ValidateOverride checks a per-day override against the catalog.
func (c *Catalog) ValidateOverride(o Override) error {
	return c.check(o)
}

func (c *Catalog) check(v any) error {
	if c.validate == nil {
		c.init()
	}
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &shared.ValidationError{Reason: err.Error(), Err: err}
	}
	fe := verrs[0]
	return &shared.ValidationError{
		Field:  fe.Namespace(),
		Reason: reason(fe),
		Err:    err,
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "catalog_category":
		return fmt.Sprintf("unknown category %q", fe.Value())
	case "catalog_cuisine":
		return fmt.Sprintf("unknown cuisine %q", fe.Value())
	case "required":
		return "must not be empty"
	case "gt":
		return "must be positive"
	case "gte", "lte":
		return "must be between 0 and 100"
	}
	return "failed " + fe.Tag()
}
