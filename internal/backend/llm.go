package backend

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/llm"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/slots"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(promptFS, "prompts/*.tmpl"))

// rememberedNames bounds the id to name map used to describe excluded recipes.
const rememberedNames = 1000

// LLM picks recipes by asking a language model. Recipe ids are generated
// locally since the model has no catalog of its own.
type LLM struct {
	gen     llm.TextGenerator
	catalog *filters.Catalog
	logger  *slog.Logger

	mu    sync.Mutex
	names map[string]string
}

// NewLLM creates an LLM backend. The catalog expands category and cuisine
// ids into the search terms given to the model.
func NewLLM(gen llm.TextGenerator, catalog *filters.Catalog, logger *slog.Logger) *LLM {
	if catalog == nil {
		catalog = filters.DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{gen: gen, catalog: catalog, logger: logger, names: make(map[string]string)}
}

type promptDay struct {
	Day       int
	Name      string
	Slots     []string
	Terms     []string
	MaxLunch  int
	MaxDinner int
}

type planPrompt struct {
	Days    []promptDay
	Ratio   int
	Exclude []string
	Prefer  []string
}

type pickPrompt struct {
	Slot    string
	Name    string
	Terms   []string
	MaxTime int
	Exclude []string
	Prefer  []string
	Avoid   []string
}

type llmRecipe struct {
	Day     int    `json:"day"`
	Slot    string `json:"slot"`
	Name    string `json:"name"`
	Minutes int    `json:"total_time_minutes"`
	URL     string `json:"url"`
}

// GenerateMany asks the model for the whole week in one prompt.
func (l *LLM) GenerateMany(ctx context.Context, req planner.PlanRequest) (planner.Plan, error) {
	data := planPrompt{Ratio: req.Ratio, Exclude: req.ExcludeIngredients, Prefer: req.PreferIngredients}
	for _, day := range slots.AllDays {
		keys := req.Days[day]
		if len(keys) == 0 {
			continue
		}
		f := req.Filters[day]
		pd := promptDay{
			Day:       int(day),
			Name:      day.String(),
			Terms:     l.catalog.Terms(slices.Concat(f.Categories, f.Cuisines)),
			MaxLunch:  deref(f.MaxTimeLunch),
			MaxDinner: deref(f.MaxTimeDinner),
		}
		for _, k := range keys {
			pd.Slots = append(pd.Slots, string(k))
		}
		data.Days = append(data.Days, pd)
	}

	var resp struct {
		Recipes []llmRecipe `json:"recipes"`
	}
	if err := l.ask(ctx, "plan.tmpl", data, &resp); err != nil {
		return nil, err
	}

	plan := make(planner.Plan)
	for _, item := range resp.Recipes {
		day := slots.Day(item.Day)
		slot, err := slots.ParseSlot(item.Slot)
		if err != nil || !day.Valid() || !slices.Contains(req.Days[day], slot) {
			l.logger.Debug("ignoring unrequested recipe", "day", item.Day, "slot", item.Slot)
			continue
		}
		r := l.toRecipe(item)
		if r == nil || !r.FitsMaxTime(req.Filters[day].MaxTimeFor(slot)) {
			continue
		}
		if plan[day] == nil {
			plan[day] = make(map[slots.SlotKey]*recipe.Recipe)
		}
		plan[day][slot] = r
	}
	return plan, nil
}

// GenerateOne asks the model for a single slot. Recipes already in the
// plan are named in the prompt so the model avoids them.
func (l *LLM) GenerateOne(ctx context.Context, req planner.SlotRequest) (*recipe.Recipe, error) {
	f := req.Filter
	data := pickPrompt{
		Slot:    string(req.Slot),
		Name:    req.Day.String(),
		Terms:   l.catalog.Terms(slices.Concat(f.Categories, f.Cuisines)),
		MaxTime: deref(req.MaxTime()),
		Exclude: req.ExcludeIngredients,
		Prefer:  req.PreferIngredients,
		Avoid:   l.lookupNames(req.ExcludeRecipeIDs),
	}

	var item llmRecipe
	if err := l.ask(ctx, "pick.tmpl", data, &item); err != nil {
		return nil, err
	}
	r := l.toRecipe(item)
	if r == nil || !r.FitsMaxTime(req.MaxTime()) {
		return nil, nil
	}
	return r, nil
}

// SuggestIngredients asks the model for ingredient names.
func (l *LLM) SuggestIngredients(ctx context.Context, query string, limit int) ([]string, error) {
	var resp struct {
		Ingredients []string `json:"ingredients"`
	}
	data := struct {
		Query string
		Limit int
	}{query, limit}
	if err := l.ask(ctx, "suggest.tmpl", data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Ingredients) > limit {
		resp.Ingredients = resp.Ingredients[:limit]
	}
	return resp.Ingredients, nil
}

func (l *LLM) ask(ctx context.Context, name string, data, out any) error {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	resp, err := l.gen.GenerateContent(ctx, buf.String())
	reportUsage(ctx, resp.Usage)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Content)), out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}

func (l *LLM) toRecipe(item llmRecipe) *recipe.Recipe {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return nil
	}
	r := &recipe.Recipe{
		ID:        "llm-" + uuid.NewString(),
		Name:      name,
		TotalTime: max(0, item.Minutes) * 60,
		Source:    recipe.SourceSearch,
		URL:       item.URL,
	}

	l.mu.Lock()
	if len(l.names) >= rememberedNames {
		clear(l.names)
	}
	l.names[r.ID] = r.Name
	l.mu.Unlock()
	return r
}

func (l *LLM) lookupNames(ids []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, id := range ids {
		if name, ok := l.names[id]; ok {
			out = append(out, name)
		}
	}
	return out
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// cleanJSON strips the markdown fences some models wrap around JSON.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
