package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/metrics"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/shared"
	"cookidoo-planner/internal/slots"
	"cookidoo-planner/internal/storage"
)

// Saver persists the configuration after a mutation.
type Saver interface {
	SaveConfig(ctx context.Context, cfg storage.Config) error
}

// Options tunes a Controller. Zero values pick defaults.
type Options struct {
	Logger      *slog.Logger
	Catalog     *filters.Catalog
	MaxParallel int
}

// DefaultMaxParallel bounds concurrent single-slot fetches.
const DefaultMaxParallel = 4

const (
	opActivate = "activate"
	opReroll   = "reroll"
	opGenerate = "generate"
)

// Controller owns one user's configuration and plan and keeps the plan in
// step with the configuration. All state sits behind mu; backend calls run
// without holding it and their results are merged back under it.
type Controller struct {
	mu    sync.Mutex
	cfg   storage.Config
	store *Store
	// gens is bumped whenever a slot is switched on or off, so a response
	// that was requested for an older generation can be recognised.
	gens  [slots.DaysPerWeek][slots.SlotsPerDay]uint64
	epoch uint64
	seq   uint64

	saveMu   sync.Mutex
	savedSeq uint64

	backend     Backend
	saver       Saver
	catalog     *filters.Catalog
	logger      *slog.Logger
	maxParallel int
}

// New builds a Controller from a loaded configuration.
func New(cfg storage.Config, backend Backend, saver Saver, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Catalog == nil {
		opts.Catalog = filters.DefaultCatalog()
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	cfg = cfg.Clone()
	cfg.Matrix, _ = cfg.Matrix.Normalize()

	c := &Controller{
		cfg:         cfg,
		store:       NewStore(),
		backend:     backend,
		saver:       saver,
		catalog:     opts.Catalog,
		logger:      opts.Logger,
		maxParallel: opts.MaxParallel,
	}
	for _, d := range slots.AllDays {
		c.store.SyncNav(cfg.Matrix, d)
	}
	return c
}

type fetchJob struct {
	op    string
	epoch uint64
	gen   uint64
	req   SlotRequest
}

// SetMain switches a meal group's main slot on or off. Turning it off also
// removes both sub slots and their plan entries.
func (c *Controller) SetMain(ctx context.Context, day slots.Day, group slots.Group, active bool) error {
	c.mu.Lock()
	next, change, err := c.cfg.Matrix.SetMain(day, group, active)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	return c.applyMatrix(ctx, day, next, change)
}

// SetSub switches a starter or dessert slot. Activating a sub whose main is
// off changes nothing.
func (c *Controller) SetSub(ctx context.Context, day slots.Day, slot slots.SlotKey, active bool) error {
	c.mu.Lock()
	next, change, err := c.cfg.Matrix.SetSub(day, slot, active)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	return c.applyMatrix(ctx, day, next, change)
}

// SetSlot dispatches to SetMain or SetSub.
func (c *Controller) SetSlot(ctx context.Context, day slots.Day, slot slots.SlotKey, active bool) error {
	if !slot.Valid() {
		return shared.Invalid("slot", "unknown slot %q", slot)
	}
	if slot.IsMain() {
		return c.SetMain(ctx, day, slot.Group(), active)
	}
	return c.SetSub(ctx, day, slot, active)
}

// applyMatrix must be called with mu held; it releases it.
func (c *Controller) applyMatrix(ctx context.Context, day slots.Day, next slots.SlotMatrix, change slots.Change) error {
	if change.Empty() {
		c.mu.Unlock()
		return nil
	}
	c.cfg.Matrix = next
	for _, k := range change.Removed {
		c.bump(day, k)
		c.store.Delete(day, k)
	}
	var jobs []fetchJob
	for _, k := range change.Added {
		c.bump(day, k)
		if c.store.Generated() {
			jobs = append(jobs, c.job(opActivate, day, k))
		}
	}
	c.store.SyncNav(next, day)
	seq, cfg := c.mutated()
	c.mu.Unlock()

	c.logger.Debug("slots changed", "day", day, "added", change.Added, "removed", change.Removed)
	c.persist(ctx, seq, cfg)
	return c.fetch(ctx, jobs)
}

// Generate requests a recipe for every active slot and replaces the whole
// plan with the response. On failure the plan is left as it was. If Clear
// runs while the request is in flight the response is dropped and
// shared.ErrPlanCleared is returned.
func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	active := c.cfg.Matrix.ActiveDaySlotMap()
	if len(active) == 0 {
		c.mu.Unlock()
		return &shared.ValidationError{Field: "slots", Reason: shared.ErrNoActiveSlots.Error(), Err: shared.ErrNoActiveSlots}
	}
	req := PlanRequest{
		Days:               active,
		Filters:            make(map[slots.Day]filters.Effective, len(active)),
		Ratio:              c.cfg.Filters.Ratio,
		ExcludeIngredients: slices.Clone(c.cfg.Filters.Exclude),
		PreferIngredients:  slices.Clone(c.cfg.Filters.Prefer),
	}
	for day := range active {
		req.Filters[day] = c.effective(day)
	}
	gens, epoch := c.gens, c.epoch
	c.mu.Unlock()

	plan, err := c.backend.GenerateMany(ctx, req)
	if err != nil {
		return asBackendFailure("generate_many", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		metrics.StaleResponses.WithLabelValues(opGenerate).Inc()
		c.logger.Info("plan cleared while generating, dropping response")
		return shared.ErrPlanCleared
	}

	entries := make(map[slots.Day]map[slots.SlotKey]recipe.Recipe)
	keep := func(day slots.Day, slot slots.SlotKey, r recipe.Recipe) {
		if entries[day] == nil {
			entries[day] = make(map[slots.SlotKey]recipe.Recipe)
		}
		entries[day][slot] = r
	}
	dropped := 0
	for day, row := range plan {
		for slot, r := range row {
			if r == nil {
				continue
			}
			i := slot.Index()
			if !day.Valid() || i < 0 || !c.cfg.Matrix.IsActive(day, slot) || c.gens[day][i] != gens[day][i] {
				dropped++
				continue
			}
			keep(day, slot, *r)
		}
	}
	// Slots toggled while the request was in flight keep whatever their own
	// activation fetch produced.
	for _, day := range slots.AllDays {
		for _, slot := range c.cfg.Matrix.ActiveSlots(day) {
			i := slot.Index()
			if c.gens[day][i] == gens[day][i] {
				continue
			}
			if r, ok := c.store.Get(day, slot); ok {
				keep(day, slot, r)
			}
		}
	}
	if dropped > 0 {
		metrics.StaleResponses.WithLabelValues(opGenerate).Add(float64(dropped))
	}
	c.store.Replace(entries)
	for _, d := range slots.AllDays {
		c.store.SyncNav(c.cfg.Matrix, d)
	}
	c.logger.Info("plan generated", "days", len(active), "entries", countEntries(entries), "dropped", dropped)
	return nil
}

// Reroll replaces the recipe of one active slot. If the backend finds
// nothing the current recipe stays.
func (c *Controller) Reroll(ctx context.Context, day slots.Day, slot slots.SlotKey) error {
	if err := validateSlot(day, slot); err != nil {
		return err
	}
	c.mu.Lock()
	if !c.cfg.Matrix.IsActive(day, slot) {
		c.mu.Unlock()
		return inactive(day, slot)
	}
	job := c.job(opReroll, day, slot)
	c.mu.Unlock()

	return c.fetch(ctx, []fetchJob{job})
}

// OverrideEdit is a per-day override plus optional slot toggles applied in
// the same step.
type OverrideEdit struct {
	Override filters.Override       `json:"override"`
	Slots    map[slots.SlotKey]bool `json:"slots,omitempty"`
}

// ApplyOverride replaces a day's override and applies inline slot toggles.
// Slots that became active are fetched, slots that stayed active are
// rerolled once, and removed slots lose their entries.
func (c *Controller) ApplyOverride(ctx context.Context, day slots.Day, edit OverrideEdit) error {
	if !day.Valid() {
		return shared.Invalid("day", "index %d out of range", int(day))
	}
	for k := range edit.Slots {
		if !k.Valid() {
			return shared.Invalid("slot", "unknown slot %q", k)
		}
	}
	override := edit.Override.Clone()
	override.Categories = filters.Dedupe(override.Categories)
	override.Cuisines = filters.Dedupe(override.Cuisines)
	if err := c.catalog.ValidateOverride(override); err != nil {
		return err
	}

	c.mu.Lock()
	before := c.cfg.Matrix.ActiveSlots(day)

	m := c.cfg.Matrix
	var err error
	for _, g := range []slots.Group{slots.Lunch, slots.Dinner} {
		if on, ok := edit.Slots[g.Main()]; ok {
			if m, _, err = m.SetMain(day, g, on); err != nil {
				c.mu.Unlock()
				return err
			}
		}
	}
	for _, k := range slots.Canonical {
		if on, ok := edit.Slots[k]; ok && !k.IsMain() {
			if m, _, err = m.SetSub(day, k, on); err != nil {
				c.mu.Unlock()
				return err
			}
		}
	}
	after := m.ActiveSlots(day)

	c.cfg.Matrix = m
	c.cfg.Overrides[day] = override

	var jobs []fetchJob
	for _, k := range before {
		if !slices.Contains(after, k) {
			c.bump(day, k)
			c.store.Delete(day, k)
		}
	}
	for _, k := range after {
		if !slices.Contains(before, k) {
			c.bump(day, k)
			if c.store.Generated() {
				jobs = append(jobs, c.job(opActivate, day, k))
			}
			continue
		}
		if c.store.Generated() {
			jobs = append(jobs, c.job(opReroll, day, k))
		}
	}
	c.store.SyncNav(m, day)
	seq, cfg := c.mutated()
	c.mu.Unlock()

	c.persist(ctx, seq, cfg)
	return c.fetch(ctx, jobs)
}

// ApplyFilters replaces the global filters. A generated plan is regenerated
// as a whole.
func (c *Controller) ApplyFilters(ctx context.Context, fs filters.FilterSet) error {
	fs = fs.Clone()
	fs.Categories = filters.Dedupe(fs.Categories)
	fs.Cuisines = filters.Dedupe(fs.Cuisines)
	fs.Exclude = filters.Dedupe(fs.Exclude)
	fs.Prefer = filters.Dedupe(fs.Prefer)
	if err := c.catalog.Validate(fs); err != nil {
		return err
	}

	c.mu.Lock()
	c.cfg.Filters = fs
	regenerate := c.store.Generated() && len(c.cfg.Matrix.ActiveDaySlotMap()) > 0
	seq, cfg := c.mutated()
	c.mu.Unlock()

	c.persist(ctx, seq, cfg)
	if !regenerate {
		return nil
	}
	return c.Generate(ctx)
}

// AddIngredient appends to the exclude or prefer list. It reports whether
// the list changed; duplicates are ignored.
func (c *Controller) AddIngredient(ctx context.Context, kind filters.Kind, text string) (bool, error) {
	c.mu.Lock()
	next, changed, err := c.cfg.Filters.AddIngredient(kind, text)
	if err != nil || !changed {
		c.mu.Unlock()
		return false, err
	}
	c.cfg.Filters = next
	seq, cfg := c.mutated()
	c.mu.Unlock()

	c.persist(ctx, seq, cfg)
	return true, nil
}

// RemoveIngredient drops the entry at index. An index out of range is a no-op.
func (c *Controller) RemoveIngredient(ctx context.Context, kind filters.Kind, index int) (bool, error) {
	c.mu.Lock()
	next, changed, err := c.cfg.Filters.RemoveIngredient(kind, index)
	if err != nil || !changed {
		c.mu.Unlock()
		return false, err
	}
	c.cfg.Filters = next
	seq, cfg := c.mutated()
	c.mu.Unlock()

	c.persist(ctx, seq, cfg)
	return true, nil
}

// SetNav points the day's display at an active slot.
func (c *Controller) SetNav(day slots.Day, slot slots.SlotKey) error {
	if err := validateSlot(day, slot); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.Matrix.IsActive(day, slot) {
		return inactive(day, slot)
	}
	c.store.setNav(day, slot)
	return nil
}

// Navigate moves the day's display by step active slots, wrapping around.
func (c *Controller) Navigate(day slots.Day, step int) (slots.SlotKey, error) {
	if !day.Valid() {
		return "", shared.Invalid("day", "index %d out of range", int(day))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, _ := c.store.Nav(day)
	next, ok := c.cfg.Matrix.Step(day, cur, step)
	if !ok {
		return "", &shared.ValidationError{Field: "day", Reason: "no active slot on " + day.String(), Err: shared.ErrSlotInactive}
	}
	c.store.setNav(day, next)
	return next, nil
}

// Clear empties the plan, as on logout. The configuration is kept.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
	c.epoch++
	for d := range c.gens {
		for i := range c.gens[d] {
			c.gens[d][i]++
		}
	}
	for _, d := range slots.AllDays {
		c.store.SyncNav(c.cfg.Matrix, d)
	}
}

// Config returns a copy of the current configuration.
func (c *Controller) Config() storage.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

// ReplaceConfig swaps in an imported configuration. Entries of slots that
// are no longer active are dropped; nothing is fetched.
func (c *Controller) ReplaceConfig(ctx context.Context, cfg storage.Config) error {
	cfg = cfg.Clone()
	if err := c.catalog.Validate(cfg.Filters); err != nil {
		return err
	}
	for _, o := range cfg.Overrides {
		if err := c.catalog.ValidateOverride(o); err != nil {
			return err
		}
	}
	cfg.Matrix, _ = cfg.Matrix.Normalize()

	c.mu.Lock()
	for _, d := range slots.AllDays {
		for _, k := range slots.Canonical {
			if c.cfg.Matrix.IsActive(d, k) != cfg.Matrix.IsActive(d, k) {
				c.bump(d, k)
				c.store.Delete(d, k)
			}
		}
	}
	c.cfg = cfg
	for _, d := range slots.AllDays {
		c.store.SyncNav(cfg.Matrix, d)
	}
	seq, snapshot := c.mutated()
	c.mu.Unlock()

	c.persist(ctx, seq, snapshot)
	return nil
}

// Snapshot returns a deep copy of the plan store.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

// fetch runs single-slot jobs concurrently and merges their results. Every
// job runs to completion; failures are joined.
func (c *Controller) fetch(ctx context.Context, jobs []fetchJob) error {
	if len(jobs) == 0 {
		return nil
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(c.maxParallel)
	for _, job := range jobs {
		g.Go(func() error {
			r, err := c.backend.GenerateOne(ctx, job.req)
			if err != nil {
				c.logger.Warn("slot fetch failed", "op", job.op, "day", job.req.Day, "slot", job.req.Slot, "error", err)
				mu.Lock()
				errs = append(errs, asBackendFailure("generate_one", err))
				mu.Unlock()
				return nil
			}
			c.merge(job, r)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (c *Controller) merge(job fetchJob, r *recipe.Recipe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	day, slot := job.req.Day, job.req.Slot
	if job.epoch != c.epoch || job.gen != c.gens[day][slot.Index()] {
		metrics.StaleResponses.WithLabelValues(job.op).Inc()
		c.logger.Debug("dropping stale slot response", "op", job.op, "day", day, "slot", slot)
		return
	}
	if r == nil {
		c.logger.Info("backend found no recipe, keeping current entry", "op", job.op, "day", day, "slot", slot)
		return
	}
	c.store.Set(day, slot, *r)
}

// job builds a single-slot request; mu must be held.
func (c *Controller) job(op string, day slots.Day, slot slots.SlotKey) fetchJob {
	return fetchJob{
		op:    op,
		epoch: c.epoch,
		gen:   c.gens[day][slot.Index()],
		req: SlotRequest{
			Day:                day,
			Slot:               slot,
			Filter:             c.effective(day),
			Ratio:              c.cfg.Filters.Ratio,
			ExcludeIngredients: slices.Clone(c.cfg.Filters.Exclude),
			PreferIngredients:  slices.Clone(c.cfg.Filters.Prefer),
			ExcludeRecipeIDs:   c.store.RecipeIDs(day, slot),
		},
	}
}

func (c *Controller) effective(day slots.Day) filters.Effective {
	return filters.Resolve(c.cfg.Filters, c.cfg.Overrides[day])
}

func (c *Controller) bump(day slots.Day, slot slots.SlotKey) {
	c.gens[day][slot.Index()]++
}

// mutated stamps a configuration change; mu must be held.
func (c *Controller) mutated() (uint64, storage.Config) {
	c.seq++
	return c.seq, c.cfg.Clone()
}

// persist saves cfg unless a newer configuration was saved already.
// Failures are logged and do not fail the mutation.
func (c *Controller) persist(ctx context.Context, seq uint64, cfg storage.Config) {
	if c.saver == nil {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if seq <= c.savedSeq {
		return
	}
	if err := c.saver.SaveConfig(ctx, cfg); err != nil {
		metrics.PersistFailures.Inc()
		c.logger.Warn("failed to persist configuration", "error", err)
		return
	}
	c.savedSeq = seq
}

func validateSlot(day slots.Day, slot slots.SlotKey) error {
	if !day.Valid() {
		return shared.Invalid("day", "index %d out of range", int(day))
	}
	if !slot.Valid() {
		return shared.Invalid("slot", "unknown slot %q", slot)
	}
	return nil
}

func inactive(day slots.Day, slot slots.SlotKey) error {
	return &shared.ValidationError{
		Field:  "slot",
		Reason: fmt.Sprintf("%s is not active on %s", slot, day),
		Err:    shared.ErrSlotInactive,
	}
}

func asBackendFailure(op string, err error) error {
	var bf *shared.BackendFailure
	if errors.As(err, &bf) {
		return err
	}
	return &shared.BackendFailure{Op: op, Err: err}
}

func countEntries(entries map[slots.Day]map[slots.SlotKey]recipe.Recipe) int {
	n := 0
	for _, row := range entries {
		n += len(row)
	}
	return n
}
