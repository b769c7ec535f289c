package planner

import (
	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/slots"
)

// DayState summarises how far a day is planned.
type DayState string

const (
	Unconfigured    DayState = "unconfigured"
	ConfiguredEmpty DayState = "configured-empty"
	Populated       DayState = "populated"
)

// DayView is the projection of one day.
type DayView struct {
	Day       slots.Day                       `json:"day"`
	Name      string                          `json:"name"`
	State     DayState                        `json:"state"`
	Active    []slots.SlotKey                 `json:"active"`
	Nav       slots.SlotKey                   `json:"nav,omitempty"`
	Override  filters.Override                `json:"override"`
	Effective filters.Effective               `json:"effective"`
	Entries   map[slots.SlotKey]recipe.Recipe `json:"entries"`
}

// View is a read-only snapshot of everything a projection layer renders.
type View struct {
	Generated bool                       `json:"generated"`
	Filters   filters.FilterSet          `json:"filters"`
	Badge     int                        `json:"badge"`
	Days      [slots.DaysPerWeek]DayView `json:"days"`
}

// View builds the projection. The result shares no memory with the controller.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Generated: c.store.Generated(),
		Filters:   c.cfg.Filters.Clone(),
		Badge:     c.cfg.Filters.ActiveCount(),
	}
	for _, d := range slots.AllDays {
		active := c.cfg.Matrix.ActiveSlots(d)
		dv := DayView{
			Day:       d,
			Name:      d.String(),
			Active:    active,
			Override:  c.cfg.Overrides[d].Clone(),
			Effective: c.effective(d),
			Entries:   make(map[slots.SlotKey]recipe.Recipe),
		}
		dv.Nav, _ = c.store.Nav(d)
		for _, k := range active {
			if r, ok := c.store.Get(d, k); ok {
				dv.Entries[k] = r
			}
		}
		dv.State = dayState(len(active), len(dv.Entries), v.Generated)
		v.Days[d] = dv
	}
	return v
}

func dayState(active, entries int, generated bool) DayState {
	switch {
	case active == 0:
		return Unconfigured
	case !generated || entries < active:
		return ConfiguredEmpty
	default:
		return Populated
	}
}
