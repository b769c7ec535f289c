package recipe

import (
	"fmt"
)

// Source tells where a recipe was picked from.
type Source string

const (
	SourceCustom  Source = "custom"
	SourceManaged Source = "managed"
	SourceSearch  Source = "search"
)

// Recipe is the value the backend returns for a slot. The planner treats it as opaque.
type Recipe struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	TotalTime  int     `json:"total_time"` // seconds
	Image      string  `json:"image,omitempty"`
	Thumbnail  string  `json:"thumbnail,omitempty"`
	Rating     float64 `json:"rating"`
	Source     Source  `json:"source"`
	Collection string  `json:"collection_name,omitempty"`
	URL        string  `json:"url,omitempty"`
}

// TotalTimeString renders the total time the way the recipe platform shows it,
// e.g. "45 Min." or "1 Std. 5 Min.".
func (r Recipe) TotalTimeString() string {
	minutes := r.TotalTime / 60
	if minutes < 60 {
		return fmt.Sprintf("%d Min.", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%d Std.", h)
	}
	return fmt.Sprintf("%d Std. %d Min.", h, m)
}

// FitsMaxTime reports whether the recipe respects a limit in minutes. A nil
// limit or an unknown duration always fits.
func (r Recipe) FitsMaxTime(maxMinutes *int) bool {
	if maxMinutes == nil || r.TotalTime <= 0 {
		return true
	}
	return r.TotalTime <= *maxMinutes*60
}

// Clone returns a copy that does not share the pointer.
func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
