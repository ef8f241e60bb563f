// Package schedule turns habit templates into scheduled molecules.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
)

// AtomSpec is the authoring-time description of one atom.
type AtomSpec struct {
	Title  string          `json:"title"`
	Type   habit.InputType `json:"type"`
	Target *float64        `json:"target,omitempty"`
	Step   float64         `json:"step,omitempty"`
	Unit   string          `json:"unit,omitempty"`
}

// Behavior builds the zero-state behavior for the atom.
func (s AtomSpec) Behavior() (habit.Behavior, error) {
	if s.Type == habit.InputCounter {
		return habit.NewCounter(0, s.Target, s.Step), nil
	}
	return habit.NewBehavior(s.Type, s.Target)
}

// Template is a habit definition: a recurrence rule plus the atoms every
// occurrence gets.
type Template struct {
	ID      string
	Name    string
	Title   string
	Rule    recurrence.Rule
	Atoms   []AtomSpec
	Capture map[habit.InputType]habit.CaptureSettings

	CreatedAt time.Time
}

// Validate checks the authoring-time shape of the template. Rule problems are
// reported but never stop materialization; a malformed rule simply yields
// no dates.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template: name is required")
	}
	if t.Title == "" {
		return fmt.Errorf("template %s: title is required", t.Name)
	}
	for i, a := range t.Atoms {
		if a.Title == "" {
			return fmt.Errorf("template %s: atoms[%d]: title is required", t.Name, i)
		}
		if _, err := habit.ParseInputType(string(a.Type)); err != nil {
			return fmt.Errorf("template %s: atoms[%d]: %w", t.Name, i, err)
		}
		if a.Target != nil && *a.Target < 0 {
			return fmt.Errorf("template %s: atoms[%d]: target must be non-negative", t.Name, i)
		}
	}
	for kind := range t.Capture {
		if !kind.IsMedia() {
			return fmt.Errorf("template %s: capture override for non-media type %q", t.Name, kind)
		}
	}
	return nil
}

// CaptureOverride returns the template-level capture settings for kind.
func (t *Template) CaptureOverride(kind habit.InputType) (habit.CaptureSettings, bool) {
	s, ok := t.Capture[kind]
	if !ok {
		return habit.CaptureSettings{}, false
	}
	s.Kind = kind
	return s, true
}

// Catalog indexes templates by id and resolves capture overrides for atoms
// that point back at them.
type Catalog struct {
	byID map[string]*Template
}

// NewCatalog returns a catalog holding ts.
func NewCatalog(ts ...*Template) *Catalog {
	c := &Catalog{byID: make(map[string]*Template, len(ts))}
	for _, t := range ts {
		c.Add(t)
	}
	return c
}

// Add inserts or replaces t.
func (c *Catalog) Add(t *Template) { c.byID[t.ID] = t }

// Get returns the template with id.
func (c *Catalog) Get(id string) (*Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Templates returns all templates ordered by name.
func (c *Catalog) Templates() []*Template {
	out := make([]*Template, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveCaptureSettings implements habit.CaptureSettingsResolver. A deleted
// template resolves to nothing.
func (c *Catalog) ResolveCaptureSettings(templateID string, kind habit.InputType) (habit.CaptureSettings, bool) {
	t, ok := c.byID[templateID]
	if !ok {
		return habit.CaptureSettings{}, false
	}
	return t.CaptureOverride(kind)
}
