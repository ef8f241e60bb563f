package habit

import (
	"sort"
	"time"
)

// Registry is the in-memory set of materialized molecules for a session.
// It resolves molecules for Progression and applies the bulk deletions.
type Registry struct {
	byID map[string]*Molecule
}

// NewRegistry returns a registry holding ms.
func NewRegistry(ms ...*Molecule) *Registry {
	r := &Registry{byID: make(map[string]*Molecule, len(ms))}
	for _, m := range ms {
		r.Add(m)
	}
	return r
}

// Add inserts or replaces m.
func (r *Registry) Add(m *Molecule) {
	r.byID[m.ID] = m
}

// Molecule implements MoleculeResolver.
func (r *Registry) Molecule(id string) (*Molecule, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Len returns the number of molecules.
func (r *Registry) Len() int { return len(r.byID) }

// All returns molecules ordered by scheduled date, then id.
func (r *Registry) All() []*Molecule {
	out := make([]*Molecule, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	sortMolecules(out)
	return out
}

// MoleculesOn implements DayLister.
func (r *Registry) MoleculesOn(day time.Time) []*Molecule {
	var out []*Molecule
	for _, m := range r.byID {
		if sameDay(m.scheduledDate, day) {
			out = append(out, m)
		}
	}
	sortMolecules(out)
	return out
}

// Delete removes one molecule and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

// DeleteSelected removes every listed molecule and returns how many existed.
func (r *Registry) DeleteSelected(ids []string) int {
	n := 0
	for _, id := range ids {
		if r.Delete(id) {
			n++
		}
	}
	return n
}

// DeleteFuture removes every molecule scheduled on a calendar day after the
// day of now. It is irreversible.
func (r *Registry) DeleteFuture(now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n := 0
	for id, m := range r.byID {
		d := m.scheduledDate
		if time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).After(today) {
			delete(r.byID, id)
			n++
		}
	}
	return n
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func sortMolecules(ms []*Molecule) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].scheduledDate.Equal(ms[j].scheduledDate) {
			return ms[i].scheduledDate.Before(ms[j].scheduledDate)
		}
		return ms[i].ID < ms[j].ID
	})
}
