package habit

import (
	"errors"
	"fmt"
	"time"
)

// ErrScheduleLocked is returned when rescheduling a molecule that has been
// completed at least once.
var ErrScheduleLocked = errors.New("molecule has been completed; scheduled date is fixed")

// Aggregate is the stored mirror of a molecule's derived state. Progression
// writes it after every real change; persistence filters on it.
type Aggregate struct {
	Completed      bool
	CompletedAtoms int
	TotalAtoms     int
	Progress       float64
	EverCompleted  bool
	CompletedAt    *time.Time
}

// Molecule is one scheduled occurrence of a habit template.
type Molecule struct {
	ID         string
	TemplateID string
	Title      string

	scheduledDate time.Time
	occurrence    time.Time
	atoms         []*Atom
	aggregate     Aggregate
}

// NewMolecule creates an occurrence on the given calendar date.
func NewMolecule(id, templateID, title string, scheduled time.Time) *Molecule {
	return &Molecule{
		ID:            id,
		TemplateID:    templateID,
		Title:         title,
		scheduledDate: scheduled,
		occurrence:    scheduled,
	}
}

// RestoreMolecule rebuilds a molecule from storage with its persisted
// aggregate. occurrence is the date the rule produced; a zero value means
// the molecule was never moved. Callers add atoms afterwards.
func RestoreMolecule(id, templateID, title string, scheduled, occurrence time.Time, agg Aggregate) *Molecule {
	m := NewMolecule(id, templateID, title, scheduled)
	if !occurrence.IsZero() {
		m.occurrence = occurrence
	}
	m.aggregate = agg
	return m
}

// ScheduledDate returns the calendar slot this occurrence fills.
func (m *Molecule) ScheduledDate() time.Time { return m.scheduledDate }

// OccurrenceDate returns the date the recurrence rule produced this
// occurrence for. Rescheduling does not change it.
func (m *Molecule) OccurrenceDate() time.Time { return m.occurrence }

// Reschedule moves the occurrence to another date. Once the molecule has
// been completed it keeps its date so history stays consistent. A molecule
// with no atoms is complete without user action and stays movable.
func (m *Molecule) Reschedule(date time.Time) error {
	if m.aggregate.EverCompleted {
		return fmt.Errorf("reschedule %s: %w", m.ID, ErrScheduleLocked)
	}
	m.scheduledDate = date
	return nil
}

// AddAtom appends an atom in authoring order and binds it to m.
func (m *Molecule) AddAtom(a *Atom) {
	a.MoleculeID = m.ID
	a.Position = len(m.atoms)
	m.atoms = append(m.atoms, a)
}

// Atoms returns the atoms in authoring order. The slice is a copy; the
// atoms are shared.
func (m *Molecule) Atoms() []*Atom {
	out := make([]*Atom, len(m.atoms))
	copy(out, m.atoms)
	return out
}

// Atom finds an atom by id.
func (m *Molecule) Atom(id string) (*Atom, bool) {
	for _, a := range m.atoms {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// CompletedCount returns how many atoms are complete right now.
func (m *Molecule) CompletedCount() int {
	n := 0
	for _, a := range m.atoms {
		if a.IsCompleted() {
			n++
		}
	}
	return n
}

// IsCompleted reports whether every atom is complete. A molecule with no
// atoms is vacuously complete.
func (m *Molecule) IsCompleted() bool {
	return m.CompletedCount() == len(m.atoms)
}

// Progress is the completed fraction in [0,1]; 0 when there are no atoms.
func (m *Molecule) Progress() float64 {
	if len(m.atoms) == 0 {
		return 0
	}
	return float64(m.CompletedCount()) / float64(len(m.atoms))
}

// ProgressDisplayString renders progress as "completed/total".
func (m *Molecule) ProgressDisplayString() string {
	return fmt.Sprintf("%d/%d", m.CompletedCount(), len(m.atoms))
}

// Aggregate returns the last state recorded by Progression.
func (m *Molecule) Aggregate() Aggregate { return m.aggregate }

// compute derives a fresh aggregate from the atoms, carrying over the
// history fields.
func (m *Molecule) compute() Aggregate {
	done := m.CompletedCount()
	agg := Aggregate{
		Completed:      done == len(m.atoms),
		CompletedAtoms: done,
		TotalAtoms:     len(m.atoms),
		Progress:       m.Progress(),
		EverCompleted:  m.aggregate.EverCompleted,
		CompletedAt:    m.aggregate.CompletedAt,
	}
	return agg
}

// Clone returns a deep copy including atoms.
func (m *Molecule) Clone() *Molecule {
	cp := *m
	cp.atoms = make([]*Atom, len(m.atoms))
	for i, a := range m.atoms {
		cp.atoms[i] = a.Clone()
	}
	if m.aggregate.CompletedAt != nil {
		t := *m.aggregate.CompletedAt
		cp.aggregate.CompletedAt = &t
	}
	return &cp
}
