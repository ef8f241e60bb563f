package habit

import (
	"io"
	"log/slog"
	"time"

	"github.com/roach88/molecules/internal/clock"
)

// MoleculeResolver finds the molecule that owns an atom.
type MoleculeResolver interface {
	Molecule(id string) (*Molecule, bool)
}

// DayLister lists the molecules scheduled on a calendar day. Resolvers that
// also implement it enable the day-complete check.
type DayLister interface {
	MoleculesOn(day time.Time) []*Molecule
}

// Change describes one recomputation of a molecule's aggregate.
type Change struct {
	MoleculeID string
	Before     Aggregate
	After      Aggregate

	// Changed is false when the recomputation produced the stored state.
	Changed bool

	// JustCompleted and JustReopened flag completion edges.
	JustCompleted bool
	JustReopened  bool

	// DayJustCompleted is set when this completion finished every molecule
	// scheduled on the same day.
	DayJustCompleted bool
}

// Progression propagates atom changes into molecule aggregates. It is the
// only writer of Molecule.Aggregate.
type Progression struct {
	molecules MoleculeResolver
	clock     clock.Clock
	logger    *slog.Logger
	listeners []func(Change)
}

// ProgressionOption configures a Progression.
type ProgressionOption func(*Progression)

// WithClock sets the clock used to stamp completions.
func WithClock(c clock.Clock) ProgressionOption {
	return func(p *Progression) {
		p.clock = clock.Or(c)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ProgressionOption {
	return func(p *Progression) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProgression creates a service resolving molecules through r.
func NewProgression(r MoleculeResolver, opts ...ProgressionOption) *Progression {
	p := &Progression{
		molecules: r,
		clock:     clock.System{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnChange registers a listener called after every real change.
func (p *Progression) OnChange(fn func(Change)) {
	p.listeners = append(p.listeners, fn)
}

// NotifyAtomChanged recomputes the owning molecule of a. Call it after the
// mutation has been fully applied. An atom whose molecule cannot be
// resolved is ignored. Repeated calls without an intervening mutation
// report Changed == false and notify nobody.
func (p *Progression) NotifyAtomChanged(a *Atom) Change {
	if a == nil || p.molecules == nil {
		return Change{}
	}
	m, ok := p.molecules.Molecule(a.MoleculeID)
	if !ok || m == nil {
		p.logger.Debug("progression: orphaned atom", "atom_id", a.ID, "molecule_id", a.MoleculeID)
		return Change{}
	}
	if _, owned := m.Atom(a.ID); !owned {
		p.logger.Debug("progression: atom not owned by molecule", "atom_id", a.ID, "molecule_id", m.ID)
		return Change{}
	}
	return p.Refresh(m)
}

// Refresh recomputes m directly, e.g. after loading it from storage or
// adding atoms.
func (p *Progression) Refresh(m *Molecule) Change {
	before := m.aggregate
	after := m.compute()

	ch := Change{MoleculeID: m.ID, Before: before, After: after}
	if sameState(before, after) {
		ch.After = before
		return ch
	}

	if after.Completed && !before.Completed {
		now := p.clock.Now()
		// Vacuous completion of an empty molecule does not lock its date.
		if after.TotalAtoms > 0 {
			after.EverCompleted = true
		}
		after.CompletedAt = &now
		ch.JustCompleted = true
	}
	if !after.Completed && before.Completed {
		after.CompletedAt = nil
		ch.JustReopened = true
	}

	m.aggregate = after
	ch.After = after
	ch.Changed = true

	if ch.JustCompleted {
		ch.DayJustCompleted = p.DayComplete(m.scheduledDate)
	}

	p.logger.Debug("progression: molecule updated",
		"molecule_id", m.ID,
		"progress", m.ProgressDisplayString(),
		"completed", after.Completed,
	)
	for _, fn := range p.listeners {
		fn(ch)
	}
	return ch
}

// DayComplete reports whether every molecule scheduled on day is complete.
// It is false when the resolver cannot list days or nothing is scheduled.
func (p *Progression) DayComplete(day time.Time) bool {
	lister, ok := p.molecules.(DayLister)
	if !ok {
		return false
	}
	ms := lister.MoleculesOn(day)
	if len(ms) == 0 {
		return false
	}
	for _, m := range ms {
		if !m.IsCompleted() {
			return false
		}
	}
	return true
}

func sameState(a, b Aggregate) bool {
	return a.Completed == b.Completed &&
		a.CompletedAtoms == b.CompletedAtoms &&
		a.TotalAtoms == b.TotalAtoms &&
		a.Progress == b.Progress
}
