package schedule

import (
	"io"
	"log/slog"
	"time"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/ids"
)

// Materializer expands templates into molecules with fresh ids.
type Materializer struct {
	ids    ids.Generator
	logger *slog.Logger
}

// NewMaterializer creates a materializer. A nil generator uses UUIDv7.
func NewMaterializer(gen ids.Generator, logger *slog.Logger) *Materializer {
	if gen == nil {
		gen = ids.UUIDv7{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Materializer{ids: gen, logger: logger}
}

// Materialize creates one molecule per occurrence of t in [start, end).
// Dates for which exists reports true are skipped, so re-running a range
// never duplicates occurrences. exists may be nil.
func (m *Materializer) Materialize(t *Template, start, end time.Time, exists func(time.Time) bool) []*habit.Molecule {
	var out []*habit.Molecule
	if err := t.Rule.Validate(); err != nil {
		m.logger.Warn("template rule yields no occurrences", "template", t.Name, "reason", err)
	}
	for _, date := range t.Rule.Between(start, end) {
		if exists != nil && exists(date) {
			continue
		}
		out = append(out, m.Molecule(t, date))
	}
	m.logger.Debug("materialized template",
		"template", t.Name,
		"from", start.Format(time.DateOnly),
		"to", end.Format(time.DateOnly),
		"created", len(out),
	)
	return out
}

// Molecule builds a single occurrence of t on date. Atom specs with an
// unknown type are skipped and logged rather than failing the whole
// occurrence.
func (m *Materializer) Molecule(t *Template, date time.Time) *habit.Molecule {
	mol := habit.NewMolecule(m.ids.Generate(), t.ID, t.Title, date)
	for _, spec := range t.Atoms {
		b, err := spec.Behavior()
		if err != nil {
			m.logger.Warn("skipping atom", "template", t.Name, "atom", spec.Title, "error", err)
			continue
		}
		a := habit.NewAtom(m.ids.Generate(), spec.Title, b)
		a.Unit = spec.Unit
		a.SourceTemplateID = t.ID
		mol.AddAtom(a)
	}
	return mol
}
