package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/schedule"
)

const templateColumns = `id, name, title, rule, atoms, capture, created_at`

// ReadTemplate retrieves a template by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadTemplate(ctx context.Context, id string) (*schedule.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	t, err := s.scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", id, err)
	}
	return t, nil
}

// ReadTemplateByName retrieves a template by its unique name.
func (s *Store) ReadTemplateByName(ctx context.Context, name string) (*schedule.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE name = ?`, name)
	t, err := s.scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read template %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %q: %w", name, err)
	}
	return t, nil
}

// ListTemplates returns all templates ordered by name.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListTemplates(ctx context.Context) ([]*schedule.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		ORDER BY name ASC COLLATE BINARY, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	templates := []*schedule.Template{}
	for rows.Next() {
		t, err := s.scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanTemplate decodes one template row. Undecodable JSON columns are
// treated as absent and logged; the rule degrades to the unconfigured rule.
func (s *Store) scanTemplate(row scanner) (*schedule.Template, error) {
	var (
		t                                    schedule.Template
		ruleJSON, atomsJSON, captureJSON, ca string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Title, &ruleJSON, &atomsJSON, &captureJSON, &ca); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}

	createdAt, err := parseTime(ca)
	if err != nil {
		s.logger.Warn("template has invalid created_at", "template", t.Name, "value", ca)
	}
	t.CreatedAt = createdAt

	if err := json.Unmarshal([]byte(ruleJSON), &t.Rule); err != nil {
		s.logger.Warn("template rule is corrupt, treating as unconfigured", "template", t.Name, "error", err)
		t.Rule = recurrence.Unconfigured(recurrence.Day(createdAt))
	}
	if err := json.Unmarshal([]byte(atomsJSON), &t.Atoms); err != nil {
		s.logger.Warn("template atoms are corrupt, treating as empty", "template", t.Name, "error", err)
		t.Atoms = nil
	}
	if err := json.Unmarshal([]byte(captureJSON), &t.Capture); err != nil {
		s.logger.Warn("template capture overrides are corrupt, ignoring", "template", t.Name, "error", err)
		t.Capture = nil
	}
	return &t, nil
}

// ReadMolecule retrieves a molecule with its atoms.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadMolecule(ctx context.Context, id string) (*habit.Molecule, error) {
	ms, err := s.FindMolecules(ctx, MoleculeQuery{IDs: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("read molecule %s: %w", id, err)
	}
	if len(ms) == 0 {
		return nil, fmt.Errorf("read molecule %s: %w", id, ErrNotFound)
	}
	return ms[0], nil
}

// FindMolecules returns the molecules matching q with their atoms, ordered by
// scheduled date then id. Returns an empty slice (not nil) when nothing
// matches.
func (s *Store) FindMolecules(ctx context.Context, q MoleculeQuery) ([]*habit.Molecule, error) {
	query, params := q.compile()
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query molecules: %w", err)
	}

	molecules := []*habit.Molecule{}
	byID := make(map[string]*habit.Molecule)
	for rows.Next() {
		m, err := s.scanMolecule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		molecules = append(molecules, m)
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate molecules: %w", err)
	}
	// The pool holds a single connection; release it before the atom query.
	rows.Close()

	if len(molecules) == 0 {
		return molecules, nil
	}
	if err := s.loadAtoms(ctx, q, byID); err != nil {
		return nil, err
	}
	return molecules, nil
}

// scanMolecule decodes a molecule row without atoms.
func (s *Store) scanMolecule(row scanner) (*habit.Molecule, error) {
	var (
		id, templateID, title, date string
		occurrenceDate              string
		completed, everCompleted    bool
		agg                         habit.Aggregate
		completedAt                 sql.NullString
	)
	err := row.Scan(&id, &templateID, &title, &date, &completed, &agg.CompletedAtoms,
		&agg.TotalAtoms, &agg.Progress, &everCompleted, &completedAt, &occurrenceDate)
	if err != nil {
		return nil, fmt.Errorf("scan molecule: %w", err)
	}
	agg.Completed = completed
	agg.EverCompleted = everCompleted

	scheduled, err := recurrence.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("scan molecule %s: scheduled date: %w", id, err)
	}
	var occurrence time.Time
	if occurrenceDate != "" {
		if occurrence, err = recurrence.ParseDate(occurrenceDate); err != nil {
			s.logger.Warn("molecule has invalid occurrence_date, using scheduled date", "molecule", id, "value", occurrenceDate)
			occurrence = time.Time{}
		}
	}
	if completedAt.Valid {
		if ts, err := parseTime(completedAt.String); err == nil {
			agg.CompletedAt = &ts
		} else {
			s.logger.Warn("molecule has invalid completed_at, ignoring", "molecule", id, "value", completedAt.String)
		}
	}
	return habit.RestoreMolecule(id, templateID, title, scheduled, occurrence, agg), nil
}

// loadAtoms attaches atoms to the molecules selected by q. Atoms with an
// unknown input type are skipped and logged.
func (s *Store) loadAtoms(ctx context.Context, q MoleculeQuery, byID map[string]*habit.Molecule) error {
	where, params := q.predicate().sql()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, molecule_id, position, title, unit, input_type, source_template_id,
		       checked, current_value, target_value, step, capture_phase, capture_attempts, artifact,
		       capture_failure, capture_settings
		FROM atoms
		WHERE molecule_id IN (SELECT id FROM molecules WHERE `+where+`)
		ORDER BY molecule_id ASC COLLATE BINARY, position ASC, id ASC COLLATE BINARY
	`, params...)
	if err != nil {
		return fmt.Errorf("query atoms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row atomRow
		err := rows.Scan(&row.ID, &row.MoleculeID, &row.Position, &row.Title, &row.Unit,
			&row.InputType, &row.SourceTemplateID, &row.Checked, &row.Current, &row.Target,
			&row.Step, &row.Phase, &row.Attempts, &row.Artifact, &row.Failure, &row.Settings)
		if err != nil {
			return fmt.Errorf("scan atom: %w", err)
		}
		a, err := decodeAtom(row, s.logger.Warn)
		if err != nil {
			s.logger.Warn("skipping atom", "atom", row.ID, "molecule", row.MoleculeID, "error", err)
			continue
		}
		if m, ok := byID[row.MoleculeID]; ok {
			m.AddAtom(a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate atoms: %w", err)
	}
	return nil
}

// FindAtom returns the atom with id together with its owning molecule, so
// the caller can mutate the atom and hand it to progression.
func (s *Store) FindAtom(ctx context.Context, id string) (*habit.Molecule, *habit.Atom, error) {
	var moleculeID string
	err := s.db.QueryRowContext(ctx, `SELECT molecule_id FROM atoms WHERE id = ?`, id).Scan(&moleculeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("find atom %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find atom %s: %w", id, err)
	}

	m, err := s.ReadMolecule(ctx, moleculeID)
	if err != nil {
		return nil, nil, fmt.Errorf("find atom %s: %w", id, err)
	}
	a, ok := m.Atom(id)
	if !ok {
		// Present in the table but skipped as corrupt.
		return nil, nil, fmt.Errorf("find atom %s: %w", id, ErrNotFound)
	}
	return m, a, nil
}

// ScheduledDates returns the occurrence dates in [from, to) the template has
// already produced, keyed by YYYY-MM-DD. A molecule counts on the date it
// was generated for, wherever it has been moved since, and individually
// deleted occurrences still count.
func (s *Store) ScheduledDates(ctx context.Context, templateID string, from, to time.Time) (map[string]bool, error) {
	lo, hi := formatDate(from), formatDate(to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurrence_date FROM molecules
		WHERE template_id = ? AND occurrence_date >= ? AND occurrence_date < ?
		UNION
		SELECT occurrence_date FROM skipped_occurrences
		WHERE template_id = ? AND occurrence_date >= ? AND occurrence_date < ?
	`, templateID, lo, hi, templateID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query scheduled dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan scheduled date: %w", err)
		}
		dates[d] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled dates: %w", err)
	}
	return dates, nil
}
