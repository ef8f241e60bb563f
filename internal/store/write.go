package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/schedule"
)

// SaveTemplate inserts or updates a template. Templates are keyed by name:
// saving a template whose name already exists keeps the stored id and
// creation time, and t.ID is updated to match.
func (s *Store) SaveTemplate(ctx context.Context, t *schedule.Template) error {
	rule, err := json.Marshal(t.Rule)
	if err != nil {
		return fmt.Errorf("save template %s: marshal rule: %w", t.Name, err)
	}
	atoms := t.Atoms
	if atoms == nil {
		atoms = []schedule.AtomSpec{}
	}
	atomsJSON, err := json.Marshal(atoms)
	if err != nil {
		return fmt.Errorf("save template %s: marshal atoms: %w", t.Name, err)
	}
	capture := t.Capture
	if capture == nil {
		capture = map[habit.InputType]habit.CaptureSettings{}
	}
	captureJSON, err := json.Marshal(capture)
	if err != nil {
		return fmt.Errorf("save template %s: marshal capture: %w", t.Name, err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var existingID, createdAt string
		err := tx.QueryRowContext(ctx, `SELECT id, created_at FROM templates WHERE name = ?`, t.Name).
			Scan(&existingID, &createdAt)
		switch {
		case err == nil:
			t.ID = existingID
			if ts, perr := parseTime(createdAt); perr == nil {
				t.CreatedAt = ts
			}
		case errors.Is(err, sql.ErrNoRows):
			if t.ID == "" {
				return fmt.Errorf("template id is required")
			}
		default:
			return err
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO templates (id, name, title, rule, atoms, capture, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				title = excluded.title,
				rule = excluded.rule,
				atoms = excluded.atoms,
				capture = excluded.capture
		`,
			t.ID,
			t.Name,
			t.Title,
			string(rule),
			string(atomsJSON),
			string(captureJSON),
			formatTime(t.CreatedAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save template %s: %w", t.Name, err)
	}
	return nil
}

// DeleteTemplate removes a template and the record of its deleted
// occurrences. Molecules keep their weak reference.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM skipped_occurrences WHERE template_id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return nil
}

// SaveMolecule commits a molecule, its stored aggregate and its atoms in one
// transaction. Atoms are upserted by id; stored rows the molecule does not
// carry, such as ones skipped as unreadable, are left alone.
func (s *Store) SaveMolecule(ctx context.Context, m *habit.Molecule) error {
	return s.SaveMolecules(ctx, []*habit.Molecule{m})
}

// SaveMolecules commits several molecules atomically.
func (s *Store) SaveMolecules(ctx context.Context, ms []*habit.Molecule) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range ms {
			if err := saveMolecule(ctx, tx, m); err != nil {
				return fmt.Errorf("%s: %w", m.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save molecule: %w", err)
	}
	return nil
}

func saveMolecule(ctx context.Context, tx *sql.Tx, m *habit.Molecule) error {
	agg := m.Aggregate()
	var completedAt sql.NullString
	if agg.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*agg.CompletedAt), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO molecules
		(id, template_id, title, scheduled_date, occurrence_date, completed, completed_atoms,
		 total_atoms, progress, ever_completed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_id = excluded.template_id,
			title = excluded.title,
			scheduled_date = excluded.scheduled_date,
			completed = excluded.completed,
			completed_atoms = excluded.completed_atoms,
			total_atoms = excluded.total_atoms,
			progress = excluded.progress,
			ever_completed = excluded.ever_completed,
			completed_at = excluded.completed_at
	`,
		m.ID,
		m.TemplateID,
		m.Title,
		formatDate(m.ScheduledDate()),
		formatDate(m.OccurrenceDate()),
		boolToInt(agg.Completed),
		agg.CompletedAtoms,
		agg.TotalAtoms,
		agg.Progress,
		boolToInt(agg.EverCompleted),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("write molecule: %w", err)
	}

	for _, a := range m.Atoms() {
		row, err := encodeAtom(a)
		if err != nil {
			return fmt.Errorf("atom %s: %w", a.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO atoms
			(id, molecule_id, position, title, unit, input_type, source_template_id,
			 checked, current_value, target_value, step, capture_phase, capture_attempts, artifact,
			 capture_failure, capture_settings)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				molecule_id = excluded.molecule_id,
				position = excluded.position,
				title = excluded.title,
				unit = excluded.unit,
				input_type = excluded.input_type,
				source_template_id = excluded.source_template_id,
				checked = excluded.checked,
				current_value = excluded.current_value,
				target_value = excluded.target_value,
				step = excluded.step,
				capture_phase = excluded.capture_phase,
				capture_attempts = excluded.capture_attempts,
				artifact = excluded.artifact,
				capture_failure = excluded.capture_failure,
				capture_settings = excluded.capture_settings
		`,
			row.ID,
			m.ID,
			row.Position,
			row.Title,
			row.Unit,
			row.InputType,
			row.SourceTemplateID,
			boolToInt(row.Checked),
			row.Current,
			row.Target,
			row.Step,
			row.Phase,
			row.Attempts,
			row.Artifact,
			row.Failure,
			row.Settings,
		)
		if err != nil {
			return fmt.Errorf("write atom %s: %w", a.ID, err)
		}
	}
	return nil
}

// DeleteMolecules removes the molecules with the given ids and their atoms.
// Unknown ids are ignored. Returns the number removed.
//
// Each removed molecule that came from a template leaves a skipped
// occurrence behind, so scheduling the same range again does not bring it
// back.
func (s *Store) DeleteMolecules(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO skipped_occurrences (template_id, occurrence_date, deleted_at)
			SELECT template_id, occurrence_date, ?
			FROM molecules
			WHERE id IN (`+marks+`) AND template_id != ''
			ON CONFLICT(template_id, occurrence_date) DO NOTHING
		`, append([]any{formatTime(time.Now())}, args...)...)
		if err != nil {
			return fmt.Errorf("record skipped occurrences: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM molecules WHERE id IN (`+marks+`)`, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete molecules: %w", err)
	}
	return int(n), nil
}

// DeleteFutureMolecules removes every molecule scheduled on a calendar day
// after the day of now. Today's molecules are kept. No skipped occurrences
// are recorded, so a later schedule run refills the range.
func (s *Store) DeleteFutureMolecules(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM molecules WHERE scheduled_date > ?`, formatDate(now))
	if err != nil {
		return 0, fmt.Errorf("delete future molecules: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete future molecules: %w", err)
	}
	return int(n), nil
}
