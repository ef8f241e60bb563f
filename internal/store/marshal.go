package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
)

// timeLayout is used for every stored timestamp. Values are written in UTC.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func formatDate(t time.Time) string {
	return t.Format(recurrence.DateLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v float64, ok bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// atomRow is the flattened storage form of an atom. Columns not used by the
// atom's input type keep their zero values.
type atomRow struct {
	ID               string
	MoleculeID       string
	Position         int
	Title            string
	Unit             string
	InputType        string
	SourceTemplateID string
	Checked          bool
	Current          sql.NullFloat64
	Target           sql.NullFloat64
	Step             float64
	Phase            string
	Attempts         int
	Artifact         sql.NullString
	Failure          string
	Settings         sql.NullString
}

// encodeAtom flattens a into its row. The type switch is exhaustive over the
// sealed habit.Behavior set.
func encodeAtom(a *habit.Atom) (atomRow, error) {
	row := atomRow{
		ID:               a.ID,
		MoleculeID:       a.MoleculeID,
		Position:         a.Position,
		Title:            a.Title,
		Unit:             a.Unit,
		InputType:        string(a.InputType()),
		SourceTemplateID: a.SourceTemplateID,
	}

	switch b := a.Behavior().(type) {
	case *habit.Binary:
		row.Checked = b.Checked()
	case *habit.Counter:
		row.Current = nullFloat(b.Current(), true)
		row.Target = nullFloat(b.Target())
		row.Step = b.Step()
	case *habit.Value:
		row.Current = nullFloat(b.Current())
		row.Target = nullFloat(b.Target())
	case *habit.Media:
		row.Phase = string(b.Phase())
		row.Attempts = b.Attempts()
		row.Failure = b.Failure()
		if settings, ok := b.Settings(); ok {
			data, err := json.Marshal(settings)
			if err != nil {
				return atomRow{}, fmt.Errorf("marshal capture settings: %w", err)
			}
			row.Settings = sql.NullString{String: string(data), Valid: true}
		}
		if artifact, ok := b.Artifact(); ok {
			data, err := json.Marshal(artifact)
			if err != nil {
				return atomRow{}, fmt.Errorf("marshal artifact: %w", err)
			}
			row.Artifact = sql.NullString{String: string(data), Valid: true}
		}
	default:
		return atomRow{}, fmt.Errorf("unsupported behavior %T", b)
	}
	return row, nil
}

// decodeAtom rebuilds an atom from its row. An unknown input type is
// returned as an error so the caller can skip the row; an unknown capture
// phase or undecodable artifact degrades to a pending capture and is
// reported through warn. Undecodable capture settings are dropped.
func decodeAtom(row atomRow, warn func(msg string, args ...any)) (*habit.Atom, error) {
	kind, err := habit.ParseInputType(row.InputType)
	if err != nil {
		return nil, err
	}

	var b habit.Behavior
	switch kind {
	case habit.InputBinary:
		b = habit.NewBinary(row.Checked)
	case habit.InputCounter:
		b = habit.NewCounter(row.Current.Float64, floatPtr(row.Target), row.Step)
	case habit.InputValue:
		b = habit.NewValue(floatPtr(row.Current), floatPtr(row.Target))
	default:
		phase, ok := habit.ParseCapturePhase(row.Phase)
		if !ok {
			warn("unknown capture phase, treating as pending", "atom", row.ID, "phase", row.Phase)
		}
		st := habit.MediaState{Phase: phase, Failure: row.Failure, Attempts: row.Attempts}
		if row.Artifact.Valid {
			var a habit.Artifact
			if err := json.Unmarshal([]byte(row.Artifact.String), &a); err != nil {
				warn("undecodable artifact, treating as absent", "atom", row.ID, "error", err)
			} else {
				st.Artifact = &a
			}
		}
		if row.Settings.Valid {
			var cs habit.CaptureSettings
			if err := json.Unmarshal([]byte(row.Settings.String), &cs); err != nil {
				warn("undecodable capture settings, ignoring", "atom", row.ID, "error", err)
			} else {
				cs.Kind = kind
				st.Settings = &cs
			}
		}
		b = habit.RestoreMedia(kind, st)
	}

	a := habit.NewAtom(row.ID, row.Title, b)
	a.MoleculeID = row.MoleculeID
	a.Position = row.Position
	a.Unit = row.Unit
	a.SourceTemplateID = row.SourceTemplateID
	return a, nil
}
