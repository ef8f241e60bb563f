package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/schedule"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(f float64) *float64 { return &f }

// createTestTemplate returns a weekday template with one atom per input
// family.
func createTestTemplate(id, name string) *schedule.Template {
	return &schedule.Template{
		ID:    id,
		Name:  name,
		Title: "Morning routine",
		Rule:  recurrence.NewCustom(day(2024, 1, 1), time.Monday, time.Wednesday, time.Friday),
		Atoms: []schedule.AtomSpec{
			{Title: "Stretch", Type: habit.InputBinary},
			{Title: "Push-ups", Type: habit.InputCounter, Target: ptr(20), Step: 5, Unit: "reps"},
			{Title: "Weight", Type: habit.InputValue, Unit: "kg"},
			{Title: "Progress photo", Type: habit.InputPhoto},
		},
		Capture: map[habit.InputType]habit.CaptureSettings{
			habit.InputPhoto: {Quality: "low", Format: "heic"},
		},
		CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

// createTestMolecule builds a molecule with a binary and a counter atom.
func createTestMolecule(id, templateID string, date time.Time) *habit.Molecule {
	m := habit.NewMolecule(id, templateID, "Routine", date)
	m.AddAtom(habit.NewAtom(id+"-a1", "Stretch", habit.NewBinary(false)))
	counter := habit.NewAtom(id+"-a2", "Push-ups", habit.NewCounter(0, ptr(10), 5))
	counter.Unit = "reps"
	counter.SourceTemplateID = templateID
	m.AddAtom(counter)
	return m
}
