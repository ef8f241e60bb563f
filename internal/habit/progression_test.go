package habit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/molecules/internal/testutil"
)

var day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newMolecule(id string, date time.Time, atoms ...*Atom) *Molecule {
	m := NewMolecule(id, "tpl-1", "Morning", date)
	for _, a := range atoms {
		m.AddAtom(a)
	}
	return m
}

func TestMolecule_ProgressQuarter(t *testing.T) {
	m := newMolecule("m1", day1,
		NewAtom("a1", "one", NewBinary(true)),
		NewAtom("a2", "two", NewBinary(false)),
		NewAtom("a3", "three", NewCounter(0, float(1), 1)),
		NewAtom("a4", "four", NewMedia(InputPhoto)),
	)

	assert.Equal(t, 0.25, m.Progress())
	assert.False(t, m.IsCompleted())
	assert.Equal(t, "1/4", m.ProgressDisplayString())
}

func TestMolecule_ZeroAtomsVacuouslyComplete(t *testing.T) {
	m := newMolecule("m1", day1)

	assert.Equal(t, 0.0, m.Progress())
	assert.True(t, m.IsCompleted())
	assert.Equal(t, "0/0", m.ProgressDisplayString())
}

func TestMolecule_AtomsKeepAuthoringOrder(t *testing.T) {
	m := newMolecule("m1", day1,
		NewAtom("z", "last alphabetically", nil),
		NewAtom("a", "first alphabetically", nil),
	)

	atoms := m.Atoms()
	require.Len(t, atoms, 2)
	assert.Equal(t, "z", atoms[0].ID)
	assert.Equal(t, 0, atoms[0].Position)
	assert.Equal(t, 1, atoms[1].Position)
	assert.Equal(t, "m1", atoms[1].MoleculeID)
}

func TestProgression_NotifyUpdatesAggregate(t *testing.T) {
	a1 := NewAtom("a1", "one", NewBinary(false))
	a2 := NewAtom("a2", "two", NewCounter(0, float(2), 1))
	m := newMolecule("m1", day1, a1, a2)
	clock := testutil.NewFakeClock(day1.Add(7 * time.Hour))
	p := NewProgression(NewRegistry(m), WithClock(clock))

	a1.Toggle()
	ch := p.NotifyAtomChanged(a1)
	assert.True(t, ch.Changed)
	assert.False(t, ch.JustCompleted)
	assert.Equal(t, 0.5, m.Aggregate().Progress)

	a2.Increment()
	a2.Increment()
	ch = p.NotifyAtomChanged(a2)
	require.True(t, ch.JustCompleted)
	assert.True(t, m.Aggregate().Completed)
	assert.True(t, m.Aggregate().EverCompleted)
	require.NotNil(t, m.Aggregate().CompletedAt)
	assert.Equal(t, clock.Now(), *m.Aggregate().CompletedAt)
}

func TestProgression_NotifyIsIdempotent(t *testing.T) {
	a := NewAtom("a1", "one", NewBinary(false))
	m := newMolecule("m1", day1, a, NewAtom("a2", "two", NewBinary(false)))
	p := NewProgression(NewRegistry(m))

	var calls int
	p.OnChange(func(Change) { calls++ })

	a.Toggle()
	first := p.NotifyAtomChanged(a)
	progress, completed := m.Progress(), m.IsCompleted()
	agg := m.Aggregate()

	second := p.NotifyAtomChanged(a)

	assert.True(t, first.Changed)
	assert.False(t, second.Changed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, progress, m.Progress())
	assert.Equal(t, completed, m.IsCompleted())
	assert.Equal(t, agg, m.Aggregate())
}

func TestProgression_OrphanedAtomIsNoOp(t *testing.T) {
	p := NewProgression(NewRegistry())
	a := NewAtom("a1", "lonely", NewBinary(false))
	a.MoleculeID = "gone"

	a.Toggle()
	ch := p.NotifyAtomChanged(a)
	assert.Equal(t, Change{}, ch)

	assert.Equal(t, Change{}, p.NotifyAtomChanged(nil))
	assert.Equal(t, Change{}, NewProgression(nil).NotifyAtomChanged(a))
}

func TestProgression_AtomNotOwnedIsNoOp(t *testing.T) {
	m := newMolecule("m1", day1, NewAtom("a1", "one", NewBinary(false)))
	p := NewProgression(NewRegistry(m))

	stranger := NewAtom("x", "other", NewBinary(true))
	stranger.MoleculeID = "m1"

	assert.False(t, p.NotifyAtomChanged(stranger).Changed)
}

func TestProgression_ReopenClearsCompletedAt(t *testing.T) {
	a := NewAtom("a1", "one", NewBinary(false))
	m := newMolecule("m1", day1, a)
	p := NewProgression(NewRegistry(m))

	a.Toggle()
	require.True(t, p.NotifyAtomChanged(a).JustCompleted)

	a.Toggle()
	ch := p.NotifyAtomChanged(a)
	assert.True(t, ch.JustReopened)
	assert.Nil(t, m.Aggregate().CompletedAt)
	assert.True(t, m.Aggregate().EverCompleted, "history keeps the completion")
}

func TestProgression_DayJustCompleted(t *testing.T) {
	a := NewAtom("a1", "one", NewBinary(false))
	b := NewAtom("b1", "one", NewBinary(false))
	m1 := newMolecule("m1", day1, a)
	m2 := newMolecule("m2", day1.Add(9*time.Hour), b)
	other := newMolecule("m3", day1.AddDate(0, 0, 1), NewAtom("c1", "x", NewBinary(false)))
	p := NewProgression(NewRegistry(m1, m2, other))

	a.Toggle()
	ch := p.NotifyAtomChanged(a)
	assert.True(t, ch.JustCompleted)
	assert.False(t, ch.DayJustCompleted)

	b.Toggle()
	ch = p.NotifyAtomChanged(b)
	assert.True(t, ch.DayJustCompleted)
	assert.True(t, p.DayComplete(day1))
	assert.False(t, p.DayComplete(day1.AddDate(0, 0, 1)))
	assert.False(t, p.DayComplete(day1.AddDate(0, 0, 5)), "nothing scheduled")
}

func TestMolecule_RescheduleLockedAfterCompletion(t *testing.T) {
	a := NewAtom("a1", "one", NewBinary(false))
	m := newMolecule("m1", day1, a)
	p := NewProgression(NewRegistry(m))

	require.NoError(t, m.Reschedule(day1.AddDate(0, 0, 1)))
	assert.Equal(t, day1.AddDate(0, 0, 1), m.ScheduledDate())

	a.Toggle()
	p.NotifyAtomChanged(a)
	a.Toggle()
	p.NotifyAtomChanged(a)

	err := m.Reschedule(day1.AddDate(0, 0, 2))
	assert.ErrorIs(t, err, ErrScheduleLocked)
	assert.Equal(t, day1.AddDate(0, 0, 1), m.ScheduledDate())
}

func TestProgression_RefreshEmptyMolecule(t *testing.T) {
	m := newMolecule("m1", day1)
	p := NewProgression(NewRegistry(m))

	ch := p.Refresh(m)
	assert.True(t, ch.JustCompleted)
	assert.True(t, m.Aggregate().Completed)
	assert.Equal(t, 0.0, m.Aggregate().Progress)

	assert.False(t, m.Aggregate().EverCompleted, "vacuous completion does not lock the date")
	require.NoError(t, m.Reschedule(day1.AddDate(0, 0, 3)))
	assert.Equal(t, day1.AddDate(0, 0, 3), m.ScheduledDate())
	assert.Equal(t, day1, m.OccurrenceDate())
}

func TestMolecule_RescheduleKeepsOccurrenceDate(t *testing.T) {
	m := newMolecule("m1", day1, NewAtom("a1", "Stretch", NewBinary(false)))
	require.NoError(t, m.Reschedule(day1.AddDate(0, 0, 5)))

	assert.Equal(t, day1.AddDate(0, 0, 5), m.ScheduledDate())
	assert.Equal(t, day1, m.OccurrenceDate())

	restored := RestoreMolecule("m1", "tpl-1", "Morning", day1.AddDate(0, 0, 5), time.Time{}, Aggregate{})
	assert.Equal(t, restored.ScheduledDate(), restored.OccurrenceDate(), "rows without an occurrence date use the scheduled date")
}

func TestRegistry_BulkDeletes(t *testing.T) {
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	r := NewRegistry(
		newMolecule("past", day1),
		newMolecule("today", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		newMolecule("tomorrow", time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)),
		newMolecule("later", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
	)

	assert.Equal(t, 2, r.DeleteFuture(now))
	_, ok := r.Molecule("today")
	assert.True(t, ok)
	_, ok = r.Molecule("tomorrow")
	assert.False(t, ok)

	assert.Equal(t, 1, r.DeleteSelected([]string{"past", "missing"}))
	require.Equal(t, 1, r.Len())
	assert.Equal(t, "today", r.All()[0].ID)
}
