package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/molecules/internal/habit"
)

func seedMolecules(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	ms := []*habit.Molecule{
		createTestMolecule("b", "t1", day(2024, 1, 2)),
		createTestMolecule("a", "t1", day(2024, 1, 2)),
		createTestMolecule("c", "t2", day(2024, 1, 1)),
		createTestMolecule("d", "t1", day(2024, 1, 5)),
	}
	// Mark d complete in storage.
	done := habit.NewProgression(habit.NewRegistry(ms...))
	for _, a := range ms[3].Atoms() {
		a.Toggle()
		a.Increment()
		a.Increment()
		done.NotifyAtomChanged(a)
	}
	require.True(t, ms[3].Aggregate().Completed)
	require.NoError(t, s.SaveMolecules(ctx, ms))
}

func moleculeIDs(ms []*habit.Molecule) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}

func TestFindMolecules_DeterministicOrder(t *testing.T) {
	s := createTestStore(t)
	seedMolecules(t, s)

	got, err := s.FindMolecules(context.Background(), MoleculeQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b", "d"}, moleculeIDs(got))
	for _, m := range got {
		assert.Len(t, m.Atoms(), 2, "atoms loaded for %s", m.ID)
	}
}

func TestFindMolecules_Filters(t *testing.T) {
	s := createTestStore(t)
	seedMolecules(t, s)
	yes, no := true, false

	tests := []struct {
		name  string
		query MoleculeQuery
		want  []string
	}{
		{"half-open range", MoleculeQuery{From: day(2024, 1, 2), To: day(2024, 1, 5)}, []string{"a", "b"}},
		{"from only", MoleculeQuery{From: day(2024, 1, 3)}, []string{"d"}},
		{"template", MoleculeQuery{TemplateID: "t2"}, []string{"c"}},
		{"ids", MoleculeQuery{IDs: []string{"d", "c"}}, []string{"c", "d"}},
		{"empty ids match nothing", MoleculeQuery{IDs: []string{}}, []string{}},
		{"completed", MoleculeQuery{Completed: &yes}, []string{"d"}},
		{"incomplete in template", MoleculeQuery{TemplateID: "t1", Completed: &no}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindMolecules(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, moleculeIDs(got))
		})
	}
}

func TestMoleculeQuery_CompileIsParameterized(t *testing.T) {
	sql, params := MoleculeQuery{
		From:       day(2024, 1, 1),
		TemplateID: "t1'; DROP TABLE molecules; --",
	}.compile()

	assert.NotContains(t, sql, "DROP")
	assert.Contains(t, sql, "ORDER BY scheduled_date ASC, id ASC COLLATE BINARY")
	assert.Equal(t, []any{"2024-01-01", "t1'; DROP TABLE molecules; --"}, params)
}

func TestScheduledDates(t *testing.T) {
	s := createTestStore(t)
	seedMolecules(t, s)

	got, err := s.ScheduledDates(context.Background(), "t1", day(2024, 1, 1), day(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2024-01-02": true, "2024-01-05": true}, got)
}

func TestScheduledDates_UsesOccurrenceDate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	m := createTestMolecule("m1", "t1", day(2024, 1, 1))
	require.NoError(t, m.Reschedule(day(2024, 3, 1)))
	require.NoError(t, s.SaveMolecule(ctx, m))

	got, err := s.ScheduledDates(ctx, "t1", day(2024, 1, 1), day(2024, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2024-01-01": true}, got)

	got, err = s.ScheduledDates(ctx, "t1", day(2024, 3, 1), day(2024, 3, 2))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadRegistry(t *testing.T) {
	s := createTestStore(t)
	seedMolecules(t, s)

	reg, err := s.LoadRegistry(context.Background(), MoleculeQuery{TemplateID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())
	assert.Len(t, reg.MoleculesOn(day(2024, 1, 2)), 2)
}

func TestLoadCatalog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, createTestTemplate("t1", "morning")))

	cat, err := s.LoadCatalog(ctx)
	require.NoError(t, err)
	settings, ok := cat.ResolveCaptureSettings("t1", habit.InputPhoto)
	require.True(t, ok)
	assert.Equal(t, "low", settings.Quality)
}
