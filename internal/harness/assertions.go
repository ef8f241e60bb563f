package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/ledger"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/schedule"
	"github.com/roach88/molecules/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s applied=%t %s\n", ev.Seq, ev.Action, ev.Target, ev.Applied, ev.Progress)
		}
	}
	return buf.String()
}

// AssertionContext is the state assertions read from.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Ledger    *ledger.Ledger
	Templates map[string]*schedule.Template
}

// EvaluateAssertions checks every assertion and returns one message per
// failure. Molecule state is reloaded from the store first.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	if len(assertions) == 0 {
		return nil
	}

	reg, err := actx.Store.LoadRegistry(actx.Ctx, store.MoleculeQuery{})
	if err != nil {
		return []string{fmt.Sprintf("reload molecules: %v", err)}
	}

	var errs []string
	for i, a := range assertions {
		if err := evaluate(reg, a, actx, result.Trace); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(reg *habit.Registry, a Assertion, actx *AssertionContext, trace []TraceEvent) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: trace}
	}

	switch a.Type {
	case AssertMoleculeCount:
		n, err := countMolecules(reg, a, actx.Templates)
		if err != nil {
			return err
		}
		if n != *a.Count {
			return fail(fmt.Sprintf("%d molecules", *a.Count), fmt.Sprintf("%d molecules", n))
		}

	case AssertMolecule:
		m, err := findMolecule(reg, a.Template, a.Date, actx.Templates)
		if err != nil {
			return fail(fmt.Sprintf("%s molecule on %s", a.Template, a.Date), err.Error())
		}
		if a.Progress != "" && m.ProgressDisplayString() != a.Progress {
			return fail("progress "+a.Progress, "progress "+m.ProgressDisplayString())
		}
		if a.Completed != nil && m.Aggregate().Completed != *a.Completed {
			return fail(fmt.Sprintf("completed=%t", *a.Completed), fmt.Sprintf("completed=%t", m.Aggregate().Completed))
		}

	case AssertAtom:
		m, err := findMolecule(reg, a.Template, a.Date, actx.Templates)
		if err != nil {
			return fail(fmt.Sprintf("%s molecule on %s", a.Template, a.Date), err.Error())
		}
		at, err := atomByTitle(m, a.Atom)
		if err != nil {
			return fail("atom "+a.Atom, err.Error())
		}
		if a.Completed != nil && at.IsCompleted() != *a.Completed {
			return fail(fmt.Sprintf("completed=%t", *a.Completed), fmt.Sprintf("completed=%t", at.IsCompleted()))
		}
		if a.Phase != "" {
			media, ok := at.Behavior().(*habit.Media)
			if !ok {
				return fail("phase "+a.Phase, fmt.Sprintf("%s atom has no phase", at.InputType()))
			}
			if string(media.Phase()) != a.Phase {
				return fail("phase "+a.Phase, "phase "+string(media.Phase()))
			}
		}
		if a.Value != nil {
			v, ok := at.CurrentValue()
			if !ok || v != *a.Value {
				return fail(fmt.Sprintf("value %g", *a.Value), fmt.Sprintf("value %g (set=%t)", v, ok))
			}
		}

	case AssertDayComplete:
		day, err := recurrence.ParseDate(a.Date)
		if err != nil {
			return err
		}
		got := habit.NewProgression(reg).DayComplete(day)
		if got != *a.Completed {
			return fail(fmt.Sprintf("day %s complete=%t", a.Date, *a.Completed), fmt.Sprintf("complete=%t", got))
		}

	case AssertHistoryCount:
		persisted, err := actx.Store.ListHistory(actx.Ctx)
		if err != nil {
			return err
		}
		if actx.Ledger.Len() != *a.Count || len(persisted) != *a.Count {
			return fail(fmt.Sprintf("%d history entries", *a.Count),
				fmt.Sprintf("%d in memory, %d persisted", actx.Ledger.Len(), len(persisted)))
		}

	case AssertHistoryLatest:
		snap := actx.Ledger.Snapshot()
		if len(snap) == 0 {
			return fail("latest status "+a.Status, "history is empty")
		}
		if string(snap[0].Status) != a.Status {
			return fail("latest status "+a.Status, "latest status "+string(snap[0].Status))
		}

	case AssertHistoryValid:
		if err := ledger.Verify(actx.Ledger.Snapshot()); err != nil {
			return fail("in-memory history verifies", err.Error())
		}
		persisted, err := actx.Store.ListHistory(actx.Ctx)
		if err != nil {
			return err
		}
		newestFirst := make([]ledger.Entry, len(persisted))
		for i, e := range persisted {
			newestFirst[len(persisted)-1-i] = e
		}
		if err := ledger.Verify(newestFirst); err != nil {
			return fail("persisted history verifies", err.Error())
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func countMolecules(reg *habit.Registry, a Assertion, templates map[string]*schedule.Template) (int, error) {
	var templateID string
	if a.Template != "" {
		t, ok := templates[a.Template]
		if !ok {
			return 0, fmt.Errorf("unknown template %q", a.Template)
		}
		templateID = t.ID
	}

	ms := reg.All()
	if a.Date != "" {
		day, err := recurrence.ParseDate(a.Date)
		if err != nil {
			return 0, err
		}
		ms = reg.MoleculesOn(day)
	}

	n := 0
	for _, m := range ms {
		if templateID == "" || m.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

func findMolecule(reg *habit.Registry, templateName, date string, templates map[string]*schedule.Template) (*habit.Molecule, error) {
	t, ok := templates[templateName]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", templateName)
	}
	day, err := recurrence.ParseDate(date)
	if err != nil {
		return nil, err
	}
	for _, m := range reg.MoleculesOn(day) {
		if m.TemplateID == t.ID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("not found")
}
