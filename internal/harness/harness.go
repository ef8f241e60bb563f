package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/molecules/internal/compiler"
	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/ledger"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/schedule"
	"github.com/roach88/molecules/internal/store"
	"github.com/roach88/molecules/internal/testutil"
)

// Harness executes scenario steps against a real store, progression service
// and sync history, with a fake clock and sequential ids.
type Harness struct {
	store        *store.Store
	clock        *testutil.FakeClock
	ids          *testutil.SequenceIDs
	templates    map[string]*schedule.Template
	catalog      *schedule.Catalog
	registry     *habit.Registry
	progression  *habit.Progression
	materializer *schedule.Materializer
	ledger       *ledger.Ledger
	recorder     *ledger.Recorder
	logger       *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes engine logs to logger instead of discarding them.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Every step persists its
// effect; assertions then read state back from the store, so a passing run
// also proves the state survives a save/load round trip.
//
// An error is returned when the scenario cannot be executed (bad template,
// a step naming a molecule that does not exist). Failed assertions are
// reported on the result instead.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	now := scenario.Now
	if now == "" {
		now = DefaultNow
	}
	start, err := time.Parse(time.RFC3339, now)
	if err != nil {
		return nil, fmt.Errorf("invalid now: %w", err)
	}

	h := &Harness{
		clock:     testutil.NewFakeClock(start),
		ids:       testutil.NewSequenceIDs("id"),
		templates: make(map[string]*schedule.Template),
		registry:  habit.NewRegistry(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	st, err := store.Open(":memory:", store.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	h.progression = habit.NewProgression(h.registry, habit.WithClock(h.clock), habit.WithLogger(h.logger))
	h.materializer = schedule.NewMaterializer(h.ids, h.logger)
	h.ledger = ledger.New(scenario.HistoryMax, ledger.WithSink(st), ledger.WithLogger(h.logger))
	h.recorder = ledger.NewRecorder(h.ledger, h.clock)

	ctx := context.Background()

	if err := h.loadTemplates(ctx, scenario.Templates); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		result.addEvent(ev)
		h.logger.Debug("scenario step completed", "step", i, "action", step.Action, "applied", ev.Applied)
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     st,
		Ledger:    h.ledger,
		Templates: h.templates,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// loadTemplates compiles, validates and stores every template file.
func (h *Harness) loadTemplates(ctx context.Context, paths []string) error {
	cctx := cuecontext.New()
	var all []*schedule.Template
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		ts, errs := compiler.CompileSource(cctx, p, src)
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		all = append(all, ts...)
	}

	for _, verr := range compiler.Validate(all) {
		if !verr.IsWarning() {
			return verr
		}
		h.logger.Warn("template validation warning", "error", verr.Error())
	}

	tids := testutil.NewSequenceIDs("tmpl")
	for _, t := range all {
		t.ID = tids.Generate()
		t.CreatedAt = h.clock.Now()
		if err := h.store.SaveTemplate(ctx, t); err != nil {
			return err
		}
		h.templates[t.Name] = t
	}
	h.catalog = schedule.NewCatalog(all...)
	return nil
}

func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	switch step.Action {
	case StepMaterialize:
		return h.materialize(ctx, step)
	case StepToggle, StepIncrement, StepDecrement, StepSet,
		StepBeginCapture, StepCompleteCapture, StepFailCapture, StepRetryCapture:
		return h.mutateAtom(ctx, step)
	case StepReschedule:
		return h.reschedule(ctx, step)
	case StepDelete:
		return h.deleteMolecules(ctx, step)
	case StepPurgeFuture:
		return h.purgeFuture(ctx)
	case StepAdvance:
		d, err := time.ParseDuration(step.Value)
		if err != nil {
			return TraceEvent{}, err
		}
		h.clock.Advance(d)
		return TraceEvent{Action: step.Action, Target: step.Value, Applied: true}, nil
	case StepSync:
		return h.sync(step.Sync)
	case StepClearHistory:
		h.ledger.Clear()
		return TraceEvent{Action: step.Action, Applied: true}, nil
	default:
		return TraceEvent{}, fmt.Errorf("unknown action %q", step.Action)
	}
}

func (h *Harness) template(name string) (*schedule.Template, error) {
	t, ok := h.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	return t, nil
}

func (h *Harness) materialize(ctx context.Context, step Step) (TraceEvent, error) {
	t, err := h.template(step.Template)
	if err != nil {
		return TraceEvent{}, err
	}
	from, err := recurrence.ParseDate(step.From)
	if err != nil {
		return TraceEvent{}, err
	}
	to, err := recurrence.ParseDate(step.To)
	if err != nil {
		return TraceEvent{}, err
	}

	existing, err := h.store.ScheduledDates(ctx, t.ID, from, to)
	if err != nil {
		return TraceEvent{}, err
	}
	created := h.materializer.Materialize(t, from, to, func(d time.Time) bool {
		return existing[d.Format(recurrence.DateLayout)]
	})

	dates := make([]string, 0, len(created))
	for _, m := range created {
		h.registry.Add(m)
		h.progression.Refresh(m)
		dates = append(dates, m.ScheduledDate().Format(recurrence.DateLayout))
	}
	if err := h.store.SaveMolecules(ctx, created); err != nil {
		return TraceEvent{}, err
	}

	return TraceEvent{
		Action:  step.Action,
		Target:  t.Name,
		Applied: len(created) > 0,
		Dates:   dates,
		Count:   len(created),
	}, nil
}

// molecule finds the occurrence of a template on a day.
func (h *Harness) molecule(templateName, date string) (*habit.Molecule, error) {
	t, err := h.template(templateName)
	if err != nil {
		return nil, err
	}
	day, err := recurrence.ParseDate(date)
	if err != nil {
		return nil, err
	}
	for _, m := range h.registry.MoleculesOn(day) {
		if m.TemplateID == t.ID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no %s molecule on %s", templateName, date)
}

func atomByTitle(m *habit.Molecule, title string) (*habit.Atom, error) {
	for _, a := range m.Atoms() {
		if a.Title == title {
			return a, nil
		}
	}
	return nil, fmt.Errorf("molecule %s has no atom %q", m.ID, title)
}

func (h *Harness) mutateAtom(ctx context.Context, step Step) (TraceEvent, error) {
	m, err := h.molecule(step.Template, step.Date)
	if err != nil {
		return TraceEvent{}, err
	}
	a, err := atomByTitle(m, step.Atom)
	if err != nil {
		return TraceEvent{}, err
	}

	ev := TraceEvent{
		Action: step.Action,
		Target: fmt.Sprintf("%s@%s/%s", step.Template, step.Date, step.Atom),
	}

	switch step.Action {
	case StepToggle:
		ev.Applied = a.Toggle()
	case StepIncrement:
		ev.Applied = a.Increment()
	case StepDecrement:
		ev.Applied = a.Decrement()
	case StepSet:
		ev.Applied = a.SetValue(step.Value)
	case StepBeginCapture:
		var settings habit.CaptureSettings
		settings, ev.Applied = a.BeginCapture(h.catalog)
		if ev.Applied {
			ev.Settings = settings.Quality + "/" + settings.Format
		}
	case StepCompleteCapture:
		ev.Applied = a.CompleteCapture(habit.Artifact{
			ID:         h.ids.Generate(),
			Path:       step.Value,
			CapturedAt: h.clock.Now(),
		})
	case StepFailCapture:
		ev.Applied = a.FailCapture(step.Value)
	case StepRetryCapture:
		ev.Applied = a.RetryCapture()
	}

	if ev.Applied {
		ch := h.progression.NotifyAtomChanged(a)
		ev.Events = changeEvents(ch)
		if err := h.store.SaveMolecule(ctx, m); err != nil {
			return TraceEvent{}, err
		}
	}
	ev.Progress = m.ProgressDisplayString()
	return ev, nil
}

func changeEvents(ch habit.Change) []string {
	var out []string
	if ch.JustCompleted {
		out = append(out, "completed")
	}
	if ch.JustReopened {
		out = append(out, "reopened")
	}
	if ch.DayJustCompleted {
		out = append(out, "day_completed")
	}
	return out
}

func (h *Harness) reschedule(ctx context.Context, step Step) (TraceEvent, error) {
	m, err := h.molecule(step.Template, step.Date)
	if err != nil {
		return TraceEvent{}, err
	}
	to, err := recurrence.ParseDate(step.Value)
	if err != nil {
		return TraceEvent{}, err
	}

	ev := TraceEvent{Action: step.Action, Target: fmt.Sprintf("%s@%s", step.Template, step.Date)}
	if err := m.Reschedule(to); err != nil {
		if errors.Is(err, habit.ErrScheduleLocked) {
			ev.Events = []string{"locked"}
			return ev, nil
		}
		return TraceEvent{}, err
	}
	if err := h.store.SaveMolecule(ctx, m); err != nil {
		return TraceEvent{}, err
	}
	ev.Applied = true
	ev.Dates = []string{step.Value}
	return ev, nil
}

func (h *Harness) deleteMolecules(ctx context.Context, step Step) (TraceEvent, error) {
	m, err := h.molecule(step.Template, step.Date)
	if err != nil {
		return TraceEvent{}, err
	}
	h.registry.DeleteSelected([]string{m.ID})
	n, err := h.store.DeleteMolecules(ctx, []string{m.ID})
	if err != nil {
		return TraceEvent{}, err
	}
	return TraceEvent{
		Action:  step.Action,
		Target:  fmt.Sprintf("%s@%s", step.Template, step.Date),
		Applied: n > 0,
		Count:   n,
	}, nil
}

func (h *Harness) purgeFuture(ctx context.Context) (TraceEvent, error) {
	now := h.clock.Now()
	h.registry.DeleteFuture(now)
	n, err := h.store.DeleteFutureMolecules(ctx, now)
	if err != nil {
		return TraceEvent{}, err
	}
	return TraceEvent{Action: StepPurgeFuture, Applied: n > 0, Count: n}, nil
}

func (h *Harness) sync(s *SyncStep) (TraceEvent, error) {
	attempt := h.recorder.Start(ledger.Action(s.Action))
	if s.Duration != "" {
		d, err := time.ParseDuration(s.Duration)
		if err != nil {
			return TraceEvent{}, err
		}
		h.clock.Advance(d)
	}

	o := ledger.Outcome{
		Status:     ledger.Status(s.Status),
		Downloaded: s.Downloaded,
		Uploaded:   s.Uploaded,
		ErrorCode:  s.ErrorCode,
		Details:    s.Details,
	}
	if s.Error != "" {
		o.Err = errors.New(s.Error)
	}
	e := attempt.Finish(o)

	return TraceEvent{
		Action:  StepSync,
		Target:  s.Action,
		Applied: true,
		Count:   h.ledger.Len(),
		Events:  []string{string(e.Status)},
	}, nil
}
