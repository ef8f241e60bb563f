package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/schedule"
	"github.com/roach88/molecules/internal/store"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	From     string
	To       string
	Days     int
	Template string
}

// ScheduleResult reports the molecules created per template.
type ScheduleResult struct {
	From     string           `json:"from"`
	To       string           `json:"to"`
	Created  int              `json:"created"`
	Schedule []ScheduledBatch `json:"templates"`
}

// ScheduledBatch is one template's new occurrences.
type ScheduledBatch struct {
	Template string   `json:"template"`
	Dates    []string `json:"dates"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Materialize template occurrences into molecules",
		Long: `Expand stored templates into molecules for a date range.

The range is half-open: --from is included, --to is not. Without --to the
range covers --days days. Dates that already have a molecule of the
template are skipped, so scheduling the same range twice is safe.

Examples:
  molecules schedule --days 7
  molecules schedule --from 2024-01-01 --to 2024-02-01 --template morning`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "first day to schedule, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.To, "to", "", "day after the last day to schedule, YYYY-MM-DD")
	cmd.Flags().IntVar(&opts.Days, "days", 7, "number of days to schedule when --to is not set")
	cmd.Flags().StringVar(&opts.Template, "template", "", "only schedule this template")

	return cmd
}

func runSchedule(opts *ScheduleOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	from, to, err := dateRange(s, opts.From, opts.To, opts.Days)
	if err != nil {
		return err
	}

	templates := s.Catalog.Templates()
	if opts.Template != "" {
		t, err := s.templateByName(opts.Template)
		if err != nil {
			return err
		}
		templates = []*schedule.Template{t}
	}

	reg, err := s.Store.LoadRegistry(ctx, store.MoleculeQuery{From: from, To: to})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load molecules", err)
	}
	progression := s.Progression(reg)
	materializer := schedule.NewMaterializer(s.IDs, s.Logger)

	result := ScheduleResult{
		From:     from.Format(recurrence.DateLayout),
		To:       to.Format(recurrence.DateLayout),
		Schedule: make([]ScheduledBatch, 0, len(templates)),
	}
	var created []*habit.Molecule
	for _, t := range templates {
		existing, err := s.Store.ScheduledDates(ctx, t.ID, from, to)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read schedule", err)
		}
		batch := ScheduledBatch{Template: t.Name, Dates: []string{}}
		for _, m := range materializer.Materialize(t, from, to, func(d time.Time) bool {
			return existing[d.Format(recurrence.DateLayout)]
		}) {
			reg.Add(m)
			progression.Refresh(m)
			created = append(created, m)
			batch.Dates = append(batch.Dates, m.ScheduledDate().Format(recurrence.DateLayout))
		}
		result.Schedule = append(result.Schedule, batch)
	}
	result.Created = len(created)

	if err := s.Store.SaveMolecules(ctx, created); err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to save molecules", err)
	}

	for _, b := range result.Schedule {
		formatter.Verbosef("%s: %d new occurrence(s)", b.Template, len(b.Dates))
	}
	return formatter.Render(result, func(w io.Writer) { writeScheduleText(w, result) })
}

// dateRange resolves --from/--to/--days into a half-open range of UTC
// midnight dates. An empty from means today.
func dateRange(s *Session, fromFlag, toFlag string, days int) (time.Time, time.Time, error) {
	from := s.Today()
	if fromFlag != "" {
		d, err := recurrence.ParseDate(fromFlag)
		if err != nil {
			return time.Time{}, time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --from: %v", err))
		}
		from = d
	}

	if toFlag == "" {
		if days <= 0 {
			return time.Time{}, time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --days %d: must be positive", days))
		}
		return from, from.AddDate(0, 0, days), nil
	}
	to, err := recurrence.ParseDate(toFlag)
	if err != nil {
		return time.Time{}, time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --to: %v", err))
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("--to %s must be after --from %s", toFlag, from.Format(recurrence.DateLayout)))
	}
	return from, to, nil
}
