package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/store"
)

// AtomResult reports one atom mutation.
type AtomResult struct {
	Applied  bool                   `json:"applied"`
	Atom     AtomView               `json:"atom"`
	Molecule string                 `json:"molecule_id"`
	Progress string                 `json:"progress"`
	Events   []string               `json:"events,omitempty"`
	Settings *habit.CaptureSettings `json:"settings,omitempty"`
}

// CaptureOptions holds flags for atom complete.
type CaptureOptions struct {
	*RootOptions
	ContentType string
	Duration    time.Duration
}

// atomOp mutates a to its next state and reports whether anything changed.
type atomOp func(s *Session, a *habit.Atom, args []string, res *AtomResult) bool

// NewAtomCommand creates the atom command group.
func NewAtomCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atom",
		Short: "Update the state of a single atom",
		Long: `Apply one state transition to an atom and update its molecule.

Operations that do not fit the atom's type, or that would not change its
state, are reported as not applied and leave the database untouched.`,
	}

	cmd.AddCommand(newAtomOpCommand(rootOpts, "toggle <atom-id>", "Flip a binary atom", 1,
		func(_ *Session, a *habit.Atom, _ []string, _ *AtomResult) bool { return a.Toggle() }))
	cmd.AddCommand(newAtomOpCommand(rootOpts, "inc <atom-id>", "Increment a counter atom by its step", 1,
		func(_ *Session, a *habit.Atom, _ []string, _ *AtomResult) bool { return a.Increment() }))
	cmd.AddCommand(newAtomOpCommand(rootOpts, "dec <atom-id>", "Decrement a counter atom, stopping at zero", 1,
		func(_ *Session, a *habit.Atom, _ []string, _ *AtomResult) bool { return a.Decrement() }))
	cmd.AddCommand(newAtomOpCommand(rootOpts, "set <atom-id> <value>", "Record a measured value", 2,
		func(_ *Session, a *habit.Atom, args []string, _ *AtomResult) bool { return a.SetValue(args[1]) }))
	cmd.AddCommand(newAtomOpCommand(rootOpts, "capture <atom-id>", "Start capturing a media atom", 1,
		func(s *Session, a *habit.Atom, _ []string, res *AtomResult) bool {
			settings, ok := a.BeginCapture(s.CaptureResolver())
			if ok {
				res.Settings = &settings
			}
			return ok
		}))
	cmd.AddCommand(newAtomCompleteCommand(rootOpts))
	cmd.AddCommand(newAtomOpCommand(rootOpts, "fail <atom-id> <reason>", "Mark an in-progress capture as failed", 2,
		func(_ *Session, a *habit.Atom, args []string, _ *AtomResult) bool { return a.FailCapture(args[1]) }))
	cmd.AddCommand(newAtomOpCommand(rootOpts, "retry <atom-id>", "Return a failed capture to pending", 1,
		func(_ *Session, a *habit.Atom, _ []string, _ *AtomResult) bool { return a.RetryCapture() }))

	return cmd
}

func newAtomOpCommand(rootOpts *RootOptions, use, short string, nargs int, op atomOp) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(nargs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAtomOp(rootOpts, cmd, args, op)
		},
	}
}

func newAtomCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "complete <atom-id> <path>",
		Short: "Attach the captured file to a media atom",
		Long: `Finish an in-progress capture with the file it produced.

Examples:
  molecules atom complete 0190c1d2-... ~/captures/selfie.heic --content-type image/heic
  molecules atom complete 0190c1d2-... memo.m4a --duration 42s`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAtomOp(rootOpts, cmd, args, func(s *Session, a *habit.Atom, args []string, _ *AtomResult) bool {
				return a.CompleteCapture(habit.Artifact{
					ID:          s.IDs.Generate(),
					Path:        args[1],
					ContentType: opts.ContentType,
					CapturedAt:  s.Now(),
					Duration:    opts.Duration,
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.ContentType, "content-type", "", "MIME type of the captured file")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "length of a video or audio capture")

	return cmd
}

func runAtomOp(opts *RootOptions, cmd *cobra.Command, args []string, op atomOp) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	found, _, err := s.Store.FindAtom(ctx, args[0])
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("atom %s not found", args[0]), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("atom %s not found", args[0]))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read atom", err)
	}

	// Load the whole day so progression can tell when the day completes.
	day := found.ScheduledDate()
	reg, err := s.Store.LoadRegistry(ctx, store.MoleculeQuery{From: day, To: day.AddDate(0, 0, 1)})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load molecules", err)
	}
	m, ok := reg.Molecule(found.ID)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("molecule %s not found", found.ID))
	}
	a, _ := m.Atom(args[0])

	res := AtomResult{Molecule: m.ID}
	res.Applied = op(s, a, args, &res)
	if res.Applied {
		ch := s.Progression(reg).NotifyAtomChanged(a)
		res.Events = changeEvents(ch)
		if err := s.Store.SaveMolecule(ctx, m); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to save molecule", err)
		}
	} else {
		s.Logger.Debug("atom operation not applied", "atom_id", a.ID, "type", a.InputType(), "command", cmd.Name())
	}
	res.Atom = atomView(a)
	res.Progress = m.ProgressDisplayString()

	return formatter.Render(res, func(w io.Writer) { writeAtomResult(w, cmd.Name(), res) })
}

// changeEvents names the completion edges of a progression change.
func changeEvents(ch habit.Change) []string {
	var out []string
	if ch.JustCompleted {
		out = append(out, "molecule completed")
	}
	if ch.JustReopened {
		out = append(out, "molecule reopened")
	}
	if ch.DayJustCompleted {
		out = append(out, "day completed")
	}
	return out
}
