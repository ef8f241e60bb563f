package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	From      string
	To        string
	Days      int
	Template  string
	Completed string // "", "true" or "false"
}

// MoleculeView is the output form of a molecule.
type MoleculeView struct {
	ID        string     `json:"id"`
	Template  string     `json:"template,omitempty"`
	Title     string     `json:"title"`
	Date      string     `json:"date"`
	Progress  string     `json:"progress"`
	Completed bool       `json:"completed"`
	Atoms     []AtomView `json:"atoms"`
}

// AtomView is the output form of an atom.
type AtomView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	State     string `json:"state"`
	Completed bool   `json:"completed"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled molecules and their atoms",
		Long: `List molecules scheduled in a date range, ordered by date.

Examples:
  molecules list
  molecules list --from 2024-01-01 --days 31 --completed=false
  molecules list --template morning --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "first day to list, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.To, "to", "", "day after the last day to list, YYYY-MM-DD")
	cmd.Flags().IntVar(&opts.Days, "days", 1, "number of days to list when --to is not set")
	cmd.Flags().StringVar(&opts.Template, "template", "", "only list molecules of this template")
	cmd.Flags().StringVar(&opts.Completed, "completed", "", "filter on completion (true|false)")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
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
	q := store.MoleculeQuery{From: from, To: to}
	if opts.Template != "" {
		t, err := s.templateByName(opts.Template)
		if err != nil {
			return err
		}
		q.TemplateID = t.ID
	}
	if opts.Completed != "" {
		b, err := strconv.ParseBool(opts.Completed)
		if err != nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --completed %q: must be true or false", opts.Completed))
		}
		q.Completed = &b
	}

	molecules, err := s.Store.FindMolecules(ctx, q)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list molecules", err)
	}

	views := make([]MoleculeView, 0, len(molecules))
	for _, m := range molecules {
		views = append(views, s.moleculeView(m))
	}

	return formatter.Render(views, func(w io.Writer) { writeMoleculesText(w, views) })
}

func (s *Session) moleculeView(m *habit.Molecule) MoleculeView {
	v := MoleculeView{
		ID:        m.ID,
		Title:     m.Title,
		Date:      m.ScheduledDate().Format(recurrence.DateLayout),
		Progress:  m.ProgressDisplayString(),
		Completed: m.Aggregate().Completed,
		Atoms:     make([]AtomView, 0, len(m.Atoms())),
	}
	if t, ok := s.Catalog.Get(m.TemplateID); ok {
		v.Template = t.Name
	}
	for _, a := range m.Atoms() {
		v.Atoms = append(v.Atoms, atomView(a))
	}
	return v
}

func atomView(a *habit.Atom) AtomView {
	return AtomView{
		ID:        a.ID,
		Title:     a.Title,
		Type:      string(a.InputType()),
		State:     atomState(a),
		Completed: a.IsCompleted(),
	}
}

// atomState renders the type-specific state of an atom.
func atomState(a *habit.Atom) string {
	switch b := a.Behavior().(type) {
	case *habit.Binary:
		if b.Checked() {
			return "done"
		}
		return "todo"
	case *habit.Counter:
		cur := formatNumber(b.Current())
		if target, ok := b.Target(); ok {
			return cur + "/" + formatNumber(target) + unitSuffix(a)
		}
		return cur + unitSuffix(a)
	case *habit.Value:
		cur := "-"
		if v, ok := b.Current(); ok {
			cur = formatNumber(v)
		}
		if target, ok := b.Target(); ok {
			return cur + "/" + formatNumber(target) + unitSuffix(a)
		}
		return cur + unitSuffix(a)
	case *habit.Media:
		if b.Phase() == habit.PhaseFailed && b.Failure() != "" {
			return fmt.Sprintf("%s (%s)", b.Phase(), b.Failure())
		}
		return string(b.Phase())
	default:
		return ""
	}
}

func unitSuffix(a *habit.Atom) string {
	if a.Unit == "" {
		return ""
	}
	return " " + a.Unit
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
