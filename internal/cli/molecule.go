package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/store"
)

// DeleteResult reports how many molecules a delete removed.
type DeleteResult struct {
	Deleted int `json:"deleted"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <molecule-id>...",
		Short: "Delete molecules and their atoms",
		Long: `Delete the given molecules together with their atoms.

Unknown ids are ignored; the result reports how many molecules were
actually removed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, cmd, args)
		},
	}
}

func runDelete(opts *RootOptions, cmd *cobra.Command, ids []string) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Store.DeleteMolecules(ctx, ids)
	if err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to delete molecules", err)
	}
	return outputDeleted(formatter, DeleteResult{Deleted: n})
}

// NewPurgeFutureCommand creates the purge-future command.
func NewPurgeFutureCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-future",
		Short: "Delete every molecule scheduled after today",
		Long: `Delete all molecules scheduled strictly after today, in the configured
timezone. Today's and past molecules are kept.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurgeFuture(rootOpts, cmd)
		},
	}
}

func runPurgeFuture(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Store.DeleteFutureMolecules(ctx, s.Today())
	if err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to purge future molecules", err)
	}
	formatter.Verbosef("Purged molecules after %s", s.Today().Format(recurrence.DateLayout))
	return outputDeleted(formatter, DeleteResult{Deleted: n})
}

func outputDeleted(formatter *OutputFormatter, res DeleteResult) error {
	return formatter.Render(res, func(w io.Writer) { writeDeleted(w, res) })
}

// NewRescheduleCommand creates the reschedule command.
func NewRescheduleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <molecule-id> <date>",
		Short: "Move a molecule to another day",
		Long: `Move a molecule to another calendar day.

A molecule that has ever been completed keeps its date; rescheduling it
fails with exit code 1.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReschedule(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runReschedule(opts *RootOptions, cmd *cobra.Command, id, date string) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	to, err := recurrence.ParseDate(date)
	if err != nil {
		_ = formatter.Error(ErrCodeBadInput, fmt.Sprintf("invalid date %q", date), nil)
		return WrapExitError(ExitCommandError, "invalid date", err)
	}

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.Store.ReadMolecule(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("molecule %s not found", id), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("molecule %s not found", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read molecule", err)
	}

	if err := m.Reschedule(to); err != nil {
		if errors.Is(err, habit.ErrScheduleLocked) {
			_ = formatter.Error(ErrCodeLocked, err.Error(), nil)
			return WrapExitError(ExitFailure, "reschedule refused", err)
		}
		return WrapExitError(ExitCommandError, "reschedule failed", err)
	}
	if err := s.Store.SaveMolecule(ctx, m); err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to save molecule", err)
	}

	view := s.moleculeView(m)
	return formatter.Render(view, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s moved to %s\n", view.Title, view.Date)
	})
}
