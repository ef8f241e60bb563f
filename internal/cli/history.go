package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/molecules/internal/ledger"
)

// HistoryExportOptions holds flags for history export.
type HistoryExportOptions struct {
	*RootOptions
	As  string // "json" | "yaml"
	Out string
}

// HistoryAppendOptions holds flags for history append.
type HistoryAppendOptions struct {
	*RootOptions
	Action     string
	Status     string
	Downloaded int
	Uploaded   int
	Duration   time.Duration
	Error      string
	ErrorCode  string
	Details    string
}

// VerifyResult reports a hash-chain check.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Source  string `json:"source"`
	Error   string `json:"error,omitempty"`
}

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and export the sync history ledger",
		Long: `The sync history keeps the most recent sync attempt outcomes, newest
first. Each entry is chained to the previous one by hash so exports can be
checked for tampering.`,
	}

	cmd.AddCommand(newHistoryListCommand(rootOpts))
	cmd.AddCommand(newHistoryAppendCommand(rootOpts))
	cmd.AddCommand(newHistoryExportCommand(rootOpts))
	cmd.AddCommand(newHistoryVerifyCommand(rootOpts))
	cmd.AddCommand(newHistoryClearCommand(rootOpts))
	return cmd
}

func newHistoryListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "Show retained sync attempts, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			s, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			entries := s.Ledger.Snapshot()
			return formatter.Render(entries, func(w io.Writer) {
				writeHistoryText(w, entries, s.Config.Location())
			})
		},
	}
}

func newHistoryAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryAppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Record the outcome of a sync attempt",
		Long: `Record a sync attempt that has just finished.

The attempt is timestamped now and is assumed to have started --duration
ago. Without --status the status is success, or failed when --error is set.

Examples:
  molecules history append --action full_sync --downloaded 12 --uploaded 3 --duration 2.5s
  molecules history append --action push --error "connection reset" --error-code network`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryAppend(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Action, "action", "", "sync action ("+joinActions()+")")
	cmd.Flags().StringVar(&opts.Status, "status", "", "outcome status ("+joinStatuses()+")")
	cmd.Flags().IntVar(&opts.Downloaded, "downloaded", 0, "records downloaded")
	cmd.Flags().IntVar(&opts.Uploaded, "uploaded", 0, "records uploaded")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "how long the attempt took")
	cmd.Flags().StringVar(&opts.Error, "error", "", "error message of a failed attempt")
	cmd.Flags().StringVar(&opts.ErrorCode, "error-code", "", "machine-readable error code")
	cmd.Flags().StringVar(&opts.Details, "details", "", "free-form details")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func runHistoryAppend(opts *HistoryAppendOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	action, err := ledger.ParseAction(opts.Action)
	if err != nil {
		_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --action", err)
	}
	outcome := ledger.Outcome{
		Downloaded: opts.Downloaded,
		Uploaded:   opts.Uploaded,
		ErrorCode:  opts.ErrorCode,
		Details:    opts.Details,
	}
	if opts.Status != "" {
		if outcome.Status, err = ledger.ParseStatus(opts.Status); err != nil {
			_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid --status", err)
		}
	}
	if opts.Error != "" {
		outcome.Err = errors.New(opts.Error)
	}
	if opts.Duration < 0 {
		return NewExitError(ExitCommandError, "--duration must not be negative")
	}

	s, err := openSession(cmd.Context(), opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	entry := s.Recorder.StartAt(action, s.Clock.Now().Add(-opts.Duration)).Finish(outcome)
	s.Logger.Debug("sync attempt recorded", "seq", entry.Seq, "status", entry.Status)

	return formatter.Render(entry, func(w io.Writer) { writeEntryText(w, entry, s.Config.Location()) })
}

func joinActions() string {
	names := make([]string, len(ledger.Actions))
	for i, a := range ledger.Actions {
		names[i] = string(a)
	}
	return strings.Join(names, "|")
}

func joinStatuses() string {
	names := make([]string, len(ledger.Statuses))
	for i, st := range ledger.Statuses {
		names[i] = string(st)
	}
	return strings.Join(names, "|")
}

func newHistoryExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the sync history document",
		Long: `Write the retained sync history, newest first, as a JSON or YAML
document. Exporting does not modify the history.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "json", "document format (json|yaml)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write to file instead of stdout")

	return cmd
}

func runHistoryExport(opts *HistoryExportOptions, cmd *cobra.Command) error {
	format := ledger.Format(opts.As)
	if format != ledger.FormatJSON && format != ledger.FormatYAML {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --as %q: must be json or yaml", opts.As))
	}

	s, err := openSession(cmd.Context(), opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.Out == "" {
		return s.Ledger.Export(cmd.OutOrStdout(), format)
	}

	f, err := os.Create(opts.Out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create export file", err)
	}
	if err := s.Ledger.Export(f, format); err != nil {
		f.Close()
		return WrapExitError(ExitCommandError, "failed to export sync history", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export file", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	n := s.Ledger.Len()
	formatter.Verbosef("Exported %d entries to %s", n, opts.Out)
	return formatter.Render(map[string]any{"path": opts.Out, "entries": n}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Exported %d entries to %s\n", n, opts.Out)
	})
}

func newHistoryVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [export-file]",
		Short: "Check the hash chain of the history or an export",
		Long: `Check that every entry's hash matches its contents and links to the entry
before it. With a file argument, checks an exported document (.yaml/.yml
files are read as YAML, anything else as JSON) without opening the database.

Exit codes:
  0 - Chain intact
  1 - Chain broken
  2 - Command error`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runVerifyFile(rootOpts, cmd, args[0])
			}
			return runVerifyLedger(rootOpts, cmd)
		},
	}
}

func runVerifyFile(opts *RootOptions, cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open export file", err)
	}
	defer f.Close()

	format := ledger.FormatJSON
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		format = ledger.FormatYAML
	}
	doc, err := ledger.ReadDocument(f, format)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read export file", err)
	}
	return outputVerify(newFormatter(opts, cmd), doc.Entries, path)
}

func runVerifyLedger(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd.Context(), opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return outputVerify(newFormatter(opts, cmd), s.Ledger.Snapshot(), "database")
}

func outputVerify(formatter *OutputFormatter, entries []ledger.Entry, source string) error {
	res := VerifyResult{Valid: true, Entries: len(entries), Source: source}
	verr := ledger.Verify(entries)
	if verr != nil {
		res.Valid = false
		res.Error = verr.Error()
	}

	if err := formatter.Render(res, func(w io.Writer) { writeVerifyText(w, res) }); err != nil {
		return err
	}

	if verr != nil {
		return WrapExitError(ExitFailure, "sync history verification failed", verr)
	}
	return nil
}

func newHistoryClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Remove every retained sync attempt",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			s, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			n := s.Ledger.Len()
			s.Ledger.Clear()
			return formatter.Render(DeleteResult{Deleted: n}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Cleared %d entries\n", n)
			})
		},
	}
}
