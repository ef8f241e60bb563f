package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roach88/molecules/internal/ledger"
)

// Process exit codes of the molecules binary.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // refused transition, invalid templates, broken chain, failed scenario
	ExitCommandError = 2 // bad arguments, unreadable config, database errors
)

// Error codes reported in the JSON envelope. Template validation codes
// (E1xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Template, molecule or atom not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // Database write error
	ErrCodeBadInput    = "E008" // Invalid flag or argument value
	ErrCodeLocked      = "E009" // Molecule date locked by an earlier completion
)

// ExitError ends a command with a specific process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure when err
// is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope every command writes with --format json.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error body of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results either as a CLIResponse or as
// text for a terminal.
type OutputFormatter struct {
	Format    string    // "text" or "json"
	Writer    io.Writer // results
	ErrWriter io.Writer // verbose diagnostics; Writer when nil
	Verbose   bool
}

// JSON reports whether results are written as a CLIResponse.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Render writes data in the JSON envelope, or hands the writer to text.
func (f *OutputFormatter) Render(data any, text func(w io.Writer)) error {
	if f.JSON() {
		return f.Success(data)
	}
	text(f.Writer)
	return nil
}

// Success writes data as an "ok" response, or prints it as is in text mode.
func (f *OutputFormatter) Success(data any) error {
	if !f.JSON() {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
}

// Error writes an "error" response. Text mode prints details only when
// verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Verbosef prints a diagnostic line when verbose. It never goes to Writer
// when ErrWriter is set, so JSON output stays parseable.
func (f *OutputFormatter) Verbosef(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// Text renderers shared by the commands.

func writeMoleculeText(w io.Writer, v MoleculeView) {
	mark := " "
	if v.Completed {
		mark = "✓"
	}
	fmt.Fprintf(w, "%s %s  %s [%s]  %s\n", mark, v.Date, v.Title, v.Progress, v.ID)
	for _, a := range v.Atoms {
		fmt.Fprintf(w, "    %-24s %-8s %-12s %s\n", a.Title, a.Type, a.State, a.ID)
	}
}

func writeMoleculesText(w io.Writer, views []MoleculeView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No molecules scheduled.")
		return
	}
	for _, v := range views {
		writeMoleculeText(w, v)
	}
}

// writeAtomResult prints the outcome of the atom operation op.
func writeAtomResult(w io.Writer, op string, res AtomResult) {
	if !res.Applied {
		fmt.Fprintf(w, "- %s: %s not applied (%s, %s)\n", res.Atom.Title, op, res.Atom.Type, res.Atom.State)
		return
	}
	fmt.Fprintf(w, "✓ %s: %s  [%s]\n", res.Atom.Title, res.Atom.State, res.Progress)
	if res.Settings != nil {
		fmt.Fprintf(w, "  capture %s %s/%s\n", res.Settings.Kind, res.Settings.Quality, res.Settings.Format)
	}
	for _, e := range res.Events {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func writeScheduleText(w io.Writer, res ScheduleResult) {
	for _, b := range res.Schedule {
		for _, d := range b.Dates {
			fmt.Fprintf(w, "%s  %s\n", d, b.Template)
		}
	}
	fmt.Fprintf(w, "✓ Scheduled %d molecule(s) from %s to %s\n", res.Created, res.From, res.To)
}

func writeDeleted(w io.Writer, res DeleteResult) {
	fmt.Fprintf(w, "✓ Deleted %d molecule(s)\n", res.Deleted)
}

// writeEntryText prints one sync attempt with its timestamp in loc.
func writeEntryText(w io.Writer, e ledger.Entry, loc *time.Location) {
	fmt.Fprintf(w, "#%-4d %s  %-19s %-15s down %d  up %d  %dms\n",
		e.Seq, e.Timestamp.In(loc).Format(time.DateTime), e.Action, e.Status,
		e.RecordsDownloaded, e.RecordsUploaded, e.DurationMs)
	if e.HasError() {
		fmt.Fprintf(w, "      error %s: %s\n", e.ErrorCode, e.ErrorMessage)
	}
	if e.Details != "" {
		fmt.Fprintf(w, "      %s\n", e.Details)
	}
}

func writeHistoryText(w io.Writer, entries []ledger.Entry, loc *time.Location) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No sync history.")
		return
	}
	for _, e := range entries {
		writeEntryText(w, e, loc)
	}
}

func writeVerifyText(w io.Writer, res VerifyResult) {
	if res.Valid {
		fmt.Fprintf(w, "✓ %d entries verified (%s)\n", res.Entries, res.Source)
		return
	}
	fmt.Fprintf(w, "✗ Chain broken (%s): %s\n", res.Source, res.Error)
}
