package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/molecules/internal/compiler"
	"github.com/roach88/molecules/internal/schedule"
	"github.com/roach88/molecules/internal/store"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
}

// TemplateSummary is the listing form of a stored template.
type TemplateSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Schedule string `json:"schedule"`
	Atoms    int    `json:"atoms"`
}

// ImportResult reports the templates written by templates import.
type ImportResult struct {
	Imported []TemplateSummary `json:"imported"`
}

func summarize(t *schedule.Template) TemplateSummary {
	return TemplateSummary{
		ID:       t.ID,
		Name:     t.Name,
		Title:    t.Title,
		Schedule: t.Rule.Describe(),
		Atoms:    len(t.Atoms),
	}
}

// NewTemplatesCommand creates the templates command group.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Validate, import and list habit templates",
		Long: `Habit templates are authored in CUE under the top-level template key:

  template: morning: {
      title: "Morning routine"
      rule: {frequency: "daily", anchor: "2024-01-01"}
      atoms: [{title: "Stretch", type: "binary"}]
  }`,
	}

	cmd.AddCommand(newTemplatesValidateCommand(rootOpts))
	cmd.AddCommand(newTemplatesImportCommand(rootOpts))
	cmd.AddCommand(newTemplatesListCommand(rootOpts))
	cmd.AddCommand(newTemplatesDeleteCommand(rootOpts))
	return cmd
}

func newTemplatesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <templates-dir>",
		Short: "Validate templates without importing them",
		Long: `Validate CUE habit templates without touching the database.

Performs syntax checking, schema validation and consistency checks.
Warnings (such as a template with no atoms) do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	templates, errs, err := loadAndValidate(dir, formatter)
	if err != nil {
		return err
	}
	formatter.Verbosef("Validated %d template(s)", len(templates))

	failures, warnings := splitWarnings(errs)
	if len(failures) > 0 {
		return outputValidationErrors(formatter, failures, warnings)
	}
	return outputValidateSuccess(formatter, len(templates), warnings)
}

// loadAndValidate loads every template in dir and runs schema validation.
// Load problems that stop compilation entirely are returned as err; the
// rest come back as validation errors.
func loadAndValidate(dir string, formatter *OutputFormatter) ([]*schedule.Template, []compiler.ValidationError, error) {
	loadResult, loadErrors := LoadTemplates(dir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return nil, nil, outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return nil, nil, outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.Verbosef("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	var all []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			all = append(all, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr.Pos),
			})
		}
	}
	for _, t := range loadResult.Templates {
		formatter.Verbosef("Validating template: %s", t.Name)
	}
	all = append(all, compiler.Validate(loadResult.Templates)...)
	return loadResult.Templates, all, nil
}

func splitWarnings(errs []compiler.ValidationError) (failures, warnings []compiler.ValidationError) {
	for _, e := range errs {
		if e.IsWarning() {
			warnings = append(warnings, e)
		} else {
			failures = append(failures, e)
		}
	}
	return failures, warnings
}

func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, count int, warnings []compiler.ValidationError) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "warning %s: %s\n", w.Code, w.Message)
	}
	fmt.Fprintf(formatter.Writer, "✓ All %d template(s) valid\n", count)
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs, warnings []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:    false,
				Errors:   errs,
				Warnings: warnings,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func newTemplatesImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <templates-dir>",
		Short: "Validate templates and store them",
		Long: `Import CUE habit templates into the database.

Templates are keyed by name: importing a template that already exists
updates it in place and keeps its id, so molecules scheduled from it stay
linked. Nothing is written if any template fails validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
}

func runImport(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	templates, errs, err := loadAndValidate(dir, formatter)
	if err != nil {
		return err
	}
	failures, warnings := splitWarnings(errs)
	if len(failures) > 0 {
		return outputValidationErrors(formatter, failures, warnings)
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	result := ImportResult{Imported: make([]TemplateSummary, 0, len(templates))}
	for _, t := range templates {
		t.ID = s.IDs.Generate()
		t.CreatedAt = s.Now()
		if err := s.Store.SaveTemplate(ctx, t); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to import templates", err)
		}
		s.Logger.Debug("template imported", "name", t.Name, "id", t.ID)
		result.Imported = append(result.Imported, summarize(t))
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "warning %s: %s\n", w.Code, w.Message)
	}
	for _, t := range result.Imported {
		fmt.Fprintf(formatter.Writer, "%s  %s (%s)\n", t.ID, t.Name, t.Schedule)
	}
	fmt.Fprintf(formatter.Writer, "✓ Imported %d template(s)\n", len(result.Imported))
	return nil
}

func newTemplatesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored templates",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplatesList(rootOpts, cmd)
		},
	}
}

func runTemplatesList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	s, err := openSession(cmd.Context(), opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	templates := s.Catalog.Templates()
	summaries := make([]TemplateSummary, 0, len(templates))
	for _, t := range templates {
		summaries = append(summaries, summarize(t))
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No templates.")
		return nil
	}
	for _, t := range summaries {
		fmt.Fprintf(formatter.Writer, "%s  %-16s %s, %d atom(s), %s\n", t.ID, t.Name, t.Title, t.Atoms, t.Schedule)
	}
	return nil
}

func newTemplatesDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored template",
		Long: `Delete a template by name.

Molecules already scheduled from it are kept. Their capture overrides fall
back to the configured defaults.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplatesDelete(rootOpts, args[0], cmd)
		},
	}
}

func runTemplatesDelete(opts *RootOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.Store.ReadTemplateByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("template %q not found", name), nil)
		return WrapExitError(ExitCommandError, "unknown template", err)
	}
	if err == nil {
		err = s.Store.DeleteTemplate(ctx, t.ID)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to delete template", err)
	}

	summary := summarize(t)
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "✓ Deleted template %s (%s)\n", summary.Name, summary.ID)
	return nil
}
