package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/schedule"
)

// Validation error codes (E100-E199)
const (
	ErrUnsupportedType = "E100" // unsupported value passed to Validate

	// Template errors (E101-E115)
	ErrTemplateName    = "E101" // name missing or malformed
	ErrTemplateTitle   = "E102" // title is required
	ErrDuplicateName   = "E105" // duplicate template name
	ErrAtomTitle       = "E106" // atom title is required
	ErrAtomType        = "E107" // unknown atom input type
	ErrAtomTarget      = "E108" // negative or non-numeric target
	ErrCaptureOverride = "E109" // capture override for non-media type
	ErrTemplateNoAtoms = "E110" // template has no atoms (warning-level, still reported)
	ErrRuleFrequency   = "E111" // unknown frequency
	ErrRuleWeekdays    = "E112" // custom rule without weekdays
	ErrRuleAnchor      = "E113" // missing anchor
	ErrRuleEnd         = "E114" // invalid end condition
	ErrAtomStep        = "E115" // step set on a non-counter atom
)

// ValidationError represents a template validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// IsWarning reports whether the finding should not fail validation.
func (e ValidationError) IsWarning() bool {
	return e.Code == ErrTemplateNoAtoms
}

// Validate validates compiled templates.
// Returns all errors found (does not fail-fast).
// Accepts a single template or a slice; a slice is also checked for
// duplicate names.
func Validate(v any) []ValidationError {
	switch t := v.(type) {
	case *schedule.Template:
		return validateTemplate(t)
	case schedule.Template:
		return validateTemplate(&t)
	case []*schedule.Template:
		return validateTemplates(t)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateTemplates(ts []*schedule.Template) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, t := range ts {
		if seen[t.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("templates[%d].name", i),
				Message: fmt.Sprintf("duplicate template name: %q", t.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[t.Name] = true
		errs = append(errs, validateTemplate(t)...)
	}
	return errs
}

// namePattern matches template names: lowercase start, then letters,
// digits, '-' or '_'.
var namePattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9_-]*$`)

// validateTemplate validates one template.
func validateTemplate(t *schedule.Template) []ValidationError {
	var errs []ValidationError
	prefix := "template." + t.Name

	if !namePattern.MatchString(t.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid template name %q, expected lowercase identifier", t.Name),
			Code:    ErrTemplateName,
		})
	}

	if strings.TrimSpace(t.Title) == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".title",
			Message: "title is required and must be non-empty",
			Code:    ErrTemplateTitle,
		})
	}

	errs = append(errs, validateRule(prefix+".rule", t.Rule)...)

	if len(t.Atoms) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".atoms",
			Message: "template has no atoms; every occurrence is complete as soon as it is scheduled",
			Code:    ErrTemplateNoAtoms,
		})
	}

	for i, a := range t.Atoms {
		field := fmt.Sprintf("%s.atoms[%d]", prefix, i)
		if strings.TrimSpace(a.Title) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".title",
				Message: "atom title is required",
				Code:    ErrAtomTitle,
			})
		}
		if _, err := habit.ParseInputType(string(a.Type)); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: err.Error(),
				Code:    ErrAtomType,
			})
		}
		if a.Target != nil && *a.Target < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: "target must be non-negative",
				Code:    ErrAtomTarget,
			})
		}
		if a.Step != 0 && a.Type != habit.InputCounter {
			errs = append(errs, ValidationError{
				Field:   field + ".step",
				Message: fmt.Sprintf("step only applies to counter atoms, not %q", a.Type),
				Code:    ErrAtomStep,
			})
		}
	}

	for kind := range t.Capture {
		if !kind.IsMedia() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.capture.%s", prefix, kind),
				Message: "capture overrides apply to photo, video or audio only",
				Code:    ErrCaptureOverride,
			})
		}
	}

	return errs
}

// validateRule maps recurrence validation failures to codes.
func validateRule(field string, r recurrence.Rule) []ValidationError {
	err := r.Validate()
	if err == nil {
		return nil
	}
	code := ErrRuleEnd
	switch {
	case errors.Is(err, recurrence.ErrUnknownFrequency):
		code = ErrRuleFrequency
	case errors.Is(err, recurrence.ErrNoWeekdays):
		code = ErrRuleWeekdays
	case errors.Is(err, recurrence.ErrNoAnchor):
		code = ErrRuleAnchor
	}
	return []ValidationError{{Field: field, Message: err.Error(), Code: code}}
}
