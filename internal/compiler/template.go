package compiler

import (
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/schedule"
)

// CompileTemplate parses a CUE value into a habit template.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the template struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`template: morning: { ... }`)
//	t, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.morning")))
//
// The template name is the struct label. The returned template has no ID;
// the caller assigns one (or the store keeps an existing one).
func CompileTemplate(v cue.Value) (*schedule.Template, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &schedule.Template{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		t.Name = labels[len(labels)-1].String()
	}

	title, err := requiredString(v, "title")
	if err != nil {
		return nil, err
	}
	t.Title = title

	ruleVal := v.LookupPath(cue.ParsePath("rule"))
	if !ruleVal.Exists() {
		return nil, &CompileError{Field: "rule", Message: "rule is required", Pos: v.Pos()}
	}
	t.Rule, err = parseRule(ruleVal)
	if err != nil {
		return nil, err
	}

	t.Atoms, err = parseAtoms(v)
	if err != nil {
		return nil, err
	}

	t.Capture, err = parseCapture(v)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// parseRule reads the recurrence rule. Accepted shape:
//
//	rule: {
//		frequency: "daily" | "weekly" | "monthly" | "custom"
//		anchor:    "2024-01-01"
//		weekdays?: ["mon", "wed"]      // custom only
//		end?:      {on: "2024-12-31"} | {after: 10}
//	}
func parseRule(v cue.Value) (recurrence.Rule, error) {
	var rule recurrence.Rule

	freq, err := requiredString(v, "frequency")
	if err != nil {
		return rule, err
	}
	rule.Frequency = recurrence.Frequency(freq)
	if !rule.Frequency.Valid() {
		return rule, &CompileError{
			Field:   "rule.frequency",
			Message: fmt.Sprintf("unknown frequency %q (want daily, weekly, monthly or custom)", freq),
			Pos:     v.LookupPath(cue.ParsePath("frequency")).Pos(),
		}
	}

	anchorVal := v.LookupPath(cue.ParsePath("anchor"))
	anchor, err := requiredString(v, "anchor")
	if err != nil {
		return rule, err
	}
	rule.Anchor, err = recurrence.ParseDate(anchor)
	if err != nil {
		return rule, &CompileError{Field: "rule.anchor", Message: fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", anchor), Pos: anchorVal.Pos()}
	}

	daysVal := v.LookupPath(cue.ParsePath("weekdays"))
	if daysVal.Exists() {
		iter, err := daysVal.List()
		if err != nil {
			return rule, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return rule, formatCUEError(err)
			}
			d, err := recurrence.ParseWeekday(s)
			if err != nil {
				return rule, &CompileError{Field: "rule.weekdays", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			rule.Weekdays = rule.Weekdays.With(d)
		}
	}

	rule.End = recurrence.Never()
	endVal := v.LookupPath(cue.ParsePath("end"))
	if endVal.Exists() {
		rule.End, err = parseEnd(endVal)
		if err != nil {
			return rule, err
		}
	}

	if err := rule.Validate(); err != nil {
		return rule, &CompileError{Field: "rule", Message: err.Error(), Pos: v.Pos()}
	}
	return rule, nil
}

func parseEnd(v cue.Value) (recurrence.End, error) {
	onVal := v.LookupPath(cue.ParsePath("on"))
	afterVal := v.LookupPath(cue.ParsePath("after"))

	switch {
	case onVal.Exists() && afterVal.Exists():
		return recurrence.End{}, &CompileError{Field: "rule.end", Message: "set either on or after, not both", Pos: v.Pos()}
	case onVal.Exists():
		s, err := onVal.String()
		if err != nil {
			return recurrence.End{}, formatCUEError(err)
		}
		d, err := recurrence.ParseDate(s)
		if err != nil {
			return recurrence.End{}, &CompileError{Field: "rule.end", Message: fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", s), Pos: onVal.Pos()}
		}
		return recurrence.OnDate(d), nil
	case afterVal.Exists():
		n, err := afterVal.Int64()
		if err != nil {
			return recurrence.End{}, formatCUEError(err)
		}
		return recurrence.AfterOccurrences(int(n)), nil
	default:
		return recurrence.Never(), nil
	}
}

// parseAtoms reads the atoms list in authoring order. An empty or missing
// list is allowed.
func parseAtoms(v cue.Value) ([]schedule.AtomSpec, error) {
	atoms := []schedule.AtomSpec{}

	atomsVal := v.LookupPath(cue.ParsePath("atoms"))
	if !atomsVal.Exists() {
		return atoms, nil
	}

	iter, err := atomsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		av := iter.Value()
		field := fmt.Sprintf("atoms[%d]", i)

		title, err := requiredString(av, "title")
		if err != nil {
			return nil, prefixField(err, field)
		}
		spec := schedule.AtomSpec{Title: title, Type: habit.InputBinary}

		if typeVal := av.LookupPath(cue.ParsePath("type")); typeVal.Exists() {
			s, err := typeVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			spec.Type, err = habit.ParseInputType(s)
			if err != nil {
				return nil, &CompileError{Field: field + ".type", Message: err.Error(), Pos: typeVal.Pos()}
			}
		}

		if targetVal := av.LookupPath(cue.ParsePath("target")); targetVal.Exists() {
			f, err := number(targetVal, field+".target")
			if err != nil {
				return nil, err
			}
			spec.Target = &f
		}
		if stepVal := av.LookupPath(cue.ParsePath("step")); stepVal.Exists() {
			spec.Step, err = number(stepVal, field+".step")
			if err != nil {
				return nil, err
			}
		}
		if unitVal := av.LookupPath(cue.ParsePath("unit")); unitVal.Exists() {
			spec.Unit, err = unitVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		atoms = append(atoms, spec)
	}
	return atoms, nil
}

// parseCapture reads per-kind capture overrides:
//
//	capture: photo: {quality: "low", format: "heic"}
//	capture: video: {quality: "high", format: "mov", max_duration: "30s"}
func parseCapture(v cue.Value) (map[habit.InputType]habit.CaptureSettings, error) {
	captureVal := v.LookupPath(cue.ParsePath("capture"))
	if !captureVal.Exists() {
		return nil, nil
	}

	iter, err := captureVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	out := make(map[habit.InputType]habit.CaptureSettings)
	for iter.Next() {
		kind := habit.InputType(iter.Label())
		field := "capture." + iter.Label()
		if !kind.IsMedia() {
			return nil, &CompileError{Field: field, Message: "capture overrides apply to photo, video or audio only", Pos: iter.Value().Pos()}
		}

		settings := habit.DefaultCaptureSettings(kind)
		sv := iter.Value()
		if q := sv.LookupPath(cue.ParsePath("quality")); q.Exists() {
			if settings.Quality, err = q.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if f := sv.LookupPath(cue.ParsePath("format")); f.Exists() {
			if settings.Format, err = f.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if d := sv.LookupPath(cue.ParsePath("max_duration")); d.Exists() {
			s, err := d.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			settings.MaxDuration, err = time.ParseDuration(s)
			if err != nil {
				return nil, &CompileError{Field: field + ".max_duration", Message: err.Error(), Pos: d.Pos()}
			}
		}
		out[kind] = settings
	}
	return out, nil
}

// requiredString looks up a non-empty string field.
func requiredString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if strings.TrimSpace(s) == "" {
		return "", &CompileError{Field: name, Message: name + " must be non-empty", Pos: fv.Pos()}
	}
	return s, nil
}

// number reads an int or float literal as float64.
func number(v cue.Value, field string) (float64, error) {
	switch v.IncompleteKind() {
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
	default:
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("must be a number, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	f, err := v.Float64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return f, nil
}

func prefixField(err error, prefix string) error {
	if ce, ok := err.(*CompileError); ok {
		ce.Field = prefix + "." + ce.Field
	}
	return err
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
