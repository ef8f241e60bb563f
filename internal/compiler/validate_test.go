package compiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/recurrence"
	"github.com/roach88/molecules/internal/schedule"
)

func validTemplate(name string) *schedule.Template {
	return &schedule.Template{
		Name:  name,
		Title: "Read",
		Rule:  recurrence.NewDaily(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Atoms: []schedule.AtomSpec{{Title: "Pages", Type: habit.InputCounter, Step: 10}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_ValidTemplate(t *testing.T) {
	assert.Empty(t, Validate(validTemplate("reading")))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	neg := -1.0
	tmpl := &schedule.Template{
		Name: "Bad Name",
		Rule: recurrence.Rule{Frequency: recurrence.FrequencyCustom, Anchor: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: recurrence.Never()},
		Atoms: []schedule.AtomSpec{
			{Title: "", Type: habit.InputBinary},
			{Title: "Odd", Type: habit.InputType("smell")},
			{Title: "Neg", Type: habit.InputValue, Target: &neg, Step: 2},
		},
		Capture: map[habit.InputType]habit.CaptureSettings{habit.InputBinary: {}},
	}

	got := codes(Validate(tmpl))

	assert.ElementsMatch(t, []string{
		ErrTemplateName,
		ErrTemplateTitle,
		ErrRuleWeekdays,
		ErrAtomTitle,
		ErrAtomType,
		ErrAtomTarget,
		ErrAtomStep,
		ErrCaptureOverride,
	}, got)
}

func TestValidate_NoAtomsIsWarning(t *testing.T) {
	tmpl := validTemplate("empty")
	tmpl.Atoms = nil

	errs := Validate(tmpl)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, ErrTemplateNoAtoms, errs[0].Code)
		assert.True(t, errs[0].IsWarning())
	}
}

func TestValidate_DuplicateNames(t *testing.T) {
	errs := Validate([]*schedule.Template{validTemplate("a"), validTemplate("b"), validTemplate("a")})
	assert.Equal(t, []string{ErrDuplicateName}, codes(errs))
}

func TestValidate_UnsupportedType(t *testing.T) {
	assert.Equal(t, []string{ErrUnsupportedType}, codes(Validate(42)))
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "template.x.title", Message: "title is required", Code: ErrTemplateTitle}
	assert.Equal(t, "[E102] template.x.title: title is required", e.Error())

	e.Line = 7
	assert.Equal(t, "[E102] line 7: template.x.title: title is required", e.Error())
}
