package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"

	"github.com/roach88/molecules/internal/schedule"
)

// TemplateError ties a compile failure to the template label it came from.
type TemplateError struct {
	Name string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template.%s: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// CompileTemplates compiles every struct under the top-level "template" key,
// ordered by name. A failing template does not stop the others; its error is
// returned alongside the templates that did compile.
func CompileTemplates(v cue.Value) ([]*schedule.Template, []error) {
	out := []*schedule.Template{}
	if err := v.Err(); err != nil {
		return out, []error{formatCUEError(err)}
	}

	tv := v.LookupPath(cue.ParsePath("template"))
	if !tv.Exists() {
		return out, nil
	}

	iter, err := tv.Fields()
	if err != nil {
		return out, []error{formatCUEError(err)}
	}

	var errs []error
	for iter.Next() {
		t, err := CompileTemplate(iter.Value())
		if err != nil {
			errs = append(errs, &TemplateError{Name: iter.Label(), Err: err})
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, errs
}

// CompileSource compiles one CUE document. filename is only used for error
// positions.
func CompileSource(ctx *cue.Context, filename string, src []byte) ([]*schedule.Template, []error) {
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return CompileTemplates(v)
}
