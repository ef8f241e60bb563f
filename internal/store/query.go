package store

import (
	"fmt"
	"strings"
	"time"
)

// MoleculeQuery selects molecules. Zero fields do not filter.
type MoleculeQuery struct {
	// From and To bound scheduled_date as a half-open range [From, To).
	From time.Time
	To   time.Time

	TemplateID string
	IDs        []string

	// Completed filters on the stored aggregate when set.
	Completed *bool
}

// predicate is a WHERE clause fragment with its parameters.
type predicate interface {
	sql() (string, []any)
}

type equals struct {
	field string
	value any
}

func (p equals) sql() (string, []any) {
	return fmt.Sprintf("%s = ?", p.field), []any{p.value}
}

type compare struct {
	field string
	op    string // one of <, <=, >, >=
	value any
}

func (p compare) sql() (string, []any) {
	return fmt.Sprintf("%s %s ?", p.field, p.op), []any{p.value}
}

type in struct {
	field  string
	values []string
}

func (p in) sql() (string, []any) {
	if len(p.values) == 0 {
		return "1 = 0", nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(p.values)), ", ")
	params := make([]any, len(p.values))
	for i, v := range p.values {
		params[i] = v
	}
	return fmt.Sprintf("%s IN (%s)", p.field, marks), params
}

type and []predicate

func (p and) sql() (string, []any) {
	if len(p) == 0 {
		return "1 = 1", nil
	}
	parts := make([]string, 0, len(p))
	var params []any
	for _, pred := range p {
		s, ps := pred.sql()
		parts = append(parts, s)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params
}

// predicate converts the query to a conjunction. Values are always bound as
// parameters, never interpolated.
func (q MoleculeQuery) predicate() predicate {
	var p and
	if !q.From.IsZero() {
		p = append(p, compare{"scheduled_date", ">=", formatDate(q.From)})
	}
	if !q.To.IsZero() {
		p = append(p, compare{"scheduled_date", "<", formatDate(q.To)})
	}
	if q.TemplateID != "" {
		p = append(p, equals{"template_id", q.TemplateID})
	}
	if q.IDs != nil {
		p = append(p, in{"id", q.IDs})
	}
	if q.Completed != nil {
		p = append(p, equals{"completed", boolToInt(*q.Completed)})
	}
	return p
}

const moleculeColumns = `id, template_id, title, scheduled_date, completed, completed_atoms,
	total_atoms, progress, ever_completed, completed_at, occurrence_date`

// compile returns the SELECT for q. Every query carries the deterministic
// ORDER BY scheduled_date, id COLLATE BINARY.
func (q MoleculeQuery) compile() (string, []any) {
	where, params := q.predicate().sql()
	return fmt.Sprintf("SELECT %s FROM molecules WHERE %s ORDER BY scheduled_date ASC, id ASC COLLATE BINARY",
		moleculeColumns, where), params
}
