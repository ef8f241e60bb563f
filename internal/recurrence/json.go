package recurrence

import (
	"encoding/json"
	"fmt"
	"time"
)

// ruleJSON is the stored form of a Rule. Field names are part of the
// persisted format; extend additively only.
type ruleJSON struct {
	Frequency Frequency `json:"frequency"`
	Weekdays  []int     `json:"weekdays,omitempty"`
	Anchor    string    `json:"anchor"`
	End       endJSON   `json:"end"`
}

type endJSON struct {
	Kind  EndKind `json:"kind"`
	Date  string  `json:"date,omitempty"`
	Count int     `json:"count,omitempty"`
}

// MarshalJSON encodes the rule with dates as YYYY-MM-DD.
func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		Frequency: r.Frequency,
		End:       endJSON{Kind: r.End.Kind},
	}
	if out.End.Kind == "" {
		out.End.Kind = EndNever
	}
	if !r.Anchor.IsZero() {
		out.Anchor = r.Anchor.Format(DateLayout)
	}
	for _, d := range r.Weekdays.Days() {
		out.Weekdays = append(out.Weekdays, int(d))
	}
	switch r.End.Kind {
	case EndOnDate:
		out.End.Date = r.End.Date.Format(DateLayout)
	case EndAfterOccurrences:
		out.End.Count = r.End.Count
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the stored form. Dates come back at midnight UTC.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode rule: %w", err)
	}
	rule := Rule{Frequency: in.Frequency, End: End{Kind: in.End.Kind}}
	if rule.End.Kind == "" {
		rule.End.Kind = EndNever
	}
	if in.Anchor != "" {
		anchor, err := ParseDate(in.Anchor)
		if err != nil {
			return fmt.Errorf("decode rule anchor: %w", err)
		}
		rule.Anchor = anchor
	}
	for _, d := range in.Weekdays {
		rule.Weekdays = rule.Weekdays.With(time.Weekday(d))
	}
	switch rule.End.Kind {
	case EndOnDate:
		date, err := ParseDate(in.End.Date)
		if err != nil {
			return fmt.Errorf("decode rule end date: %w", err)
		}
		rule.End.Date = date
	case EndAfterOccurrences:
		rule.End.Count = in.End.Count
	}
	*r = rule
	return nil
}

// Unconfigured is the rule corrupt stored data degrades to: a custom rule
// with no weekdays, which yields nothing.
func Unconfigured(anchor time.Time) Rule {
	return Rule{Frequency: FrequencyCustom, Anchor: anchor, End: Never()}
}
