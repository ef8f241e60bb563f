package recurrence

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Frequency is the repeat policy of a rule.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom:
		return true
	}
	return false
}

// WeekdaySet is a set of weekdays stored as a bit mask (bit 0 = Sunday).
type WeekdaySet uint8

// NewWeekdaySet builds a set from days. Values outside 0..6 are ignored and
// duplicates collapse.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// With returns s plus d.
func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return s&(1<<uint(d)) != 0
}

// Len returns the number of weekdays in the set.
func (s WeekdaySet) Len() int {
	return bits.OnesCount8(uint8(s) & 0x7f)
}

// IsEmpty reports whether no weekday is selected.
func (s WeekdaySet) IsEmpty() bool {
	return s.Len() == 0
}

// Days returns the weekdays in ascending order (Sunday first).
func (s WeekdaySet) Days() []time.Weekday {
	days := make([]time.Weekday, 0, s.Len())
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// String renders the set sorted, e.g. "Mon, Wed, Fri".
func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ", ")
}

// ParseWeekday accepts a weekday name ("monday", "Mon") or its number as a
// string ("1").
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 1 && s[0] >= '0' && s[0] <= '6' {
		return time.Weekday(s[0] - '0'), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// EndKind tags the End variant.
type EndKind string

const (
	EndNever            EndKind = "never"
	EndOnDate           EndKind = "on_date"
	EndAfterOccurrences EndKind = "after_occurrences"
)

// End is the termination condition of a rule. Date is meaningful only for
// EndOnDate and Count only for EndAfterOccurrences.
type End struct {
	Kind  EndKind
	Date  time.Time
	Count int
}

// Never returns an End that never terminates.
func Never() End { return End{Kind: EndNever} }

// OnDate returns an End that keeps occurrences on or before d.
func OnDate(d time.Time) End { return End{Kind: EndOnDate, Date: d} }

// AfterOccurrences returns an End that keeps the first n occurrences.
func AfterOccurrences(n int) End { return End{Kind: EndAfterOccurrences, Count: n} }

// Rule is a recurrence policy anchored at the date it was authored.
//
// Rules are values: replace one wholesale rather than editing fields while a
// sequence produced from it is being consumed.
type Rule struct {
	Frequency Frequency
	Weekdays  WeekdaySet // custom only
	Anchor    time.Time
	End       End
}

// NewDaily returns a never-ending daily rule.
func NewDaily(anchor time.Time) Rule {
	return Rule{Frequency: FrequencyDaily, Anchor: anchor, End: Never()}
}

// NewWeekly returns a never-ending rule repeating every 7 days from anchor.
func NewWeekly(anchor time.Time) Rule {
	return Rule{Frequency: FrequencyWeekly, Anchor: anchor, End: Never()}
}

// NewMonthly returns a never-ending rule on the anchor's day of month.
func NewMonthly(anchor time.Time) Rule {
	return Rule{Frequency: FrequencyMonthly, Anchor: anchor, End: Never()}
}

// NewCustom returns a never-ending rule on the given weekdays.
func NewCustom(anchor time.Time, days ...time.Weekday) Rule {
	return Rule{Frequency: FrequencyCustom, Weekdays: NewWeekdaySet(days...), Anchor: anchor, End: Never()}
}

// WithEnd returns a copy of r with end applied.
func (r Rule) WithEnd(end End) Rule {
	r.End = end
	return r
}

var (
	ErrUnknownFrequency = errors.New("unknown frequency")
	ErrNoWeekdays       = errors.New("custom rule has no weekdays selected")
	ErrNoAnchor         = errors.New("rule has no anchor date")
	ErrZeroOccurrences  = errors.New("occurrence count must be at least 1")
	ErrUnknownEnd       = errors.New("unknown end condition")
)

// Validate reports why a rule would produce no occurrences. A nil result does
// not guarantee a non-empty sequence (an OnDate before the anchor is legal).
func (r Rule) Validate() error {
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, r.Frequency)
	}
	if r.Anchor.IsZero() {
		return ErrNoAnchor
	}
	if r.Frequency == FrequencyCustom && r.Weekdays.IsEmpty() {
		return ErrNoWeekdays
	}
	switch r.End.Kind {
	case EndNever, "":
	case EndOnDate:
	case EndAfterOccurrences:
		if r.End.Count < 1 {
			return ErrZeroOccurrences
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEnd, r.End.Kind)
	}
	return nil
}

// Describe renders a short human summary such as "Every Mon, Wed, 10 times".
func (r Rule) Describe() string {
	var b strings.Builder
	switch r.Frequency {
	case FrequencyDaily:
		b.WriteString("Every day")
	case FrequencyWeekly:
		b.WriteString("Every week on " + r.Anchor.Weekday().String())
	case FrequencyMonthly:
		fmt.Fprintf(&b, "Every month on day %d", r.Anchor.Day())
	case FrequencyCustom:
		if r.Weekdays.IsEmpty() {
			return "Custom (no days selected)"
		}
		b.WriteString("Every " + r.Weekdays.String())
	default:
		return "Unknown"
	}
	switch r.End.Kind {
	case EndOnDate:
		b.WriteString(", until " + r.End.Date.Format(DateLayout))
	case EndAfterOccurrences:
		if r.End.Count == 1 {
			b.WriteString(", once")
		} else {
			fmt.Fprintf(&b, ", %d times", r.End.Count)
		}
	}
	return b.String()
}

// Day truncates t to midnight of its calendar day in its own location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// dateIn re-expresses the calendar day of t at midnight in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func addDays(d time.Time, n int) time.Time {
	return Day(d.AddDate(0, 0, n))
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
