package recurrence

import (
	"iter"
	"time"
)

// Occurrences yields occurrence dates in [start, end), ascending and without
// duplicates. A zero start means "from the anchor"; a zero end leaves the
// range open, so a Never rule yields forever and the caller stops ranging.
//
// The returned sequence holds no state between iterations: ranging over it
// twice produces the same dates.
func (r Rule) Occurrences(start, end time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !r.generates() {
			return
		}
		anchor := Day(r.Anchor)
		loc := anchor.Location()

		from := anchor
		if !start.IsZero() {
			if s := dateIn(start, loc); s.After(from) {
				from = s
			}
		}
		var until time.Time
		if !end.IsZero() {
			until = dateIn(end, loc)
		}
		var last time.Time
		if r.End.Kind == EndOnDate {
			last = dateIn(r.End.Date, loc)
		}

		index, date := r.seek(anchor, from)
		for {
			if !until.IsZero() && !date.Before(until) {
				return
			}
			if !last.IsZero() && date.After(last) {
				return
			}
			if r.End.Kind == EndAfterOccurrences && index >= r.End.Count {
				return
			}
			if !yield(date) {
				return
			}
			index, date = r.advance(anchor, index, date)
		}
	}
}

// Between collects the occurrences in [start, end). A zero end is treated as
// an empty range so the result is always finite.
func (r Rule) Between(start, end time.Time) []time.Time {
	dates := []time.Time{}
	if end.IsZero() {
		return dates
	}
	for d := range r.Occurrences(start, end) {
		dates = append(dates, d)
	}
	return dates
}

// Next returns the first occurrence strictly after the calendar day of after.
func (r Rule) Next(after time.Time) (time.Time, bool) {
	start := time.Date(after.Year(), after.Month(), after.Day()+1, 0, 0, 0, 0, after.Location())
	for d := range r.Occurrences(start, time.Time{}) {
		return d, true
	}
	return time.Time{}, false
}

// generates reports whether the rule can produce any occurrence at all.
func (r Rule) generates() bool {
	if r.Anchor.IsZero() || !r.Frequency.Valid() {
		return false
	}
	if r.Frequency == FrequencyCustom && r.Weekdays.IsEmpty() {
		return false
	}
	switch r.End.Kind {
	case EndNever, "", EndOnDate:
		return true
	case EndAfterOccurrences:
		return r.End.Count >= 1
	}
	return false
}

// seek returns the absolute index and date of the first occurrence on or
// after from. from is never before anchor.
func (r Rule) seek(anchor, from time.Time) (int, time.Time) {
	switch r.Frequency {
	case FrequencyDaily:
		i := daysBetween(anchor, from)
		return i, addDays(anchor, i)
	case FrequencyWeekly:
		i := (daysBetween(anchor, from) + 6) / 7
		return i, addDays(anchor, 7*i)
	case FrequencyMonthly:
		i := (from.Year()-anchor.Year())*12 + int(from.Month()) - int(anchor.Month())
		if i < 0 {
			i = 0
		}
		d := r.monthAt(anchor, i)
		if d.Before(from) {
			i++
			d = r.monthAt(anchor, i)
		}
		return i, d
	default:
		d := from
		for !r.Weekdays.Has(d.Weekday()) {
			d = addDays(d, 1)
		}
		return r.customIndex(anchor, d), d
	}
}

// advance steps from the occurrence at index/date to the next one.
func (r Rule) advance(anchor time.Time, index int, date time.Time) (int, time.Time) {
	switch r.Frequency {
	case FrequencyDaily:
		return index + 1, addDays(anchor, index+1)
	case FrequencyWeekly:
		return index + 1, addDays(anchor, 7*(index+1))
	case FrequencyMonthly:
		return index + 1, r.monthAt(anchor, index+1)
	default:
		d := addDays(date, 1)
		for !r.Weekdays.Has(d.Weekday()) {
			d = addDays(d, 1)
		}
		return index + 1, d
	}
}

// monthAt returns the i-th monthly occurrence, clamping the anchor's day to
// the length of the target month.
func (r Rule) monthAt(anchor time.Time, i int) time.Time {
	loc := anchor.Location()
	first := time.Date(anchor.Year(), anchor.Month()+time.Month(i), 1, 0, 0, 0, 0, loc)
	day := anchor.Day()
	if n := daysIn(first.Year(), first.Month(), loc); day > n {
		day = n
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}

// customIndex counts matching weekdays in [anchor, date).
func (r Rule) customIndex(anchor, date time.Time) int {
	n := daysBetween(anchor, date)
	count := (n / 7) * r.Weekdays.Len()
	start := anchor.Weekday()
	for k := 0; k < n%7; k++ {
		if r.Weekdays.Has((start + time.Weekday(k)) % 7) {
			count++
		}
	}
	return count
}
