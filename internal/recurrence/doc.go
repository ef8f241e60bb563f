// Package recurrence expands repeat policies into calendar dates.
//
// A Rule is a pure value: frequency, an optional weekday set, the anchor date
// it was authored on, and a termination condition. Rules never hold a cursor.
// Every call to Occurrences with the same inputs yields the same dates.
//
// # Calendar Semantics
//
// All dates are calendar days. Inputs are reduced to their year/month/day in
// their own location and re-expressed at midnight in the anchor's location,
// so callers may pass any time of day.
//
// # Termination
//
// End conditions are applied after generation, on the absolute occurrence
// index counted from the anchor:
//
//   - Never: no truncation; an unbounded query range yields an infinite sequence
//   - OnDate(d): occurrences on or before d
//   - AfterOccurrences(n): the first n occurrences counted from the anchor,
//     regardless of where the query range starts
//
// Malformed rules (custom with no weekdays, a count of zero, a missing anchor)
// are not errors. They yield nothing. Validate reports them for authoring
// tools.
package recurrence
