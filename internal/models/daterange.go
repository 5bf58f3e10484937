// Package models defines data structures and domain types.
package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical ISO date format used across the pipeline.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar days. Values are normalized to
// UTC midnight and never mutated after construction.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange creates a validated range. Start must not be after End.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: TruncateDay(start), End: TruncateDay(end)}
	if r.Start.After(r.End) {
		return DateRange{}, &InvalidRangeError{Start: r.Start, End: r.End}
	}
	return r, nil
}

// ParseDateRange parses two YYYY-MM-DD strings into a range.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, &InvalidArgumentError{Field: "start", Value: start, Reason: "expected YYYY-MM-DD"}
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, &InvalidArgumentError{Field: "end", Value: end, Reason: "expected YYYY-MM-DD"}
	}
	return NewDateRange(s, e)
}

// Days returns the number of calendar days in the range, both ends included.
func (r DateRange) Days() int {
	return DaysBetween(r.Start, r.End) + 1
}

// String renders the range as "start..end".
func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// TruncateDay returns midnight UTC of the calendar day t falls on in its own location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	return int(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24)
}

// Granularity is the time bucketing applied to a sub-request.
type Granularity int

const (
	// Daily buckets rows per calendar day.
	Daily Granularity = iota
	// Weekly buckets rows per ISO week.
	Weekly
	// Monthly buckets rows per calendar month.
	Monthly
)

// Span thresholds for granularity selection, in days.
const (
	dailyMaxSpanDays  = 92
	monthlyMinSpanDay = 365
)

// String returns the lowercase name of the granularity.
func (g Granularity) String() string {
	switch g {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// GranularityForSpan picks the bucketing for a range of the given length.
// Up to three months is daily, under a year weekly, anything longer monthly.
func GranularityForSpan(days int) Granularity {
	switch {
	case days <= dailyMaxSpanDays:
		return Daily
	case days < monthlyMinSpanDay:
		return Weekly
	default:
		return Monthly
	}
}
