// Package ranges decomposes date ranges into sub-ranges the Data API accepts.
package ranges

import (
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// MaxSpanDays is the longest range, in days, a single runReport call accepts.
const MaxSpanDays = 427

// Split builds a plan over r. Steps are filled left to right, each maxSpanDays
// long except the last. Every step shares the granularity picked for the whole span.
func Split(r models.DateRange, maxSpanDays int) (models.QueryPlan, error) {
	if r.Start.After(r.End) {
		return models.QueryPlan{}, &models.InvalidRangeError{Start: r.Start, End: r.End}
	}
	if maxSpanDays <= 0 {
		return models.QueryPlan{}, &models.InvalidArgumentError{Field: "max span", Reason: "must be positive"}
	}

	g := models.GranularityForSpan(r.Days())
	plan := models.QueryPlan{
		Range: r,
		Steps: make([]models.PlanStep, 0, (r.Days()+maxSpanDays-1)/maxSpanDays),
	}

	for cur := r.Start; !cur.After(r.End); {
		end := cur.AddDate(0, 0, maxSpanDays-1)
		if end.After(r.End) {
			end = r.End
		}
		plan.Steps = append(plan.Steps, models.PlanStep{
			Range:       models.DateRange{Start: cur, End: end},
			Granularity: g,
		})
		cur = end.AddDate(0, 0, 1)
	}

	return plan, nil
}

// BucketStarts lists the row dates a step produces at granularity g. The first
// bucket always starts at the step start, later ones on week or month boundaries.
func BucketStarts(r models.DateRange, g models.Granularity) []time.Time {
	var out []time.Time
	for cur := r.Start; !cur.After(r.End); cur = nextBucket(cur, g) {
		out = append(out, cur)
	}
	return out
}

// ExpectedRows is the number of buckets a step yields.
func ExpectedRows(r models.DateRange, g models.Granularity) int {
	switch g {
	case models.Daily:
		return r.Days()
	default:
		return len(BucketStarts(r, g))
	}
}

// BucketOf returns the start of the bucket t falls in, clamped to floor.
func BucketOf(t time.Time, g models.Granularity, floor time.Time) time.Time {
	var start time.Time
	switch g {
	case models.Weekly:
		start = startOfISOWeek(t)
	case models.Monthly:
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		start = models.TruncateDay(t)
	}
	if start.Before(floor) {
		return floor
	}
	return start
}

func nextBucket(t time.Time, g models.Granularity) time.Time {
	switch g {
	case models.Weekly:
		return startOfISOWeek(t).AddDate(0, 0, 7)
	case models.Monthly:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func startOfISOWeek(t time.Time) time.Time {
	d := models.TruncateDay(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}
