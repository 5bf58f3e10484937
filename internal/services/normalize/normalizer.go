// Package normalize converts raw Data API rows into a typed, gap-free series.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/ranges"
)

// Options describes what a sub-response is expected to contain.
type Options struct {
	Metrics       []string
	DateDimension string
	Range         models.DateRange
	Granularity   models.Granularity
}

// Normalize maps rows by header name, reformats the date dimension, defaults
// missing metrics to zero and fills empty buckets so the result covers
// opts.Range exactly. Rows are never aggregated together.
func Normalize(raw *models.RawResponse, opts Options) (models.NormalizedSeries, error) {
	if raw == nil {
		return nil, &models.MalformedResponseError{Row: -1, Reason: "nil response"}
	}

	dateIdx := -1
	for i, h := range raw.DimensionHeaders {
		if h == opts.DateDimension {
			dateIdx = i
			break
		}
	}
	if dateIdx < 0 {
		return nil, &models.MalformedResponseError{
			Row:    -1,
			Reason: fmt.Sprintf("date dimension %q missing from headers %v", opts.DateDimension, raw.DimensionHeaders),
		}
	}

	metricIdx := make(map[string]int, len(raw.MetricHeaders))
	for i, h := range raw.MetricHeaders {
		metricIdx[h] = i
	}

	byDate := make(map[string]models.NormalizedRow, len(raw.Rows))
	for i, row := range raw.Rows {
		if len(row.DimensionValues) != len(raw.DimensionHeaders) {
			return nil, &models.MalformedResponseError{
				Row:    i,
				Reason: fmt.Sprintf("%d dimension values for %d headers", len(row.DimensionValues), len(raw.DimensionHeaders)),
			}
		}
		if len(row.MetricValues) != len(raw.MetricHeaders) {
			return nil, &models.MalformedResponseError{
				Row:    i,
				Reason: fmt.Sprintf("%d metric values for %d headers", len(row.MetricValues), len(raw.MetricHeaders)),
			}
		}

		day, err := ParseDimensionDate(opts.DateDimension, row.DimensionValues[dateIdx])
		if err != nil {
			return nil, &models.MalformedResponseError{Row: i, Reason: err.Error()}
		}
		outside := day.After(opts.Range.End) ||
			(opts.Granularity == models.Daily && day.Before(opts.Range.Start))
		if outside {
			return nil, &models.MalformedResponseError{
				Row:    i,
				Reason: fmt.Sprintf("date %s outside requested range %s", day.Format(models.DateLayout), opts.Range),
			}
		}
		date := ranges.BucketOf(day, opts.Granularity, opts.Range.Start).Format(models.DateLayout)
		if _, dup := byDate[date]; dup {
			return nil, &models.MalformedResponseError{Row: i, Reason: "duplicate row for " + date}
		}

		values := make(map[string]float64, len(opts.Metrics))
		for _, m := range opts.Metrics {
			idx, ok := metricIdx[m]
			if !ok {
				values[m] = 0
				continue
			}
			v, err := parseValue(row.MetricValues[idx])
			if err != nil {
				return nil, &models.MalformedResponseError{Row: i, Reason: fmt.Sprintf("metric %s: %v", m, err)}
			}
			values[m] = v
		}
		byDate[date] = models.NormalizedRow{Date: date, Values: values}
	}

	buckets := ranges.BucketStarts(opts.Range, opts.Granularity)
	series := make(models.NormalizedSeries, 0, len(buckets))
	for _, b := range buckets {
		date := b.Format(models.DateLayout)
		row, ok := byDate[date]
		if !ok {
			row = zeroRow(date, opts.Metrics)
		}
		series = append(series, row)
		delete(byDate, date)
	}

	// Anything left did not land on a bucket boundary.
	if len(byDate) > 0 {
		stray := make([]string, 0, len(byDate))
		for d := range byDate {
			stray = append(stray, d)
		}
		sort.Strings(stray)
		return nil, &models.MalformedResponseError{Row: -1, Reason: fmt.Sprintf("rows off bucket boundaries: %v", stray)}
	}

	return series, nil
}

// FormatDate converts a YYYYMMDD date value to YYYY-MM-DD. Values already in
// canonical form pass through.
func FormatDate(v string) (string, error) {
	t, err := ParseDimensionDate(models.DimensionDate, v)
	if err != nil {
		return "", err
	}
	return t.Format(models.DateLayout), nil
}

// ParseDimensionDate parses the value of a time dimension into the first day
// it covers.
func ParseDimensionDate(dimension, v string) (time.Time, error) {
	switch dimension {
	case models.DimensionDate:
		if len(v) == len(models.DateLayout) {
			return time.Parse(models.DateLayout, v)
		}
		t, err := time.Parse("20060102", v)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad date %q", v)
		}
		return t, nil
	case models.DimensionMonth:
		t, err := time.Parse("200601", v)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad year-month %q", v)
		}
		return t, nil
	case models.DimensionYearWeek:
		if len(v) != 6 {
			return time.Time{}, fmt.Errorf("bad iso week %q", v)
		}
		year, err1 := strconv.Atoi(v[:4])
		week, err2 := strconv.Atoi(v[4:])
		if err1 != nil || err2 != nil || week < 1 || week > 53 {
			return time.Time{}, fmt.Errorf("bad iso week %q", v)
		}
		return isoWeekStart(year, week), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time dimension %q", dimension)
	}
}

// isoWeekStart returns the Monday of ISO week w in year y.
func isoWeekStart(y, w int) time.Time {
	// January 4th is always in week 1.
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(w-1)*7)
}

// parseValue reads a metric value; empty means zero, mirroring upstream
// reporting 0 for unconfigured metrics.
func parseValue(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func zeroRow(date string, metrics []string) models.NormalizedRow {
	values := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		values[m] = 0
	}
	return models.NormalizedRow{Date: date, Values: values}
}
