package models

import "fmt"

// RawRow is one upstream row, values positionally aligned with the headers.
type RawRow struct {
	DimensionValues []string `json:"dimensionValues"`
	MetricValues    []string `json:"metricValues"`
}

// RawResponse is the transport output for one sub-request.
type RawResponse struct {
	DimensionHeaders []string `json:"dimensionHeaders"`
	MetricHeaders    []string `json:"metricHeaders"`
	Rows             []RawRow `json:"rows"`
}

// NormalizedRow is a single dated point of the output series.
type NormalizedRow struct {
	Date   string             `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Value returns the named metric, or 0 when absent.
func (r NormalizedRow) Value(metric string) float64 {
	return r.Values[metric]
}

// NormalizedSeries is ordered by date, strictly increasing.
type NormalizedSeries []NormalizedRow

// Validate checks the ordering invariant.
func (s NormalizedSeries) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i].Date <= s[i-1].Date {
			return fmt.Errorf("series not strictly increasing at %d: %s after %s", i, s[i].Date, s[i-1].Date)
		}
	}
	return nil
}

// Column extracts one metric as a slice, e.g. for charting.
func (s NormalizedSeries) Column(metric string) []float64 {
	out := make([]float64, len(s))
	for i, row := range s {
		out[i] = row.Values[metric]
	}
	return out
}

// Dates returns the row dates in order.
func (s NormalizedSeries) Dates() []string {
	out := make([]string, len(s))
	for i, row := range s {
		out[i] = row.Date
	}
	return out
}

// PlanStep is one API-legal sub-range of a query plan.
type PlanStep struct {
	Range       DateRange
	Granularity Granularity
}

// QueryPlan covers an original range exactly once, in chronological order.
type QueryPlan struct {
	Range DateRange
	Steps []PlanStep
}
