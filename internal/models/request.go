package models

import (
	"slices"
	"strings"
)

// MetricRequest is one logical fetch over a full date range.
type MetricRequest struct {
	PropertyID string
	Metrics    []string
	Dimensions []string
	Range      DateRange
}

// Validate checks the request without touching the network.
func (r MetricRequest) Validate() error {
	if r.PropertyID == "" || !isDigits(r.PropertyID) {
		return &InvalidArgumentError{
			Field:  "property id",
			Value:  r.PropertyID,
			Reason: "must be numeric (not a G- measurement id)",
		}
	}
	if len(r.Metrics) == 0 {
		return &InvalidArgumentError{Field: "metrics", Reason: "at least one metric is required"}
	}
	for _, m := range r.Metrics {
		if !IsKnownMetric(m) {
			return &InvalidArgumentError{Field: "metric", Value: m, Reason: "unknown metric"}
		}
	}
	timeDims := 0
	for _, d := range r.Dimensions {
		if !IsTimeDimension(d) {
			return &InvalidArgumentError{Field: "dimension", Value: d, Reason: "not a time dimension; rows could not be merged into a date series"}
		}
		timeDims++
	}
	if timeDims > 1 {
		return &InvalidArgumentError{Field: "dimensions", Value: strings.Join(r.Dimensions, ","), Reason: "at most one time dimension may be requested"}
	}
	return nil
}

// Resolution returns the time dimension and bucketing the request will be
// answered with. An explicit time dimension wins over the plan granularity.
func (r MetricRequest) Resolution(planned Granularity) (string, Granularity) {
	for _, d := range r.Dimensions {
		if g, ok := ResolutionOf(d); ok {
			return d, g
		}
	}
	return TimeDimensionFor(planned), planned
}

// CacheKey is the storage identity of a fully resolved request.
type CacheKey string

// NewCacheKey derives the key from the request identity. Metric and dimension
// order never matters.
func NewCacheKey(propertyID string, metrics, dimensions []string, r DateRange, g Granularity) CacheKey {
	var b strings.Builder
	b.WriteString(propertyID)
	b.WriteByte(':')
	b.WriteString(strings.Join(sortedUnique(metrics), ","))
	b.WriteByte(':')
	b.WriteString(strings.Join(sortedUnique(dimensions), ","))
	b.WriteByte(':')
	b.WriteString(r.Start.Format(DateLayout))
	b.WriteByte(':')
	b.WriteString(r.End.Format(DateLayout))
	b.WriteByte(':')
	b.WriteString(g.String())
	return CacheKey(b.String())
}

// ReportQuery is a single upstream call for one plan step.
type ReportQuery struct {
	PropertyID string
	Metrics    []string
	Dimensions []string
	Range      DateRange
}

func sortedUnique(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
