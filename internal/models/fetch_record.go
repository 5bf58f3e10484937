package models

import "time"

// FetchRecord is one logged upstream sub-request.
type FetchRecord struct {
	Timestamp       time.Time
	RunID           string
	PropertyID      string
	StartDate       string
	EndDate         string
	Granularity     string
	Metrics         string
	Status          string
	Error           string
	ID              int64
	EstimatedTokens int
	Attempts        int
	DurationMs      int
	Rows            int
	// Charged is set when the governor committed the step's cost, even if
	// the step failed afterwards.
	Charged bool
}

// Fetch record statuses.
const (
	FetchStatusOK     = "ok"
	FetchStatusFailed = "failed"
)

// DailyUsage is the persisted consumption for one UTC day.
type DailyUsage struct {
	Day      time.Time
	Requests int
	Tokens   int
}

// DailyFetchStats aggregates the fetch log for one UTC day.
type DailyFetchStats struct {
	Day           time.Time
	AvgDurationMs float64
	Requests      int
	Failures      int
	Tokens        int
	Rows          int
}
