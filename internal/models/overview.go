package models

import "time"

// PeriodTotals sums the headline metrics over one period.
type PeriodTotals struct {
	TotalUsers      int     `json:"total_users"`
	ActiveUsers     int     `json:"active_users"`
	TotalRevenue    float64 `json:"total_revenue"`
	AdRevenue       float64 `json:"ad_revenue"`
	PurchaseRevenue float64 `json:"in_app_purchase_revenue"`
}

// PeriodDeltas holds percentage changes against the previous period. A nil
// field means the previous value was zero and no change can be expressed.
type PeriodDeltas struct {
	TotalUsers      *float64 `json:"total_users"`
	ActiveUsers     *float64 `json:"active_users"`
	TotalRevenue    *float64 `json:"total_revenue"`
	AdRevenue       *float64 `json:"ad_revenue"`
	PurchaseRevenue *float64 `json:"in_app_purchase_revenue"`
}

// OverviewSummary is the comparison block of the dashboard.
type OverviewSummary struct {
	PeriodTotals
	PreviousPeriod PeriodTotals `json:"previous_period"`
	Deltas         PeriodDeltas `json:"deltas"`
	ARPU           float64      `json:"arpu"`
}

// OverviewMetadata identifies what an overview covers.
type OverviewMetadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	PropertyID  string    `json:"property_id"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Days        int       `json:"days"`
}

// Overview is the full dashboard payload.
type Overview struct {
	DailyUsers   NormalizedSeries `json:"daily_users"`
	DailyRevenue NormalizedSeries `json:"daily_revenue"`
	Metadata     OverviewMetadata `json:"metadata"`
	Summary      OverviewSummary  `json:"summary"`
}
