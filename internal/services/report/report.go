// Package report derives dashboard summaries from fetched series.
package report

import (
	"math"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// Metric names used in summaries.
const (
	MetricTotalUsers      = "totalUsers"
	MetricActiveUsers     = "activeUsers"
	MetricTotalRevenue    = "totalRevenue"
	MetricPurchaseRevenue = "purchaseRevenue"
	MetricAdRevenue       = "adRevenue"
)

// Sum adds up one metric over a series.
func Sum(series models.NormalizedSeries, metric string) float64 {
	var total float64
	for _, row := range series {
		total += row.Values[metric]
	}
	return total
}

// Average returns the mean of metric over the rows where it is positive.
// Zero-filled days would otherwise drag the mean down.
func Average(series models.NormalizedSeries, metric string) float64 {
	var total float64
	n := 0
	for _, row := range series {
		if v := row.Values[metric]; v > 0 {
			total += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// Summarize totals a period from its daily user and revenue series. Ad
// revenue is derived as total minus purchase revenue, never negative.
func Summarize(users, revenue models.NormalizedSeries) models.PeriodTotals {
	total := Sum(revenue, MetricTotalRevenue)
	purchase := Sum(revenue, MetricPurchaseRevenue)
	return models.PeriodTotals{
		TotalUsers:      int(math.Round(Sum(users, MetricTotalUsers))),
		ActiveUsers:     int(math.Round(Sum(users, MetricActiveUsers))),
		TotalRevenue:    total,
		PurchaseRevenue: purchase,
		AdRevenue:       adRevenue(total, purchase),
	}
}

// CalculateDelta returns the percentage change from previous to current, or
// nil when previous is zero.
func CalculateDelta(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	d := (current - previous) / previous * 100
	return &d
}

// Compare builds the deltas of current against previous.
func Compare(current, previous models.PeriodTotals) models.PeriodDeltas {
	return models.PeriodDeltas{
		TotalUsers:      CalculateDelta(float64(current.TotalUsers), float64(previous.TotalUsers)),
		ActiveUsers:     CalculateDelta(float64(current.ActiveUsers), float64(previous.ActiveUsers)),
		TotalRevenue:    CalculateDelta(current.TotalRevenue, previous.TotalRevenue),
		AdRevenue:       CalculateDelta(current.AdRevenue, previous.AdRevenue),
		PurchaseRevenue: CalculateDelta(current.PurchaseRevenue, previous.PurchaseRevenue),
	}
}

// ARPU is the average revenue per user, zero without users.
func ARPU(revenue float64, users int) float64 {
	if users <= 0 {
		return 0
	}
	return revenue / float64(users)
}

// DeriveAdRevenue returns a copy of series with an adRevenue value on every
// row. The input is left untouched.
func DeriveAdRevenue(series models.NormalizedSeries) models.NormalizedSeries {
	out := make(models.NormalizedSeries, len(series))
	for i, row := range series {
		values := make(map[string]float64, len(row.Values)+1)
		for k, v := range row.Values {
			values[k] = v
		}
		values[MetricAdRevenue] = adRevenue(values[MetricTotalRevenue], values[MetricPurchaseRevenue])
		out[i] = models.NormalizedRow{Date: row.Date, Values: values}
	}
	return out
}

// DailyARPU returns revenue per user for every date present in both series.
func DailyARPU(users, revenue models.NormalizedSeries) []float64 {
	byDate := make(map[string]float64, len(revenue))
	for _, row := range revenue {
		byDate[row.Date] = row.Values[MetricTotalRevenue]
	}
	out := make([]float64, 0, len(users))
	for _, row := range users {
		rev, ok := byDate[row.Date]
		if !ok {
			continue
		}
		out = append(out, ARPU(rev, int(row.Values[MetricTotalUsers])))
	}
	return out
}

// Period groups the series fetched for one date range.
type Period struct {
	Range   models.DateRange
	Users   models.NormalizedSeries
	Revenue models.NormalizedSeries
}

// BuildOverview assembles the dashboard payload for current, compared with
// previous.
func BuildOverview(propertyID string, generatedAt time.Time, current, previous Period) models.Overview {
	cur := Summarize(current.Users, current.Revenue)
	prev := Summarize(previous.Users, previous.Revenue)

	return models.Overview{
		Metadata: models.OverviewMetadata{
			PropertyID:  propertyID,
			StartDate:   current.Range.Start.Format(models.DateLayout),
			EndDate:     current.Range.End.Format(models.DateLayout),
			Days:        current.Range.Days(),
			GeneratedAt: generatedAt.UTC(),
		},
		DailyUsers:   current.Users,
		DailyRevenue: DeriveAdRevenue(current.Revenue),
		Summary: models.OverviewSummary{
			PeriodTotals:   cur,
			PreviousPeriod: prev,
			Deltas:         Compare(cur, prev),
			ARPU:           ARPU(cur.TotalRevenue, cur.TotalUsers),
		},
	}
}

func adRevenue(total, purchase float64) float64 {
	return math.Max(0, total-purchase)
}
