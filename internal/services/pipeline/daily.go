package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// TrailingRange returns the days-long range ending yesterday (UTC) relative
// to now. Today is excluded because its numbers are still moving.
func TrailingRange(now time.Time, days int) (models.DateRange, error) {
	if days <= 0 {
		return models.DateRange{}, &models.InvalidRangeError{Days: days}
	}
	end := models.TruncateDay(now.UTC()).AddDate(0, 0, -1)
	return models.NewDateRange(end.AddDate(0, 0, -(days - 1)), end)
}

// PreviousRange returns the range of equal length immediately before r.
func PreviousRange(r models.DateRange) models.DateRange {
	days := r.Days()
	return models.DateRange{
		Start: r.Start.AddDate(0, 0, -days),
		End:   r.Start.AddDate(0, 0, -1),
	}
}

// FetchDailyUsers returns total and active users per day for the last days
// complete days of the default property.
func (p *Pipeline) FetchDailyUsers(ctx context.Context, days int) (models.NormalizedSeries, error) {
	return p.fetchTrailing(ctx, DailyUsersMetrics, days)
}

// FetchDailyRevenue returns total and purchase revenue per day for the last
// days complete days of the default property.
func (p *Pipeline) FetchDailyRevenue(ctx context.Context, days int) (models.NormalizedSeries, error) {
	return p.fetchTrailing(ctx, DailyRevenueMetrics, days)
}

// FetchRange fetches metrics over r with the default property and planned
// granularity.
func (p *Pipeline) FetchRange(ctx context.Context, metrics []string, r models.DateRange) (models.NormalizedSeries, error) {
	return p.Fetch(ctx, p.propertyID, metrics, nil, r.Start, r.End)
}

func (p *Pipeline) fetchTrailing(ctx context.Context, metrics []string, days int) (models.NormalizedSeries, error) {
	r, err := TrailingRange(p.clock.Now(), days)
	if err != nil {
		return nil, err
	}
	return p.Fetch(ctx, p.propertyID, metrics, []string{models.DimensionDate}, r.Start, r.End)
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
