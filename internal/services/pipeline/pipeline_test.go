package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/j-veylop/ga4-dashboard-tui/internal/cache"
	"github.com/j-veylop/ga4-dashboard-tui/internal/clock"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/quota"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/ranges"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/retry"
)

const property = "123456"

var now = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

// fakeTransport answers every query with one row per bucket, valued by the
// number of days since the Unix epoch so merged output is easy to check.
type fakeTransport struct {
	fail     func(q models.ReportQuery, call int) error
	delay    time.Duration
	queries  []models.ReportQuery
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
}

func (f *fakeTransport) RunReport(ctx context.Context, q models.ReportQuery) (*models.RawResponse, error) {
	n := f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(q, int(n)); err != nil {
			return nil, err
		}
	}

	dim := q.Dimensions[0]
	g, _ := models.ResolutionOf(dim)
	resp := &models.RawResponse{
		DimensionHeaders: []string{dim},
		MetricHeaders:    q.Metrics,
	}
	for _, b := range ranges.BucketStarts(q.Range, g) {
		values := make([]string, len(q.Metrics))
		for i := range values {
			values[i] = fmt.Sprint(b.Unix() / 86400)
		}
		resp.Rows = append(resp.Rows, models.RawRow{
			DimensionValues: []string{formatBucket(dim, b)},
			MetricValues:    values,
		})
	}
	return resp, nil
}

func formatBucket(dim string, t time.Time) string {
	switch dim {
	case models.DimensionYearWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d%02d", y, w)
	case models.DimensionMonth:
		return t.Format("200601")
	default:
		return t.Format("20060102")
	}
}

type memRecorder struct {
	records []models.FetchRecord
	mu      sync.Mutex
}

func (r *memRecorder) InsertFetchRecord(rec *models.FetchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

type countingObserver struct {
	steps   map[string]int
	fetches map[string]int
	mu      sync.Mutex
}

func (o *countingObserver) StepDone(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps[outcome]++
}

func (o *countingObserver) FetchDone(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches[outcome]++
}

func newTestPipeline(t *testing.T, tr Transport, limits quota.Limits, opts ...Option) *Pipeline {
	t.Helper()
	if limits.MaxMinuteTokens == 0 {
		limits.MaxMinuteTokens = 1_000_000
	}
	gov := quota.NewGovernor(limits)
	exec := retry.New(retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}, nil)
	store := cache.New(cache.NewMemoryBackend())

	opts = append([]Option{WithClock(clock.NewFake(now))}, opts...)
	return New(property, tr, gov, exec, store, opts...)
}

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFetchDailyUsers_SplitsLongRangesAndMergesInOrder(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(t, tr, quota.Limits{})

	series, err := p.FetchDailyUsers(context.Background(), 500)
	require.NoError(t, err)

	require.Equal(t, int32(2), tr.calls.Load())
	require.Len(t, series, 500)
	require.NoError(t, series.Validate())
	require.Equal(t, "2023-01-18", series[0].Date)
	require.Equal(t, "2024-05-31", series[499].Date)

	for i := 1; i < len(series); i++ {
		require.Equal(t, series[i-1].Value("totalUsers")+1, series[i].Value("totalUsers"), "gap at %s", series[i].Date)
	}
	for _, q := range tr.queries {
		require.Equal(t, []string{models.DimensionDate}, q.Dimensions)
		require.Equal(t, DailyUsersMetrics, q.Metrics)
	}
}

func TestFetch_IdenticalRequestServedFromCache(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(t, tr, quota.Limits{})
	ctx := context.Background()

	first, err := p.Fetch(ctx, property, []string{"totalUsers"}, []string{"date"}, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Equal(t, int32(1), tr.calls.Load())

	second, err := p.Fetch(ctx, property, []string{"totalUsers"}, []string{"date"}, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Equal(t, int32(1), tr.calls.Load())
	require.Equal(t, first, second)
}

func TestFetch_ConcurrentIdenticalRequestsShareOneFetch(t *testing.T) {
	tr := &fakeTransport{delay: 20 * time.Millisecond}
	p := newTestPipeline(t, tr, quota.Limits{})

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Fetch(context.Background(), property, []string{"sessions"}, nil, day("2024-02-01"), day("2024-02-10"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), tr.calls.Load())
}

func TestFetch_FatalStepCachesNothing(t *testing.T) {
	fatal := &models.AuthError{StatusCode: 403, Message: "permission denied"}
	tr := &fakeTransport{fail: func(q models.ReportQuery, _ int) error {
		if q.Range.Start.After(day("2022-06-01")) {
			return fatal
		}
		return nil
	}}
	p := newTestPipeline(t, tr, quota.Limits{MaxConcurrent: 1})
	ctx := context.Background()

	_, err := p.Fetch(ctx, property, []string{"totalUsers"}, []string{"date"}, day("2022-01-01"), day("2024-01-01"))
	var authErr *models.AuthError
	require.ErrorAs(t, err, &authErr)

	tr.fail = nil
	calls := tr.calls.Load()
	series, err := p.Fetch(ctx, property, []string{"totalUsers"}, []string{"date"}, day("2022-01-01"), day("2024-01-01"))
	require.NoError(t, err)
	require.Greater(t, tr.calls.Load(), calls, "a failed fetch must not leave a cached entry")
	require.Len(t, series, 731)
}

// siblingTransport fails the step starting at failStart once every other
// step is in flight; the others block until their context ends.
type siblingTransport struct {
	failStart time.Time
	siblings  int
	running   atomic.Int32
	cancelled atomic.Int32
}

func (s *siblingTransport) RunReport(ctx context.Context, q models.ReportQuery) (*models.RawResponse, error) {
	if q.Range.Start.Equal(s.failStart) {
		deadline := time.Now().Add(time.Second)
		for int(s.running.Load()) < s.siblings && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		return nil, &models.AuthError{StatusCode: 403, Message: "permission denied"}
	}

	s.running.Add(1)
	select {
	case <-ctx.Done():
		s.cancelled.Add(1)
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, errors.New("sibling was never cancelled")
	}
}

func TestFetch_FatalStepCancelsRunningSiblings(t *testing.T) {
	tr := &siblingTransport{failStart: day("2023-01-01"), siblings: 3}
	rec := &memRecorder{}
	p := newTestPipeline(t, tr, quota.Limits{MaxConcurrent: 4}, WithMaxSpanDays(30), WithRecorder(rec))

	started := time.Now()
	_, err := p.Fetch(context.Background(), property, []string{"totalUsers"}, []string{"date"}, day("2023-01-01"), day("2023-04-30"))
	elapsed := time.Since(started)

	var authErr *models.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Less(t, elapsed, 2*time.Second, "the fatal step must not wait for its siblings to finish")
	require.Equal(t, int32(3), tr.running.Load(), "every sibling should have been running")
	require.Equal(t, int32(3), tr.cancelled.Load(), "every running sibling should see cancellation")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.records, 1, "cancelled siblings never reached upstream and are not logged")
	require.Equal(t, models.FetchStatusFailed, rec.records[0].Status)
}

func TestFetch_ConcurrencyNeverExceedsGovernorLimit(t *testing.T) {
	tr := &fakeTransport{delay: 5 * time.Millisecond}
	p := newTestPipeline(t, tr, quota.Limits{MaxConcurrent: 3}, WithMaxSpanDays(30))

	series, err := p.Fetch(context.Background(), property, []string{"activeUsers"}, []string{"date"}, day("2023-01-01"), day("2023-12-31"))
	require.NoError(t, err)

	require.Len(t, series, 365)
	require.Equal(t, int32(13), tr.calls.Load())
	require.LessOrEqual(t, tr.peak.Load(), int32(3))
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	tr := &fakeTransport{fail: func(_ models.ReportQuery, call int) error {
		if call == 1 {
			return &models.TransientError{StatusCode: 503, Err: errors.New("unavailable")}
		}
		return nil
	}}
	rec := &memRecorder{}
	p := newTestPipeline(t, tr, quota.Limits{}, WithRecorder(rec))

	series, err := p.Fetch(context.Background(), property, []string{"totalUsers"}, nil, day("2024-03-01"), day("2024-03-07"))
	require.NoError(t, err)
	require.Len(t, series, 7)
	require.Equal(t, int32(2), tr.calls.Load())

	require.Len(t, rec.records, 1)
	got := rec.records[0]
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, models.FetchStatusOK, got.Status)
	require.Equal(t, "2024-03-01", got.StartDate)
	require.Equal(t, "2024-03-07", got.EndDate)
	require.Equal(t, 7, got.Rows)
	require.Equal(t, quota.EstimateCost(1, 1, 7), got.EstimatedTokens)
	require.NotEmpty(t, got.RunID)
}

func TestFetch_QuotaChargedPerSuccessfulCall(t *testing.T) {
	tr := &fakeTransport{}
	gov := quota.NewGovernor(quota.Limits{MaxMinuteTokens: 1_000_000})
	exec := retry.New(retry.Policy{Sleep: func(context.Context, time.Duration) error { return nil }}, nil)
	p := New(property, tr, gov, exec, cache.New(cache.NewMemoryBackend()), WithClock(clock.NewFake(now)))

	_, err := p.FetchDailyUsers(context.Background(), 500)
	require.NoError(t, err)

	snap := gov.Snapshot()
	require.Equal(t, 2, snap.DailyRequests)
	require.Equal(t, quota.EstimateCost(2, 1, 427)+quota.EstimateCost(2, 1, 73), snap.DailyTokens)
	require.Equal(t, 0, snap.InFlight)
}

func TestFetch_QuotaExceededIsNotRetried(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(t, tr, quota.Limits{MaxDailyRequests: 1})
	ctx := context.Background()

	_, err := p.Fetch(ctx, property, []string{"totalUsers"}, nil, day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)

	_, err = p.Fetch(ctx, property, []string{"newUsers"}, nil, day("2024-01-01"), day("2024-01-02"))
	var quotaErr *models.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.Equal(t, int32(1), tr.calls.Load())
}

func TestFetch_PlannedGranularityPicksTimeDimension(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		dim   string
		rows  int
	}{
		{"Daily", "2024-01-01", "2024-03-31", models.DimensionDate, 91},
		{"Weekly", "2024-01-01", "2024-06-30", models.DimensionYearWeek, 26},
		{"Monthly", "2023-01-15", "2024-01-14", models.DimensionMonth, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			p := newTestPipeline(t, tr, quota.Limits{})

			series, err := p.Fetch(context.Background(), property, []string{"sessions"}, nil, day(tt.start), day(tt.end))
			require.NoError(t, err)
			require.Len(t, series, tt.rows)
			require.Equal(t, tt.start, series[0].Date)
			require.Equal(t, []string{tt.dim}, tr.queries[0].Dimensions)
		})
	}
}

func TestFetch_ValidationFailsBeforeTransport(t *testing.T) {
	tests := []struct {
		name     string
		property string
		metrics  []string
		dims     []string
		start    string
		end      string
		target   any
	}{
		{"InvertedRange", property, []string{"totalUsers"}, nil, "2024-02-01", "2024-01-01", new(*models.InvalidRangeError)},
		{"MeasurementID", "G-ABC123", []string{"totalUsers"}, nil, "2024-01-01", "2024-01-02", new(*models.InvalidArgumentError)},
		{"UnknownMetric", property, []string{"nope"}, nil, "2024-01-01", "2024-01-02", new(*models.InvalidArgumentError)},
		{"NoMetrics", property, nil, nil, "2024-01-01", "2024-01-02", new(*models.InvalidArgumentError)},
		{"NonTimeDimension", property, []string{"totalUsers"}, []string{"country"}, "2024-01-01", "2024-01-02", new(*models.InvalidArgumentError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			p := newTestPipeline(t, tr, quota.Limits{})

			_, err := p.Fetch(context.Background(), tt.property, tt.metrics, tt.dims, day(tt.start), day(tt.end))
			require.ErrorAs(t, err, tt.target)
			require.Equal(t, int32(0), tr.calls.Load())
		})
	}
}

func TestFetchDailyUsers_NonPositiveDays(t *testing.T) {
	p := newTestPipeline(t, &fakeTransport{}, quota.Limits{})

	for _, days := range []int{0, -3} {
		_, err := p.FetchDailyUsers(context.Background(), days)
		var rangeErr *models.InvalidRangeError
		require.ErrorAs(t, err, &rangeErr)
		require.Equal(t, days, rangeErr.Days)
	}
}

func TestFetch_MalformedStepIsFatal(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(t, &malformedTransport{fakeTransport: tr}, quota.Limits{})

	_, err := p.Fetch(context.Background(), property, []string{"totalUsers"}, []string{"date"}, day("2024-01-01"), day("2024-01-05"))
	var malformed *models.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, models.Fatal, models.Classify(err))
	require.Equal(t, int32(1), tr.calls.Load())
}

func TestFetch_MalformedStepIsLoggedAsCharged(t *testing.T) {
	tr := &fakeTransport{}
	rec := &memRecorder{}
	p := newTestPipeline(t, &malformedTransport{fakeTransport: tr}, quota.Limits{}, WithRecorder(rec))

	_, err := p.Fetch(context.Background(), property, []string{"totalUsers"}, []string{"date"}, day("2024-01-01"), day("2024-01-05"))
	require.Error(t, err)

	snap := p.governor.Snapshot()
	require.Equal(t, 1, snap.DailyRequests, "the upstream call succeeded and is charged")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.records, 1)
	require.Equal(t, models.FetchStatusFailed, rec.records[0].Status)
	require.True(t, rec.records[0].Charged, "usage seeded after a restart must include this step")
	require.Equal(t, snap.DailyTokens, rec.records[0].EstimatedTokens)
}

func TestFetch_RejectedStepIsNotCharged(t *testing.T) {
	tr := &fakeTransport{fail: func(models.ReportQuery, int) error {
		return &models.AuthError{StatusCode: 401, Message: "expired"}
	}}
	rec := &memRecorder{}
	p := newTestPipeline(t, tr, quota.Limits{}, WithRecorder(rec))

	_, err := p.Fetch(context.Background(), property, []string{"totalUsers"}, []string{"date"}, day("2024-01-01"), day("2024-01-05"))
	require.Error(t, err)
	require.Zero(t, p.governor.Snapshot().DailyRequests)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.records, 1)
	require.False(t, rec.records[0].Charged)
}

type malformedTransport struct {
	*fakeTransport
}

func (m *malformedTransport) RunReport(ctx context.Context, q models.ReportQuery) (*models.RawResponse, error) {
	resp, err := m.fakeTransport.RunReport(ctx, q)
	if err != nil {
		return nil, err
	}
	resp.Rows[0].MetricValues = append(resp.Rows[0].MetricValues, "1")
	return resp, nil
}

func TestFetch_CanceledContext(t *testing.T) {
	tr := &fakeTransport{delay: time.Second}
	p := newTestPipeline(t, tr, quota.Limits{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.FetchDailyUsers(ctx, 30)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_ObserverSeesStepsAndFetches(t *testing.T) {
	obs := &countingObserver{steps: map[string]int{}, fetches: map[string]int{}}
	p := newTestPipeline(t, &fakeTransport{}, quota.Limits{}, WithObserver(obs))

	_, err := p.FetchDailyUsers(context.Background(), 500)
	require.NoError(t, err)
	_, err = p.FetchDailyUsers(context.Background(), 500)
	require.NoError(t, err)

	require.Equal(t, 2, obs.steps["ok"])
	require.Equal(t, 2, obs.fetches["ok"])
}

func TestMerge_RejectsCoverageGaps(t *testing.T) {
	r := models.DateRange{Start: day("2024-01-01"), End: day("2024-01-03")}
	plan := models.QueryPlan{Range: r, Steps: []models.PlanStep{{Range: r, Granularity: models.Daily}}}

	short := models.NormalizedSeries{
		{Date: "2024-01-01"},
		{Date: "2024-01-03"},
	}
	_, err := merge(plan, []models.NormalizedSeries{short}, models.Daily)
	var malformed *models.MalformedResponseError
	require.ErrorAs(t, err, &malformed)

	shifted := models.NormalizedSeries{{Date: "2024-01-02"}, {Date: "2024-01-03"}, {Date: "2024-01-04"}}
	_, err = merge(plan, []models.NormalizedSeries{shifted}, models.Daily)
	require.ErrorAs(t, err, &malformed)
}

func TestTrailingAndPreviousRange(t *testing.T) {
	r, err := TrailingRange(now, 7)
	require.NoError(t, err)
	require.Equal(t, "2024-05-25..2024-05-31", r.String())

	prev := PreviousRange(r)
	require.Equal(t, "2024-05-18..2024-05-24", prev.String())
	require.Equal(t, r.Days(), prev.Days())
}
