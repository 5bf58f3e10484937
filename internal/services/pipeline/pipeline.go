// Package pipeline turns one logical metric request into governed, retried,
// cached upstream calls and a single merged series.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/ga4-dashboard-tui/internal/cache"
	"github.com/j-veylop/ga4-dashboard-tui/internal/clock"
	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/normalize"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/quota"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/ranges"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/retry"
)

// Metric sets of the canned fetches.
var (
	DailyUsersMetrics   = []string{"totalUsers", "activeUsers"}
	DailyRevenueMetrics = []string{"totalRevenue", "purchaseRevenue"}
)

// Transport runs one upstream report query.
type Transport interface {
	RunReport(ctx context.Context, q models.ReportQuery) (*models.RawResponse, error)
}

// Recorder persists one log entry per plan step.
type Recorder interface {
	InsertFetchRecord(rec *models.FetchRecord) error
}

// Observer is notified of finished steps and fetches.
type Observer interface {
	StepDone(outcome string, d time.Duration)
	FetchDone(outcome string)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithRecorder logs every step, e.g. to the fetch_log table.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithObserver registers a step observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithCacheTTL sets the TTL of stored results.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Pipeline) { p.cacheTTL = ttl }
}

// WithMaxSpanDays overrides ranges.MaxSpanDays.
func WithMaxSpanDays(days int) Option {
	return func(p *Pipeline) { p.maxSpanDays = days }
}

// Pipeline orchestrates fetches for one property.
type Pipeline struct {
	transport Transport
	governor  *quota.Governor
	executor  *retry.Executor
	cache     *cache.Store
	recorder  Recorder
	observer  Observer
	clock     clock.Clock

	propertyID  string
	maxSpanDays int
	cacheTTL    time.Duration
}

// New creates a pipeline for propertyID.
func New(propertyID string, transport Transport, governor *quota.Governor, executor *retry.Executor, store *cache.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		propertyID:  propertyID,
		transport:   transport,
		governor:    governor,
		executor:    executor,
		cache:       store,
		clock:       clock.Real{},
		maxSpanDays: ranges.MaxSpanDays,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PropertyID returns the default property.
func (p *Pipeline) PropertyID() string {
	return p.propertyID
}

// Fetch returns the complete series for metrics over [start, end]. The result
// is all-or-nothing: any fatal step error fails the fetch and nothing is cached.
func (p *Pipeline) Fetch(ctx context.Context, propertyID string, metrics, dimensions []string, start, end time.Time) (models.NormalizedSeries, error) {
	r, err := models.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}

	req := models.MetricRequest{
		PropertyID: propertyID,
		Metrics:    metrics,
		Dimensions: dimensions,
		Range:      r,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	plan, err := ranges.Split(r, p.maxSpanDays)
	if err != nil {
		return nil, err
	}

	dim, gran := req.Resolution(plan.Steps[0].Granularity)
	key := models.NewCacheKey(propertyID, metrics, []string{dim}, r, gran)

	series, err := p.cache.GetOrFetch(ctx, key, p.cacheTTL, func(ctx context.Context) (models.NormalizedSeries, error) {
		return p.execute(ctx, req, plan, dim, gran)
	})
	if p.observer != nil {
		p.observer.FetchDone(outcome(err))
	}
	if err != nil {
		return nil, err
	}
	return series, nil
}

// execute dispatches every step in parallel and merges the results in plan
// order. The first failure cancels the remaining steps.
func (p *Pipeline) execute(ctx context.Context, req models.MetricRequest, plan models.QueryPlan, dim string, gran models.Granularity) (models.NormalizedSeries, error) {
	runID := uuid.NewString()
	logger.Info("fetching series",
		"run", runID,
		"property", req.PropertyID,
		"range", plan.Range.String(),
		"steps", len(plan.Steps),
		"granularity", gran.String(),
	)

	results := make([]models.NormalizedSeries, len(plan.Steps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.governor.MaxConcurrent())

	for i, step := range plan.Steps {
		g.Go(func() error {
			s, err := p.runStep(gctx, runID, req, step.Range, dim, gran)
			if err != nil {
				return fmt.Errorf("step %d/%d (%s): %w", i+1, len(plan.Steps), step.Range, err)
			}
			results[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("fetch failed", "run", runID, "error", err)
		return nil, err
	}

	return merge(plan, results, gran)
}

// runStep fetches one sub-range. Each attempt is admitted separately so the
// concurrency slot is free while the executor backs off.
func (p *Pipeline) runStep(ctx context.Context, runID string, req models.MetricRequest, r models.DateRange, dim string, gran models.Granularity) (models.NormalizedSeries, error) {
	query := models.ReportQuery{
		PropertyID: req.PropertyID,
		Metrics:    req.Metrics,
		Dimensions: []string{dim},
		Range:      r,
	}
	cost := quota.EstimateCost(len(query.Metrics), len(query.Dimensions), ranges.ExpectedRows(r, gran))

	started := p.clock.Now()
	var charged bool
	raw, stats, err := p.executor.Execute(ctx, func(ctx context.Context) (*models.RawResponse, error) {
		res, err := p.governor.Admit(ctx, cost)
		if err != nil {
			return nil, err
		}
		resp, err := p.transport.RunReport(ctx, query)
		if err != nil {
			res.Cancel()
			return nil, err
		}
		res.Commit()
		charged = true
		return resp, nil
	})

	var series models.NormalizedSeries
	if err == nil {
		series, err = normalize.Normalize(raw, normalize.Options{
			Metrics:       req.Metrics,
			DateDimension: dim,
			Range:         r,
			Granularity:   gran,
		})
	}

	elapsed := p.clock.Now().Sub(started)
	p.record(runID, query, gran, cost, stats.Attempts, elapsed, len(series), charged, err)
	if p.observer != nil {
		p.observer.StepDone(outcome(err), elapsed)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("step done", "run", runID, "range", r.String(), "rows", len(series), "attempts", stats.Attempts)
	return series, nil
}

func (p *Pipeline) record(runID string, q models.ReportQuery, gran models.Granularity, cost, attempts int, elapsed time.Duration, rows int, charged bool, err error) {
	if p.recorder == nil {
		return
	}
	// Cancelled steps never reached upstream.
	if err != nil && ctxErr(err) {
		return
	}

	rec := &models.FetchRecord{
		Timestamp:       p.clock.Now(),
		RunID:           runID,
		PropertyID:      q.PropertyID,
		StartDate:       q.Range.Start.Format(models.DateLayout),
		EndDate:         q.Range.End.Format(models.DateLayout),
		Granularity:     gran.String(),
		Metrics:         strings.Join(q.Metrics, ","),
		EstimatedTokens: cost,
		Attempts:        attempts,
		DurationMs:      int(elapsed.Milliseconds()),
		Rows:            rows,
		Status:          models.FetchStatusOK,
		Charged:         charged,
	}
	if err != nil {
		rec.Status = models.FetchStatusFailed
		rec.Error = err.Error()
	}
	if err := p.recorder.InsertFetchRecord(rec); err != nil {
		logger.Warn("failed to record fetch", "run", runID, "error", err)
	}
}

// merge concatenates step results and checks that together they cover the
// plan exactly: every step starts at its own first bucket and has the
// expected number of rows, and dates strictly increase across the seams.
func merge(plan models.QueryPlan, results []models.NormalizedSeries, gran models.Granularity) (models.NormalizedSeries, error) {
	total := 0
	for _, s := range results {
		total += len(s)
	}

	merged := make(models.NormalizedSeries, 0, total)
	for i, step := range plan.Steps {
		s := results[i]
		want := ranges.ExpectedRows(step.Range, gran)
		if len(s) != want {
			return nil, &models.MalformedResponseError{
				Row:    -1,
				Reason: fmt.Sprintf("step %s produced %d rows, want %d", step.Range, len(s), want),
			}
		}
		if first := step.Range.Start.Format(models.DateLayout); len(s) > 0 && s[0].Date != first {
			return nil, &models.MalformedResponseError{
				Row:    -1,
				Reason: fmt.Sprintf("step %s starts at %s, want %s", step.Range, s[0].Date, first),
			}
		}
		merged = append(merged, s...)
	}

	if err := merged.Validate(); err != nil {
		return nil, &models.MalformedResponseError{Row: -1, Reason: err.Error()}
	}
	return merged, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if ctxErr(err) {
		return "canceled"
	}
	return "failed"
}
