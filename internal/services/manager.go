// Package services wires the pipeline and its stores together for the CLI,
// the TUI and the HTTP API.
package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/ga4-dashboard-tui/internal/cache"
	"github.com/j-veylop/ga4-dashboard-tui/internal/clock"
	"github.com/j-veylop/ga4-dashboard-tui/internal/config"
	"github.com/j-veylop/ga4-dashboard-tui/internal/db"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ga4"
	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/metrics"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/pipeline"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/quota"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/report"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/retry"
)

const (
	maintenanceInterval = 10 * time.Minute
	fetchLogRetention   = 90 // days
	vacuumThreshold     = 1000
	httpTimeout         = 60 * time.Second
)

type (
	// OverviewUpdatedEvent is emitted when a dashboard refresh completes.
	OverviewUpdatedEvent struct {
		Overview *models.Overview
	}

	// QuotaUpdatedEvent is emitted after every upstream step.
	QuotaUpdatedEvent struct {
		Snapshot models.QuotaSnapshot
	}

	// CredentialsChangedEvent is emitted when the credentials file is reloaded.
	CredentialsChangedEvent struct{}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (OverviewUpdatedEvent) isServiceEvent()    {}
func (QuotaUpdatedEvent) isServiceEvent()       {}
func (CredentialsChangedEvent) isServiceEvent() {}
func (ErrorEvent) isServiceEvent()              {}

// Notifier shows a desktop notification.
type Notifier func(title, message string) error

// Option configures a Manager.
type Option func(*Manager)

// WithTransport replaces the Data API client, e.g. with a fake in tests.
func WithTransport(t pipeline.Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithNotifier replaces the desktop notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notify = n }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager owns every long-lived component and routes events to the UI.
type Manager struct {
	clock     clock.Clock
	cfg       *config.Config
	database  *db.DB
	backend   cache.Backend
	store     *cache.Store
	governor  *quota.Governor
	transport pipeline.Transport
	pipeline  *pipeline.Pipeline
	metrics   *metrics.Metrics
	tokens    *ga4.TokenSource
	creds     *ga4.FileCredentials
	notify    Notifier

	eventChan   chan ServiceEvent
	stopChan    chan struct{}
	subscribers []chan<- ServiceEvent
	alerts      *quotaAlerts
	wg          sync.WaitGroup
	stopOnce    sync.Once
	mu          sync.RWMutex
}

// NewManager builds the whole stack from cfg.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:       cfg,
		clock:     clock.Real{},
		notify:    desktopNotify,
		metrics:   metrics.New(),
		eventChan: make(chan ServiceEvent, 100),
		stopChan:  make(chan struct{}),
		alerts:    newQuotaAlerts(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !cfg.NotifyEnabled {
		m.notify = nil
	}

	var err error
	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m.backend, err = newBackend(context.Background(), cfg, m.database)
	if err != nil {
		_ = m.database.Close()
		return nil, err
	}
	m.store = cache.New(m.backend,
		cache.WithClock(m.clock),
		cache.WithDefaultTTL(cfg.CacheTTL),
		cache.WithObserver(m.metrics),
	)

	if m.transport == nil {
		if err := m.initClient(); err != nil {
			_ = m.store.Close()
			_ = m.database.Close()
			return nil, err
		}
	}

	m.governor = quota.NewGovernor(quota.Limits{
		MaxDailyRequests: cfg.QuotaDailyRequests,
		MaxDailyTokens:   cfg.QuotaDailyTokens,
		MaxMinuteTokens:  cfg.QuotaMinuteTokens,
		MaxConcurrent:    cfg.QuotaMaxConcurrent,
	}, quota.WithClock(m.clock), quota.WithObserver(m.metrics))
	m.seedQuota()

	executor := retry.New(retry.Policy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		BaseDelay:    cfg.RetryBaseDelay,
		MaxTotalWait: cfg.RetryMaxWait,
	}, m.metrics)

	m.pipeline = pipeline.New(cfg.PropertyID, m.transport, m.governor, executor, m.store,
		pipeline.WithClock(m.clock),
		pipeline.WithRecorder(m.database),
		pipeline.WithObserver(m),
		pipeline.WithCacheTTL(cfg.CacheTTL),
	)

	m.wg.Add(1)
	go m.maintenanceLoop()

	return m, nil
}

func (m *Manager) initClient() error {
	var provider ga4.CredentialsProvider
	if m.cfg.HasInlineCredentials() {
		provider = ga4.StaticCredentials{
			ClientID:     m.cfg.ClientID,
			ClientSecret: m.cfg.ClientSecret,
			RefreshToken: m.cfg.RefreshToken,
		}
	} else {
		fc, err := ga4.NewFileCredentials(m.cfg.CredentialsPath, m.onCredentialsChanged)
		if err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
		m.creds = fc
		provider = fc
	}

	hc := &http.Client{Timeout: httpTimeout}
	m.tokens = ga4.NewTokenSource(provider, hc)
	m.transport = ga4.NewClient(m.tokens, ga4.WithHTTPClient(hc))
	return nil
}

func (m *Manager) onCredentialsChanged() {
	logger.Info("credentials reloaded", "path", m.cfg.CredentialsPath)
	if m.tokens != nil {
		m.tokens.Invalidate()
	}
	m.broadcast(CredentialsChangedEvent{})
}

// newBackend opens the configured cache backend.
func newBackend(ctx context.Context, cfg *config.Config, database *db.DB) (cache.Backend, error) {
	switch cfg.CacheBackend {
	case config.CacheMemory:
		return cache.NewMemoryBackend(), nil
	case config.CacheBadger:
		b, err := cache.NewBadgerBackend(cache.BadgerConfig{Path: cfg.BadgerPath})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger cache: %w", err)
		}
		return b, nil
	case config.CacheRedis:
		b, err := cache.NewRedisBackend(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
		}
		return b, nil
	default:
		return cache.NewSQLiteBackend(database), nil
	}
}

// seedQuota restores today's consumption from the fetch log so a restart
// does not reset the daily budget.
func (m *Manager) seedQuota() {
	usage, err := m.database.GetDailyUsage(m.clock.Now().UTC())
	if err != nil {
		logger.Warn("failed to load daily usage", "error", err)
		return
	}
	m.governor.Seed(usage)
	snap := m.governor.Snapshot()
	m.metrics.SetQuotaUsage(snap.DailyRequests, snap.DailyTokens)
	if usage.Requests > 0 {
		logger.Info("restored daily quota usage", "requests", usage.Requests, "tokens", usage.Tokens)
	}
}

// StepDone implements pipeline.Observer.
func (m *Manager) StepDone(outcome string, d time.Duration) {
	m.metrics.StepDone(outcome, d)

	snap := m.governor.Snapshot()
	m.metrics.SetQuotaUsage(snap.DailyRequests, snap.DailyTokens)
	m.broadcast(QuotaUpdatedEvent{Snapshot: snap})
	m.checkQuotaAlerts(snap)
}

// FetchDone implements pipeline.Observer.
func (m *Manager) FetchDone(outcome string) {
	m.metrics.FetchDone(outcome)
}

// PropertyID returns the configured property.
func (m *Manager) PropertyID() string {
	return m.cfg.PropertyID
}

// Fetch runs the pipeline for an arbitrary request.
func (m *Manager) Fetch(ctx context.Context, propertyID string, metricNames, dimensions []string, start, end time.Time) (models.NormalizedSeries, error) {
	return m.pipeline.Fetch(ctx, propertyID, metricNames, dimensions, start, end)
}

// FetchDailyUsers returns total and active users for the last days days.
func (m *Manager) FetchDailyUsers(ctx context.Context, days int) (models.NormalizedSeries, error) {
	return m.pipeline.FetchDailyUsers(ctx, days)
}

// FetchDailyRevenue returns total and purchase revenue for the last days days.
func (m *Manager) FetchDailyRevenue(ctx context.Context, days int) (models.NormalizedSeries, error) {
	return m.pipeline.FetchDailyRevenue(ctx, days)
}

// Overview fetches the current and previous period concurrently and builds
// the dashboard payload. The previous period only feeds the deltas, so its
// failure degrades to empty series instead of failing the overview.
func (m *Manager) Overview(ctx context.Context, days int) (*models.Overview, error) {
	now := m.clock.Now()
	current, err := pipeline.TrailingRange(now, days)
	if err != nil {
		return nil, err
	}
	previous := pipeline.PreviousRange(current)

	cur := report.Period{Range: current}
	prev := report.Period{Range: previous}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := m.pipeline.FetchDailyUsers(gctx, days)
		if err != nil {
			return fmt.Errorf("daily users: %w", err)
		}
		cur.Users = s
		return nil
	})
	g.Go(func() error {
		s, err := m.pipeline.FetchDailyRevenue(gctx, days)
		if err != nil {
			return fmt.Errorf("daily revenue: %w", err)
		}
		cur.Revenue = s
		return nil
	})
	g.Go(func() error {
		prev.Users = m.fetchPrevious(gctx, pipeline.DailyUsersMetrics, previous)
		return nil
	})
	g.Go(func() error {
		prev.Revenue = m.fetchPrevious(gctx, pipeline.DailyRevenueMetrics, previous)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ov := report.BuildOverview(m.cfg.PropertyID, now, cur, prev)
	return &ov, nil
}

func (m *Manager) fetchPrevious(ctx context.Context, metricNames []string, r models.DateRange) models.NormalizedSeries {
	s, err := m.pipeline.Fetch(ctx, m.cfg.PropertyID, metricNames, []string{models.DimensionDate}, r.Start, r.End)
	if err != nil {
		logger.Warn("previous period unavailable", "range", r.String(), "metrics", metricNames, "error", err)
		return nil
	}
	return s
}

// Refresh rebuilds the overview for the configured window and broadcasts the
// result.
func (m *Manager) Refresh(ctx context.Context) (*models.Overview, error) {
	ov, err := m.Overview(ctx, m.cfg.DateRangeDays)
	if err != nil {
		logger.Error("refresh failed", "error", err)
		m.broadcast(ErrorEvent{Service: "pipeline", Error: err})
		if models.Classify(err) == models.Fatal && ctx.Err() == nil {
			m.sendNotification("GA4 fetch failed", err.Error())
		}
		return nil, err
	}
	m.broadcast(OverviewUpdatedEvent{Overview: ov})
	return ov, nil
}

// StartAutoRefresh refreshes every interval until Close.
func (m *Manager) StartAutoRefresh(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				_, _ = m.Refresh(ctx)
				cancel()
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *Manager) maintenanceLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.runMaintenance(context.Background())
		case <-m.stopChan:
			return
		}
	}
}

// runMaintenance drops expired cache entries and old fetch log rows.
func (m *Manager) runMaintenance(ctx context.Context) {
	switch b := m.backend.(type) {
	case *cache.MemoryBackend:
		if n := b.Sweep(m.clock.Now()); n > 0 {
			logger.Debug("swept cache", "entries", n)
		}
	case *cache.SQLiteBackend:
		if n, err := b.Purge(ctx, m.clock.Now()); err != nil {
			logger.Warn("failed to purge cache", "error", err)
		} else if n > 0 {
			logger.Debug("purged cache", "entries", n)
		}
	case *cache.BadgerBackend:
		if err := b.RunGC(); err != nil {
			logger.Warn("badger value log gc failed", "error", err)
		}
	}

	if n, err := m.database.CleanupOldFetches(fetchLogRetention); err != nil {
		logger.Warn("failed to clean fetch log", "error", err)
	} else if n > 0 {
		logger.Info("cleaned fetch log", "rows", n)
		if n >= vacuumThreshold {
			if err := m.database.Vacuum(); err != nil {
				logger.Warn("failed to vacuum database", "error", err)
			}
		}
	}
}

// QuotaSnapshot returns the governor state.
func (m *Manager) QuotaSnapshot() models.QuotaSnapshot {
	return m.governor.Snapshot()
}

// CacheStats returns the cache counters.
func (m *Manager) CacheStats() cache.Stats {
	return m.store.Stats()
}

// RecentFetches returns the latest logged sub-requests.
func (m *Manager) RecentFetches(limit int) ([]models.FetchRecord, error) {
	return m.database.GetRecentFetches(limit)
}

// DailyFetchStats aggregates the fetch log per day.
func (m *Manager) DailyFetchStats(days int) ([]models.DailyFetchStats, error) {
	return m.database.GetDailyFetchStats(days)
}

// Metrics returns the Prometheus collectors.
func (m *Manager) Metrics() *metrics.Metrics {
	return m.metrics
}

// Database returns the database instance for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Cache returns the series cache.
func (m *Manager) Cache() *cache.Store {
	return m.store
}

// Config returns the configuration the manager was built from.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	// Send to main event channel
	select {
	case m.eventChan <- event:
	default:
	}

	// Send to subscribers
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close stops background work and releases every store.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()

	m.mu.Lock()
	for _, sub := range m.subscribers {
		close(sub)
	}
	m.subscribers = nil
	m.mu.Unlock()

	var errs []error

	if m.creds != nil {
		if err := m.creds.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}

	if m.database != nil {
		if err := m.database.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
