// Package quota tracks the Data API request and token budgets and admits
// sub-requests against them.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/clock"
	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// TokensPerUnit approximates the upstream token charge per metric, dimension
// and returned row. Upstream does not report real usage, so this is tunable.
const TokensPerUnit = 10

const minuteWindow = time.Minute

// Limits holds the per-property budgets.
type Limits struct {
	MaxDailyRequests int
	MaxDailyTokens   int
	MaxMinuteTokens  int
	MaxConcurrent    int
}

// DefaultLimits returns the standard property quotas.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyRequests: 25_000,
		MaxDailyTokens:   1_000_000,
		MaxMinuteTokens:  10_000,
		MaxConcurrent:    10,
	}
}

// EstimateCost returns the token estimate for one sub-request.
func EstimateCost(metrics, dimensions, expectedRows int) int {
	return (metrics + dimensions + expectedRows) * TokensPerUnit
}

// Observer is notified when a caller has to wait for capacity.
type Observer interface {
	QuotaWait(reason string)
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithObserver registers a wait observer.
func WithObserver(o Observer) Option {
	return func(g *Governor) { g.observer = o }
}

// Governor admits sub-requests against the shared quota state.
// All counters are guarded by mu; waiting never happens while holding it.
type Governor struct {
	clock    clock.Clock
	observer Observer
	released chan struct{}
	state    models.QuotaState
	limits   Limits

	reservedTokens   int
	reservedRequests int
	inFlight         int

	mu sync.Mutex
}

// NewGovernor creates a governor. Zero-valued limits fall back to the defaults.
func NewGovernor(limits Limits, opts ...Option) *Governor {
	def := DefaultLimits()
	if limits.MaxDailyRequests <= 0 {
		limits.MaxDailyRequests = def.MaxDailyRequests
	}
	if limits.MaxDailyTokens <= 0 {
		limits.MaxDailyTokens = def.MaxDailyTokens
	}
	if limits.MaxMinuteTokens <= 0 {
		limits.MaxMinuteTokens = def.MaxMinuteTokens
	}
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = def.MaxConcurrent
	}

	g := &Governor{
		clock:    clock.Real{},
		limits:   limits,
		released: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	now := g.clock.Now()
	g.state.Day = models.TruncateDay(now.UTC())
	g.state.WindowStart = now
	return g
}

// Limits returns the configured budgets.
func (g *Governor) Limits() Limits {
	return g.limits
}

// MaxConcurrent returns the concurrency budget, used to size worker pools.
func (g *Governor) MaxConcurrent() int {
	return g.limits.MaxConcurrent
}

// Admit blocks until cost tokens can be spent within the minute and
// concurrency budgets, or fails at once when the daily budget cannot cover it.
func (g *Governor) Admit(ctx context.Context, cost int) (*Reservation, error) {
	for {
		g.mu.Lock()
		now := g.clock.Now()
		g.rollLocked(now)

		if err := g.checkDailyLocked(cost); err != nil {
			g.mu.Unlock()
			return nil, err
		}

		reason, wait := g.capacityLocked(now, cost)
		if reason == "" {
			g.inFlight++
			g.reservedTokens += cost
			g.reservedRequests++
			g.mu.Unlock()
			return &Reservation{g: g, cost: cost}, nil
		}
		released := g.released
		g.mu.Unlock()

		logger.Debug("quota wait", "reason", reason, "cost", cost, "wait", wait)
		if g.observer != nil {
			g.observer.QuotaWait(reason)
		}

		var timer <-chan time.Time
		if wait > 0 {
			timer = g.clock.After(wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-released:
		case <-timer:
		}
	}
}

// checkDailyLocked rejects requests no amount of waiting can admit today.
func (g *Governor) checkDailyLocked(cost int) error {
	remainingRequests := g.limits.MaxDailyRequests - g.state.DailyRequests - g.reservedRequests
	remainingTokens := g.limits.MaxDailyTokens - g.state.DailyTokens - g.reservedTokens

	switch {
	case remainingRequests <= 0:
		return &models.QuotaExceededError{
			Reason:            "daily request limit reached",
			RemainingRequests: max(remainingRequests, 0),
			RemainingTokens:   max(remainingTokens, 0),
			RequestedTokens:   cost,
		}
	case cost > remainingTokens:
		return &models.QuotaExceededError{
			Reason:            "daily token budget exhausted",
			RemainingRequests: remainingRequests,
			RemainingTokens:   max(remainingTokens, 0),
			RequestedTokens:   cost,
		}
	case cost > g.limits.MaxMinuteTokens:
		return &models.QuotaExceededError{
			Reason:            "request exceeds the per-minute token budget",
			RemainingRequests: remainingRequests,
			RemainingTokens:   remainingTokens,
			RequestedTokens:   cost,
		}
	}
	return nil
}

// capacityLocked returns a non-empty reason when the caller must wait, and how
// long until the minute window rolls over (zero when only a release helps).
func (g *Governor) capacityLocked(now time.Time, cost int) (string, time.Duration) {
	if g.inFlight >= g.limits.MaxConcurrent {
		return "concurrency", 0
	}
	if g.state.MinuteTokens+g.reservedTokens+cost > g.limits.MaxMinuteTokens {
		wait := g.state.WindowStart.Add(minuteWindow).Sub(now)
		if wait <= 0 {
			wait = time.Millisecond
		}
		return "minute tokens", wait
	}
	return "", 0
}

// rollLocked resets the daily counters on UTC day change and the minute
// counter once its window is a minute old.
func (g *Governor) rollLocked(now time.Time) {
	today := models.TruncateDay(now.UTC())
	if !today.Equal(g.state.Day) {
		g.state.Day = today
		g.state.DailyRequests = 0
		g.state.DailyTokens = 0
	}
	if now.Sub(g.state.WindowStart) >= minuteWindow {
		g.state.WindowStart = now
		g.state.MinuteTokens = 0
	}
}

func (g *Governor) release(cost int, spent bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollLocked(g.clock.Now())
	g.inFlight--
	g.reservedTokens -= cost
	g.reservedRequests--
	if spent {
		g.state.DailyRequests++
		g.state.DailyTokens += cost
		g.state.MinuteTokens += cost
	}

	close(g.released)
	g.released = make(chan struct{})
}

// Seed restores usage already spent today, e.g. from the fetch log.
func (g *Governor) Seed(usage models.DailyUsage) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollLocked(g.clock.Now())
	if !models.TruncateDay(usage.Day).Equal(g.state.Day) {
		return
	}
	g.state.DailyRequests = usage.Requests
	g.state.DailyTokens = usage.Tokens
}

// Snapshot returns a copy of the current state.
func (g *Governor) Snapshot() models.QuotaSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollLocked(g.clock.Now())
	return models.QuotaSnapshot{
		QuotaState:      g.state,
		InFlight:        g.inFlight,
		ReservedTokens:  g.reservedTokens,
		MaxRequests:     g.limits.MaxDailyRequests,
		MaxDailyTokens:  g.limits.MaxDailyTokens,
		MaxMinuteTokens: g.limits.MaxMinuteTokens,
		MaxConcurrent:   g.limits.MaxConcurrent,
	}
}

// Reservation holds admitted capacity until the sub-request finishes.
type Reservation struct {
	g    *Governor
	cost int
	once sync.Once
}

// Cost returns the reserved token estimate.
func (r *Reservation) Cost() int {
	return r.cost
}

// Commit charges the estimate after a successful call.
func (r *Reservation) Commit() {
	r.once.Do(func() { r.g.release(r.cost, true) })
}

// Cancel frees the reservation without charging it.
func (r *Reservation) Cancel() {
	r.once.Do(func() { r.g.release(r.cost, false) })
}
