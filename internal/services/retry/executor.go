// Package retry runs a single upstream call with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// JitterFactor is the ±share of each delay randomized to spread retries.
const JitterFactor = 0.2

// Policy configures retries. Delay before retry n (0-indexed) is
// BaseDelay * 2^n plus jitter.
type Policy struct {
	// Jitter returns the offset added to a delay. Defaults to ±JitterFactor.
	Jitter func(d time.Duration) time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep        func(ctx context.Context, d time.Duration) error
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxTotalWait time.Duration
}

// DefaultPolicy returns five attempts starting at one second, at most two
// minutes of total waiting.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		MaxTotalWait: 2 * time.Minute,
	}
}

// Call performs one sub-request.
type Call func(ctx context.Context) (*models.RawResponse, error)

// Stats describes what an execution did.
type Stats struct {
	Delays   []time.Duration
	Attempts int
	Waited   time.Duration
}

// Observer is notified before every retry.
type Observer interface {
	Retry(attempt int, err error)
}

// Executor applies a Policy to calls.
type Executor struct {
	observer Observer
	policy   Policy
}

// New creates an executor, filling unset policy fields from DefaultPolicy.
func New(policy Policy, observer Observer) *Executor {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxTotalWait <= 0 {
		policy.MaxTotalWait = def.MaxTotalWait
	}
	if policy.Jitter == nil {
		policy.Jitter = proportionalJitter
	}
	if policy.Sleep == nil {
		policy.Sleep = sleep
	}
	return &Executor{policy: policy, observer: observer}
}

// Policy returns the effective policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs call until it succeeds, fails fatally or the retry budget is spent.
func (e *Executor) Execute(ctx context.Context, call Call) (*models.RawResponse, Stats, error) {
	var stats Stats

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		stats.Attempts++
		resp, err := call(ctx)
		if err == nil {
			return resp, stats, nil
		}

		if models.Classify(err) == models.Fatal {
			return nil, stats, err
		}

		if stats.Attempts >= e.policy.MaxAttempts {
			return nil, stats, &models.RetriesExhaustedError{Attempts: stats.Attempts, Last: err}
		}

		delay := e.Delay(attempt, err)
		if stats.Waited+delay > e.policy.MaxTotalWait {
			logger.Warn("retry wait budget spent", "attempts", stats.Attempts, "waited", stats.Waited, "next", delay)
			return nil, stats, &models.RetriesExhaustedError{Attempts: stats.Attempts, Last: err}
		}

		logger.Info("retrying upstream call", "attempt", stats.Attempts, "delay", delay, "error", err)
		if e.observer != nil {
			e.observer.Retry(stats.Attempts, err)
		}

		if err := e.policy.Sleep(ctx, delay); err != nil {
			return nil, stats, err
		}
		stats.Delays = append(stats.Delays, delay)
		stats.Waited += delay
	}
}

// Delay computes the wait before retry attempt (0-indexed), honoring an
// upstream Retry-After hint when it asks for longer.
func (e *Executor) Delay(attempt int, err error) time.Duration {
	base := e.policy.BaseDelay << attempt
	d := base + e.policy.Jitter(base)
	if d < 0 {
		d = 0
	}

	var rl *models.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > d {
		d = rl.RetryAfter
	}
	return d
}

// proportionalJitter returns a random offset within ±JitterFactor of d. The
// spread is small enough that consecutive delays keep increasing.
func proportionalJitter(d time.Duration) time.Duration {
	spread := float64(d) * JitterFactor
	return time.Duration((rand.Float64()*2 - 1) * spread)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
