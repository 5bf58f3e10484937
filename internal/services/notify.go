package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// quotaThresholds are the daily usage percentages that trigger a warning.
var quotaThresholds = []float64{80, 95}

func desktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// quotaAlerts remembers the highest threshold already announced today.
type quotaAlerts struct {
	day       time.Time
	announced float64
	mu        sync.Mutex
}

func newQuotaAlerts() *quotaAlerts {
	return &quotaAlerts{}
}

// crossed returns the threshold usage has just climbed past, or 0.
func (a *quotaAlerts) crossed(day time.Time, percent float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.day.Equal(day) {
		a.day = day
		a.announced = 0
	}

	var hit float64
	for _, t := range quotaThresholds {
		if percent >= t && t > a.announced {
			hit = t
		}
	}
	if hit > 0 {
		a.announced = hit
	}
	return hit
}

func (m *Manager) checkQuotaAlerts(snap models.QuotaSnapshot) {
	percent := max(snap.DailyTokenPercent(), snap.DailyRequestPercent())
	threshold := m.alerts.crossed(snap.Day, percent)
	if threshold == 0 {
		return
	}

	logger.Warn("daily quota threshold crossed", "threshold", threshold, "percent", percent)
	m.sendNotification(
		fmt.Sprintf("GA4 quota above %.0f%%", threshold),
		fmt.Sprintf("Daily usage is at %.1f%% (%d requests, %d tokens)", percent, snap.DailyRequests, snap.DailyTokens),
	)
}

func (m *Manager) sendNotification(title, message string) {
	if m.notify == nil {
		return
	}
	if err := m.notify(title, message); err != nil {
		logger.Debug("notification failed", "error", err)
	}
}
