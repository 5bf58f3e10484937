package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/ga4-dashboard-tui/internal/cache"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = 2 * time.Second

	// DefaultNotificationDuration is the default duration for notifications.
	DefaultNotificationDuration = 5 * time.Second

	// QuickNotificationDuration is for brief notifications.
	QuickNotificationDuration = 3 * time.Second

	// LongNotificationDuration is for important notifications.
	LongNotificationDuration = 10 * time.Second

	refreshTimeout   = 2 * time.Minute
	recentFetchLimit = 50
	statsDays        = 30
)

// Services is what the TUI needs from the service manager.
type Services interface {
	Refresh(ctx context.Context) (*models.Overview, error)
	QuotaSnapshot() models.QuotaSnapshot
	CacheStats() cache.Stats
	RecentFetches(limit int) ([]models.FetchRecord, error)
	DailyFetchStats(days int) ([]models.DailyFetchStats, error)
	Subscribe() (chan services.ServiceEvent, tea.Cmd)
}

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// defaultTickCmd returns a command that sends a TickMsg after the default interval.
func defaultTickCmd() tea.Cmd {
	return tickCmd(DefaultTickInterval)
}

// loadInitialData returns a command that loads all initial data.
func loadInitialData(svc Services) tea.Cmd {
	return tea.Batch(
		loadOverviewCmd(svc),
		loadStatsCmd(svc),
	)
}

// loadOverviewCmd refreshes the dashboard through the pipeline.
func loadOverviewCmd(svc Services) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		ov, err := svc.Refresh(ctx)
		return OverviewLoadedMsg{Overview: ov, Error: err}
	}
}

// loadStatsCmd returns a command that loads the fetch log and cache counters.
func loadStatsCmd(svc Services) tea.Cmd {
	return func() tea.Msg {
		stats := Stats{Cache: svc.CacheStats()}

		recent, err := svc.RecentFetches(recentFetchLimit)
		if err != nil {
			return StatsLoadedMsg{Stats: stats, Error: err}
		}
		stats.RecentFetches = recent

		daily, err := svc.DailyFetchStats(statsDays)
		if err != nil {
			return StatsLoadedMsg{Stats: stats, Error: err}
		}
		stats.DailyStats = daily

		return StatsLoadedMsg{Stats: stats}
	}
}

// loadQuotaCmd returns the current governor snapshot.
func loadQuotaCmd(svc Services) tea.Cmd {
	return func() tea.Msg {
		return QuotaUpdatedMsg{Snapshot: svc.QuotaSnapshot()}
	}
}

// subscribeToServicesCmd returns a command that subscribes to service events.
func subscribeToServicesCmd(svc Services) tea.Cmd {
	ch, _ := svc.Subscribe()
	return func() tea.Msg {
		return SubscriptionEventMsg{Channel: ch}
	}
}

// waitForServiceEventCmd returns a command that waits for the next service event.
func waitForServiceEventCmd(ch <-chan services.ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return ServiceEventMsg{Event: event}
	}
}

// clearNotificationCmd returns a command that removes a notification after a delay.
func clearNotificationCmd(id string, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

func notifyCmd(t NotificationType, message string, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{Type: t, Message: message, Duration: d}
	}
}

// notifySuccessCmd returns a command that adds a success notification.
func notifySuccessCmd(message string) tea.Cmd {
	return notifyCmd(NotificationSuccess, message, QuickNotificationDuration)
}

// notifyErrorCmd returns a command that adds an error notification.
func notifyErrorCmd(message string) tea.Cmd {
	return notifyCmd(NotificationError, message, LongNotificationDuration)
}

// notifyWarningCmd returns a command that adds a warning notification.
func notifyWarningCmd(message string) tea.Cmd {
	return notifyCmd(NotificationWarning, message, DefaultNotificationDuration)
}

// notifyInfoCmd returns a command that adds an info notification.
func notifyInfoCmd(message string) tea.Cmd {
	return notifyCmd(NotificationInfo, message, QuickNotificationDuration)
}

// Commands provides a public interface to the command functions.
type Commands struct {
	services Services
}

// NewCommands creates a new Commands instance.
func NewCommands(svc Services) *Commands {
	return &Commands{services: svc}
}

// Tick returns a tick command with the specified interval.
func (c *Commands) Tick(interval time.Duration) tea.Cmd {
	return tickCmd(interval)
}

// DefaultTick returns a tick command with the default interval.
func (c *Commands) DefaultTick() tea.Cmd {
	return defaultTickCmd()
}

// LoadOverview returns a command that refreshes the dashboard.
func (c *Commands) LoadOverview() tea.Cmd {
	return loadOverviewCmd(c.services)
}

// LoadStats returns a command that loads statistics.
func (c *Commands) LoadStats() tea.Cmd {
	return loadStatsCmd(c.services)
}

// NotifySuccess returns a command that adds a success notification.
func (c *Commands) NotifySuccess(message string) tea.Cmd {
	return notifySuccessCmd(message)
}

// NotifyError returns a command that adds an error notification.
func (c *Commands) NotifyError(message string) tea.Cmd {
	return notifyErrorCmd(message)
}

// NotifyWarning returns a command that adds a warning notification.
func (c *Commands) NotifyWarning(message string) tea.Cmd {
	return notifyWarningCmd(message)
}

// NotifyInfo returns a command that adds an info notification.
func (c *Commands) NotifyInfo(message string) tea.Cmd {
	return notifyInfoCmd(message)
}

// ClearNotification returns a command that removes a notification after a delay.
func (c *Commands) ClearNotification(id string, delay time.Duration) tea.Cmd {
	return clearNotificationCmd(id, delay)
}
