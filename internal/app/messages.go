package app

import (
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// OverviewLoadedMsg carries the result of a dashboard refresh.
type OverviewLoadedMsg struct {
	Overview *models.Overview
	Error    error
}

// StatsLoadedMsg contains loaded statistics.
type StatsLoadedMsg struct {
	Stats Stats
	Error error
}

// QuotaUpdatedMsg carries a governor snapshot.
type QuotaUpdatedMsg struct {
	Snapshot models.QuotaSnapshot
}

// RefreshMsg requests a refresh of data.
type RefreshMsg struct {
	Resource string // "all", "overview", "stats"
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Message  string
	Type     NotificationType
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ClearExpiredNotificationsMsg triggers clearing of expired notifications.
type ClearExpiredNotificationsMsg struct{}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// ToggleHelpMsg toggles the help display.
type ToggleHelpMsg struct{}
