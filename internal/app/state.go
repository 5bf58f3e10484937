// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"sync"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/cache"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

const (
	// LoadingNotificationID is the fixed ID for loading notifications.
	LoadingNotificationID = "__loading__"

	maxNotifications = 10
)

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	CreatedAt time.Time
	ID        string
	Message   string
	Type      NotificationType
	Duration  time.Duration
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// Loadable resources.
const (
	ResourceInitial  = "initial"
	ResourceOverview = "overview"
	ResourceStats    = "stats"
)

// LoadingState tracks loading states for different resources.
type LoadingState struct {
	Initial  bool
	Overview bool
	Stats    bool
}

// Stats is the fetch log and cache view shown on the history and info tabs.
type Stats struct {
	RecentFetches []models.FetchRecord
	DailyStats    []models.DailyFetchStats
	Cache         cache.Stats
}

// State is shared between the root model and every tab.
type State struct {
	LastUpdated time.Time
	Overview    *models.Overview
	Stats       *Stats
	LastError   error

	Quota   models.QuotaSnapshot
	Loading LoadingState

	notifications   []Notification
	notificationSeq int
	mu              sync.RWMutex
}

// NewState returns a State waiting for its initial load.
func NewState() *State {
	return &State{
		notifications: make([]Notification, 0),
		Loading: LoadingState{
			Initial: true,
		},
	}
}

// SetLoading sets the loading state for a specific resource.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch resource {
	case ResourceInitial:
		s.Loading.Initial = loading
	case ResourceOverview:
		s.Loading.Overview = loading
	case ResourceStats:
		s.Loading.Stats = loading
	}
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Loading.Initial || s.Loading.Overview || s.Loading.Stats
}

// IsInitialLoading returns true if initial data is still loading.
func (s *State) IsInitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Loading.Initial
}

// GetLoadingResources returns a list of currently loading resources.
func (s *State) GetLoadingResources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resources []string
	if s.Loading.Initial {
		resources = append(resources, ResourceInitial)
	}
	if s.Loading.Overview {
		resources = append(resources, ResourceOverview)
	}
	if s.Loading.Stats {
		resources = append(resources, ResourceStats)
	}
	return resources
}

// SetOverview stores a freshly built overview and clears the last error.
func (s *State) SetOverview(ov *models.Overview) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Overview = ov
	s.LastError = nil
	s.LastUpdated = time.Now()
}

// GetOverview returns the latest overview, or nil before the first load.
func (s *State) GetOverview() *models.Overview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Overview
}

// SetError records the last refresh failure. The previous overview is kept.
func (s *State) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = err
}

// GetError returns the last refresh failure.
func (s *State) GetError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastError
}

// SetQuota updates the quota snapshot.
func (s *State) SetQuota(snap models.QuotaSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Quota = snap
}

// GetQuota returns the last quota snapshot.
func (s *State) GetQuota() models.QuotaSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Quota
}

// SetStats updates the statistics.
func (s *State) SetStats(stats Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stats = &stats
}

// GetStats returns the current statistics.
func (s *State) GetStats() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stats
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := time.Now().Format("20060102150405") + "-" + string(rune('A'+s.notificationSeq%26))

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	})

	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = s.activeLocked()
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked()
}

func (s *State) activeLocked() []Notification {
	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// ClearAllNotifications removes all notifications.
func (s *State) ClearAllNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = make([]Notification, 0)
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.RemoveNotification(LoadingNotificationID)
}

// GetLastUpdated returns the last time the overview was updated.
func (s *State) GetLastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastUpdated
}

// TimeSinceUpdate returns the duration since the last update.
func (s *State) TimeSinceUpdate() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.LastUpdated.IsZero() {
		return 0
	}
	return time.Since(s.LastUpdated)
}
