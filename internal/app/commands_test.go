package app

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/ga4-dashboard-tui/internal/cache"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services"
)

// stubServices is an in-memory Services.
type stubServices struct {
	overview   *models.Overview
	refreshErr error
	fetchErr   error
	events     chan services.ServiceEvent
	refreshes  int
}

func newStubServices() *stubServices {
	return &stubServices{
		overview: &models.Overview{Metadata: models.OverviewMetadata{PropertyID: "123", Days: 7}},
		events:   make(chan services.ServiceEvent, 4),
	}
}

func (s *stubServices) Refresh(context.Context) (*models.Overview, error) {
	s.refreshes++
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.overview, nil
}

func (s *stubServices) QuotaSnapshot() models.QuotaSnapshot {
	return models.QuotaSnapshot{MaxConcurrent: 10}
}

func (s *stubServices) CacheStats() cache.Stats {
	return cache.Stats{Hits: 2, Misses: 1}
}

func (s *stubServices) RecentFetches(int) ([]models.FetchRecord, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return []models.FetchRecord{{RunID: "run-1", Status: models.FetchStatusOK}}, nil
}

func (s *stubServices) DailyFetchStats(int) ([]models.DailyFetchStats, error) {
	return []models.DailyFetchStats{{Requests: 4}}, nil
}

func (s *stubServices) Subscribe() (chan services.ServiceEvent, tea.Cmd) {
	return s.events, services.WaitForEvent(s.events)
}

func TestCommands_Tick(t *testing.T) {
	cmds := NewCommands(nil)
	if cmds.Tick(time.Millisecond) == nil {
		t.Error("Tick returned nil")
	}
	if cmds.DefaultTick() == nil {
		t.Error("DefaultTick returned nil")
	}
}

func TestCommands_Notifications(t *testing.T) {
	cmds := NewCommands(nil)

	tests := []struct {
		fn   func(string) tea.Cmd
		name string
		want NotificationType
	}{
		{cmds.NotifySuccess, "Success", NotificationSuccess},
		{cmds.NotifyError, "Error", NotificationError},
		{cmds.NotifyWarning, "Warning", NotificationWarning},
		{cmds.NotifyInfo, "Info", NotificationInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.fn("msg")()

			addMsg, ok := msg.(AddNotificationMsg)
			if !ok {
				t.Fatalf("Expected AddNotificationMsg, got %T", msg)
			}
			if addMsg.Type != tt.want {
				t.Errorf("Type = %v, want %v", addMsg.Type, tt.want)
			}
			if addMsg.Message != "msg" {
				t.Errorf("Message = %q, want msg", addMsg.Message)
			}
			if addMsg.Duration <= 0 {
				t.Error("notifications should expire")
			}
		})
	}
}

func TestCommands_ClearNotification(t *testing.T) {
	cmds := NewCommands(nil)
	if cmds.ClearNotification("id", time.Millisecond) == nil {
		t.Error("ClearNotification returned nil")
	}
}

func TestCommands_LoadOverview(t *testing.T) {
	svc := newStubServices()
	msg := NewCommands(svc).LoadOverview()()

	loaded, ok := msg.(OverviewLoadedMsg)
	if !ok {
		t.Fatalf("Expected OverviewLoadedMsg, got %T", msg)
	}
	if loaded.Error != nil || loaded.Overview != svc.overview {
		t.Errorf("unexpected result %+v", loaded)
	}

	svc.refreshErr = errors.New("upstream down")
	loaded = NewCommands(svc).LoadOverview()().(OverviewLoadedMsg)
	if loaded.Error == nil {
		t.Error("refresh error should be carried")
	}
}

func TestCommands_LoadStats(t *testing.T) {
	svc := newStubServices()
	msg := NewCommands(svc).LoadStats()()

	loaded, ok := msg.(StatsLoadedMsg)
	if !ok {
		t.Fatalf("Expected StatsLoadedMsg, got %T", msg)
	}
	if loaded.Error != nil {
		t.Fatalf("unexpected error: %v", loaded.Error)
	}
	if loaded.Stats.Cache.Hits != 2 || len(loaded.Stats.RecentFetches) != 1 || len(loaded.Stats.DailyStats) != 1 {
		t.Errorf("stats = %+v", loaded.Stats)
	}

	svc.fetchErr = errors.New("db locked")
	loaded = NewCommands(svc).LoadStats()().(StatsLoadedMsg)
	if loaded.Error == nil {
		t.Error("fetch log error should be carried")
	}
}

func TestWaitForServiceEventCmd(t *testing.T) {
	ch := make(chan services.ServiceEvent, 1)
	ch <- services.CredentialsChangedEvent{}

	msg := waitForServiceEventCmd(ch)()
	if _, ok := msg.(ServiceEventMsg); !ok {
		t.Fatalf("Expected ServiceEventMsg, got %T", msg)
	}

	close(ch)
	if msg := waitForServiceEventCmd(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %T", msg)
	}
}
