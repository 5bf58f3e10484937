package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil)
	if model == nil {
		t.Fatal("NewModel returned nil")
	}
	if model.state == nil {
		t.Error("State should be initialized")
	}
	if model.activeTab != TabDashboard {
		t.Error("Default tab should be Dashboard")
	}
	if len(model.tabs) != 3 {
		t.Errorf("Should have 3 tabs placeholder, got %d", len(model.tabs))
	}
}

func TestModel_Init(t *testing.T) {
	if NewModel(nil).Init() == nil {
		t.Error("Init returned nil command")
	}

	model := NewModel(newStubServices())
	if model.Init() == nil {
		t.Error("Init returned nil command")
	}
	if model.state.GetQuota().MaxConcurrent != 10 {
		t.Error("Init should seed the quota snapshot")
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	model := NewModel(nil)

	newModel, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 50})

	m, ok := newModel.(*Model)
	if !ok {
		t.Fatal("Update returned wrong model type")
	}
	if m.width != 100 || m.height != 50 {
		t.Errorf("size = %dx%d, want 100x50", m.width, m.height)
	}
	if !m.ready {
		t.Error("Model should be ready after WindowSizeMsg")
	}
}

func TestModel_Update_TabSwitch(t *testing.T) {
	model := NewModel(nil)
	model.ready = true
	model.width = 100
	model.height = 50

	model.Update(TabSwitchMsg{Tab: TabHistory})
	if model.activeTab != TabHistory {
		t.Errorf("ActiveTab = %v, want History", model.activeTab)
	}

	cmd := model.handleKeyMsg(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'3'}})
	if cmd == nil {
		t.Fatal("Key '3' should return a command")
	}
	if msg, ok := cmd().(TabSwitchMsg); !ok || msg.Tab != TabInfo {
		t.Errorf("Key '3' produced %#v", msg)
	}

	cmd = model.handleKeyMsg(tea.KeyMsg{Type: tea.KeyTab})
	if msg, ok := cmd().(TabSwitchMsg); !ok || msg.Tab != TabInfo {
		t.Errorf("tab from History produced %#v", msg)
	}
}

func TestModel_Update_Tick(t *testing.T) {
	_, cmd := NewModel(nil).Update(TickMsg{Time: time.Now()})
	if cmd == nil {
		t.Error("TickMsg should return a command (next tick)")
	}
}

func TestModel_View(t *testing.T) {
	model := NewModel(nil)

	if !strings.Contains(model.View(), "Loading...") {
		t.Error("View should show Loading when not ready")
	}

	model.ready = true
	model.width = 80
	model.height = 24

	view := model.View()
	if !strings.Contains(view, "Dashboard") {
		t.Error("View should show Dashboard tab")
	}
	if !strings.Contains(view, "not yet implemented") {
		t.Error("View should show placeholder text")
	}
}

func TestModel_Help(t *testing.T) {
	model := NewModel(nil)
	model.ready = true
	model.width = 80
	model.height = 24

	model.Update(ToggleHelpMsg{})
	if !model.showHelp {
		t.Error("showHelp should be true")
	}
	if !strings.Contains(model.View(), "Keyboard Shortcuts") {
		t.Error("View should show help modal")
	}

	model.handleKeyMsg(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if model.showHelp {
		t.Error("showHelp should be false after toggle")
	}
}

func TestModel_Notifications(t *testing.T) {
	model := NewModel(nil)

	model.Update(AddNotificationMsg{Message: "Test Note", Type: NotificationInfo})

	if len(model.state.GetNotifications()) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(model.state.GetNotifications()))
	}

	model.ready = true
	model.width = 80
	model.height = 24
	if !strings.Contains(model.View(), "Test Note") {
		t.Error("View should show notification")
	}
}

func TestModel_OverviewLoaded(t *testing.T) {
	svc := newStubServices()
	model := NewModel(svc)

	_, cmd := model.Update(OverviewLoadedMsg{Overview: svc.overview})
	if model.state.GetOverview() != svc.overview {
		t.Error("overview should be stored")
	}
	if model.state.IsInitialLoading() {
		t.Error("initial loading should end")
	}
	if cmd == nil {
		t.Error("a successful refresh should reload stats")
	}

	model.Update(OverviewLoadedMsg{Error: errors.New("upstream down")})
	if model.state.GetOverview() != svc.overview {
		t.Error("a failed refresh must keep the previous overview")
	}
	if model.state.GetError() == nil {
		t.Error("the failure should be recorded")
	}
}

func TestModel_StatsLoaded(t *testing.T) {
	model := NewModel(nil)

	model.Update(StatsLoadedMsg{Stats: Stats{RecentFetches: []models.FetchRecord{{RunID: "x"}}}})
	if s := model.state.GetStats(); s == nil || len(s.RecentFetches) != 1 {
		t.Error("stats should be stored")
	}

	cmds := model.handleStatsLoaded(StatsLoadedMsg{Error: errors.New("db locked")})
	if len(cmds) != 1 {
		t.Fatal("a stats failure should raise a warning")
	}
	if msg, ok := cmds[0]().(AddNotificationMsg); !ok || msg.Type != NotificationWarning {
		t.Errorf("unexpected message %#v", msg)
	}
}

func TestModel_Refresh(t *testing.T) {
	svc := newStubServices()
	model := NewModel(svc)

	if cmds := model.handleRefresh(RefreshMsg{Resource: "all"}); len(cmds) != 2 {
		t.Errorf("refresh all returned %d commands, want 2", len(cmds))
	}
	if cmds := model.handleRefresh(RefreshMsg{Resource: ResourceStats}); len(cmds) != 2 {
		t.Errorf("refresh stats returned %d commands, want 2", len(cmds))
	}
	if cmds := NewModel(nil).handleRefresh(RefreshMsg{Resource: "all"}); cmds != nil {
		t.Error("refresh without services should be a no-op")
	}

	cmd := model.handleKeyMsg(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if msg, ok := cmd().(RefreshMsg); !ok || msg.Resource != "all" {
		t.Errorf("r produced %#v", msg)
	}
}

func TestModel_Loading(t *testing.T) {
	model := NewModel(nil)
	model.state.SetLoading(ResourceInitial, false)

	model.Update(StartLoadingMsg{Resource: ResourceOverview})
	if !model.state.Loading.Overview {
		t.Error("Loading.Overview should be true")
	}
	if len(model.state.GetNotifications()) != 1 {
		t.Error("loading should show a notification")
	}

	model.Update(StopLoadingMsg{Resource: ResourceOverview})
	if model.state.Loading.Overview {
		t.Error("Loading.Overview should be false")
	}
	if len(model.state.GetNotifications()) != 0 {
		t.Error("loading notification should be cleared")
	}
}

func TestModel_HandleServiceEvent(t *testing.T) {
	model := NewModel(nil)

	ov := &models.Overview{}
	model.handleServiceEvent(services.OverviewUpdatedEvent{Overview: ov})
	if model.state.GetOverview() != ov {
		t.Error("overview event should update state")
	}

	cmd := model.handleServiceEvent(services.QuotaUpdatedEvent{Snapshot: models.QuotaSnapshot{InFlight: 2}})
	if model.state.GetQuota().InFlight != 2 {
		t.Error("quota event should update state")
	}
	if _, ok := cmd().(QuotaUpdatedMsg); !ok {
		t.Error("quota event should be forwarded to tabs")
	}

	cmd = model.handleServiceEvent(services.ErrorEvent{Service: "pipeline", Error: errors.New("x")})
	if msg, ok := cmd().(AddNotificationMsg); !ok || msg.Type != NotificationError {
		t.Error("Error event should trigger an error notification")
	}

	if model.handleServiceEvent(services.CredentialsChangedEvent{}) == nil {
		t.Error("credentials change should notify")
	}
}

func TestModel_HandleSpinnerTick(t *testing.T) {
	_, cmd := NewModel(nil).Update(spinner.TickMsg{})
	if cmd == nil {
		t.Error("Spinner tick should return command")
	}
}

func TestTabID_String(t *testing.T) {
	if TabDashboard.String() != "Dashboard" {
		t.Error("TabDashboard.String() mismatch")
	}
	if TabHistory.String() != "History" {
		t.Error("TabHistory.String() mismatch")
	}
	if TabInfo.String() != "Info" {
		t.Error("TabInfo.String() mismatch")
	}
	if TabID(999).String() != "Unknown" {
		t.Error("Unknown tab string mismatch")
	}
}

func TestDefaultKeyMap(t *testing.T) {
	km := DefaultKeyMap()
	if len(km.ShortHelp()) == 0 {
		t.Error("ShortHelp empty")
	}
	if len(km.FullHelp()) == 0 {
		t.Error("FullHelp empty")
	}
}

func TestModel_StatusLine(t *testing.T) {
	model := NewModel(nil)
	if got := model.statusLine(); got != "loading" {
		t.Errorf("statusLine before load = %q, want loading", got)
	}

	model.state.SetOverview(&models.Overview{Metadata: models.OverviewMetadata{PropertyID: "123456"}})
	model.state.mu.Lock()
	model.state.LastUpdated = time.Now().Add(-2 * time.Minute)
	model.state.mu.Unlock()
	model.state.SetQuota(models.QuotaSnapshot{
		QuotaState:     models.QuotaState{DailyTokens: 250},
		MaxDailyTokens: 1000,
	})

	got := model.statusLine()
	for _, want := range []string{"property 123456", "quota 25%", "updated 2m0s ago"} {
		if !strings.Contains(got, want) {
			t.Errorf("statusLine = %q, missing %q", got, want)
		}
	}

	model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	if !strings.Contains(model.renderNavbar(), "property 123456") {
		t.Error("wide navbar should include the status segment")
	}
	model.Update(tea.WindowSizeMsg{Width: 40, Height: 40})
	if strings.Contains(model.renderNavbar(), "property") {
		t.Error("narrow navbar should drop the status segment")
	}
}
