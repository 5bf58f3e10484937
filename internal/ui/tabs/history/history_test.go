package history

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/ga4-dashboard-tui/internal/app"
	"github.com/j-veylop/ga4-dashboard-tui/internal/cache"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func sampleStats() app.Stats {
	// Newest first, as the fetch log reports them.
	daily := make([]models.DailyFetchStats, 0, 20)
	for d := 20; d >= 1; d-- {
		daily = append(daily, models.DailyFetchStats{Day: day(d), Requests: d, Tokens: d * 10})
	}
	daily[0].Failures = 2

	return app.Stats{
		DailyStats: daily,
		RecentFetches: []models.FetchRecord{
			{
				Timestamp: day(20), StartDate: "2024-05-25", EndDate: "2024-05-31",
				Granularity: "daily", Status: models.FetchStatusOK, Rows: 7, EstimatedTokens: 12, Attempts: 1, DurationMs: 250,
			},
			{
				Timestamp: day(20), StartDate: "2024-05-18", EndDate: "2024-05-24",
				Granularity: "daily", Status: models.FetchStatusFailed, Attempts: 3, Error: "quota exhausted",
			},
		},
		Cache: cache.Stats{Hits: 3, Misses: 1, Fetches: 1},
	}
}

func newLoadedModel() *Model {
	state := app.NewState()
	state.SetLoading(app.ResourceInitial, false)
	state.SetStats(sampleStats())

	m := New(state)
	m.SetSize(140, 200)
	return m
}

func TestNew(t *testing.T) {
	m := New(app.NewState())
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.TimeRange() != TimeRange14Days {
		t.Errorf("default range = %v, want 14 days", m.TimeRange())
	}
	if m.Init() != nil {
		t.Error("Init should not load anything itself")
	}
}

func TestTimeRange(t *testing.T) {
	if TimeRange7Days.Next() != TimeRange14Days || TimeRange14Days.Next() != TimeRange30Days || TimeRange30Days.Next() != TimeRange7Days {
		t.Error("Next should cycle 7 → 14 → 30 → 7")
	}
	if TimeRange7Days.String() != "7 days" {
		t.Errorf("String = %q", TimeRange7Days.String())
	}
}

func TestModel_View_Loading(t *testing.T) {
	m := New(app.NewState())
	m.SetSize(80, 20)

	if !strings.Contains(m.View(), "Loading fetch log") {
		t.Error("View should show loading state")
	}
}

func TestModel_View_Empty(t *testing.T) {
	state := app.NewState()
	state.SetLoading(app.ResourceInitial, false)

	m := New(state)
	m.SetSize(80, 20)
	if !strings.Contains(m.View(), "No fetches recorded") {
		t.Error("View should show empty state")
	}

	state.SetStats(app.Stats{})
	if !strings.Contains(m.View(), "No fetches recorded") {
		t.Error("empty stats should show empty state")
	}
}

func TestModel_View(t *testing.T) {
	m := newLoadedModel()

	view := m.View()
	for _, want := range []string{
		"Fetch History",
		"[t] 14 days",
		"75% hit rate",
		"Requests per day",
		"Jun 20",
		"Recent fetches",
		"2024-05-25→2024-05-31",
		"quota exhausted",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "Jun 06") {
		t.Error("days outside the 14 day range should be hidden")
	}
}

func TestModel_DailyInRange(t *testing.T) {
	m := newLoadedModel()
	daily := m.dailyInRange(sampleStats().DailyStats)

	if len(daily) != 14 {
		t.Fatalf("len = %d, want 14", len(daily))
	}
	if !daily[0].Day.Equal(day(7)) || !daily[13].Day.Equal(day(20)) {
		t.Errorf("range = %v..%v, want Jun 7..Jun 20 oldest first", daily[0].Day, daily[13].Day)
	}

	if got := m.dailyInRange(nil); len(got) != 0 {
		t.Error("no stats should give an empty range")
	}
}

func TestModel_Keys(t *testing.T) {
	m := newLoadedModel()

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})
	if m.TimeRange() != TimeRange30Days {
		t.Errorf("range = %v, want 30 days", m.TimeRange())
	}
	if !strings.Contains(m.View(), "Jun 01") {
		t.Error("30 day range should include the oldest day")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	view := m.View()
	if !strings.Contains(view, "Recent fetches (failures)") {
		t.Error("failure filter should be shown in the title")
	}
	if strings.Contains(view, "2024-05-25→2024-05-31") {
		t.Error("successful fetches should be hidden")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'L'}})
	if cmd == nil {
		t.Fatal("L should request a reload")
	}
	if msg, ok := cmd().(app.RefreshMsg); !ok || msg.Resource != app.ResourceStats {
		t.Errorf("reload produced %#v", msg)
	}
}

func TestModel_TabSwitchReloads(t *testing.T) {
	m := New(app.NewState())

	_, cmd := m.Update(app.TabSwitchMsg{Tab: app.TabHistory})
	if cmd == nil {
		t.Fatal("switching to the tab should reload the log")
	}
	if _, ok := cmd().(app.RefreshMsg); !ok {
		t.Error("expected a RefreshMsg")
	}

	if _, cmd := m.Update(app.TabSwitchMsg{Tab: app.TabInfo}); cmd != nil {
		t.Error("switching elsewhere should not reload")
	}
}

func TestTruncate(t *testing.T) {
	if truncate("abcdef", 5) != "ab..." {
		t.Errorf("truncate = %q", truncate("abcdef", 5))
	}
	if truncate("abc", 5) != "abc" {
		t.Error("short strings are kept")
	}
}

func TestModel_Help(t *testing.T) {
	m := New(app.NewState())
	if len(m.ShortHelp()) != 3 {
		t.Errorf("ShortHelp len = %d, want 3", len(m.ShortHelp()))
	}
	if len(m.FullHelp()) == 0 {
		t.Error("FullHelp empty")
	}
}
