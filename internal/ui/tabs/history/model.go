// Package history provides the fetch history tab.
package history

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/ga4-dashboard-tui/internal/app"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// TimeRange is how many days of the fetch log the charts cover.
type TimeRange int

// Supported time ranges.
const (
	TimeRange7Days  TimeRange = 7
	TimeRange14Days TimeRange = 14
	TimeRange30Days TimeRange = 30
)

// Next cycles 7 → 14 → 30 → 7.
func (r TimeRange) Next() TimeRange {
	switch r {
	case TimeRange7Days:
		return TimeRange14Days
	case TimeRange14Days:
		return TimeRange30Days
	default:
		return TimeRange7Days
	}
}

// String returns the human-readable range.
func (r TimeRange) String() string {
	switch r {
	case TimeRange7Days:
		return "7 days"
	case TimeRange14Days:
		return "14 days"
	default:
		return "30 days"
	}
}

// keyMap defines the key bindings specific to the history tab.
type keyMap struct {
	ToggleRange    key.Binding
	ToggleFailures key.Binding
	Reload         key.Binding
	Up             key.Binding
	Down           key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		ToggleRange: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle time range"),
		),
		ToggleFailures: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "failures only"),
		),
		Reload: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "reload log"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
	}
}

// Model represents the history tab state.
type Model struct {
	state        *app.State
	keys         keyMap
	viewport     viewport.Model
	timeRange    TimeRange
	width        int
	height       int
	failuresOnly bool
}

// New creates a new history model. The fetch log itself lives in the shared
// state and is loaded by the application.
func New(state *app.State) *Model {
	return &Model{
		state:     state,
		keys:      defaultKeyMap(),
		viewport:  viewport.New(0, 0),
		timeRange: TimeRange14Days,
	}
}

// Init initializes the history tab.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the history tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	switch msg := msg.(type) {
	case app.TabSwitchMsg:
		if msg.Tab == app.TabHistory {
			return m, reloadCmd()
		}

	case tea.KeyMsg:
		return m, m.handleKeyMsg(msg)
	}
	return m, nil
}

func reloadCmd() tea.Cmd {
	return func() tea.Msg { return app.RefreshMsg{Resource: app.ResourceStats} }
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.ToggleRange):
		m.timeRange = m.timeRange.Next()
	case key.Matches(msg, m.keys.ToggleFailures):
		m.failuresOnly = !m.failuresOnly
	case key.Matches(msg, m.keys.Reload):
		return reloadCmd()
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

// TimeRange returns the selected chart range.
func (m *Model) TimeRange() TimeRange {
	return m.timeRange
}

// dailyInRange returns the newest timeRange days of stats, oldest first.
// The fetch log reports days newest first.
func (m *Model) dailyInRange(daily []models.DailyFetchStats) []models.DailyFetchStats {
	n := min(int(m.timeRange), len(daily))
	out := make([]models.DailyFetchStats, n)
	for i := range n {
		out[n-1-i] = daily[i]
	}
	return out
}

// visibleFetches applies the failures filter.
func (m *Model) visibleFetches(fetches []models.FetchRecord) []models.FetchRecord {
	if !m.failuresOnly {
		return fetches
	}
	out := make([]models.FetchRecord, 0, len(fetches))
	for _, f := range fetches {
		if f.Status != models.FetchStatusOK {
			out = append(out, f)
		}
	}
	return out
}

// SetSize sets the available size for the history tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(0, width-6)
	m.viewport.Height = max(0, height-2)
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{
		m.keys.ToggleRange,
		m.keys.ToggleFailures,
		m.keys.Reload,
	}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.ToggleRange, m.keys.ToggleFailures, m.keys.Reload},
		{m.keys.Up, m.keys.Down},
	}
}
