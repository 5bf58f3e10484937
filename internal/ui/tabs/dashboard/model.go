// Package dashboard provides the analytics overview tab.
package dashboard

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/ga4-dashboard-tui/internal/app"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/components"
)

type animationTickMsg time.Time

func animationTickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*40, func(t time.Time) tea.Msg {
		return animationTickMsg(t)
	})
}

// ChartMode selects which series the main chart plots.
type ChartMode int

const (
	// ChartUsers plots total and active users.
	ChartUsers ChartMode = iota
	// ChartRevenue plots total revenue.
	ChartRevenue
	// ChartARPU plots revenue per user.
	ChartARPU
	chartModeCount
)

// String returns the chart title for the mode.
func (c ChartMode) String() string {
	switch c {
	case ChartUsers:
		return "Daily users"
	case ChartRevenue:
		return "Daily revenue"
	case ChartARPU:
		return "Revenue per user"
	default:
		return "Unknown"
	}
}

// Animation keys for the quota bars.
const (
	animTokens   = "tokens"
	animRequests = "requests"
	animMinute   = "minute"
)

// keyMap defines the key bindings specific to the dashboard tab.
type keyMap struct {
	NextChart key.Binding
	PrevChart key.Binding
	Up        key.Binding
	Down      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		NextChart: key.NewBinding(
			key.WithKeys("c", "n"),
			key.WithHelp("c/n", "next chart"),
		),
		PrevChart: key.NewBinding(
			key.WithKeys("C", "p"),
			key.WithHelp("C/p", "prev chart"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j", "scroll down"),
		),
	}
}

// AnimationState eases a displayed percentage towards its target.
type AnimationState struct {
	StartTime      time.Time
	CurrentPercent float64
	TargetPercent  float64
	StartPercent   float64
}

// Model represents the dashboard tab state.
type Model struct {
	state          *app.State
	animations     map[string]*AnimationState
	spinner        components.FetchSpinner
	keys           keyMap
	viewport       viewport.Model
	usageBar       components.UsageBar
	chart          ChartMode
	width          int
	height         int
	animationFrame int
}

// New creates a new dashboard model.
func New(state *app.State) *Model {
	return &Model{
		state:      state,
		spinner:    components.NewFetchSpinner("Fetching analytics..."),
		usageBar:   components.NewUsageBar(),
		keys:       defaultKeyMap(),
		viewport:   viewport.New(0, 0),
		animations: make(map[string]*AnimationState),
	}
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Init(), animationTickCmd())
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case animationTickMsg:
		cmds = append(cmds, m.handleAnimationTick(msg))

	case app.StartLoadingMsg:
		cmds = append(cmds, animationTickCmd())

	case app.QuotaUpdatedMsg:
		m.spinner.Observe(msg.Snapshot)
		m.syncAnimationTargets(time.Now())
		cmds = append(cmds, animationTickCmd())

	case app.OverviewLoadedMsg, app.RefreshMsg:
		m.syncAnimationTargets(time.Now())
		cmds = append(cmds, animationTickCmd())

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKeyMsg(msg))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// Chart returns the selected chart mode.
func (m *Model) Chart() ChartMode {
	return m.chart
}

func (m *Model) handleAnimationTick(msg animationTickMsg) tea.Cmd {
	m.animationFrame++
	now := time.Time(msg)

	m.syncAnimationTargets(now)
	m.stepAnimations(now)

	if m.animating() || m.state.AnyLoading() {
		return animationTickCmd()
	}
	return nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.NextChart):
		m.chart = (m.chart + 1) % chartModeCount
	case key.Matches(msg, m.keys.PrevChart):
		m.chart = (m.chart - 1 + chartModeCount) % chartModeCount
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

// SetSize sets the available size for the dashboard.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(0, width-6)
	m.viewport.Height = max(0, height-2)
}

// syncAnimationTargets points every quota bar at the latest snapshot and
// reports whether any of them still has to move.
func (m *Model) syncAnimationTargets(now time.Time) bool {
	q := m.state.GetQuota()

	minute := 0.0
	if q.MaxMinuteTokens > 0 {
		minute = float64(q.MinuteTokens) / float64(q.MaxMinuteTokens) * 100
	}

	animating := false
	for k, target := range map[string]float64{
		animTokens:   q.DailyTokenPercent(),
		animRequests: q.DailyRequestPercent(),
		animMinute:   minute,
	} {
		if m.updateAnimationState(k, target, now) {
			animating = true
		}
	}
	return animating
}

func (m *Model) updateAnimationState(animKey string, target float64, now time.Time) bool {
	state, exists := m.animations[animKey]
	if !exists {
		state = &AnimationState{StartTime: now}
		m.animations[animKey] = state
	}

	if target != state.TargetPercent {
		state.StartPercent = state.CurrentPercent
		state.TargetPercent = target
		state.StartTime = now
	}

	return state.CurrentPercent != state.TargetPercent
}

func (m *Model) stepAnimations(now time.Time) {
	const duration = 1.5

	for _, state := range m.animations {
		if state.CurrentPercent == state.TargetPercent {
			continue
		}
		elapsed := now.Sub(state.StartTime).Seconds()
		if elapsed >= duration {
			state.CurrentPercent = state.TargetPercent
			continue
		}
		progress := elapsed / duration
		ease := 1.0 - (1.0-progress)*(1.0-progress)
		state.CurrentPercent = state.StartPercent + (state.TargetPercent-state.StartPercent)*ease
	}
}

func (m *Model) animating() bool {
	for _, state := range m.animations {
		if state.CurrentPercent != state.TargetPercent {
			return true
		}
	}
	return false
}

// displayPercent returns the eased value for a bar, or target when the bar
// has not been animated yet.
func (m *Model) displayPercent(animKey string, target float64) float64 {
	if state, ok := m.animations[animKey]; ok {
		return state.CurrentPercent
	}
	return target
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{
		m.keys.NextChart,
		m.keys.PrevChart,
		m.keys.Down,
	}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.NextChart, m.keys.PrevChart},
		{m.keys.Up, m.keys.Down},
	}
}
