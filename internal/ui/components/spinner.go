package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/styles"
)

// FetchSpinner shows a report fetch in progress along with what the quota
// governor is doing about it.
type FetchSpinner struct {
	spinner spinner.Model
	label   string
	detail  string
	waiting bool
	style   lipgloss.Style
}

// NewFetchSpinner creates a spinner with the given label and no quota detail.
func NewFetchSpinner(label string) FetchSpinner {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return FetchSpinner{
		spinner: s,
		label:   label,
		style:   lipgloss.NewStyle().Foreground(styles.TextSecondary),
	}
}

// Init starts the spinner ticking.
func (f FetchSpinner) Init() tea.Cmd {
	return f.spinner.Tick
}

// Update handles spinner tick messages.
func (f FetchSpinner) Update(msg tea.Msg) (FetchSpinner, tea.Cmd) {
	var cmd tea.Cmd
	f.spinner, cmd = f.spinner.Update(msg)
	return f, cmd
}

// Observe refreshes the quota detail from a governor snapshot. A fetch is
// shown as waiting when nothing is in flight and the per-minute token window
// is spent, since new steps are held until the window rolls over.
func (f *FetchSpinner) Observe(q models.QuotaSnapshot) {
	f.waiting = q.InFlight == 0 && q.MaxMinuteTokens > 0 && q.MinuteTokens >= q.MaxMinuteTokens

	var parts []string
	if q.MaxConcurrent > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d requests in flight", q.InFlight, q.MaxConcurrent))
	}
	if q.MaxDailyTokens > 0 {
		parts = append(parts, fmt.Sprintf("%.0f%% of daily tokens", q.DailyTokenPercent()))
	}
	f.detail = strings.Join(parts, ", ")
}

// Waiting reports whether the last snapshot showed the fetch held by quota.
func (f FetchSpinner) Waiting() bool {
	return f.waiting
}

// View renders the spinner, label and quota detail on separate lines.
func (f FetchSpinner) View() string {
	label := f.label
	if f.waiting {
		label = "Waiting for the quota window..."
	}
	lines := []string{f.spinner.View() + " " + f.style.Render(label)}
	if f.detail != "" {
		lines = append(lines, styles.HelpStyle.Render(f.detail))
	}
	return lipgloss.JoinVertical(lipgloss.Center, lines...)
}

// RenderSpinnerCentered renders a spinner centered in a given width and height.
func RenderSpinnerCentered(s FetchSpinner, width, height int) string {
	return styles.CenterBoth(s.View(), width, height)
}
