package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/ga4-dashboard-tui/internal/app"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/components"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/styles"
)

// maxTableRows caps the recent fetches table.
const maxTableRows = 20

// View renders the history tab.
func (m *Model) View() string {
	stats := m.state.GetStats()
	if stats == nil {
		if m.state.Loading.Stats || m.state.IsInitialLoading() {
			return m.renderLoading()
		}
		return m.renderEmpty()
	}
	if len(stats.DailyStats) == 0 && len(stats.RecentFetches) == 0 {
		return m.renderEmpty()
	}

	sections := []string{
		m.renderHeader(stats),
		m.renderDailyChart(m.dailyInRange(stats.DailyStats)),
		m.renderFetchTable(m.visibleFetches(stats.RecentFetches)),
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))
	return styles.DocStyle.Render(m.viewport.View())
}

func (m *Model) renderLoading() string {
	return styles.DocStyle.Render(styles.HelpStyle.Render("Loading fetch log..."))
}

func (m *Model) renderEmpty() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.TitleStyle.Render("Fetch History"),
		"",
		styles.HelpStyle.Render("No fetches recorded yet."),
		styles.HelpStyle.Render("Every upstream request the pipeline makes is logged here."),
	)
	return styles.DocStyle.Render(content)
}

func (m *Model) renderHeader(stats *app.Stats) string {
	title := styles.TitleStyle.Render("Fetch History")

	rangeStyle := lipgloss.NewStyle().
		Foreground(styles.Primary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Primary)
	rangeIndicator := rangeStyle.Render(fmt.Sprintf("[t] %s", m.timeRange))

	header := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", rangeIndicator)

	c := stats.Cache
	hitRate := 0.0
	if lookups := c.Hits + c.Misses; lookups > 0 {
		hitRate = float64(c.Hits) / float64(lookups) * 100
	}
	cacheLine := styles.HelpStyle.Render(fmt.Sprintf(
		"Cache: %d hits, %d misses (%.0f%% hit rate), %d fetches, %d shared, %d errors",
		c.Hits, c.Misses, hitRate, c.Fetches, c.Shared, c.Errors,
	))

	return lipgloss.JoinVertical(lipgloss.Left, header, cacheLine, "")
}

func (m *Model) renderDailyChart(daily []models.DailyFetchStats) string {
	cardWidth := max(m.width-8, 40)

	icon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	rows := []string{fmt.Sprintf("%s %s", icon, styles.CardTitleStyle.Render("Requests per day"))}

	if len(daily) == 0 {
		rows = append(rows, styles.HelpStyle.Render("  No daily data available"))
		return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	requests := make([]float64, len(daily))
	tokens := make([]float64, len(daily))
	labels := make([]string, len(daily))
	var failures, total int
	for i, d := range daily {
		requests[i] = float64(d.Requests)
		tokens[i] = float64(d.Tokens)
		labels[i] = d.Day.Format("Jan 02")
		failures += d.Failures
		total += d.Requests
	}

	chartWidth := max(cardWidth-12, 30)
	for _, line := range strings.Split(components.RenderBarChart(requests, labels, chartWidth), "\n") {
		rows = append(rows, "  "+line)
	}

	failureRate := 0.0
	if total > 0 {
		failureRate = float64(failures) / float64(total) * 100
	}

	rows = append(rows,
		"",
		fmt.Sprintf("  Tokens  %s", components.RenderColoredSparkline(tokens, min(len(tokens), chartWidth))),
		fmt.Sprintf("  %d requests, %s failed (%.1f%%)",
			total,
			failureStyle(failures).Render(fmt.Sprintf("%d", failures)),
			failureRate,
		),
	)

	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderFetchTable(fetches []models.FetchRecord) string {
	cardWidth := max(m.width-8, 40)

	title := "Recent fetches"
	if m.failuresOnly {
		title += " (failures)"
	}
	icon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	rows := []string{fmt.Sprintf("%s %s", icon, styles.CardTitleStyle.Render(title))}

	if len(fetches) == 0 {
		rows = append(rows, styles.HelpStyle.Render("  Nothing to show"))
		return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	rows = append(rows, styles.TableHeaderStyle.Render(formatRow(
		"Time", "Range", "Gran.", "Status", "Rows", "Tokens", "Tries", "Took",
	)))

	for _, f := range fetches[:min(len(fetches), maxTableRows)] {
		status := styles.SuccessTextStyle.Render(fmt.Sprintf("%-6s", f.Status))
		if f.Status != models.FetchStatusOK {
			status = styles.ErrorTextStyle.Render(fmt.Sprintf("%-6s", f.Status))
		}
		rows = append(rows, formatRow(
			f.Timestamp.Local().Format("01-02 15:04"),
			f.StartDate+"→"+f.EndDate,
			f.Granularity,
			status,
			fmt.Sprintf("%d", f.Rows),
			fmt.Sprintf("%d", f.EstimatedTokens),
			fmt.Sprintf("%d", f.Attempts),
			(time.Duration(f.DurationMs) * time.Millisecond).String(),
		))
		if f.Error != "" {
			rows = append(rows, styles.HelpStyle.Render("    ╰─ "+truncate(f.Error, cardWidth-12)))
		}
	}

	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatRow(when, span, gran, status, rows, tokens, tries, took string) string {
	return fmt.Sprintf("%-12s %-23s %-8s %s %6s %7s %5s %8s", when, span, gran, status, rows, tokens, tries, took)
}

func failureStyle(failures int) lipgloss.Style {
	if failures > 0 {
		return styles.ErrorTextStyle
	}
	return styles.SuccessTextStyle
}

func truncate(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
