package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
	"github.com/j-veylop/ga4-dashboard-tui/internal/services/report"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/components"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/styles"
)

// View renders the dashboard component.
func (m *Model) View() string {
	ov := m.state.GetOverview()
	if ov == nil {
		if m.state.IsInitialLoading() || m.state.Loading.Overview {
			return m.renderLoading()
		}
		if err := m.state.GetError(); err != nil {
			return m.renderError(err)
		}
		return m.renderEmpty()
	}

	sections := []string{
		m.renderTitle(ov),
	}
	if err := m.state.GetError(); err != nil {
		sections = append(sections, m.renderStaleBanner(err))
	}
	sections = append(sections,
		m.renderMetricCards(ov.Summary),
		m.renderChart(ov),
		m.renderQuota(),
	)

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.Render(m.viewport.View())
}

func (m *Model) renderLoading() string {
	return components.RenderSpinnerCentered(m.spinner, m.width, m.height)
}

func (m *Model) renderError(err error) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.ErrorTextStyle.Render("Could not load analytics"),
		"",
		styles.HelpStyle.Render(err.Error()),
		"",
		styles.HelpStyle.Render("Press r to retry"),
	)
	return styles.CenterBoth(content, m.width, m.height)
}

func (m *Model) renderEmpty() string {
	return styles.CenterBoth(styles.HelpStyle.Render("No analytics loaded yet. Press r to refresh."), m.width, m.height)
}

func (m *Model) renderTitle(ov *models.Overview) string {
	title := styles.TitleStyle.Render("GA4 Dashboard")
	subtitle := styles.HelpStyle.Render(fmt.Sprintf(
		"Property %s  •  %s → %s (%d days)  •  updated %s",
		ov.Metadata.PropertyID,
		ov.Metadata.StartDate,
		ov.Metadata.EndDate,
		ov.Metadata.Days,
		formatAgo(m.state.TimeSinceUpdate()),
	))
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

// renderStaleBanner marks the figures as the last good result after a
// failed refresh.
func (m *Model) renderStaleBanner(err error) string {
	return styles.WarningTextStyle.Render(fmt.Sprintf("⚠ Showing last good data, refresh failed: %v", err)) + "\n"
}

func (m *Model) renderMetricCards(s models.OverviewSummary) string {
	cards := []string{
		metricCard("Total users", components.FormatCount(float64(s.TotalUsers)), s.Deltas.TotalUsers, styles.Users),
		metricCard("Active users", components.FormatCount(float64(s.ActiveUsers)), s.Deltas.ActiveUsers, styles.Active),
		metricCard("Revenue", formatMoney(s.TotalRevenue), s.Deltas.TotalRevenue, styles.Revenue),
		metricCard("Purchases", formatMoney(s.PurchaseRevenue), s.Deltas.PurchaseRevenue, styles.Revenue),
		metricCard("Ads", formatMoney(s.AdRevenue), s.Deltas.AdRevenue, styles.Ads),
		metricCard("ARPU", fmt.Sprintf("%.3f", s.ARPU), nil, styles.Primary),
	}

	// Wrap onto two rows on narrow terminals.
	if m.width > 0 && lipgloss.Width(lipgloss.JoinHorizontal(lipgloss.Top, cards...)) > m.width-8 {
		half := len(cards) / 2
		return lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.JoinHorizontal(lipgloss.Top, cards[:half]...),
			lipgloss.JoinHorizontal(lipgloss.Top, cards[half:]...),
		)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func metricCard(label, value string, delta *float64, color lipgloss.Color) string {
	lines := []string{
		styles.MetricLabelStyle.Render(label),
		styles.MetricValueStyle.Foreground(color).Render(value),
	}
	if delta != nil {
		lines = append(lines, components.FormatDelta(delta))
	} else {
		lines = append(lines, styles.HelpStyle.Render("—"))
	}
	return styles.MetricCardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderChart(ov *models.Overview) string {
	cardWidth := max(m.width-8, 40)
	chartWidth := max(cardWidth-16, 20)
	chartHeight := max(min(m.height/4, 12), 5)

	var chart, legend string
	switch m.chart {
	case ChartUsers:
		chart = components.RenderDualLineChart(
			ov.DailyUsers.Column(report.MetricTotalUsers),
			ov.DailyUsers.Column(report.MetricActiveUsers),
			chartWidth, chartHeight, "",
		)
		legend = components.RenderLegend([]components.LegendItem{
			{Label: "Total users", Color: styles.Users},
			{Label: "Active users", Color: styles.Active},
		})
	case ChartRevenue:
		chart = components.RenderLineChart(ov.DailyRevenue.Column(report.MetricTotalRevenue), chartWidth, chartHeight, "")
		legend = components.RenderLegend([]components.LegendItem{{Label: "Total revenue", Color: styles.Revenue}})
	case ChartARPU:
		chart = components.RenderLineChart(report.DailyARPU(ov.DailyUsers, ov.DailyRevenue), chartWidth, chartHeight, "")
		legend = components.RenderLegend([]components.LegendItem{{Label: "Revenue / user", Color: styles.Primary}})
	}

	icon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	header := fmt.Sprintf("%s %s", icon, styles.CardTitleStyle.Render(m.chart.String()))
	hint := styles.HelpStyle.Render(fmt.Sprintf("  (%d/%d, c to cycle)", m.chart+1, chartModeCount))

	return styles.CardStyle.Width(cardWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, chart, "", legend+hint),
	)
}

func (m *Model) renderQuota() string {
	q := m.state.GetQuota()
	cardWidth := max(m.width-8, 40)
	barWidth := max(cardWidth-4, 40)

	icon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	rows := []string{fmt.Sprintf("%s %s", icon, styles.CardTitleStyle.Render("API Quota"))}

	if m.state.AnyLoading() && q.MaxDailyTokens == 0 {
		rows = append(rows, components.UsageBarLoading(barWidth, m.animationFrame))
		return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	rows = append(rows,
		m.renderUsage("Daily tokens", animTokens, q.DailyTokens, q.MaxDailyTokens, barWidth),
		m.renderUsage("Daily requests", animRequests, q.DailyRequests, q.MaxRequests, barWidth),
		m.renderUsage("Tokens / minute", animMinute, q.MinuteTokens, q.MaxMinuteTokens, barWidth),
		"",
		styles.HelpStyle.Render(fmt.Sprintf("In flight %d/%d  •  reserved %d tokens", q.InFlight, q.MaxConcurrent, q.ReservedTokens)),
	)

	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderUsage draws one quota bar at its eased position.
func (m *Model) renderUsage(label, animKey string, used, limit, width int) string {
	bar := m.usageBar
	bar.SetLabel(label)

	if limit > 0 {
		target := float64(used) / float64(limit) * 100
		if shown := m.displayPercent(animKey, target); shown != target {
			used = int(shown / 100 * float64(limit))
		}
	}
	return bar.View(used, limit, width)
}

func formatMoney(v float64) string {
	if v >= 10_000 {
		return components.FormatCount(v)
	}
	return fmt.Sprintf("%.2f", v)
}

func formatAgo(d time.Duration) string {
	switch {
	case d <= 0:
		return "never"
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return strings.TrimSuffix(d.Truncate(time.Minute).String(), "0s") + " ago"
	}
}
