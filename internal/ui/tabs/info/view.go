package info

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/ga4-dashboard-tui/internal/config"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/styles"
	"github.com/j-veylop/ga4-dashboard-tui/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	sections := []string{
		m.renderTitle(),
		m.renderConfigCard(),
		m.renderLimitsCard(),
		m.renderCacheCard(),
		m.renderAboutCard(),
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))
	return styles.DocStyle.Render(m.viewport.View())
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration, limits and application information")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.width-8, 50), 80)
}

func (m *Model) card(title string, rows ...string) string {
	content := append([]string{styles.CardTitleStyle.Render(title)}, rows...)
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, content...))
}

func (m *Model) renderConfigCard() string {
	if m.config == nil {
		return m.card("Configuration", styles.HelpStyle.Render("Configuration not loaded"))
	}
	c := m.config

	return m.card("Configuration",
		renderRow("Property", c.PropertyID),
		renderRow("Credentials", credentialSource(c)),
		renderRow("Date range", fmt.Sprintf("%d days", c.DateRangeDays)),
		renderRow("Auto refresh", c.RefreshInterval.String()),
		renderRow("Database", c.DatabasePath),
		renderRow("Log file", c.LogPath),
		renderRow("HTTP address", c.HTTPAddr),
	)
}

func credentialSource(c *config.Config) string {
	switch {
	case c.HasInlineCredentials():
		return "OAuth refresh token (environment)"
	case c.CredentialsPath != "":
		return c.CredentialsPath
	default:
		return "none"
	}
}

func (m *Model) renderLimitsCard() string {
	q := m.state.GetQuota()

	rows := []string{
		renderRow("Daily requests", fmt.Sprintf("%d / %d", q.DailyRequests, q.MaxRequests)),
		renderRow("Daily tokens", fmt.Sprintf("%d / %d", q.DailyTokens, q.MaxDailyTokens)),
		renderRow("Tokens / minute", fmt.Sprintf("%d / %d", q.MinuteTokens, q.MaxMinuteTokens)),
		renderRow("Concurrency", fmt.Sprintf("%d / %d", q.InFlight, q.MaxConcurrent)),
	}
	if m.config != nil {
		rows = append(rows,
			"",
			renderRow("Retry attempts", fmt.Sprintf("%d", m.config.RetryMaxAttempts)),
			renderRow("Retry backoff", fmt.Sprintf("%s base, %s max wait", m.config.RetryBaseDelay, m.config.RetryMaxWait)),
		)
	}
	return m.card("Quota & Retry", rows...)
}

func (m *Model) renderCacheCard() string {
	var rows []string
	if m.config != nil {
		rows = append(rows,
			renderRow("Backend", m.config.CacheBackend),
			renderRow("TTL", m.config.CacheTTL.String()),
		)
	}

	stats := m.state.GetStats()
	if stats == nil {
		rows = append(rows, styles.HelpStyle.Render("No cache statistics yet"))
		return m.card("Cache", rows...)
	}

	c := stats.Cache
	rows = append(rows,
		renderRow("Hits / misses", fmt.Sprintf("%d / %d", c.Hits, c.Misses)),
		renderRow("Upstream fetches", fmt.Sprintf("%d (%d shared)", c.Fetches, c.Shared)),
		renderRow("Errors", fmt.Sprintf("%d", c.Errors)),
	)
	if lookups := c.Hits + c.Misses; lookups > 0 {
		rate := float64(c.Hits) / float64(lookups) * 100
		rows = append(rows, renderRow("Hit rate", fmt.Sprintf("%.0f%%", rate)))
	}
	return m.card("Cache", rows...)
}

func (m *Model) renderAboutCard() string {
	return m.card("About GA4 Dashboard",
		renderRow("Version", version.GetVersion()),
		renderRow("Build Date", version.GetDate()),
		renderRow("Git Commit", version.GetCommit()),
		renderRow("Go Version", runtime.Version()),
		renderRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
	)
}

func renderRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(18).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}
