// Package styles defines the visual styling for the application.
package styles

import "github.com/charmbracelet/lipgloss"

// Color definitions for the dashboard theme.
var (
	// Primary colors
	Primary   = lipgloss.Color("214") // Analytics orange
	Secondary = lipgloss.Color("68")  // Steel blue
	Subtle    = lipgloss.Color("240") // Gray

	// Metric colors
	Users   = lipgloss.Color("39")  // Blue
	Active  = lipgloss.Color("45")  // Cyan
	Revenue = lipgloss.Color("42")  // Green
	Ads     = lipgloss.Color("141") // Lavender

	// Status colors
	Success = lipgloss.Color("42")  // Green
	Error   = lipgloss.Color("196") // Red
	Warning = lipgloss.Color("220") // Yellow
	Info    = lipgloss.Color("39")  // Blue

	// Background colors
	BgDark   = lipgloss.Color("235")
	BgLight  = lipgloss.Color("237")
	BgAccent = lipgloss.Color("236")

	// Text colors
	TextPrimary   = lipgloss.Color("252")
	TextSecondary = lipgloss.Color("245")
	TextMuted     = lipgloss.Color("240")

	// ToastStyle for floating notifications.
	ToastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1).
			MarginBottom(1)
)

// TitleStyle is used for main headings.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	MarginBottom(1)

// SubTitleStyle is used for section headings.
var SubTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Secondary).
	MarginBottom(1)

// DocStyle provides consistent document margins.
var DocStyle = lipgloss.NewStyle().
	Margin(1, 2).
	Padding(0, 1)

// CardStyle creates a bordered card container.
var CardStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Subtle).
	Padding(1, 2).
	MarginBottom(1)

// CardTitleStyle styles card headers.
var CardTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	MarginBottom(1)

// MetricCardStyle is a compact card for a single headline figure.
var MetricCardStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Subtle).
	Padding(0, 2).
	MarginRight(1)

// MetricValueStyle renders the headline number of a metric card.
var MetricValueStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(TextPrimary)

// MetricLabelStyle renders the caption of a metric card.
var MetricLabelStyle = lipgloss.NewStyle().
	Foreground(TextSecondary)

// ProgressLabelStyle styles progress bar labels.
var ProgressLabelStyle = lipgloss.NewStyle().
	Foreground(TextSecondary).
	Width(20)

// ProgressPercentStyle styles the percentage display.
var ProgressPercentStyle = lipgloss.NewStyle().
	Foreground(TextPrimary).
	Width(6).
	Align(lipgloss.Right)

// HelpStyle is the base style for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(TextMuted)

// HelpPanelStyle creates the help overlay panel.
var HelpPanelStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(Primary).
	Padding(1, 3).
	Background(BgDark)

// TableHeaderStyle styles table headers.
var TableHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	BorderStyle(lipgloss.NormalBorder()).
	BorderBottom(true).
	BorderForeground(Subtle)

// TableCellStyle styles table cells.
var TableCellStyle = lipgloss.NewStyle().
	Padding(0, 1)

// UsageLowStyle for comfortable quota usage (<60%).
var UsageLowStyle = lipgloss.NewStyle().
	Foreground(Success)

// UsageMediumStyle for elevated quota usage (60-85%).
var UsageMediumStyle = lipgloss.NewStyle().
	Foreground(Warning)

// UsageHighStyle for quota usage near the limit (>85%).
var UsageHighStyle = lipgloss.NewStyle().
	Foreground(Error).
	Bold(true)

// DeltaUpStyle renders a positive period-over-period change.
var DeltaUpStyle = lipgloss.NewStyle().
	Foreground(Success)

// DeltaDownStyle renders a negative period-over-period change.
var DeltaDownStyle = lipgloss.NewStyle().
	Foreground(Error)

// ErrorTextStyle for error messages.
var ErrorTextStyle = lipgloss.NewStyle().
	Foreground(Error)

// SuccessTextStyle for success messages.
var SuccessTextStyle = lipgloss.NewStyle().
	Foreground(Success)

// WarningTextStyle for warning messages.
var WarningTextStyle = lipgloss.NewStyle().
	Foreground(Warning)

// InfoTextStyle for info messages.
var InfoTextStyle = lipgloss.NewStyle().
	Foreground(Info)

// GetUsageStyle returns the style for a consumed-quota percentage.
func GetUsageStyle(percent float64) lipgloss.Style {
	switch {
	case percent > 85:
		return UsageHighStyle
	case percent >= 60:
		return UsageMediumStyle
	default:
		return UsageLowStyle
	}
}

// GetDeltaStyle returns the style for a signed change.
func GetDeltaStyle(delta float64) lipgloss.Style {
	switch {
	case delta > 0:
		return DeltaUpStyle
	case delta < 0:
		return DeltaDownStyle
	default:
		return HelpStyle
	}
}

// CenterHorizontal centers content horizontally within a given width.
func CenterHorizontal(content string, width int) string {
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(content)
}

// CenterBoth centers content both horizontally and vertically.
func CenterBoth(content string, width, height int) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center).
		AlignVertical(lipgloss.Center).
		Render(content)
}
