package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/styles"
)

// Consumption runs from calm to alarming as the budget fills up.
const (
	usageLowColor  = "#51cf66"
	usageHighColor = "#ff6b6b"
)

// UsageBar renders how much of a quota budget has been consumed.
type UsageBar struct {
	progress progress.Model
	label    string
	percent  float64
}

// NewUsageBar creates a usage bar with the default width.
func NewUsageBar() UsageBar {
	return NewUsageBarWithWidth(30)
}

// NewUsageBarWithWidth creates a usage bar with a specific width.
func NewUsageBarWithWidth(width int) UsageBar {
	p := progress.New(
		progress.WithScaledGradient(usageLowColor, usageHighColor),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	return UsageBar{progress: p}
}

// Init initializes the progress bar model.
func (u UsageBar) Init() tea.Cmd {
	return nil
}

// Update forwards animation frames to the progress model.
func (u UsageBar) Update(msg tea.Msg) (UsageBar, tea.Cmd) {
	model, cmd := u.progress.Update(msg)
	if p, ok := model.(progress.Model); ok {
		u.progress = p
	}
	return u, cmd
}

// SetPercent animates the bar towards percent (0-100).
func (u *UsageBar) SetPercent(percent float64) tea.Cmd {
	u.percent = clampPercent(percent)
	return u.progress.SetPercent(u.percent / 100)
}

// Percent returns the last value passed to SetPercent.
func (u UsageBar) Percent() float64 {
	return u.percent
}

// SetLabel sets the bar label.
func (u *UsageBar) SetLabel(label string) {
	u.label = label
}

// SetWidth sets the progress bar width.
func (u *UsageBar) SetWidth(width int) {
	u.progress.Width = width
}

// View renders the bar with its label and a used/limit counter.
func (u UsageBar) View(used, limit int, width int) string {
	percent := 0.0
	if limit > 0 {
		percent = clampPercent(float64(used) / float64(limit) * 100)
	}

	u.progress.Width = max(10, width-40)
	bar := u.progress.ViewAs(percent / 100)

	labelStr := styles.ProgressLabelStyle.Width(18).Render(u.label)
	percentStr := styles.GetUsageStyle(percent).Width(6).Align(lipgloss.Right).
		Render(fmt.Sprintf("%.0f%%", percent))
	countStr := styles.HelpStyle.Render(fmt.Sprintf(" %s/%s", FormatCount(float64(used)), FormatCount(float64(limit))))

	return lipgloss.JoinHorizontal(lipgloss.Center, labelStr, bar, " ", percentStr, countStr)
}

// ViewCompact renders a compact version without label.
func (u UsageBar) ViewCompact(percent float64, width int) string {
	percent = clampPercent(percent)
	u.progress.Width = max(5, width-8)

	bar := u.progress.ViewAs(percent / 100)
	percentStr := styles.GetUsageStyle(percent).Render(fmt.Sprintf("%.0f%%", percent))

	return lipgloss.JoinHorizontal(lipgloss.Center, bar, " ", percentStr)
}

// RenderGradientBar renders just the bar part with gradient colors.
func RenderGradientBar(percent float64, width int) string {
	if width < 1 {
		return ""
	}

	filled := int(float64(width) * clampPercent(percent) / 100)

	var b strings.Builder
	for i := range width {
		if i < filled {
			t := float64(i) / float64(max(1, width-1))
			color := interpolateColor(usageLowColor, usageHighColor, t)
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("█"))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Subtle).Render("░"))
		}
	}
	return b.String()
}

// SimpleUsageBar renders a static ASCII usage bar.
func SimpleUsageBar(percent float64, label string, width int) string {
	const percentWidth = 6
	barWidth := max(5, width-len(label)-1-percentWidth-4)

	labelStr := lipgloss.NewStyle().Foreground(styles.TextSecondary).Render(label)
	percentStr := styles.GetUsageStyle(percent).
		Width(percentWidth).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%.0f%%", percent))

	return fmt.Sprintf("%s [%s] %s", labelStr, RenderGradientBar(percent, barWidth), percentStr)
}

// UsageBarLoading renders a shimmering placeholder while data is in flight.
func UsageBarLoading(width, frame int) string {
	const (
		indentWidth  = 4
		percentWidth = 6
		cycle        = 120
	)

	barWidth := max(10, width-indentWidth-percentWidth-4)

	t := float64(frame%cycle) / float64(cycle)
	p := t * 2
	if t >= 0.5 {
		p = (1 - t) * 2
	}
	eased := p * p * (3 - 2*p)
	shimmerPos := int(eased * float64(barWidth))

	var b strings.Builder
	for i := range barWidth {
		dist := shimmerPos - i
		if dist < 0 {
			dist = -dist
		}
		switch {
		case dist < 3:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).Render("▓"))
		case dist < 5:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.TextSecondary).Render("▒"))
		default:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.BgLight).Render("░"))
		}
	}

	dots := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	dot := lipgloss.NewStyle().
		Width(percentWidth).
		Align(lipgloss.Right).
		Foreground(styles.Primary).
		Render(dots[(frame/2)%len(dots)])

	return lipgloss.JoinHorizontal(lipgloss.Left, "    ", b.String(), " ", dot)
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func interpolateColor(fromHex, toHex string, t float64) string {
	from := hexToRGB(fromHex)
	to := hexToRGB(toHex)

	r := int(float64(from[0]) + t*(float64(to[0])-float64(from[0])))
	g := int(float64(from[1]) + t*(float64(to[1])-float64(from[1])))
	b := int(float64(from[2]) + t*(float64(to[2])-float64(from[2])))

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hexToRGB(hex string) [3]int {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		logger.Error("failed to parse hex color", "hex", hex, "error", err)
		return [3]int{0, 0, 0}
	}
	return [3]int{r, g, b}
}
