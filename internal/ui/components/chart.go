// Package components provides reusable UI components for the TUI.
package components

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/ga4-dashboard-tui/internal/ui/styles"
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderLineChart creates a single-series ASCII line chart.
func RenderLineChart(data []float64, width, height int, caption string) string {
	if len(data) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	return asciigraph.Plot(data,
		asciigraph.Height(max(3, height)),
		asciigraph.Width(max(20, width)),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Green),
	)
}

// RenderDualLineChart plots two series on the same axes, e.g. total and
// active users. The shorter series is padded with zeros.
func RenderDualLineChart(first, second []float64, width, height int, caption string) string {
	if len(first) == 0 && len(second) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	n := max(len(first), len(second))
	a := make([]float64, n)
	b := make([]float64, n)
	copy(a, first)
	copy(b, second)

	return asciigraph.PlotMany([][]float64{a, b},
		asciigraph.Height(max(3, height)),
		asciigraph.Width(max(20, width)),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.DodgerBlue, asciigraph.DarkCyan),
	)
}

// RenderBarChart creates a simple horizontal bar chart.
func RenderBarChart(values []float64, labels []string, width int) string {
	if len(values) == 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = math.Max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	maxLabelLen := 0
	for _, l := range labels {
		maxLabelLen = max(maxLabelLen, len(l))
	}

	barWidth := max(10, width-maxLabelLen-10)

	lines := make([]string, 0, len(values))
	for i, v := range values {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}

		barLen := max(0, int((v/maxVal)*float64(barWidth)))
		line := fmt.Sprintf("%*s │%s %s", maxLabelLen, label, strings.Repeat("█", barLen), FormatCount(v))
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// RenderSparkline creates a compact inline sparkline chart.
func RenderSparkline(values []float64, width int) string {
	var b strings.Builder
	for _, level := range sparkLevels(values, width) {
		b.WriteRune(sparkChars[level])
	}
	return b.String()
}

// RenderColoredSparkline creates a sparkline colored by relative height.
func RenderColoredSparkline(values []float64, width int) string {
	var b strings.Builder
	for _, level := range sparkLevels(values, width) {
		percent := float64(level) / float64(len(sparkChars)-1) * 100
		b.WriteString(styles.GetUsageStyle(percent).Render(string(sparkChars[level])))
	}
	return b.String()
}

// sparkLevels samples values down to width points and maps each onto an
// index of sparkChars.
func sparkLevels(values []float64, width int) []int {
	if len(values) == 0 || width <= 0 {
		return nil
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = math.Max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	step := math.Max(1, float64(len(values))/float64(width))

	var levels []int
	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		v := values[int(float64(i)*step)]
		level := int((v / maxVal) * float64(len(sparkChars)-1))
		levels = append(levels, min(max(level, 0), len(sparkChars)-1))
	}
	return levels
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", colorBox, item.Label))
	}
	return strings.Join(parts, "  ")
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}

// FormatCount renders a count with a k/M suffix.
func FormatCount(v float64) string {
	switch {
	case math.Abs(v) >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case math.Abs(v) >= 10_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	case v == math.Trunc(v):
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.1f", v)
	}
}

// FormatDelta renders a percentage change, or "n/a" when there is none.
func FormatDelta(delta *float64) string {
	if delta == nil {
		return styles.HelpStyle.Render("n/a")
	}
	arrow := "▲"
	if *delta < 0 {
		arrow = "▼"
	}
	return styles.GetDeltaStyle(*delta).Render(fmt.Sprintf("%s %.1f%%", arrow, math.Abs(*delta)))
}
