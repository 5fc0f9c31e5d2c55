package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// WeekBars renders one horizontal bar per week row, scaled to the longest
// week. current marks the row drawn in the accent color.
func WeekBars(rows []model.WeekRow, current model.WeekKey, width int) string {
	if len(rows) == 0 {
		return lipgloss.NewStyle().Foreground(theme.Active.TextDim).Render("No tracked time yet")
	}
	t := theme.Active

	var peak time.Duration
	for _, r := range rows {
		peak = max(peak, r.Duration)
	}
	if peak <= 0 {
		peak = time.Minute
	}

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	barStyle := lipgloss.NewStyle().Foreground(t.Accent)
	currentStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true)

	const labelW = 9 // 2024-W02 plus a space
	valueW := 0
	for _, r := range rows {
		valueW = max(valueW, len(r.DurationText))
	}
	barW := max(width-labelW-valueW-2, 1)

	lines := make([]string, len(rows))
	for i, r := range rows {
		n := int(float64(barW) * float64(r.Duration) / float64(peak))
		if r.Duration > 0 && n == 0 {
			n = 1
		}
		style := barStyle
		if r.Year == current.ISOYear && r.Week == current.ISOWeek {
			style = currentStyle
		}
		lines[i] = labelStyle.Render(fmt.Sprintf("%04d-W%02d ", r.Year, r.Week)) +
			valueStyle.Render(fmt.Sprintf("%*s ", valueW, r.DurationText)) +
			style.Render(strings.Repeat("█", n))
	}
	return strings.Join(lines, "\n")
}
