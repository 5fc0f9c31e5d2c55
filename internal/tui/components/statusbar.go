package components

import (
	"strings"

	"github.com/theirongolddev/timetray/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// RenderStatusBar renders the bottom bar: key hints on the left, backend and
// refresh age on the right. A non-empty errText replaces the hints.
func RenderStatusBar(width int, hints, right, errText string) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Width(width)

	left := " " + hints
	if errText != "" {
		left = lipgloss.NewStyle().Foreground(t.Warning).Render(" ✗ " + errText)
	}
	right += " "

	padding := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return style.Render(left + strings.Repeat(" ", padding) + right)
}
