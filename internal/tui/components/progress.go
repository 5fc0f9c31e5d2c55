package components

import (
	"fmt"

	"github.com/theirongolddev/timetray/internal/tui/theme"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// TargetBar renders progress toward the weekly target with a percentage.
// The bar turns to the running color once the target is met.
func TargetBar(pct float64, width int) string {
	t := theme.Active

	pct = max(pct, 0)
	color := t.Accent
	if pct >= 1 {
		color = t.Running
	}

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithWidth(max(width-6, 4)),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	pctStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	return bar.ViewAs(min(pct, 1)) + " " + pctStyle.Render(fmt.Sprintf("%3.0f%%", pct*100))
}
