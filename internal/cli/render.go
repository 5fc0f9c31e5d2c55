package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/timetray/internal/report"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Align(lipgloss.Center)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	valueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	footerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	runningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorGreen)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	dimStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)
)

// Table represents a bordered text table for CLI output. The first column is
// left-aligned, the rest right-aligned.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Footer  []string // optional row below a separator, e.g. totals
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(40).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderTable renders a bordered table with headers, rows and footer.
func RenderTable(t Table) string {
	numCols := len(t.Headers)
	if numCols == 0 && len(t.Rows) > 0 {
		numCols = len(t.Rows[0])
	}
	if numCols == 0 {
		return ""
	}

	widths := make([]int, numCols)
	measure := func(row []string) {
		for i, cell := range row {
			if i < numCols && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	measure(t.Headers)
	for _, row := range t.Rows {
		measure(row)
	}
	measure(t.Footer)

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	b.WriteString(rule(widths, "╭", "┬", "╮"))
	if len(t.Headers) > 0 {
		b.WriteString(row(widths, t.Headers, headerStyle, false))
		b.WriteString(rule(widths, "├", "┼", "┤"))
	}
	for _, r := range t.Rows {
		b.WriteString(row(widths, r, valueStyle, true))
	}
	if len(t.Footer) > 0 {
		b.WriteString(rule(widths, "├", "┼", "┤"))
		b.WriteString(row(widths, t.Footer, footerStyle, true))
	}
	b.WriteString(rule(widths, "╰", "┴", "╯"))
	return b.String()
}

func rule(widths []int, left, mid, right string) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("─", w+2)
	}
	return dimStyle.Render(left+strings.Join(parts, mid)+right) + "\n"
}

func row(widths []int, cells []string, style lipgloss.Style, alignRight bool) string {
	var b strings.Builder
	b.WriteString(dimStyle.Render("│"))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", w-lipgloss.Width(cell))
		if alignRight && i > 0 {
			cell = pad + cell
		} else {
			cell += pad
		}
		b.WriteString(style.Render(" " + cell + " "))
		b.WriteString(dimStyle.Render("│"))
	}
	b.WriteString("\n")
	return b.String()
}

// RenderStatus renders the tracking state line.
func RenderStatus(running bool, text string) string {
	if running {
		return runningStyle.Render("● ") + valueStyle.Render(text)
	}
	return stoppedStyle.Render("○ " + text)
}

// RenderError renders an error line for stderr.
func RenderError(msg string) string {
	return errorStyle.Render("  " + msg)
}

// RenderMuted renders secondary text.
func RenderMuted(s string) string {
	return mutedStyle.Render(s)
}

// RenderTargetBar renders progress toward a weekly target, e.g.
// [█████░░░░░] 21:30 / 40:00 (54%).
func RenderTargetBar(done, target time.Duration, width int) string {
	if target <= 0 || width <= 0 {
		return ""
	}

	pct := float64(done) / float64(target)
	filled := int(min(pct, 1) * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	style := mutedStyle
	if pct >= 1 {
		style = runningStyle
	}
	return fmt.Sprintf("[%s] %s / %s (%s)",
		style.Render(bar), report.FormatHHMM(done), report.FormatHHMM(target), FormatPercent(pct))
}

// RenderSparkline generates a unicode block sparkline from a series of values.
func RenderSparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	peak := values[0]
	for _, v := range values[1:] {
		peak = max(peak, v)
	}
	if peak <= 0 {
		peak = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(v / peak * float64(len(blocks)-1))
		idx = max(0, min(idx, len(blocks)-1))
		b.WriteRune(blocks[idx])
	}

	return b.String()
}
