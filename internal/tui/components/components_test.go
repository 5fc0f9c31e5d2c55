package components

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/tui/theme"
)

func init() {
	lipgloss.SetColorProfile(termenv.TrueColor)
}

func TestLayoutRowSumsToTotal(t *testing.T) {
	for _, tc := range []struct{ total, n int }{{100, 3}, {81, 4}, {7, 7}, {50, 1}} {
		widths := LayoutRow(tc.total, tc.n)
		if len(widths) != tc.n {
			t.Fatalf("LayoutRow(%d, %d) returned %d widths", tc.total, tc.n, len(widths))
		}
		sum := 0
		for _, w := range widths {
			sum += w
		}
		if sum != tc.total {
			t.Errorf("LayoutRow(%d, %d) sums to %d", tc.total, tc.n, sum)
		}
	}
	if LayoutRow(10, 0) != nil {
		t.Error("LayoutRow with zero items should be nil")
	}
}

func TestMetricCardRowHeightMatchesTallest(t *testing.T) {
	theme.SetActive("flexoki-dark")

	row := MetricCardRow([]Metric{
		{Label: "Status", Value: "Running", Detail: "since 09:05"},
		{Label: "This week", Value: "12:30"},
	}, 60)

	// Border plus label, value and detail.
	if got := len(strings.Split(row, "\n")); got != 5 {
		t.Errorf("row height = %d, want 5", got)
	}
}

func TestWeekBarsScalesToPeak(t *testing.T) {
	theme.SetActive("flexoki-dark")

	rows := []model.WeekRow{
		{Year: 2024, Week: 3, DurationText: "10:00", Duration: 10 * time.Hour},
		{Year: 2024, Week: 2, DurationText: "05:00", Duration: 5 * time.Hour},
		{Year: 2024, Week: 1, DurationText: "00:01", Duration: time.Minute},
	}
	out := WeekBars(rows, model.WeekKey{ISOYear: 2024, ISOWeek: 3}, 40)
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	// 40 columns minus the label, the value and two spaces.
	const barW = 40 - 9 - 5 - 2
	want := []int{barW, barW / 2, 1}
	for i, line := range lines {
		if got := strings.Count(line, "█"); got != want[i] {
			t.Errorf("line %d has %d blocks, want %d: %q", i, got, want[i], line)
		}
	}
	if !strings.Contains(lines[0], "2024-W03") {
		t.Errorf("first line should be labeled 2024-W03: %q", lines[0])
	}
}

func TestWeekBarsEmpty(t *testing.T) {
	theme.SetActive("flexoki-dark")

	if out := WeekBars(nil, model.WeekKey{}, 40); !strings.Contains(out, "No tracked time yet") {
		t.Errorf("empty WeekBars = %q", out)
	}
}

func TestStatusBarErrorReplacesHints(t *testing.T) {
	theme.SetActive("flexoki-dark")

	ok := RenderStatusBar(60, "s start", "local", "")
	if !strings.Contains(ok, "s start") || !strings.Contains(ok, "local") {
		t.Errorf("status bar missing hints or backend: %q", ok)
	}

	failed := RenderStatusBar(60, "s start", "local", "disk full")
	if strings.Contains(failed, "s start") {
		t.Errorf("error should replace hints: %q", failed)
	}
	if !strings.Contains(failed, "disk full") {
		t.Errorf("error text missing: %q", failed)
	}
}

func TestTargetBarPercent(t *testing.T) {
	theme.SetActive("flexoki-dark")

	if out := TargetBar(1.5, 30); !strings.Contains(out, "150%") {
		t.Errorf("over-target bar should report 150%%: %q", out)
	}
	if out := TargetBar(-0.2, 30); !strings.Contains(out, "0%") {
		t.Errorf("negative progress should clamp to 0%%: %q", out)
	}
}
