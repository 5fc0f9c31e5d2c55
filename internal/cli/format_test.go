package cli

import (
	"strings"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{12 * time.Minute, "12m"},
		{3*time.Hour + 2*time.Minute + 5*time.Second, "3h 2m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatWeek(t *testing.T) {
	if got := FormatWeek(2024, 2); got != "2024-W02" {
		t.Errorf("FormatWeek = %q", got)
	}
}

func TestFormatDateRange(t *testing.T) {
	from := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.Local)
	got := FormatDateRange(from, from.AddDate(0, 0, 7))
	if got != "Mon 08 Jan - Sun 14 Jan 2024" {
		t.Errorf("FormatDateRange = %q", got)
	}
}

func TestFormatSince(t *testing.T) {
	now := time.Date(2024, time.January, 8, 11, 5, 0, 0, time.Local)
	got := FormatSince(now.Add(-2*time.Hour), now)
	if !strings.HasPrefix(got, "09:05 (") || !strings.Contains(got, "ago") {
		t.Errorf("FormatSince same day = %q", got)
	}

	got = FormatSince(now.AddDate(0, 0, -1), now)
	if !strings.HasPrefix(got, "07.01. 11:05") {
		t.Errorf("FormatSince previous day = %q", got)
	}
}

func TestRenderTable_ContainsCells(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Week", "Hours"},
		Rows:    [][]string{{"2024-W02", "03:00"}, {"2024-W01", "08:00"}},
		Footer:  []string{"Total", "11:00"},
	})
	for _, want := range []string{"Week", "2024-W02", "08:00", "Total", "11:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if RenderTable(Table{}) != "" {
		t.Error("empty table should render nothing")
	}
}

func TestRenderTargetBar(t *testing.T) {
	if RenderTargetBar(time.Hour, 0, 10) != "" {
		t.Error("no target should render nothing")
	}
	out := RenderTargetBar(20*time.Hour, 40*time.Hour, 10)
	if !strings.Contains(out, "20:00 / 40:00") || !strings.Contains(out, "50%") {
		t.Errorf("RenderTargetBar = %q", out)
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := RenderSparkline([]float64{0, 4, 8}); got != "▁▄█" {
		t.Errorf("RenderSparkline = %q", got)
	}
	if RenderSparkline(nil) != "" {
		t.Error("empty input should render nothing")
	}
}
