// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatDuration formats a duration compactly.
// e.g., 3h 2m, 12m, 45s
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	secs := int64(d / time.Second)
	hours := secs / 3600
	mins := (secs % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatWeek labels an ISO week, e.g. 2024-W02.
func FormatWeek(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// FormatDateRange renders the days of a half-open range [from, to).
func FormatDateRange(from, to time.Time) string {
	last := to.Add(-time.Nanosecond)
	return from.Format("Mon 02 Jan") + " - " + last.Format("Mon 02 Jan 2006")
}

// FormatSince renders a start time with its age, e.g.
// "09:05 (2 hours ago)".
func FormatSince(since, now time.Time) string {
	clock := since.Format("15:04")
	if since.YearDay() != now.YearDay() || since.Year() != now.Year() {
		clock = since.Format("02.01. 15:04")
	}
	return clock + " (" + humanize.RelTime(since, now, "ago", "from now") + ")"
}

// FormatPercent formats a 0-1 float as a percentage string.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}
