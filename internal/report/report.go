// Package report turns week buckets into ordered rows for display.
package report

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/theirongolddev/timetray/internal/isoweek"
	"github.com/theirongolddev/timetray/internal/model"
)

// ErrNegativeLimit is returned by Rows when maxWeeks is negative.
var ErrNegativeLimit = errors.New("maxWeeks must not be negative")

// Rows projects buckets to week rows, most recent ISO week first, truncated
// to maxWeeks entries. A zero limit yields an empty list.
func Rows(b isoweek.Buckets, maxWeeks int) ([]model.WeekRow, error) {
	if maxWeeks < 0 {
		return nil, ErrNegativeLimit
	}
	if maxWeeks == 0 {
		return []model.WeekRow{}, nil
	}

	rows := make([]model.WeekRow, 0, len(b))
	for k, d := range b {
		rows = append(rows, model.WeekRow{
			Year:         k.ISOYear,
			Week:         k.ISOWeek,
			DurationText: FormatHHMM(d),
			Duration:     d,
			SortKey:      k.SortKey(),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SortKey > rows[j].SortKey
	})

	if len(rows) > maxWeeks {
		rows = rows[:maxWeeks]
	}
	return rows, nil
}

// FormatHHMM renders d as zero-padded hours and minutes. Hours are not
// wrapped at 24, so a 30-hour week reads "30:00". Seconds are truncated.
func FormatHHMM(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalMinutes := int64(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", totalMinutes/60, totalMinutes%60)
}

// CurrentWeekTotal sums the parts of every interval that fall inside the ISO
// week containing now. Intervals are clipped directly against the week
// rather than split per day.
func CurrentWeekTotal(intervals iter.Seq[model.Interval], now time.Time) time.Duration {
	weekStart := isoweek.WeekStart(now)
	weekEnd := isoweek.WeekEnd(now)

	var sum time.Duration
	for iv := range intervals {
		sum += isoweek.Clip(iv, weekStart, weekEnd)
	}
	return sum
}

// Total sums the durations of rows.
func Total(rows []model.WeekRow) time.Duration {
	var total time.Duration
	for _, r := range rows {
		total += r.Duration
	}
	return total
}
