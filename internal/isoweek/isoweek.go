// Package isoweek folds intervals into ISO-8601 week buckets.
//
// Intervals are split at local-day boundaries and each slice is attributed
// to the ISO week of the day it falls on. A session running from 23:50 to
// 00:10 therefore contributes ten minutes to each of two days, and to two
// weeks when those days straddle Sunday/Monday.
package isoweek

import (
	"iter"
	"time"

	"github.com/theirongolddev/timetray/internal/model"
)

// KeyOf returns the ISO week of t's date in t's location.
func KeyOf(t time.Time) model.WeekKey {
	y, w := t.ISOWeek()
	return model.WeekKey{ISOYear: y, ISOWeek: w}
}

// StartOfDay returns the first instant of t's date in t's location. That is
// midnight, except in zones where a DST change skips or repeats midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return StartOfNextDay(time.Date(y, m, d-1, 12, 0, 0, 0, t.Location()))
}

// StartOfNextDay returns the first instant of the day after t. It is computed
// on the calendar, not by adding 24h, so days that are 23h or 25h long around
// DST changes are handled. The result is always after t.
func StartOfNextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
	if next.After(t) && !sameDate(next, t) && sameDate(next.Add(-time.Nanosecond), t) {
		return next
	}
	// Midnight was skipped and normalized back into t's day, or it occurs
	// twice and time.Date picked the later one.
	return dateChange(t)
}

// dateChange returns the first instant after t whose local date differs
// from t's.
func dateChange(t time.Time) time.Time {
	lo, hi := t, t.Add(time.Hour)
	for sameDate(hi, t) {
		lo, hi = hi, hi.Add(time.Hour)
	}
	for hi.Sub(lo) > time.Nanosecond {
		mid := lo.Add(hi.Sub(lo) / 2)
		if sameDate(mid, t) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// WeekStart returns the first instant of the Monday that starts t's ISO week.
func WeekStart(t time.Time) time.Time {
	back := (int(t.Weekday()) - int(time.Monday) + 7) % 7
	y, m, d := t.Date()
	return StartOfDay(time.Date(y, m, d-back, 12, 0, 0, 0, t.Location()))
}

// WeekEnd returns the start of the ISO week following t's week.
func WeekEnd(t time.Time) time.Time {
	y, m, d := WeekStart(t).Date()
	return StartOfDay(time.Date(y, m, d+7, 12, 0, 0, 0, t.Location()))
}

// Clip returns the part of iv that lies within [from, to), or zero.
func Clip(iv model.Interval, from, to time.Time) time.Duration {
	a := iv.Start
	if a.Before(from) {
		a = from
	}
	b := iv.End
	if b.After(to) {
		b = to
	}
	if !b.After(a) {
		return 0
	}
	return b.Sub(a)
}

// Buckets maps ISO weeks to accumulated durations. A key is present only if
// some slice contributed to it.
type Buckets map[model.WeekKey]time.Duration

// Add splits iv at local-day boundaries and adds every slice to the bucket of
// the ISO week its day belongs to. Intervals without a positive duration are
// ignored.
func (b Buckets) Add(iv model.Interval) {
	if !iv.Valid() {
		return
	}
	cursor := iv.Start
	for cursor.Before(iv.End) {
		next := StartOfNextDay(cursor)
		if next.After(iv.End) {
			next = iv.End
		}
		b[KeyOf(cursor)] += next.Sub(cursor)
		cursor = next
	}
}

// Sum returns the total duration over all buckets.
func (b Buckets) Sum() time.Duration {
	var total time.Duration
	for _, d := range b {
		total += d
	}
	return total
}

// Totals flattens the buckets into week totals in no particular order.
func (b Buckets) Totals() []model.WeekTotal {
	out := make([]model.WeekTotal, 0, len(b))
	for k, d := range b {
		out = append(out, model.WeekTotal{Key: k, Duration: d})
	}
	return out
}

// Aggregate folds every interval of seq into a fresh set of buckets.
func Aggregate(seq iter.Seq[model.Interval]) Buckets {
	b := make(Buckets)
	for iv := range seq {
		b.Add(iv)
	}
	return b
}
