package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/theirongolddev/timetray/internal/isoweek"
	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/store"
	"github.com/theirongolddev/timetray/internal/timelog"
)

// benchLog writes roughly five years of two sessions per workday.
func benchLog(b *testing.B) *timelog.Log {
	b.Helper()
	l := timelog.New(filepath.Join(b.TempDir(), "times.txt"))
	day := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.Local)
	for i := 0; i < 5*365; i++ {
		d := day.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		morning := d.Add(8 * time.Hour)
		afternoon := d.Add(13 * time.Hour)
		for _, iv := range []model.Interval{
			{Start: morning, End: morning.Add(4 * time.Hour)},
			{Start: afternoon, End: afternoon.Add(4*time.Hour + 30*time.Minute)},
		} {
			if err := l.Append(iv); err != nil {
				b.Fatal(err)
			}
		}
	}
	return l
}

func BenchmarkAggregateLog(b *testing.B) {
	l := benchLog(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buckets := make(isoweek.Buckets)
		for iv, err := range l.ReadAll() {
			if err != nil {
				b.Fatal(err)
			}
			buckets.Add(iv)
		}
	}
}

func BenchmarkAggregateCached(b *testing.B) {
	l := benchLog(b)
	cache, err := store.Open(filepath.Join(b.TempDir(), "cache.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = cache.Close() }()
	h := NewCachedHistory(l, cache, zerolog.Nop())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buckets := make(isoweek.Buckets)
		for iv, err := range h.ReadAll() {
			if err != nil {
				b.Fatal(err)
			}
			buckets.Add(iv)
		}
	}
}
