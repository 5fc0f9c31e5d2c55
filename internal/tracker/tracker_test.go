package tracker

import (
	"errors"
	"iter"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/timelog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memStore struct {
	mu        sync.Mutex
	intervals []model.Interval
	appendErr error
	readErr   error
}

func (s *memStore) Append(iv model.Interval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.intervals = append(s.intervals, iv)
	return nil
}

func (s *memStore) ReadAll() iter.Seq2[model.Interval, error] {
	return func(yield func(model.Interval, error) bool) {
		s.mu.Lock()
		snapshot := append([]model.Interval(nil), s.intervals...)
		readErr := s.readErr
		s.mu.Unlock()

		if readErr != nil {
			yield(model.Interval{}, readErr)
			return
		}
		for _, iv := range snapshot {
			if !yield(iv, nil) {
				return
			}
		}
	}
}

func local(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.Local)
}

func newTracker(store Store, start time.Time) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: start}
	return New(store, WithClock(clock.Now)), clock
}

func TestStartStop_AppendsInterval(t *testing.T) {
	store := &memStore{}
	tr, clock := newTracker(store, local(2024, time.June, 10, 9, 0))

	require.True(t, tr.Start())
	assert.True(t, tr.IsRunning())

	clock.Advance(2 * time.Hour)
	iv, stopped, err := tr.Stop()
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, 2*time.Hour, iv.Duration())
	assert.False(t, tr.IsRunning())
	assert.Equal(t, []model.Interval{iv}, store.intervals)
}

func TestStart_WhileRunningKeepsOriginalStart(t *testing.T) {
	tr, clock := newTracker(&memStore{}, local(2024, time.June, 10, 9, 0))

	require.True(t, tr.Start())
	clock.Advance(time.Hour)
	assert.False(t, tr.Start())

	since, ok := tr.RunningSince()
	require.True(t, ok)
	assert.Equal(t, local(2024, time.June, 10, 9, 0), since)
}

func TestStop_WhenStoppedIsNoop(t *testing.T) {
	store := &memStore{}
	tr, _ := newTracker(store, local(2024, time.June, 10, 9, 0))

	_, stopped, err := tr.Stop()
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Empty(t, store.intervals)
}

func TestStop_ClockSkewDiscardsInterval(t *testing.T) {
	store := &memStore{}
	tr, clock := newTracker(store, local(2024, time.June, 10, 9, 0))

	tr.Start()
	clock.Advance(-time.Minute)
	_, stopped, err := tr.Stop()
	require.ErrorIs(t, err, ErrClockSkew)
	assert.True(t, stopped)
	assert.False(t, tr.IsRunning())
	assert.Empty(t, store.intervals)
}

func TestStop_ZeroLengthIsClockSkew(t *testing.T) {
	tr, _ := newTracker(&memStore{}, local(2024, time.June, 10, 9, 0))

	tr.Start()
	_, _, err := tr.Stop()
	assert.ErrorIs(t, err, ErrClockSkew)
}

func TestStop_AppendFailureKeepsSessionRunning(t *testing.T) {
	diskFull := errors.New("disk full")
	store := &memStore{appendErr: diskFull}
	start := local(2024, time.June, 10, 9, 0)
	tr, clock := newTracker(store, start)

	tr.Start()
	clock.Advance(time.Hour)
	_, stopped, err := tr.Stop()
	require.ErrorIs(t, err, diskFull)
	assert.False(t, stopped)

	since, ok := tr.RunningSince()
	require.True(t, ok)
	assert.Equal(t, start, since)

	store.mu.Lock()
	store.appendErr = nil
	store.mu.Unlock()

	clock.Advance(time.Hour)
	iv, stopped, err := tr.Stop()
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, 2*time.Hour, iv.Duration())
}

func TestTryAutoStopOnExit(t *testing.T) {
	store := &memStore{}
	tr, clock := newTracker(store, local(2024, time.June, 10, 9, 0))

	require.NoError(t, tr.TryAutoStopOnExit())
	assert.Empty(t, store.intervals)

	tr.Start()
	clock.Advance(45 * time.Minute)
	require.NoError(t, tr.TryAutoStopOnExit())
	assert.False(t, tr.IsRunning())
	require.Len(t, store.intervals, 1)
	assert.Equal(t, 45*time.Minute, store.intervals[0].Duration())
}

func TestStatusText(t *testing.T) {
	tr, _ := newTracker(&memStore{}, local(2024, time.June, 10, 9, 5))
	assert.Equal(t, "Stopped", tr.StatusText())

	tr.Start()
	assert.Equal(t, "Running since 10.06.2024 09:05:00", tr.StatusText())
}

func TestTotals_IncludesRunningSession(t *testing.T) {
	store := &memStore{intervals: []model.Interval{
		{Start: local(2024, time.January, 1, 9, 0), End: local(2024, time.January, 1, 17, 0)},
		{Start: local(2024, time.January, 8, 9, 0), End: local(2024, time.January, 8, 12, 0)},
	}}
	tr, clock := newTracker(store, local(2024, time.January, 9, 10, 0))

	tr.Start()
	clock.Advance(30 * time.Minute)

	rows, err := tr.Totals(20)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Week)
	assert.Equal(t, "03:30", rows[0].DurationText)
	assert.Equal(t, 1, rows[1].Week)
	assert.Equal(t, "08:00", rows[1].DurationText)
	assert.Len(t, store.intervals, 2, "totals must not persist the running session")
}

func TestTotals_Limits(t *testing.T) {
	store := &memStore{intervals: []model.Interval{
		{Start: local(2024, time.January, 1, 9, 0), End: local(2024, time.January, 1, 10, 0)},
		{Start: local(2024, time.January, 8, 9, 0), End: local(2024, time.January, 8, 10, 0)},
	}}
	tr, _ := newTracker(store, local(2024, time.January, 9, 10, 0))

	rows, err := tr.Totals(1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Week)

	rows, err = tr.Totals(0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = tr.Totals(-1)
	assert.Error(t, err)
}

func TestTotals_ReadErrorPropagates(t *testing.T) {
	boom := errors.New("permission denied")
	tr, _ := newTracker(&memStore{readErr: boom}, local(2024, time.January, 9, 10, 0))

	_, err := tr.Totals(20)
	assert.ErrorIs(t, err, boom)

	_, err = tr.CurrentWeekTotal(local(2024, time.January, 9, 10, 0))
	assert.ErrorIs(t, err, boom)
}

func TestCurrentWeekTotal(t *testing.T) {
	store := &memStore{intervals: []model.Interval{
		// previous week, straddling into Monday by 30 minutes
		{Start: local(2024, time.January, 7, 23, 0), End: local(2024, time.January, 8, 0, 30)},
		{Start: local(2024, time.January, 9, 9, 0), End: local(2024, time.January, 9, 10, 0)},
	}}
	now := local(2024, time.January, 10, 12, 0)
	tr, clock := newTracker(store, now.Add(-90*time.Minute))

	tr.Start()
	clock.Set(now)

	total, err := tr.CurrentWeekTotal(now)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute+time.Hour+90*time.Minute, total)
}

func TestWithHistory_ReadsFromOverride(t *testing.T) {
	store := &memStore{}
	cached := &memStore{intervals: []model.Interval{
		{Start: local(2024, time.January, 1, 9, 0), End: local(2024, time.January, 1, 10, 0)},
	}}
	clock := &fakeClock{now: local(2024, time.January, 2, 9, 0)}
	tr := New(store, WithClock(clock.Now), WithHistory(cached))

	rows, err := tr.Totals(5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "01:00", rows[0].DurationText)
}

func TestTracker_WithFileLog(t *testing.T) {
	log := timelog.New(filepath.Join(t.TempDir(), "times.txt"))
	tr, clock := newTracker(log, local(2024, time.March, 4, 8, 0))

	tr.Start()
	clock.Advance(4 * time.Hour)
	_, _, err := tr.Stop()
	require.NoError(t, err)

	clock.Advance(time.Hour)
	tr.Start()
	clock.Advance(2 * time.Hour)
	_, _, err = tr.Stop()
	require.NoError(t, err)

	rows, err := tr.Totals(20)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "06:00", rows[0].DurationText)
}

func TestTracker_ConcurrentStartStop(t *testing.T) {
	store := &memStore{}
	tr, clock := newTracker(store, local(2024, time.March, 4, 8, 0))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Start()
		}()
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_, _, _ = tr.Stop()
		}()
	}
	wg.Wait()
	_, _, _ = tr.Stop()

	for _, iv := range store.intervals {
		assert.True(t, iv.Valid())
	}
}
