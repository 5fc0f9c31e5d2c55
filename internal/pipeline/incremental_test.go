package pipeline

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/store"
	"github.com/theirongolddev/timetray/internal/timelog"
)

func setup(t *testing.T) (*timelog.Log, *store.Cache, *CachedHistory) {
	t.Helper()
	dir := t.TempDir()
	l := timelog.New(filepath.Join(dir, "times.txt"))
	c, err := store.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return l, c, NewCachedHistory(l, c, zerolog.Nop())
}

func workday(day int) model.Interval {
	start := time.Date(2024, time.April, day, 9, 0, 0, 0, time.Local)
	return model.Interval{Start: start, End: start.Add(8 * time.Hour)}
}

func appendRaw(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func readAll(t *testing.T, h *CachedHistory) []model.Interval {
	t.Helper()
	var out []model.Interval
	for iv, err := range h.ReadAll() {
		require.NoError(t, err)
		out = append(out, iv)
	}
	return out
}

func TestSync_MissingLog(t *testing.T) {
	_, _, h := setup(t)

	res, err := h.Sync()
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, readAll(t, h))
}

func TestSync_FullThenHitThenTail(t *testing.T) {
	l, _, h := setup(t)
	require.NoError(t, l.Append(workday(1)))
	require.NoError(t, l.Append(workday(2)))

	res, err := h.Sync()
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Equal(t, 2, res.Parsed)
	assert.Equal(t, 2, res.Total)

	res, err = h.Sync()
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, 2, res.Total)

	require.NoError(t, l.Append(workday(3)))
	res, err = h.Sync()
	require.NoError(t, err)
	assert.False(t, res.Full)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 1, res.Parsed)
	assert.Equal(t, 3, res.Total)
}

func TestSync_PartialLineCompletedLater(t *testing.T) {
	l, _, h := setup(t)
	require.NoError(t, l.Append(workday(1)))
	_, err := h.Sync()
	require.NoError(t, err)

	record := timelog.FormatRecord(workday(2)) + "\n"
	half := len(record) / 2
	appendRaw(t, l.Path(), record[:half])

	res, err := h.Sync()
	require.NoError(t, err)
	assert.Zero(t, res.Parsed)
	assert.Equal(t, 1, res.Total)

	appendRaw(t, l.Path(), record[half:])
	res, err = h.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Parsed)
	assert.Equal(t, 2, res.Total)
}

func TestSync_CountsMalformedTail(t *testing.T) {
	l, _, h := setup(t)
	require.NoError(t, l.Append(workday(1)))
	_, err := h.Sync()
	require.NoError(t, err)

	appendRaw(t, l.Path(), "garbage\n\n")
	require.NoError(t, l.Append(workday(2)))

	res, err := h.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Parsed)
}

func TestSync_ShrunkLogIsReparsed(t *testing.T) {
	l, _, h := setup(t)
	for day := 1; day <= 3; day++ {
		require.NoError(t, l.Append(workday(day)))
	}
	_, err := h.Sync()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(l.Path(), []byte(timelog.FormatRecord(workday(9))+"\n"), 0o600))

	res, err := h.Sync()
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Equal(t, 1, res.Total)

	got := readAll(t, h)
	require.Len(t, got, 1)
	assert.True(t, workday(9).Start.Equal(got[0].Start))
}

func TestSync_DeletedLogClearsCache(t *testing.T) {
	l, c, h := setup(t)
	require.NoError(t, l.Append(workday(1)))
	_, err := h.Sync()
	require.NoError(t, err)

	require.NoError(t, os.Remove(l.Path()))
	_, err = h.Sync()
	require.NoError(t, err)

	n, err := c.IntervalCount(l.Path())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadAll_MatchesLog(t *testing.T) {
	l, _, h := setup(t)
	for day := 1; day <= 5; day++ {
		require.NoError(t, l.Append(workday(day)))
	}

	var direct []model.Interval
	for iv, err := range l.ReadAll() {
		require.NoError(t, err)
		direct = append(direct, iv)
	}

	cached := readAll(t, h)
	require.Len(t, cached, len(direct))
	for i := range direct {
		assert.True(t, direct[i].Start.Equal(cached[i].Start))
		assert.True(t, direct[i].End.Equal(cached[i].End))
	}
}

func TestReadAll_MatchesLogWithoutFinalNewline(t *testing.T) {
	l, _, h := setup(t)
	require.NoError(t, l.Append(workday(1)))
	appendRaw(t, l.Path(), timelog.FormatRecord(workday(2)))

	var direct []model.Interval
	for iv, err := range l.ReadAll() {
		require.NoError(t, err)
		direct = append(direct, iv)
	}
	require.Len(t, direct, 2)

	// Twice: the second read is a cache hit and must still see the record.
	for range 2 {
		cached := readAll(t, h)
		require.Len(t, cached, len(direct))
		assert.True(t, direct[1].Start.Equal(cached[1].Start))
		assert.True(t, direct[1].End.Equal(cached[1].End))
	}

	// Completing the line caches it exactly once.
	appendRaw(t, l.Path(), "\n")
	res, err := h.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Parsed)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, readAll(t, h), 2)
}

func TestReadAll_FallsBackWhenCacheClosed(t *testing.T) {
	l, c, h := setup(t)
	require.NoError(t, l.Append(workday(1)))
	require.NoError(t, c.Close())

	got := readAll(t, h)
	assert.Len(t, got, 1)
}

func TestCachePath_UsesXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/xdg/cache")
	assert.Equal(t, filepath.Join("/xdg/cache", "timetray", "intervals.db"), CachePath())
}

func TestSync_ConcurrentCallersAppendTailOnce(t *testing.T) {
	l, c, h := setup(t)
	require.NoError(t, l.Append(workday(1)))
	_, err := h.Sync()
	require.NoError(t, err)

	require.NoError(t, l.Append(workday(2)))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.Sync()
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	n, err := c.IntervalCount(l.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "tail must be cached exactly once")
}
