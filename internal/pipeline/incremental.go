package pipeline

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/store"
	"github.com/theirongolddev/timetray/internal/timelog"
)

// SyncResult describes what a Sync had to do to bring the cache up to date.
type SyncResult struct {
	CacheHit bool // log unchanged since the last sync
	Full     bool // log was reparsed from the start
	Parsed   int  // intervals parsed in this sync
	Skipped  int  // malformed lines seen in this sync
	Total    int  // intervals cached after the sync
}

// CachedHistory serves a log's intervals from the SQLite cache, parsing only
// the bytes appended since the previous sync.
type CachedHistory struct {
	log   *timelog.Log
	cache *store.Cache
	zl    zerolog.Logger

	mu sync.Mutex // one sync at a time per history
}

// maxSyncAttempts bounds retries when another process advances the cache
// between our read of the state and our write.
const maxSyncAttempts = 3

// NewCachedHistory returns a history source for l backed by cache.
func NewCachedHistory(l *timelog.Log, cache *store.Cache, logger zerolog.Logger) *CachedHistory {
	return &CachedHistory{log: l, cache: cache, zl: logger}
}

// Sync diffs the log against the cache and parses what changed. A log that
// only grew is parsed from the stored offset; any other change triggers a
// full reparse.
func (h *CachedHistory) Sync() (SyncResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sync()
}

func (h *CachedHistory) sync() (SyncResult, error) {
	var (
		res SyncResult
		err error
	)
	for range maxSyncAttempts {
		res, err = h.syncOnce()
		if !errors.Is(err, store.ErrStateChanged) {
			break
		}
	}
	return res, err
}

func (h *CachedHistory) syncOnce() (SyncResult, error) {
	path := h.log.Path()

	info, err := h.log.Stat()
	if err != nil {
		return SyncResult{}, err
	}

	state, tracked, err := h.cache.GetLogState(path)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading cache: %w", err)
	}

	if !info.Exists {
		if tracked {
			if err := h.cache.Forget(path); err != nil {
				return SyncResult{}, fmt.Errorf("clearing cache: %w", err)
			}
		}
		return SyncResult{CacheHit: !tracked}, nil
	}

	mtimeNs := info.ModTime.UnixNano()
	if tracked && state.SizeBytes == info.Size && state.MtimeNs == mtimeNs {
		n, err := h.cache.IntervalCount(path)
		if err != nil {
			return SyncResult{}, fmt.Errorf("reading cache: %w", err)
		}
		return SyncResult{CacheHit: true, Total: n}, nil
	}

	var res SyncResult
	if tracked && info.Size > state.SizeBytes && state.Offset <= info.Size {
		chunk, err := h.log.ReadFrom(state.Offset)
		if err != nil {
			return SyncResult{}, err
		}
		next := store.LogState{
			Path:      path,
			SizeBytes: info.Size,
			MtimeNs:   mtimeNs,
			Offset:    chunk.Next,
			Skipped:   state.Skipped + chunk.Skipped,
		}
		if err := h.cache.AppendIntervals(state.Offset, next, chunk.Intervals); err != nil {
			return SyncResult{}, fmt.Errorf("updating cache: %w", err)
		}
		res = SyncResult{Parsed: len(chunk.Intervals), Skipped: chunk.Skipped}
	} else {
		chunk, err := h.log.ReadFrom(0)
		if err != nil {
			return SyncResult{}, err
		}
		next := store.LogState{
			Path:      path,
			SizeBytes: info.Size,
			MtimeNs:   mtimeNs,
			Offset:    chunk.Next,
			Skipped:   chunk.Skipped,
		}
		if err := h.cache.ReplaceIntervals(next, chunk.Intervals); err != nil {
			return SyncResult{}, fmt.Errorf("updating cache: %w", err)
		}
		res = SyncResult{Full: true, Parsed: len(chunk.Intervals), Skipped: chunk.Skipped}
	}

	if res.Total, err = h.cache.IntervalCount(path); err != nil {
		return SyncResult{}, fmt.Errorf("reading cache: %w", err)
	}

	h.zl.Debug().
		Str("log", path).
		Bool("full", res.Full).
		Int("parsed", res.Parsed).
		Int("skipped", res.Skipped).
		Int("total", res.Total).
		Msg("interval cache synced")
	return res, nil
}

// ReadAll syncs and yields the cached intervals in file order. If the cache
// cannot be used the log is read directly, so a broken cache never hides
// history.
func (h *CachedHistory) ReadAll() iter.Seq2[model.Interval, error] {
	return func(yield func(model.Interval, error) bool) {
		intervals, err := h.load()
		if err != nil {
			h.zl.Warn().Err(err).Str("log", h.log.Path()).Msg("interval cache unavailable, reading log directly")
			for iv, err := range h.log.ReadAll() {
				if !yield(iv, err) {
					return
				}
			}
			return
		}
		for _, iv := range intervals {
			if !yield(iv, nil) {
				return
			}
		}
	}
}

func (h *CachedHistory) load() ([]model.Interval, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.sync(); err != nil {
		return nil, err
	}
	path := h.log.Path()
	intervals, err := h.cache.LoadIntervals(path)
	if err != nil {
		return nil, err
	}

	// A final line without its newline is never cached, since it may still
	// grow. Read it from the log so it counts like it does in ReadAll.
	state, tracked, err := h.cache.GetLogState(path)
	if err != nil {
		return nil, err
	}
	if tracked && state.Offset < state.SizeBytes {
		chunk, err := h.log.ReadFrom(state.Offset)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, chunk.Intervals...)
		intervals = append(intervals, chunk.Pending...)
	}
	return intervals, nil
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "timetray")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "timetray")
}

// CachePath returns the full path to the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "intervals.db")
}
