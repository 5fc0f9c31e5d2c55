// Package store provides a SQLite-backed cache of parsed interval log records.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/timetray/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// ErrStateChanged means another writer advanced the log state since it was
// read. The caller should re-read the state and try again.
var ErrStateChanged = errors.New("cached log state changed concurrently")

// Cache provides SQLite-backed interval caching.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// LogState is what the cache knows about a log file: its size and mtime at
// the last sync and the byte offset up to which lines have been parsed.
type LogState struct {
	Path      string
	SizeBytes int64
	MtimeNs   int64
	Offset    int64
	Skipped   int
}

// GetLogState returns the tracked state for path. ok is false when the log
// has never been synced.
func (c *Cache) GetLogState(path string) (state LogState, ok bool, err error) {
	row := c.db.QueryRow(`SELECT size_bytes, mtime_ns, read_offset, skipped_lines
		FROM log_tracker WHERE log_path = ?`, path)

	state.Path = path
	err = row.Scan(&state.SizeBytes, &state.MtimeNs, &state.Offset, &state.Skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return LogState{Path: path}, false, nil
	}
	if err != nil {
		return LogState{}, false, err
	}
	return state, true, nil
}

// AppendIntervals stores intervals parsed from the tail of a log starting at
// fromOffset and advances its tracked state, in one transaction. It fails
// with ErrStateChanged if the stored offset is no longer fromOffset.
func (c *Cache) AppendIntervals(fromOffset int64, state LogState, intervals []model.Interval) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRow("SELECT read_offset FROM log_tracker WHERE log_path = ?", state.Path).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = 0
	case err != nil:
		return err
	}
	if current != fromOffset {
		return ErrStateChanged
	}

	var next int64
	err = tx.QueryRow("SELECT COALESCE(MAX(seq) + 1, 0) FROM intervals WHERE log_path = ?", state.Path).Scan(&next)
	if err != nil {
		return err
	}

	if err := insertIntervals(tx, state.Path, next, intervals); err != nil {
		return err
	}
	if err := saveState(tx, state); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceIntervals discards everything cached for the log and stores a fresh
// full parse.
func (c *Cache) ReplaceIntervals(state LogState, intervals []model.Interval) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM intervals WHERE log_path = ?", state.Path); err != nil {
		return err
	}
	if err := insertIntervals(tx, state.Path, 0, intervals); err != nil {
		return err
	}
	if err := saveState(tx, state); err != nil {
		return err
	}
	return tx.Commit()
}

func insertIntervals(tx *sql.Tx, path string, seq int64, intervals []model.Interval) error {
	if len(intervals) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO intervals (log_path, seq, start_time, end_time, duration_ns)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, iv := range intervals {
		_, err := stmt.Exec(path, seq+int64(i),
			iv.Start.Format(time.RFC3339Nano), iv.End.Format(time.RFC3339Nano), int64(iv.Duration()))
		if err != nil {
			return err
		}
	}
	return nil
}

func saveState(tx *sql.Tx, state LogState) error {
	_, err := tx.Exec(`INSERT OR REPLACE INTO log_tracker
		(log_path, size_bytes, mtime_ns, read_offset, skipped_lines, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		state.Path, state.SizeBytes, state.MtimeNs, state.Offset, state.Skipped,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// LoadIntervals reads the cached intervals of a log in file order.
func (c *Cache) LoadIntervals(path string) ([]model.Interval, error) {
	rows, err := c.db.Query(`SELECT start_time, end_time FROM intervals
		WHERE log_path = ? ORDER BY seq`, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var intervals []model.Interval
	for rows.Next() {
		var startStr, endStr string
		if err := rows.Scan(&startStr, &endStr); err != nil {
			return nil, err
		}
		start, err := time.Parse(time.RFC3339Nano, startStr)
		if err != nil {
			return nil, fmt.Errorf("decoding cached start %q: %w", startStr, err)
		}
		end, err := time.Parse(time.RFC3339Nano, endStr)
		if err != nil {
			return nil, fmt.Errorf("decoding cached end %q: %w", endStr, err)
		}
		intervals = append(intervals, model.Interval{Start: start.Local(), End: end.Local()})
	}
	return intervals, rows.Err()
}

// IntervalCount returns the number of cached intervals for a log.
func (c *Cache) IntervalCount(path string) (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM intervals WHERE log_path = ?", path).Scan(&count)
	return count, err
}

// Forget removes a log and its intervals from the cache.
func (c *Cache) Forget(path string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM intervals WHERE log_path = ?", path); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM log_tracker WHERE log_path = ?", path); err != nil {
		return err
	}
	return tx.Commit()
}
