// Package timelog provides the durable, append-only interval log.
//
// The log is a text file with one interval per line:
//
//	<start RFC3339>;<end RFC3339>
//
// Lines are only ever appended. Readers skip lines they cannot parse, so a
// torn final line or a hand-edited entry never aborts a read.
package timelog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/theirongolddev/timetray/internal/model"
)

// ErrInvalidInterval is returned by Append for intervals whose end is not
// after their start.
var ErrInvalidInterval = errors.New("interval end must be after start")

// ErrOffsetBeyondEOF is returned by ReadFrom when the offset lies past the end
// of the file, which means the file was truncated or replaced.
var ErrOffsetBeyondEOF = errors.New("offset beyond end of log")

const (
	initialLineBuf = 4 * 1024
	maxLineBytes   = 64 * 1024
)

// Log is an append-only interval log backed by a single file. It holds no
// open handle between calls.
type Log struct {
	path string
}

// New returns a Log stored at path. The file and its directory are created
// on the first Append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes iv as one complete line at the end of the log and syncs it
// to disk.
func (l *Log) Append(iv model.Interval) error {
	if !iv.Valid() {
		return ErrInvalidInterval
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	//nolint:gosec // log path is configured by the local user
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}

	record := FormatRecord(iv) + "\n"
	torn, err := endsWithPartialLine(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("inspecting log tail: %w", err)
	}
	if torn {
		// Terminate the partial line so it stays a single malformed record.
		record = "\n" + record
	}

	if _, err := f.WriteString(record); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing log: %w", err)
	}
	return nil
}

func endsWithPartialLine(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// ReadAll returns a lazy sequence over every valid interval in the log, in
// append order. Each range over the sequence reopens the file. Malformed
// lines are skipped. A missing file yields nothing. Any other I/O failure is
// yielded once as an error, after which the sequence ends.
func (l *Log) ReadAll() iter.Seq2[model.Interval, error] {
	return func(yield func(model.Interval, error) bool) {
		for line, err := range l.lines() {
			if err != nil {
				yield(model.Interval{}, err)
				return
			}
			iv, ok := ParseRecord(line)
			if !ok {
				continue
			}
			if !yield(iv, nil) {
				return
			}
		}
	}
}

func (l *Log) lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := os.Open(l.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			yield("", fmt.Errorf("opening log: %w", err))
			return
		}
		defer func() { _ = f.Close() }()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, initialLineBuf), maxLineBytes)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("reading log: %w", err))
		}
	}
}

// Chunk is the result of reading the log from a byte offset.
type Chunk struct {
	Intervals []model.Interval
	Next      int64 // offset just past the last complete line
	Skipped   int   // malformed lines consumed

	// Pending holds the record on a final line that lacks its newline, when
	// that line already parses. It is not consumed: Next stays before it.
	Pending []model.Interval
}

// ReadFrom parses every complete line starting at offset. A trailing line
// without a newline is left unread so a later call picks it up once it is
// complete; if it is already a valid record it is reported in Pending, the
// way ReadAll would yield it.
func (l *Log) ReadFrom(offset int64) (Chunk, error) {
	chunk := Chunk{Next: offset}

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if offset > 0 {
				return chunk, ErrOffsetBeyondEOF
			}
			return chunk, nil
		}
		return chunk, fmt.Errorf("opening log: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return chunk, fmt.Errorf("stat log: %w", err)
	}
	if offset > info.Size() {
		return chunk, ErrOffsetBeyondEOF
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return chunk, fmt.Errorf("seeking log: %w", err)
	}

	r := bufio.NewReaderSize(f, initialLineBuf)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if iv, ok := ParseRecord(line); ok {
					chunk.Pending = append(chunk.Pending, iv)
				}
				return chunk, nil
			}
			return chunk, fmt.Errorf("reading log: %w", err)
		}
		chunk.Next += int64(len(line))
		if iv, ok := ParseRecord(line); ok {
			chunk.Intervals = append(chunk.Intervals, iv)
		} else if strings.TrimSpace(line) != "" {
			chunk.Skipped++
		}
	}
}

// Info describes the backing file.
type Info struct {
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Stat returns the size and modification time of the log. A missing file is
// reported with Exists == false and no error.
func (l *Log) Stat() (Info, error) {
	fi, err := os.Stat(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, nil
		}
		return Info{}, err
	}
	return Info{Exists: true, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}
