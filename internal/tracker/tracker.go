// Package tracker owns the active session and answers totals queries.
//
// A Tracker is constructed once by the application and handed to whichever
// front end drives it (daemon, dashboard). It records at most one running
// interval; Stop persists the interval to the log.
package tracker

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/theirongolddev/timetray/internal/isoweek"
	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/report"
)

// ErrClockSkew is returned by Stop when the wall clock reads earlier than the
// recorded start. The session is cleared and nothing is written.
var ErrClockSkew = errors.New("clock moved backwards, interval discarded")

const (
	statusStopped      = "Stopped"
	statusRunningSince = "Running since "
	statusTimeLayout   = "02.01.2006 15:04:05"
)

// History yields persisted intervals.
type History interface {
	ReadAll() iter.Seq2[model.Interval, error]
}

// Store is the durable interval log.
type Store interface {
	History
	Append(iv model.Interval) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithHistory reads history from h instead of the store, e.g. a cache.
func WithHistory(h History) Option {
	return func(t *Tracker) { t.history = h }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// Tracker holds the running session and is safe for concurrent use.
type Tracker struct {
	store   Store
	history History
	now     func() time.Time
	log     zerolog.Logger

	mu           sync.Mutex
	runningSince *time.Time
}

// New returns a stopped tracker writing to store.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		history: store,
		now:     wallClock,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// wallClock drops the monotonic reading so that comparisons match the
// timestamps that end up in the log.
func wallClock() time.Time {
	return time.Now().Round(0)
}

// Start opens a session at the current time. It reports false and leaves the
// start time untouched if a session is already running.
func (t *Tracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runningSince != nil {
		return false
	}
	now := t.now()
	t.runningSince = &now
	t.log.Info().Time("since", now).Msg("tracking started")
	return true
}

// Stop closes the running session and appends it to the log. It reports
// false when nothing was running.
//
// If the append fails the session keeps running from its original start and
// the error is returned, so no time is lost and Stop can be retried.
func (t *Tracker) Stop() (model.Interval, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runningSince == nil {
		return model.Interval{}, false, nil
	}

	start := *t.runningSince
	iv := model.Interval{Start: start, End: t.now()}
	t.runningSince = nil

	if !iv.Valid() {
		t.log.Warn().Time("start", iv.Start).Time("end", iv.End).Msg("discarding interval after clock skew")
		return iv, true, fmt.Errorf("%w: stop at %s is not after start at %s",
			ErrClockSkew, iv.End.Format(time.RFC3339), iv.Start.Format(time.RFC3339))
	}

	if err := t.store.Append(iv); err != nil {
		t.runningSince = &start
		t.log.Error().Err(err).Time("start", iv.Start).Time("end", iv.End).Msg("interval not saved, session kept running")
		return iv, false, fmt.Errorf("appending interval: %w", err)
	}

	t.log.Info().Time("start", iv.Start).Time("end", iv.End).Dur("duration", iv.Duration()).Msg("tracking stopped")
	return iv, true, nil
}

// IsRunning reports whether a session is open.
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runningSince != nil
}

// RunningSince returns the start of the open session, if any.
func (t *Tracker) RunningSince() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runningSince == nil {
		return time.Time{}, false
	}
	return *t.runningSince, true
}

// TryAutoStopOnExit stops and persists the session if one is running. It is
// meant for shutdown paths.
func (t *Tracker) TryAutoStopOnExit() error {
	if !t.IsRunning() {
		return nil
	}
	_, _, err := t.Stop()
	return err
}

// StatusText describes the session state for display.
func (t *Tracker) StatusText() string {
	since, ok := t.RunningSince()
	if !ok {
		return statusStopped
	}
	return statusRunningSince + since.Local().Format(statusTimeLayout)
}

// Totals returns per-ISO-week totals, most recent first, capped at maxWeeks.
// A running session counts up to now.
func (t *Tracker) Totals(maxWeeks int) ([]model.WeekRow, error) {
	if maxWeeks < 0 {
		return nil, report.ErrNegativeLimit
	}

	now := t.now()
	var readErr error
	b := isoweek.Aggregate(t.intervals(now, &readErr))
	if readErr != nil {
		return nil, readErr
	}
	return report.Rows(b, maxWeeks)
}

// CurrentWeekTotal returns the tracked time inside the ISO week containing
// now, including a running session up to now.
func (t *Tracker) CurrentWeekTotal(now time.Time) (time.Duration, error) {
	var readErr error
	total := report.CurrentWeekTotal(t.intervals(now, &readErr), now)
	if readErr != nil {
		return 0, readErr
	}
	return total, nil
}

// intervals yields every persisted interval followed by the running session
// cut off at now. The first read error stops the sequence and is stored in
// errp.
func (t *Tracker) intervals(now time.Time, errp *error) iter.Seq[model.Interval] {
	return func(yield func(model.Interval) bool) {
		for iv, err := range t.history.ReadAll() {
			if err != nil {
				*errp = fmt.Errorf("reading history: %w", err)
				return
			}
			if !yield(iv) {
				return
			}
		}
		if since, ok := t.RunningSince(); ok {
			yield(model.Interval{Start: since, End: now})
		}
	}
}
