package tui

import (
	"context"
	"time"

	"github.com/theirongolddev/timetray/internal/daemon"
	"github.com/theirongolddev/timetray/internal/isoweek"
	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/report"
	"github.com/theirongolddev/timetray/internal/tracker"
)

// State is everything the dashboard shows.
type State struct {
	At         time.Time
	Running    bool
	Since      time.Time
	StatusText string
	Week       time.Duration
	WeekKey    model.WeekKey
	Rows       []model.WeekRow
	Total      time.Duration
}

// Elapsed returns the running session length at now, zero when stopped.
func (s State) Elapsed(now time.Time) time.Duration {
	if !s.Running || now.Before(s.Since) {
		return 0
	}
	return now.Sub(s.Since)
}

// LiveWeek extrapolates the week total from the snapshot to now while a
// session runs, so the clock ticks between refreshes.
func (s State) LiveWeek(now time.Time) time.Duration {
	if !s.Running || now.Before(s.At) || isoweek.KeyOf(now) != s.WeekKey {
		return s.Week
	}
	return s.Week + now.Sub(s.At)
}

// Backend drives the tracker the dashboard controls.
type Backend interface {
	Name() string
	Load(ctx context.Context) (State, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Close releases the backend when the dashboard exits.
	Close() error
}

// LocalBackend owns an in-process tracker. Close saves a running session.
type LocalBackend struct {
	Tracker  *tracker.Tracker
	MaxWeeks int
	Now      func() time.Time
}

func (b *LocalBackend) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return "local" }

// Load implements Backend.
func (b *LocalBackend) Load(_ context.Context) (State, error) {
	now := b.now()
	st := State{At: now, StatusText: b.Tracker.StatusText(), WeekKey: isoweek.KeyOf(now)}
	st.Since, st.Running = b.Tracker.RunningSince()

	week, err := b.Tracker.CurrentWeekTotal(now)
	if err != nil {
		return st, err
	}
	st.Week = week

	rows, err := b.Tracker.Totals(b.MaxWeeks)
	if err != nil {
		return st, err
	}
	st.Rows = rows
	st.Total = report.Total(rows)
	return st, nil
}

// Start implements Backend.
func (b *LocalBackend) Start(_ context.Context) error {
	b.Tracker.Start()
	return nil
}

// Stop implements Backend.
func (b *LocalBackend) Stop(_ context.Context) error {
	_, _, err := b.Tracker.Stop()
	return err
}

// Close implements Backend.
func (b *LocalBackend) Close() error {
	return b.Tracker.TryAutoStopOnExit()
}

// RemoteBackend controls the tracker owned by a running daemon. Quitting the
// dashboard leaves the session running there.
type RemoteBackend struct {
	Client   *daemon.Client
	MaxWeeks int
}

// Name implements Backend.
func (b *RemoteBackend) Name() string { return "daemon " + b.Client.Addr() }

// Load implements Backend.
func (b *RemoteBackend) Load(ctx context.Context) (State, error) {
	st, err := b.Client.Status(ctx)
	if err != nil {
		return State{}, err
	}
	sum := st.Summary
	state := State{
		At:         sum.At,
		Running:    sum.Running,
		StatusText: sum.StatusText,
		Week:       time.Duration(sum.WeekSeconds) * time.Second,
		WeekKey:    isoweek.KeyOf(sum.At),
	}
	if sum.Since != nil {
		state.Since = *sum.Since
	}

	weeks, err := b.Client.Weeks(ctx, b.MaxWeeks)
	if err != nil {
		return state, err
	}
	state.Rows = weeks.Weeks
	state.Total = time.Duration(weeks.TotalSeconds) * time.Second
	return state, nil
}

// Start implements Backend.
func (b *RemoteBackend) Start(ctx context.Context) error {
	_, err := b.Client.Start(ctx)
	return err
}

// Stop implements Backend.
func (b *RemoteBackend) Stop(ctx context.Context) error {
	_, err := b.Client.Stop(ctx)
	return err
}

// Close implements Backend.
func (b *RemoteBackend) Close() error { return nil }
