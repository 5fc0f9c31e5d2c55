// Package daemon provides the long-running tracker service and its HTTP API.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/theirongolddev/timetray/internal/isoweek"
	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/report"
	"github.com/theirongolddev/timetray/internal/tracker"
)

// Event types published on /v1/events and /v1/stream.
const (
	EventSnapshot  = "snapshot"
	EventWeekDelta = "week_delta"
	EventStarted   = "started"
	EventStopped   = "stopped"
)

// Tracker is the state the daemon serves. *tracker.Tracker implements it.
type Tracker interface {
	Start() bool
	Stop() (model.Interval, bool, error)
	RunningSince() (time.Time, bool)
	StatusText() string
	Totals(maxWeeks int) ([]model.WeekRow, error)
	CurrentWeekTotal(now time.Time) (time.Duration, error)
	TryAutoStopOnExit() error
}

// Config controls the daemon runtime behavior.
type Config struct {
	DataFile     string
	MaxWeeks     int
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Snapshot is the tracker state carried by status and event payloads.
type Snapshot struct {
	At          time.Time  `json:"at"`
	Running     bool       `json:"running"`
	Since       *time.Time `json:"since,omitempty"`
	StatusText  string     `json:"status_text"`
	WeekSeconds int64      `json:"week_seconds"`
	WeekText    string     `json:"week"`
}

// Delta captures the change in the current week total between snapshots.
type Delta struct {
	WeekSeconds int64 `json:"week_seconds"`
}

func (d Delta) isZero() bool {
	return d.WeekSeconds == 0
}

// Event is emitted on state transitions and whenever the week total moves.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Snapshot  Snapshot        `json:"snapshot"`
	Delta     Delta           `json:"delta"`
	Interval  *model.Interval `json:"interval,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	DataFile        string    `json:"data_file"`
	MaxWeeks        int       `json:"max_weeks"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// StartResponse is returned by POST /v1/start.
type StartResponse struct {
	Started bool     `json:"started"`
	Status  Snapshot `json:"status"`
}

// StopResponse is returned by POST /v1/stop.
type StopResponse struct {
	Stopped  bool            `json:"stopped"`
	Interval *model.Interval `json:"interval,omitempty"`
	Status   Snapshot        `json:"status"`
}

// WeeksResponse is returned by GET /v1/weeks.
type WeeksResponse struct {
	Weeks        []model.WeekRow `json:"weeks"`
	TotalSeconds int64           `json:"total_seconds"`
	Total        string          `json:"total"`
}

// WeekResponse is returned by GET /v1/week.
type WeekResponse struct {
	ISOYear int       `json:"iso_year"`
	ISOWeek int       `json:"iso_week"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Seconds int64     `json:"seconds"`
	Total   string    `json:"total"`
	Running bool      `json:"running"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg     Config
	tracker Tracker
	metrics *Metrics
	log     zerolog.Logger

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event

	// closed when Run begins shutting down; ends open streams
	done     chan struct{}
	doneOnce sync.Once
}

// New returns a daemon service serving tr.
func New(tr Tracker, cfg Config) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 30 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8788"
	}
	// Zero is a valid limit and lists no weeks.
	if cfg.MaxWeeks < 0 {
		cfg.MaxWeeks = 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		cfg:       cfg,
		tracker:   tr,
		metrics:   NewMetrics(),
		log:       cfg.Logger.With().Str("component", "daemon").Logger(),
		startedAt: cfg.Now(),
		subs:      make(map[int]chan Event),
		done:      make(chan struct{}),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/start", s.handleStart)
	mux.HandleFunc("POST /v1/stop", s.handleStop)
	mux.HandleFunc("GET /v1/weeks", s.handleWeeks)
	mux.HandleFunc("GET /v1/week", s.handleWeek)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Run serves the HTTP API and polls until ctx is canceled. On the way out the
// server stops accepting requests and a running session is saved.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Seed initial snapshot so status is useful immediately.
	s.pollOnce()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown waits for active handlers, and streams only end on done.
			s.doneOnce.Do(func() { close(s.done) })
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := server.Shutdown(shutdownCtx)
			s.autoStop()
			return err
		case <-ticker.C:
			s.pollOnce()
		case err := <-errCh:
			s.autoStop()
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) autoStop() {
	since, running := s.tracker.RunningSince()
	if !running {
		return
	}
	if err := s.tracker.TryAutoStopOnExit(); err != nil {
		s.log.Error().Err(err).
			Time("start", since).
			Time("end", s.cfg.Now()).
			Msg("session not saved on shutdown")
		return
	}
	s.log.Info().Time("start", since).Msg("running session saved on shutdown")
}

func (s *Service) pollOnce() {
	start := time.Now()
	snap, err := s.takeSnapshot()
	s.metrics.RecordPoll(time.Since(start), err)

	s.mu.Lock()
	s.lastPollAt = snap.At
	s.pollCount++
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Msg("poll failed")
		return
	}
	s.record(snap, "", nil)
}

// takeSnapshot reads the tracker state and the current week total. The
// running fields are filled in even when the total cannot be computed.
func (s *Service) takeSnapshot() (Snapshot, error) {
	now := s.cfg.Now()
	snap := Snapshot{At: now, StatusText: s.tracker.StatusText()}
	if since, ok := s.tracker.RunningSince(); ok {
		snap.Running = true
		snap.Since = &since
	}

	week, err := s.tracker.CurrentWeekTotal(now)
	if err != nil {
		return snap, err
	}
	snap.WeekSeconds = int64(week / time.Second)
	snap.WeekText = report.FormatHHMM(week)
	return snap, nil
}

// record stores snap and publishes an event. A non-empty evType always
// publishes; otherwise an event goes out only for the first snapshot or when
// the state changed.
func (s *Service) record(snap Snapshot, evType string, iv *model.Interval) {
	s.metrics.SetSnapshot(snap)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot
	s.hasSnapshot = true
	s.snapshot = snap

	delta := diffSnapshots(prev, snap)
	switch {
	case evType != "":
	case !prevExists:
		evType = EventSnapshot
		delta = Delta{}
	case !delta.isZero() || prev.Running != snap.Running:
		evType = EventWeekDelta
	default:
		s.mu.Unlock()
		return
	}

	s.nextEventID++
	ev := Event{
		ID:        s.nextEventID,
		Type:      evType,
		Timestamp: snap.At,
		Snapshot:  snap,
		Delta:     delta,
		Interval:  iv,
	}
	s.mu.Unlock()

	s.publishEvent(ev)
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{WeekSeconds: curr.WeekSeconds - prev.WeekSeconds}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		DataFile:        s.cfg.DataFile,
		MaxWeeks:        s.cfg.MaxWeeks,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

// refresh takes a snapshot after a transition and records it under evType.
func (s *Service) refresh(evType string, iv *model.Interval) Snapshot {
	snap, err := s.takeSnapshot()
	if err != nil {
		s.setLastError(err)
		s.log.Warn().Err(err).Msg("week total unavailable")
	}
	s.record(snap, evType, iv)
	return snap
}

func (s *Service) setLastError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleStart(w http.ResponseWriter, _ *http.Request) {
	started := s.tracker.Start()
	if !started {
		s.metrics.RecordTransition("start", "noop")
		writeJSON(w, http.StatusOK, StartResponse{Started: false, Status: s.refresh("", nil)})
		return
	}

	s.metrics.RecordTransition("start", "ok")
	writeJSON(w, http.StatusOK, StartResponse{Started: true, Status: s.refresh(EventStarted, nil)})
}

func (s *Service) handleStop(w http.ResponseWriter, _ *http.Request) {
	iv, stopped, err := s.tracker.Stop()
	switch {
	case errors.Is(err, tracker.ErrClockSkew):
		s.metrics.RecordTransition("stop", "clock_skew")
		s.refresh(EventStopped, nil)
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		s.metrics.RecordTransition("stop", "error")
		s.log.Error().Err(err).Time("start", iv.Start).Time("end", iv.End).Msg("stop failed, session still running")
		s.setLastError(err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	case !stopped:
		s.metrics.RecordTransition("stop", "noop")
		writeJSON(w, http.StatusOK, StopResponse{Stopped: false, Status: s.refresh("", nil)})
	default:
		s.metrics.RecordTransition("stop", "ok")
		writeJSON(w, http.StatusOK, StopResponse{Stopped: true, Interval: &iv, Status: s.refresh(EventStopped, &iv)})
	}
}

func (s *Service) handleWeeks(w http.ResponseWriter, r *http.Request) {
	maxWeeks := s.cfg.MaxWeeks
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid max %q", raw)})
			return
		}
		maxWeeks = n
	}

	rows, err := s.tracker.Totals(maxWeeks)
	if err != nil {
		s.setLastError(err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	total := report.Total(rows)
	writeJSON(w, http.StatusOK, WeeksResponse{
		Weeks:        rows,
		TotalSeconds: int64(total / time.Second),
		Total:        report.FormatHHMM(total),
	})
}

func (s *Service) handleWeek(w http.ResponseWriter, _ *http.Request) {
	now := s.cfg.Now()
	total, err := s.tracker.CurrentWeekTotal(now)
	if err != nil {
		s.setLastError(err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	key := isoweek.KeyOf(now)
	_, running := s.tracker.RunningSince()
	writeJSON(w, http.StatusOK, WeekResponse{
		ISOYear: key.ISOYear,
		ISOWeek: key.ISOWeek,
		From:    isoweek.WeekStart(now),
		To:      isoweek.WeekEnd(now),
		Seconds: int64(total / time.Second),
		Total:   report.FormatHHMM(total),
		Running: running,
	})
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	current := Event{
		Type:      EventSnapshot,
		Timestamp: s.cfg.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	s.metrics.Subscribers.Set(float64(len(s.subs)))
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	s.metrics.Subscribers.Set(float64(len(s.subs)))
}
