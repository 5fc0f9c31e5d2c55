package daemon

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported at /metrics.
type Metrics struct {
	Running            prometheus.Gauge
	CurrentWeekSeconds prometheus.Gauge
	TransitionsTotal   *prometheus.CounterVec
	PollsTotal         *prometheus.CounterVec
	PollDuration       prometheus.Histogram
	Subscribers        prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetray_running",
			Help: "1 while a tracking session is open.",
		}),
		CurrentWeekSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetray_current_week_seconds",
			Help: "Tracked time in the current ISO week, including a running session.",
		}),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetray_transitions_total",
				Help: "Start and stop requests by action and result.",
			},
			[]string{"action", "result"},
		),
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetray_polls_total",
				Help: "Snapshot polls by result.",
			},
			[]string{"result"},
		),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetray_poll_duration_seconds",
			Help:    "Time spent recomputing the current week total.",
			Buckets: prometheus.DefBuckets,
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetray_stream_subscribers",
			Help: "Connected SSE clients.",
		}),
		registry: reg,
	}

	reg.MustRegister(m.Running)
	reg.MustRegister(m.CurrentWeekSeconds)
	reg.MustRegister(m.TransitionsTotal)
	reg.MustRegister(m.PollsTotal)
	reg.MustRegister(m.PollDuration)
	reg.MustRegister(m.Subscribers)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransition counts a start or stop request.
func (m *Metrics) RecordTransition(action, result string) {
	m.TransitionsTotal.WithLabelValues(action, result).Inc()
}

// RecordPoll counts a poll and observes its duration.
func (m *Metrics) RecordPoll(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PollsTotal.WithLabelValues(result).Inc()
	m.PollDuration.Observe(d.Seconds())
}

// SetSnapshot updates the state gauges.
func (m *Metrics) SetSnapshot(snap Snapshot) {
	if snap.Running {
		m.Running.Set(1)
	} else {
		m.Running.Set(0)
	}
	m.CurrentWeekSeconds.Set(float64(snap.WeekSeconds))
}
