package telemetry

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LogSink writes every event to a structured logger
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log.With("component", "session-events")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Record(_ context.Context, e Event) error {
	s.log.Info("Session event",
		"kind", e.Kind,
		"session", e.SessionID,
		"guild", e.GuildID,
		"channel", e.ChannelID,
		"match", e.MatchID,
		"actor", e.ActorID,
		"participants", len(e.Participants),
	)
	return nil
}

// MetricsSink counts events in Prometheus
type MetricsSink struct {
	events         *prometheus.CounterVec
	activeSessions prometheus.Gauge
	participants   prometheus.Histogram
}

// NewMetricsSink registers the session metrics with reg
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)
	return &MetricsSink{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eights_session_events_total",
				Help: "Total number of session lifecycle events",
			},
			[]string{"kind"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "eights_active_sessions",
				Help: "Number of sessions currently live",
			},
		),
		participants: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eights_session_participants_at_start",
				Help:    "Participant count when a session starts",
				Buckets: prometheus.LinearBuckets(1, 1, 8),
			},
		),
	}
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Record(_ context.Context, e Event) error {
	s.events.WithLabelValues(string(e.Kind)).Inc()
	switch {
	case e.Kind == EventCreated:
		s.activeSessions.Inc()
	case e.Kind.Terminal():
		s.activeSessions.Dec()
	case e.Kind == EventStarted:
		s.participants.Observe(float64(len(e.Participants)))
	}
	return nil
}
