package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Record(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFromSession(t *testing.T) {
	s := session.Session{
		ID:        "msg-1",
		GuildID:   "guild-1",
		ChannelID: "chan-1",
		MatchID:   "match-1",
		Participants: []session.Participant{
			{UserID: "u1"},
			{UserID: "u2"},
		},
	}
	e := FromSession(EventStarted, s, "u1")
	assert.Equal(t, EventStarted, e.Kind)
	assert.Equal(t, "msg-1", e.SessionID)
	assert.Equal(t, "match-1", e.MatchID)
	assert.Equal(t, []string{"u1", "u2"}, e.Participants)
	assert.False(t, e.At.IsZero())
}

func TestEventKind_Terminal(t *testing.T) {
	for _, k := range []EventKind{EventFinished, EventCancelled, EventExpired, EventShutdown} {
		assert.True(t, k.Terminal(), k)
	}
	for _, k := range []EventKind{EventCreated, EventStarted, EventPromoted} {
		assert.False(t, k.Terminal(), k)
	}
}

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	d := NewDispatcher(16, discardLogger())
	failing := &recordingSink{name: "failing", err: errors.New("disk full")}
	ok := &recordingSink{name: "ok"}
	d.Register(failing)
	d.Register(ok)
	assert.ElementsMatch(t, []string{"failing", "ok"}, d.Sinks())

	d.Start(context.Background())
	for i := 0; i < 5; i++ {
		d.Notify(Event{Kind: EventJoined, SessionID: "msg-1"})
	}
	d.Stop()

	assert.Equal(t, 5, ok.count())
	assert.Equal(t, 5, failing.count(), "a failing sink does not block others")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(2, discardLogger())
	sink := &recordingSink{name: "sink"}
	d.Register(sink)

	// not started: the buffer fills up
	for i := 0; i < 5; i++ {
		d.Notify(Event{Kind: EventJoined})
	}
	d.Start(context.Background())
	d.Stop()

	assert.Equal(t, 2, sink.count())
}

func TestDispatcher_NotifyAfterStopIsIgnored(t *testing.T) {
	d := NewDispatcher(4, discardLogger())
	sink := &recordingSink{name: "sink"}
	d.Register(sink)
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	d.Notify(Event{Kind: EventCreated})
	assert.Equal(t, 0, sink.count())
}

func TestDispatcher_RegisterReplacesByName(t *testing.T) {
	d := NewDispatcher(4, discardLogger())
	d.Register(&recordingSink{name: "sink"})
	d.Register(&recordingSink{name: "sink"})
	assert.Len(t, d.Sinks(), 1)
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, kind string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "kind" && l.GetValue() == kind {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestMetricsSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewMetricsSink(reg)
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, Event{Kind: EventCreated}))
	require.NoError(t, sink.Record(ctx, Event{Kind: EventCreated}))
	require.NoError(t, sink.Record(ctx, Event{Kind: EventStarted, Participants: []string{"u1", "u2"}}))
	require.NoError(t, sink.Record(ctx, Event{Kind: EventFinished}))

	assert.Equal(t, 1.0, gaugeValue(t, reg, "eights_active_sessions"))
	assert.Equal(t, 2.0, counterValue(t, reg, "eights_session_events_total", "created"))
	assert.Equal(t, 1.0, counterValue(t, reg, "eights_session_events_total", "finished"))
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(discardLogger())
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Record(context.Background(), Event{Kind: EventCreated}))
}
