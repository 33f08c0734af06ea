// Package telemetry delivers lifecycle events to sinks without ever blocking
// or failing the caller.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

// EventKind identifies a lifecycle event
type EventKind string

const (
	EventCreated          EventKind = "created"
	EventJoined           EventKind = "joined"
	EventLeft             EventKind = "left"
	EventRoleChanged      EventKind = "role_changed"
	EventFinalizing       EventKind = "finalizing"
	EventStarted          EventKind = "started"
	EventStartFailed      EventKind = "start_failed"
	EventFinished         EventKind = "finished"
	EventCancelled        EventKind = "cancelled"
	EventExpired          EventKind = "expired"
	EventShutdown         EventKind = "shutdown"
	EventDroppedOut       EventKind = "dropped_out"
	EventPromoted         EventKind = "promoted"
	EventQueued           EventKind = "queued"
	EventUnqueued         EventKind = "unqueued"
	EventSpectating       EventKind = "spectating"
	EventSpectatorLeft    EventKind = "spectator_left"
	EventSpectatorsToggle EventKind = "spectators_toggled"
	EventOwnerTransferred EventKind = "owner_transferred"
	EventRepinged         EventKind = "repinged"
	EventPlatformFailure  EventKind = "platform_failure"
)

// Terminal reports whether the event ends a session
func (k EventKind) Terminal() bool {
	switch k {
	case EventFinished, EventCancelled, EventExpired, EventShutdown:
		return true
	}
	return false
}

// Event is one lifecycle notification
type Event struct {
	Kind         EventKind
	SessionID    string
	GuildID      string
	ChannelID    string
	MatchID      string
	ActorID      string
	Participants []string
	Detail       string
	At           time.Time
}

// FromSession builds an event carrying the session's venue and roster
func FromSession(kind EventKind, s session.Session, actorID string) Event {
	return Event{
		Kind:         kind,
		SessionID:    s.ID,
		GuildID:      s.GuildID,
		ChannelID:    s.ChannelID,
		MatchID:      s.MatchID,
		ActorID:      actorID,
		Participants: s.ParticipantIDs(),
		At:           time.Now(),
	}
}

// Notifier accepts events fire-and-forget
type Notifier interface {
	Notify(Event)
}

// Nop discards events
type Nop struct{}

func (Nop) Notify(Event) {}

// Sink records events somewhere
type Sink interface {
	Name() string
	Record(ctx context.Context, e Event) error
}

// Dispatcher fans events out to registered sinks on a background goroutine.
// When the buffer is full, events are dropped rather than blocking the caller.
type Dispatcher struct {
	mu    sync.RWMutex
	sinks map[string]Sink

	events   chan Event
	log      *slog.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// NewDispatcher creates a Dispatcher with the given buffer size
func NewDispatcher(buffer int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		sinks:  make(map[string]Sink),
		events: make(chan Event, buffer),
		log:    log.With("component", "telemetry"),
		done:   make(chan struct{}),
	}
}

// Register adds a sink, replacing one with the same name
func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[s.Name()] = s
}

// Sinks returns the names of registered sinks
func (d *Dispatcher) Sinks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.sinks))
	for name := range d.sinks {
		names = append(names, name)
	}
	return names
}

// Notify enqueues an event without blocking
func (d *Dispatcher) Notify(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case <-d.done:
		return
	default:
	}
	select {
	case d.events <- e:
	default:
		d.log.Warn("Dropping telemetry event, buffer full", "kind", e.Kind, "session", e.SessionID)
	}
}

// Start runs the delivery loop until Stop is called
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-d.events:
				d.deliver(ctx, e)
			case <-d.done:
				d.drain(ctx)
				return
			}
		}
	}()
}

// Stop delivers buffered events and stops the loop
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case e := <-d.events:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	d.mu.RLock()
	sinks := make([]Sink, 0, len(d.sinks))
	for _, s := range d.sinks {
		sinks = append(sinks, s)
	}
	d.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Record(context.WithoutCancel(ctx), e); err != nil {
			d.log.Error("Failed to record telemetry event", "sink", s.Name(), "kind", e.Kind, "error", err)
		}
	}
}
