// Package teardown releases every side resource of a session and purges it.
package teardown

import (
	"context"
	"log/slog"

	"github.com/hfcRed/Agent-8s-sub001/internal/announce"
	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
	"github.com/hfcRed/Agent-8s-sub001/internal/telemetry"
)

// Finalizer renders the closed announcement
type Finalizer interface {
	Finalize(ctx context.Context, s session.Session, outcome announce.Outcome)
}

// Resources is the subset of the platform teardown needs
type Resources interface {
	platform.Threads
	platform.Voice
}

// Orchestrator is the single teardown path shared by finish, cancel, expiry and shutdown.
type Orchestrator struct {
	store     *session.Store
	resources Resources
	finalizer Finalizer
	notifier  telemetry.Notifier
	log       *slog.Logger

	shutdownAttempts int
}

// New creates an Orchestrator
func New(store *session.Store, resources Resources, finalizer Finalizer, notifier telemetry.Notifier, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		resources: resources,
		finalizer: finalizer,
		notifier:  notifier,
		log:       log.With("component", "teardown"),

		shutdownAttempts: 1,
	}
}

// WithShutdownAttempts sets how many times each step is tried during
// process shutdown before giving up on it.
func (o *Orchestrator) WithShutdownAttempts(n int) *Orchestrator {
	if n > 0 {
		o.shutdownAttempts = n
	}
	return o
}

// Teardown claims the session and tears it down. It returns false, doing
// nothing, when the session is already gone or claimed by another caller.
func (o *Orchestrator) Teardown(ctx context.Context, id string, outcome announce.Outcome, actorID string) bool {
	s, ok := o.store.BeginTeardown(id)
	if !ok {
		o.log.Debug("Teardown skipped, session already closed", "session", id, "outcome", outcome)
		return false
	}
	o.Run(ctx, s, outcome, actorID)
	return true
}

// Run tears down a session already claimed through BeginTeardown or an
// emptying DropOut. Every step logs and continues on failure.
func (o *Orchestrator) Run(ctx context.Context, s session.Session, outcome announce.Outcome, actorID string) {
	o.log.Info("Tearing down session", "session", s.ID, "outcome", outcome, "rooms", len(s.VoiceChannelIDs))

	attempts := 1
	if outcome == announce.OutcomeShutdown {
		attempts = o.shutdownAttempts
	}
	step := func(op string, args []any, fn func() error) {
		var err error
		for i := 0; i < attempts; i++ {
			if err = fn(); err == nil || ctx.Err() != nil {
				break
			}
		}
		if err != nil {
			o.log.Error("Teardown step failed", append([]any{"session", s.ID, "op", op, "attempts", attempts, "error", err}, args...)...)
		}
	}

	members := s.Members()
	for _, roomID := range s.VoiceChannelIDs {
		for _, userID := range members {
			step("revoke voice access", []any{"room", roomID, "user", userID}, func() error {
				return o.resources.SetAccess(ctx, roomID, userID, false)
			})
			step("disconnect voice member", []any{"room", roomID, "user", userID}, func() error {
				return o.resources.Disconnect(ctx, s.GuildID, roomID, userID)
			})
		}
		step("delete voice room", []any{"room", roomID}, func() error {
			return o.resources.DeleteRoom(ctx, roomID)
		})
	}

	if s.ThreadID != "" {
		step("archive thread", []any{"thread", s.ThreadID}, func() error {
			return o.resources.LockAndArchive(ctx, s.ThreadID)
		})
	}

	o.store.CancelTimerHandle(s.ID)
	if !o.store.ClearAllEventData(s.ID) {
		o.log.Debug("Session already purged", "session", s.ID)
	}

	o.finalizer.Finalize(ctx, s, outcome)
	o.notifier.Notify(telemetry.FromSession(eventFor(outcome), s, actorID))
}

func eventFor(outcome announce.Outcome) telemetry.EventKind {
	switch outcome {
	case announce.OutcomeFinished:
		return telemetry.EventFinished
	case announce.OutcomeExpired:
		return telemetry.EventExpired
	case announce.OutcomeShutdown:
		return telemetry.EventShutdown
	default:
		return telemetry.EventCancelled
	}
}
