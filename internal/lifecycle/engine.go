// Package lifecycle drives sessions through Open, Finalizing and Started to a
// terminal outcome, serializing destructive transitions per session.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hfcRed/Agent-8s-sub001/internal/announce"
	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
	"github.com/hfcRed/Agent-8s-sub001/internal/telemetry"
)

var (
	// ErrBusy means a conflicting operation is in flight; the user should retry later.
	ErrBusy                  = errors.New("session is busy, please wait")
	ErrNotAuthorized         = errors.New("only the creator or a moderator can do that")
	ErrNotEnoughParticipants = errors.New("not enough participants")
	ErrShuttingDown          = errors.New("bot is shutting down")
)

// Actor is the user triggering an operation
type Actor struct {
	ID        string
	Moderator bool
}

// Announcer refreshes and re-posts announcements
type Announcer interface {
	QueueUpdate(id string)
	Reping(ctx context.Context, s session.Session, pingRoleID string) (string, error)
}

// Teardowner releases a session's resources and purges it
type Teardowner interface {
	Teardown(ctx context.Context, id string, outcome announce.Outcome, actorID string) bool
	Run(ctx context.Context, s session.Session, outcome announce.Outcome, actorID string)
}

// VenueSettings provides per-guild settings
type VenueSettings interface {
	VoiceCategory(guildID string) string
	PingRole(guildID string) string
}

// Config holds the tunable constants of the state machine
type Config struct {
	MinParticipants int
	VoiceRooms      int
	RepingCooldown  time.Duration
	// StartTimeout bounds a timer-triggered start
	StartTimeout time.Duration
}

// Deps are the collaborators of an Engine
type Deps struct {
	Store     *session.Store
	Platform  platform.Platform
	Announcer Announcer
	Teardown  Teardowner
	Notifier  telemetry.Notifier
	Settings  VenueSettings
	Logger    *slog.Logger
	// Context is the parent of timer-triggered operations
	Context context.Context
}

// Engine is the lifecycle state machine
type Engine struct {
	store     *session.Store
	platform  platform.Platform
	announcer Announcer
	teardown  Teardowner
	notifier  telemetry.Notifier
	settings  VenueSettings
	log       *slog.Logger
	baseCtx   context.Context
	cfg       Config

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
}

// New creates an Engine
func New(deps Deps, cfg Config) *Engine {
	if cfg.MinParticipants <= 0 {
		cfg.MinParticipants = 1
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 2 * time.Minute
	}
	if deps.Notifier == nil {
		deps.Notifier = telemetry.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	return &Engine{
		store:     deps.Store,
		platform:  deps.Platform,
		announcer: deps.Announcer,
		teardown:  deps.Teardown,
		notifier:  deps.Notifier,
		settings:  deps.Settings,
		log:       deps.Logger.With("component", "lifecycle"),
		baseCtx:   deps.Context,
		cfg:       cfg,
	}
}

// Store returns the session store the engine drives
func (e *Engine) Store() *session.Store {
	return e.store
}

// CreateRequest describes a new session
type CreateRequest struct {
	MessageID         string
	ChannelID         string
	GuildID           string
	Creator           string
	Role              string
	Rank              string
	Countdown         time.Duration
	SpectatorsEnabled bool
}

// Create registers a session for an already posted announcement and arms
// the countdown, if any.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (session.Session, error) {
	if e.shuttingDown.Load() {
		return session.Session{}, ErrShuttingDown
	}

	s, err := e.store.Create(session.NewSession{
		ID:                req.MessageID,
		ChannelID:         req.ChannelID,
		GuildID:           req.GuildID,
		MatchID:           uuid.NewString(),
		Creator:           session.Participant{UserID: req.Creator, Role: req.Role, Rank: req.Rank},
		Countdown:         req.Countdown,
		SpectatorsEnabled: req.SpectatorsEnabled,
	})
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	if req.Countdown > 0 {
		id := s.ID
		e.store.SetTimerHandle(id, time.AfterFunc(req.Countdown, func() { e.autoStart(id) }))
	}

	e.log.Info("Session created", "session", s.ID, "match", s.MatchID, "creator", req.Creator, "countdown", req.Countdown)
	e.notifier.Notify(telemetry.FromSession(telemetry.EventCreated, s, req.Creator))
	e.announcer.QueueUpdate(s.ID)
	return s, nil
}

// Start force-starts a session on behalf of its creator
func (e *Engine) Start(ctx context.Context, id string, actor Actor) (session.Session, error) {
	s, ok := e.store.Get(id)
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if s.Creator != actor.ID {
		return session.Session{}, ErrNotAuthorized
	}
	return e.start(ctx, id, actor.ID)
}

// start runs the Open/Finalizing -> Started transition under the starting lock.
func (e *Engine) start(ctx context.Context, id, actorID string) (session.Session, error) {
	if !e.store.TryProcessing(id, session.KindStarting) {
		if !e.store.Exists(id) {
			return session.Session{}, session.ErrSessionNotFound
		}
		return session.Session{}, ErrBusy
	}
	defer e.store.ClearProcessing(id, session.KindStarting)

	s, ok := e.store.Get(id)
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if len(s.Participants) < e.cfg.MinParticipants {
		return session.Session{}, ErrNotEnoughParticipants
	}

	s, err := e.store.MarkStarted(id)
	if err != nil {
		return session.Session{}, err
	}
	e.store.CancelTimerHandle(id)

	e.log.Info("Session started", "session", id, "participants", len(s.Participants))
	s = e.provision(ctx, s)

	e.notifier.Notify(telemetry.FromSession(telemetry.EventStarted, s, actorID))
	e.announcer.QueueUpdate(id)
	return s, nil
}

// autoStart is the countdown callback
func (e *Engine) autoStart(id string) {
	s, ok := e.store.Get(id)
	if !ok || s.State == session.StateStarted || s.State == session.StateClosing {
		return
	}

	ctx, cancel := context.WithTimeout(e.baseCtx, e.cfg.StartTimeout)
	defer cancel()

	_, err := e.start(ctx, id, "")
	switch {
	case err == nil:
	case errors.Is(err, ErrNotEnoughParticipants):
		// stays open until someone starts it or the sweep expires it
		e.log.Info("Countdown elapsed without enough participants", "session", id, "participants", len(s.Participants))
		e.notifier.Notify(telemetry.FromSession(telemetry.EventStartFailed, s, ""))
		e.announcer.QueueUpdate(id)
	default:
		e.log.Warn("Countdown start rejected", "session", id, "error", err)
	}
}

// Cancel ends a session that has not started yet
func (e *Engine) Cancel(ctx context.Context, id string, actor Actor) error {
	s, err := e.authorize(id, actor)
	if err != nil {
		return err
	}
	if s.State == session.StateStarted {
		return session.ErrAlreadyStarted
	}
	return e.terminate(ctx, id, session.KindCancelling, announce.OutcomeCancelled, actor.ID)
}

// Finish ends a started session
func (e *Engine) Finish(ctx context.Context, id string, actor Actor) error {
	s, err := e.authorize(id, actor)
	if err != nil {
		return err
	}
	if s.State != session.StateStarted {
		return session.ErrNotStarted
	}
	return e.terminate(ctx, id, session.KindFinishing, announce.OutcomeFinished, actor.ID)
}

// Expire force-ends a session that outlived the expiry ceiling
func (e *Engine) Expire(ctx context.Context, id string) error {
	return e.terminate(ctx, id, session.KindCleanup, announce.OutcomeExpired, "")
}

// terminate runs a terminal transition under the lock of kind. A start in
// flight blocks every terminal transition so provisioned resources are
// recorded before teardown reads them.
func (e *Engine) terminate(ctx context.Context, id string, kind session.Kind, outcome announce.Outcome, actorID string) error {
	if e.store.IsProcessing(id, session.KindStarting) {
		return ErrBusy
	}
	if !e.store.TryProcessing(id, kind) {
		if !e.store.Exists(id) {
			return session.ErrSessionNotFound
		}
		return ErrBusy
	}
	defer e.store.ClearProcessing(id, kind)

	if !e.teardown.Teardown(ctx, id, outcome, actorID) {
		return session.ErrSessionClosed
	}
	return nil
}

// Shutdown tears down every live session once per process. ctx bounds the
// whole pass; sessions left when it expires are abandoned.
func (e *Engine) Shutdown(ctx context.Context) int {
	count := 0
	e.shutdownOnce.Do(func() {
		e.shuttingDown.Store(true)
		ids := e.store.IDs()
		e.log.Info("Shutting down sessions", "count", len(ids))

		for i, id := range ids {
			if ctx.Err() != nil {
				e.log.Error("Shutdown deadline reached, abandoning sessions", "remaining", len(ids)-i)
				return
			}
			if e.teardown.Teardown(ctx, id, announce.OutcomeShutdown, "") {
				count++
			}
		}
	})
	return count
}

// authorize returns the session if actor is its creator or a moderator
func (e *Engine) authorize(id string, actor Actor) (session.Session, error) {
	s, ok := e.store.Get(id)
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if s.State == session.StateClosing {
		return session.Session{}, session.ErrSessionClosed
	}
	if s.Creator != actor.ID && !actor.Moderator {
		return session.Session{}, ErrNotAuthorized
	}
	return s, nil
}
