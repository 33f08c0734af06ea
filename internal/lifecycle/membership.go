package lifecycle

import (
	"context"
	"errors"

	"github.com/hfcRed/Agent-8s-sub001/internal/announce"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
	"github.com/hfcRed/Agent-8s-sub001/internal/telemetry"
)

// Join signs actor up. A join that fills a session without a countdown
// starts it; one that fills a session with a pending countdown finalizes it.
// Plain signups are not queued for re-render: the caller updates the
// announcement inline with the returned snapshot.
func (e *Engine) Join(ctx context.Context, id string, actor Actor, role, rank string) (session.Session, error) {
	res, err := e.store.AddParticipant(id, session.Participant{UserID: actor.ID, Role: role, Rank: rank})
	if err != nil {
		return session.Session{}, err
	}
	s := res.Session
	e.notifier.Notify(telemetry.FromSession(telemetry.EventJoined, s, actor.ID))

	switch {
	case s.State == session.StateStarted:
		// drop-in
		e.grant(ctx, s, actor.ID)
		e.announcer.QueueUpdate(id)
	case s.State == session.StateFinalizing:
		e.notifier.Notify(telemetry.FromSession(telemetry.EventFinalizing, s, actor.ID))
		e.announcer.QueueUpdate(id)
	case res.Full:
		return e.startWhenFull(ctx, s, actor.ID)
	}
	return s, nil
}

// startWhenFull starts a session that has just been filled
func (e *Engine) startWhenFull(ctx context.Context, s session.Session, actorID string) (session.Session, error) {
	started, err := e.start(ctx, s.ID, actorID)
	if err != nil {
		if errors.Is(err, ErrBusy) || errors.Is(err, session.ErrAlreadyStarted) {
			// another trigger is already starting it
			return s, nil
		}
		e.log.Warn("Failed to start full session", "session", s.ID, "error", err)
		return s, nil
	}
	return started, nil
}

// LeaveResult reports what a drop-out changed
type LeaveResult struct {
	Session    session.Session
	Promoted   string
	NewCreator string
	// Cancelled is true when the last participant left and the session was torn down
	Cancelled bool
}

// Leave removes actor from the roster. In a started session the head of the
// waitlist takes the freed slot; if the creator leaves, the longest-standing
// participant becomes creator. The last participant leaving cancels the session.
func (e *Engine) Leave(ctx context.Context, id string, actor Actor) (LeaveResult, error) {
	res, err := e.store.DropOut(id, actor.ID)
	if err != nil {
		return LeaveResult{}, err
	}
	s := res.Session
	out := LeaveResult{Session: s, NewCreator: res.NewCreator}

	if res.Empty {
		e.log.Info("Last participant left, cancelling session", "session", id)
		e.notifier.Notify(telemetry.FromSession(telemetry.EventLeft, s, actor.ID))
		e.teardown.Run(ctx, s, announce.OutcomeCancelled, actor.ID)
		out.Cancelled = true
		return out, nil
	}

	started := s.State == session.StateStarted
	if started {
		e.notifier.Notify(telemetry.FromSession(telemetry.EventDroppedOut, s, actor.ID))
		e.revoke(ctx, s, actor.ID)
	} else {
		e.notifier.Notify(telemetry.FromSession(telemetry.EventLeft, s, actor.ID))
	}

	for _, userID := range res.Discarded {
		e.log.Info("Dropped queued user who joined another session", "session", id, "user", userID)
	}

	changed := false
	if res.Promoted != nil {
		out.Promoted = res.Promoted.UserID
		e.log.Info("Promoted from waitlist", "session", id, "user", out.Promoted)
		e.notifier.Notify(telemetry.FromSession(telemetry.EventPromoted, s, out.Promoted))
		e.grant(ctx, s, out.Promoted)
		changed = true
	}
	if res.NewCreator != "" {
		e.log.Info("Ownership transferred", "session", id, "from", actor.ID, "to", res.NewCreator)
		e.notifier.Notify(telemetry.FromSession(telemetry.EventOwnerTransferred, s, res.NewCreator))
		changed = true
	}
	if changed || started {
		e.announcer.QueueUpdate(id)
	}
	return out, nil
}

// ChangeRole updates actor's role tag and rank; allowed in every live state
func (e *Engine) ChangeRole(ctx context.Context, id string, actor Actor, role, rank string) error {
	if err := e.store.UpdateRole(id, actor.ID, role, rank); err != nil {
		return err
	}
	if s, ok := e.store.Get(id); ok {
		e.notifier.Notify(telemetry.FromSession(telemetry.EventRoleChanged, s, actor.ID))
	}
	e.announcer.QueueUpdate(id)
	return nil
}

// TransferOwnership hands the creator role to another participant
func (e *Engine) TransferOwnership(ctx context.Context, id string, actor Actor, to string) error {
	if _, err := e.authorize(id, actor); err != nil {
		return err
	}
	if err := e.store.TransferCreator(id, to); err != nil {
		return err
	}
	if s, ok := e.store.Get(id); ok {
		e.notifier.Notify(telemetry.FromSession(telemetry.EventOwnerTransferred, s, to))
	}
	e.announcer.QueueUpdate(id)
	return nil
}

// Reping re-announces an unfilled session, replacing the previous reping.
func (e *Engine) Reping(ctx context.Context, id string, actor Actor) error {
	s, err := e.authorize(id, actor)
	if err != nil {
		return err
	}
	if s.State == session.StateStarted {
		return session.ErrAlreadyStarted
	}

	previous, err := e.store.ClaimReping(id, e.cfg.RepingCooldown)
	if err != nil {
		return err
	}
	if previous != "" {
		if err := e.platform.DeleteMessage(ctx, s.ChannelID, previous); err != nil {
			e.platformFailure(s, "delete reping", err)
		}
	}

	pingRole := ""
	if e.settings != nil {
		pingRole = e.settings.PingRole(s.GuildID)
	}
	messageID, err := e.announcer.Reping(ctx, s, pingRole)
	if err != nil {
		e.platformFailure(s, "send reping", err)
		return err
	}
	e.store.SetRepingMessage(id, messageID)
	e.notifier.Notify(telemetry.FromSession(telemetry.EventRepinged, s, actor.ID))
	return nil
}
