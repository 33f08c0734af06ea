package lifecycle

import (
	"context"

	"github.com/hfcRed/Agent-8s-sub001/internal/session"
	"github.com/hfcRed/Agent-8s-sub001/internal/telemetry"
)

// Enqueue puts actor on the waitlist of a started, full session
func (e *Engine) Enqueue(ctx context.Context, id string, actor Actor) (int, error) {
	pos, err := e.store.Enqueue(id, actor.ID)
	if err != nil {
		return 0, err
	}
	if s, ok := e.store.Get(id); ok {
		e.notifier.Notify(telemetry.FromSession(telemetry.EventQueued, s, actor.ID))
	}
	e.announcer.QueueUpdate(id)
	return pos, nil
}

// LeaveQueue takes actor off the waitlist
func (e *Engine) LeaveQueue(ctx context.Context, id string, actor Actor) error {
	if err := e.store.Dequeue(id, actor.ID); err != nil {
		return err
	}
	if s, ok := e.store.Get(id); ok {
		e.notifier.Notify(telemetry.FromSession(telemetry.EventUnqueued, s, actor.ID))
	}
	e.announcer.QueueUpdate(id)
	return nil
}

// Spectate adds actor as a spectator. Spectators of a started session get
// the same thread and voice access as participants.
func (e *Engine) Spectate(ctx context.Context, id string, actor Actor) error {
	if err := e.store.AddSpectator(id, actor.ID); err != nil {
		return err
	}
	s, ok := e.store.Get(id)
	if !ok {
		return nil
	}
	if s.State == session.StateStarted {
		e.grant(ctx, s, actor.ID)
	}
	e.notifier.Notify(telemetry.FromSession(telemetry.EventSpectating, s, actor.ID))
	e.announcer.QueueUpdate(id)
	return nil
}

// StopSpectating removes actor from the spectators and revokes their access
func (e *Engine) StopSpectating(ctx context.Context, id string, actor Actor) error {
	if err := e.store.RemoveSpectator(id, actor.ID); err != nil {
		return err
	}
	s, ok := e.store.Get(id)
	if !ok {
		return nil
	}
	if s.State == session.StateStarted {
		e.revoke(ctx, s, actor.ID)
	}
	e.notifier.Notify(telemetry.FromSession(telemetry.EventSpectatorLeft, s, actor.ID))
	e.announcer.QueueUpdate(id)
	return nil
}

// DropIn moves a spectator straight into the roster without queueing.
func (e *Engine) DropIn(ctx context.Context, id string, actor Actor, role, rank string) (session.Session, error) {
	res, err := e.store.PromoteSpectator(id, actor.ID, role, rank)
	if err != nil {
		return session.Session{}, err
	}
	s := res.Session
	e.notifier.Notify(telemetry.FromSession(telemetry.EventPromoted, s, actor.ID))
	e.announcer.QueueUpdate(id)

	if res.Full && s.State == session.StateOpen {
		return e.startWhenFull(ctx, s, actor.ID)
	}
	return s, nil
}

// SetSpectators toggles spectating. Disabling evicts current spectators and
// revokes their access.
func (e *Engine) SetSpectators(ctx context.Context, id string, actor Actor, enabled bool) ([]string, error) {
	if _, err := e.authorize(id, actor); err != nil {
		return nil, err
	}
	evicted, err := e.store.SetSpectatorsEnabled(id, enabled)
	if err != nil {
		return nil, err
	}

	s, ok := e.store.Get(id)
	if ok {
		if s.State == session.StateStarted {
			for _, userID := range evicted {
				e.revoke(ctx, s, userID)
			}
		}
		ev := telemetry.FromSession(telemetry.EventSpectatorsToggle, s, actor.ID)
		if enabled {
			ev.Detail = "enabled"
		} else {
			ev.Detail = "disabled"
		}
		e.notifier.Notify(ev)
	}
	e.announcer.QueueUpdate(id)
	return evicted, nil
}
