package lifecycle

import (
	"context"
	"fmt"

	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
	"github.com/hfcRed/Agent-8s-sub001/internal/telemetry"
)

var roomNames = []string{"Alpha", "Bravo", "Charlie", "Delta"}

// provision creates the thread and voice rooms of a freshly started session.
// Failures are logged and the session keeps running without the resource.
func (e *Engine) provision(ctx context.Context, s session.Session) session.Session {
	members := s.Members()
	short := s.MatchID
	if len(short) > 8 {
		short = short[:8]
	}

	threadID, err := e.platform.CreatePrivateThread(ctx, s.ChannelID, fmt.Sprintf("Eights %s", short))
	if err != nil {
		e.platformFailure(s, "create thread", err)
	} else {
		s.ThreadID = threadID
		e.store.SetThread(s.ID, threadID)
		for _, userID := range members {
			if err := e.platform.AddMember(ctx, threadID, userID); err != nil {
				e.platformFailure(s, "add thread member", err)
			}
		}
	}

	category := ""
	if e.settings != nil {
		category = e.settings.VoiceCategory(s.GuildID)
	}
	var rooms []string
	for i := 0; i < e.cfg.VoiceRooms; i++ {
		name := fmt.Sprintf("Eights %s %s", short, roomNames[i%len(roomNames)])
		roomID, err := e.platform.CreateRoom(ctx, platform.RoomSpec{
			GuildID:  s.GuildID,
			ParentID: category,
			Name:     name,
			Allow:    members,
		})
		if err != nil {
			e.platformFailure(s, "create voice room", err)
			continue
		}
		rooms = append(rooms, roomID)
	}
	s.VoiceChannelIDs = rooms
	e.store.SetVoiceChannels(s.ID, rooms)

	// A session claimed by teardown while provisioning may have been
	// snapshotted without these resources; release them here.
	current, ok := e.store.Get(s.ID)
	if !ok || current.State == session.StateClosing {
		e.log.Warn("Session vanished while provisioning, releasing resources", "session", s.ID)
		for _, roomID := range rooms {
			if err := e.platform.DeleteRoom(ctx, roomID); err != nil {
				e.platformFailure(s, "delete voice room", err)
			}
		}
		if s.ThreadID != "" {
			if err := e.platform.LockAndArchive(ctx, s.ThreadID); err != nil {
				e.platformFailure(s, "archive thread", err)
			}
		}
		return s
	}

	e.reconcile(ctx, current, members)
	return current
}

// reconcile brings access in line with the roster of s after members were
// granted it. Joins and leaves that land while provisioning run against a
// snapshot without resources, so they are settled here.
func (e *Engine) reconcile(ctx context.Context, s session.Session, members []string) {
	granted := make(map[string]bool, len(members))
	for _, userID := range members {
		granted[userID] = true
	}
	kept := make(map[string]bool, len(members))
	for _, userID := range s.Members() {
		if granted[userID] {
			kept[userID] = true
			continue
		}
		e.log.Debug("Granting access to member who joined while provisioning", "session", s.ID, "user", userID)
		e.grant(ctx, s, userID)
	}
	for _, userID := range members {
		if !kept[userID] {
			e.log.Debug("Revoking access of member who left while provisioning", "session", s.ID, "user", userID)
			e.revoke(ctx, s, userID)
		}
	}
}

// grant gives userID access to the thread and voice rooms of a started session
func (e *Engine) grant(ctx context.Context, s session.Session, userID string) {
	if s.ThreadID != "" {
		if err := e.platform.AddMember(ctx, s.ThreadID, userID); err != nil {
			e.platformFailure(s, "add thread member", err)
		}
	}
	for _, roomID := range s.VoiceChannelIDs {
		if err := e.platform.SetAccess(ctx, roomID, userID, true); err != nil {
			e.platformFailure(s, "grant voice access", err)
		}
	}
}

// revoke removes userID from the thread and voice rooms and disconnects them
func (e *Engine) revoke(ctx context.Context, s session.Session, userID string) {
	if s.ThreadID != "" {
		if err := e.platform.RemoveMember(ctx, s.ThreadID, userID); err != nil {
			e.platformFailure(s, "remove thread member", err)
		}
	}
	for _, roomID := range s.VoiceChannelIDs {
		if err := e.platform.SetAccess(ctx, roomID, userID, false); err != nil {
			e.platformFailure(s, "revoke voice access", err)
		}
		if err := e.platform.Disconnect(ctx, s.GuildID, roomID, userID); err != nil {
			e.platformFailure(s, "disconnect voice member", err)
		}
	}
}

func (e *Engine) platformFailure(s session.Session, op string, err error) {
	e.log.Error("Platform call failed", "session", s.ID, "op", op, "error", err)
	ev := telemetry.FromSession(telemetry.EventPlatformFailure, s, "")
	ev.Detail = fmt.Sprintf("%s: %v", op, err)
	e.notifier.Notify(ev)
}
