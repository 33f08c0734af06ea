package bot

import (
	"errors"

	"github.com/hfcRed/Agent-8s-sub001/internal/lifecycle"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

var userMessages = []struct {
	err error
	msg string
}{
	{lifecycle.ErrBusy, "This session is busy, please wait a moment and try again."},
	{lifecycle.ErrNotAuthorized, "Only the session creator or a moderator can do that."},
	{lifecycle.ErrNotEnoughParticipants, "Not enough participants to start yet."},
	{lifecycle.ErrShuttingDown, "The bot is restarting, please try again shortly."},
	{session.ErrSessionNotFound, "This session is no longer active."},
	{session.ErrSessionClosed, "This session is no longer active."},
	{session.ErrSessionFull, "This session is full."},
	{session.ErrNotFull, "The waitlist opens once a running session is full. Join directly instead."},
	{session.ErrNotStarted, "This session has not started yet."},
	{session.ErrAlreadyStarted, "This session has already started."},
	{session.ErrAlreadyParticipant, "You are already signed up."},
	{session.ErrInOtherSession, "You are already in another session. Leave it first."},
	{session.ErrNotParticipant, "You are not part of this session."},
	{session.ErrIsCreator, "The session creator cannot do that."},
	{session.ErrAlreadyQueued, "You are already on the waitlist."},
	{session.ErrNotQueued, "You are not on the waitlist."},
	{session.ErrSpectatorsDisabled, "Spectating is disabled for this session."},
	{session.ErrSpectatorsFull, "All spectator slots are taken."},
	{session.ErrAlreadySpectating, "You are already spectating."},
	{session.ErrNotSpectating, "You are not spectating."},
	{session.ErrRepingCooldown, "You pinged recently. Please wait before pinging again."},
}

// userMessage turns an operation error into a reply for the user
func userMessage(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong. Please try again."
}
