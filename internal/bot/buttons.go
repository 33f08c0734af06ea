package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/hfcRed/Agent-8s-sub001/internal/announce"
	"github.com/hfcRed/Agent-8s-sub001/internal/lifecycle"
	"github.com/hfcRed/Agent-8s-sub001/internal/platform/discord"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

// handleButton handles a press on an announcement button. The announcement
// message ID is the session ID.
func (b *Bot) handleButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Message == nil {
		return
	}
	id := i.Message.ID
	actor := b.actor(i)
	customID := i.MessageComponentData().CustomID

	b.log.Debug("Received button", "button", customID, "session", id, "user", actor.ID)

	deferred := defersResponse(customID)
	if deferred {
		deferUpdate(s, i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch customID {
	case announce.ButtonJoin:
		_, err = b.engine.Join(ctx, id, actor, "", "")
	case announce.ButtonLeave:
		err = b.leaveAny(ctx, id, actor)
	case announce.ButtonQueue:
		var pos int
		pos, err = b.engine.Enqueue(ctx, id, actor)
		if err == nil {
			respondEphemeral(s, i, fmt.Sprintf("You are #%d on the waitlist.", pos))
			return
		}
	case announce.ButtonSpectate:
		err = b.engine.Spectate(ctx, id, actor)
	case announce.ButtonDropIn:
		_, err = b.engine.DropIn(ctx, id, actor, "", "")
	case announce.ButtonStart:
		_, err = b.engine.Start(ctx, id, actor)
	case announce.ButtonCancel:
		err = b.engine.Cancel(ctx, id, actor)
	case announce.ButtonFinish:
		err = b.engine.Finish(ctx, id, actor)
	default:
		b.log.Warn("Unknown button", "button", customID)
		return
	}

	if deferred {
		if err != nil {
			followupEphemeral(s, i, userMessage(err))
			return
		}
		b.refresher.Refresh(ctx, id)
		return
	}
	if err != nil {
		respondEphemeral(s, i, userMessage(err))
		return
	}
	b.updateAnnouncement(s, i, id)
}

// defersResponse reports whether a button can start or tear down a session.
// Provisioning and teardown outlive the interaction deadline, so these
// presses are acknowledged before the operation runs.
func defersResponse(customID string) bool {
	switch customID {
	case announce.ButtonJoin, announce.ButtonDropIn, announce.ButtonLeave,
		announce.ButtonStart, announce.ButtonCancel, announce.ButtonFinish:
		return true
	}
	return false
}

// leaveAny takes actor out of whichever part of the session they are in
func (b *Bot) leaveAny(ctx context.Context, id string, actor lifecycle.Actor) error {
	_, err := b.engine.Leave(ctx, id, actor)
	if !errors.Is(err, session.ErrNotParticipant) {
		return err
	}
	err = b.engine.LeaveQueue(ctx, id, actor)
	if !errors.Is(err, session.ErrNotQueued) {
		return err
	}
	err = b.engine.StopSpectating(ctx, id, actor)
	if errors.Is(err, session.ErrNotSpectating) {
		return session.ErrNotParticipant
	}
	return err
}

// updateAnnouncement answers the press by re-rendering the announcement in place
func (b *Bot) updateAnnouncement(s *discordgo.Session, i *discordgo.InteractionCreate, id string) {
	sess, ok := b.store.Get(id)
	if !ok || sess.State == session.StateClosing {
		deferUpdate(s, i)
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: discord.ResponseData(b.renderer.Render(sess)),
	})
	if err != nil {
		b.log.Warn("Failed to update announcement inline, queueing refresh", "session", id, "error", err)
		b.refresher.QueueUpdate(id)
	}
}

func deferUpdate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

func followupEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}
