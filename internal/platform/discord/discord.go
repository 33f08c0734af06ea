// Package discord implements the platform capabilities on top of discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
)

// Rich is the Discord-specific payload of a platform.Message
type Rich struct {
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	// MentionRoles lists roles that may be pinged by the content
	MentionRoles []string
}

const threadArchiveMinutes = 1440

// Client adapts a discordgo session to platform.Platform
type Client struct {
	session *discordgo.Session
}

// New creates a Client
func New(session *discordgo.Session) *Client {
	return &Client{session: session}
}

var _ platform.Platform = (*Client)(nil)

// ChannelExists fetches the channel, reporting false when Discord no longer knows it.
func (c *Client) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	_, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		err = classify(err)
		if errors.Is(err, platform.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SendMessage posts a message and returns its ID
func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	send := &discordgo.MessageSend{Content: msg.Content}
	if rich, ok := msg.Payload.(*Rich); ok && rich != nil {
		send.Embeds = rich.Embeds
		send.Components = rich.Components
		send.AllowedMentions = &discordgo.MessageAllowedMentions{Roles: rich.MentionRoles}
	}

	m, err := c.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return m.ID, nil
}

// EditMessage replaces the content, embeds and components of a message
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg platform.Message) error {
	edit := discordgo.NewMessageEdit(channelID, messageID)
	content := msg.Content
	edit.Content = &content
	if rich, ok := msg.Payload.(*Rich); ok && rich != nil {
		edit.SetEmbeds(rich.Embeds)
		components := rich.Components
		if components == nil {
			components = []discordgo.MessageComponent{}
		}
		edit.Components = &components
	}

	_, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return classify(err)
}

// ResponseData converts a message into interaction response data, used to
// update an announcement in place when answering a button press.
func ResponseData(msg platform.Message) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{Content: msg.Content}
	if rich, ok := msg.Payload.(*Rich); ok && rich != nil {
		data.Embeds = rich.Embeds
		data.Components = rich.Components
		if data.Components == nil {
			data.Components = []discordgo.MessageComponent{}
		}
		data.AllowedMentions = &discordgo.MessageAllowedMentions{Roles: rich.MentionRoles}
	}
	return data
}

// DeleteMessage deletes a message
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return classify(c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

// CreatePrivateThread starts an invite-only thread under channelID
func (c *Client) CreatePrivateThread(ctx context.Context, channelID, name string) (string, error) {
	thread, err := c.session.ThreadStartComplex(channelID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: threadArchiveMinutes,
		Type:                discordgo.ChannelTypeGuildPrivateThread,
		Invitable:           false,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return thread.ID, nil
}

// AddMember adds a user to a thread
func (c *Client) AddMember(ctx context.Context, threadID, userID string) error {
	return classify(c.session.ThreadMemberAdd(threadID, userID, discordgo.WithContext(ctx)))
}

// RemoveMember removes a user from a thread
func (c *Client) RemoveMember(ctx context.Context, threadID, userID string) error {
	return classify(c.session.ThreadMemberRemove(threadID, userID, discordgo.WithContext(ctx)))
}

// LockAndArchive locks the thread and archives it
func (c *Client) LockAndArchive(ctx context.Context, threadID string) error {
	locked, archived := true, true
	_, err := c.session.ChannelEditComplex(threadID, &discordgo.ChannelEdit{
		Locked:   &locked,
		Archived: &archived,
	}, discordgo.WithContext(ctx))
	return classify(err)
}

const voiceAccess = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect

// CreateRoom creates a voice channel hidden from @everyone and open to spec.Allow
func (c *Client) CreateRoom(ctx context.Context, spec platform.RoomSpec) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			// the @everyone role shares the guild's ID
			ID:   spec.GuildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: voiceAccess,
		},
	}
	for _, userID := range spec.Allow {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    userID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: voiceAccess,
		})
	}

	ch, err := c.session.GuildChannelCreateComplex(spec.GuildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		ParentID:             spec.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return ch.ID, nil
}

// SetAccess grants or revokes a single member's overwrite on a voice room
func (c *Client) SetAccess(ctx context.Context, channelID, userID string, allow bool) error {
	var allowBits, denyBits int64
	if allow {
		allowBits = voiceAccess
	} else {
		denyBits = voiceAccess
	}
	return classify(c.session.ChannelPermissionSet(channelID, userID,
		discordgo.PermissionOverwriteTypeMember, allowBits, denyBits, discordgo.WithContext(ctx)))
}

// Disconnect moves the user out of voice if the gateway state shows them in channelID.
func (c *Client) Disconnect(ctx context.Context, guildID, channelID, userID string) error {
	vs, err := c.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID != channelID {
		return nil
	}
	return classify(c.session.GuildMemberMove(guildID, userID, nil, discordgo.WithContext(ctx)))
}

// DeleteRoom deletes a voice channel
func (c *Client) DeleteRoom(ctx context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return classify(err)
}

// classify wraps REST failures with the platform error class for the retrier.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return err
	}

	switch code := restErr.Response.StatusCode; {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", platform.ErrNotFound, err)
	case code == http.StatusForbidden, code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", platform.ErrForbidden, err)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", platform.ErrRateLimited, err)
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", platform.ErrUnavailable, err)
	case code >= http.StatusBadRequest:
		return fmt.Errorf("%w: %w", platform.ErrBadRequest, err)
	}
	return err
}
