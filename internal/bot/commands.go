package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hfcRed/Agent-8s-sub001/internal/lifecycle"
	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
	"github.com/hfcRed/Agent-8s-sub001/internal/storage"
)

const (
	commandName    = "eights"
	commandTimeout = 15 * time.Second
	historyLimit   = 10
	maxCountdown   = 120
)

var roleChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Frontline", Value: "Frontline"},
	{Name: "Support", Value: "Support"},
	{Name: "Backline", Value: "Backline"},
	{Name: "Flex", Value: "Flex"},
}

// sessionOption lets moderators target a session by its announcement message ID
var sessionOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionString,
	Name:        "session",
	Description: "Announcement message ID (defaults to your own session)",
}

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	minCountdown := float64(0)
	dmPermission := false

	return []*discordgo.ApplicationCommand{
		{
			Name:         commandName,
			Description:  "Organize eights sessions",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "create",
					Description: "Start a new session in this channel",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "countdown",
							Description: "Minutes until the session starts on its own (0 = when full)",
							MinValue:    &minCountdown,
							MaxValue:    maxCountdown,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "role",
							Description: "Your role",
							Choices:     roleChoices,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "rank",
							Description: "Your rank",
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "spectators",
							Description: "Allow spectators",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "start",
					Description: "Start your session early",
					Options:     []*discordgo.ApplicationCommandOption{sessionOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "cancel",
					Description: "Cancel a session that has not started",
					Options:     []*discordgo.ApplicationCommandOption{sessionOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "finish",
					Description: "End a running session",
					Options:     []*discordgo.ApplicationCommandOption{sessionOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "role",
					Description: "Change your role in your session",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "role",
							Description: "Your role",
							Required:    true,
							Choices:     roleChoices,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "rank",
							Description: "Your rank",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "transfer",
					Description: "Hand your session over to another participant",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "user",
							Description: "The new creator",
							Required:    true,
						},
						sessionOption,
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reping",
					Description: "Ping for more players",
					Options:     []*discordgo.ApplicationCommandOption{sessionOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "spectators",
					Description: "Allow or disallow spectators",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "enabled",
							Description: "Whether spectators are allowed",
							Required:    true,
						},
						sessionOption,
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "setup",
					Description: "Configure eights for this server (moderators)",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionChannel,
							Name:         "voice_category",
							Description:  "Category that session voice rooms are created in",
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildCategory},
						},
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "moderator_role",
							Description: "Role allowed to manage any session",
						},
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "ping_role",
							Description: "Role pinged by /eights reping",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "history",
					Description: "List the latest sessions of this server",
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	b.log.Info("Registering slash commands", "guild", b.config.GuildID)

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			b.config.GuildID, // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		b.log.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	b.log.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// handleCommand dispatches an /eights subcommand
func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "create":
		b.handleCreate(s, i, opts)
	case "start", "cancel", "finish":
		b.handleTransition(s, i, sub.Name, opts)
	case "role":
		b.handleRole(s, i, opts)
	case "transfer":
		b.handleTransfer(s, i, opts)
	case "reping":
		b.handleReping(s, i, opts)
	case "spectators":
		b.handleSpectators(s, i, opts)
	case "setup":
		b.handleSetup(s, i, opts)
	case "history":
		b.handleHistory(s, i)
	default:
		b.log.Warn("Unknown subcommand", "subcommand", sub.Name)
	}
}

// handleCreate posts an announcement and registers a session for it
func (b *Bot) handleCreate(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actor := b.actor(i)
	if id, ok := b.store.GetUserEventID(actor.ID); ok {
		respondEphemeral(s, i, fmt.Sprintf("You are already in a session: %s", messageLink(i.GuildID, i.ChannelID, id)))
		return
	}

	var countdown time.Duration
	if opt, ok := opts["countdown"]; ok {
		countdown = time.Duration(opt.IntValue()) * time.Minute
	}
	role := stringOption(opts, "role")
	rank := stringOption(opts, "rank")
	spectators := false
	if opt, ok := opts["spectators"]; ok {
		spectators = opt.BoolValue()
	}

	// Respond immediately to avoid timeout
	deferEphemeral(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sess, err := b.postSession(ctx, lifecycle.CreateRequest{
		ChannelID:         i.ChannelID,
		GuildID:           i.GuildID,
		Creator:           actor.ID,
		Role:              role,
		Rank:              rank,
		Countdown:         countdown,
		SpectatorsEnabled: spectators,
	})
	switch {
	case errors.Is(err, errAnnouncementFailed):
		editResponse(s, i, "Failed to post the announcement. Check that I can send messages here.")
		return
	case err != nil:
		editResponse(s, i, userMessage(err))
		return
	}
	editResponse(s, i, fmt.Sprintf("Session created! Match ID `%s`", sess.MatchID))
}

var errAnnouncementFailed = errors.New("announcement could not be posted")

// postSession posts a placeholder announcement in req.ChannelID and
// registers a session keyed by it. The placeholder is deleted again when
// the session cannot be created.
func (b *Bot) postSession(ctx context.Context, req lifecycle.CreateRequest) (session.Session, error) {
	messageID, err := b.platform.SendMessage(ctx, req.ChannelID, platform.Message{Content: "Setting up a new eights session..."})
	if err != nil {
		b.log.Error("Failed to post announcement", "channel", req.ChannelID, "error", err)
		return session.Session{}, fmt.Errorf("%w: %w", errAnnouncementFailed, err)
	}
	req.MessageID = messageID

	sess, err := b.engine.Create(ctx, req)
	if err != nil {
		if delErr := b.platform.DeleteMessage(ctx, req.ChannelID, messageID); delErr != nil {
			b.log.Error("Failed to delete orphaned announcement", "message", messageID, "error", delErr)
		}
		return session.Session{}, err
	}

	if err := b.platform.EditMessage(ctx, sess.ChannelID, sess.ID, b.renderer.Render(sess)); err != nil {
		b.log.Error("Failed to render announcement", "session", sess.ID, "error", err)
	}
	return sess, nil
}

// handleTransition handles /eights start, cancel and finish
func (b *Bot) handleTransition(s *discordgo.Session, i *discordgo.InteractionCreate, name string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actor := b.actor(i)
	id, ok := b.targetSession(actor, opts)
	if !ok {
		respondEphemeral(s, i, "You are not in a session. Pass the `session` option to target one.")
		return
	}

	// Provisioning and teardown can take a while
	deferEphemeral(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	var done string
	switch name {
	case "start":
		_, err = b.engine.Start(ctx, id, actor)
		done = "Session started."
	case "cancel":
		err = b.engine.Cancel(ctx, id, actor)
		done = "Session cancelled."
	case "finish":
		err = b.engine.Finish(ctx, id, actor)
		done = "Session finished. GG!"
	}
	if err != nil {
		editResponse(s, i, userMessage(err))
		return
	}
	editResponse(s, i, done)
}

// handleRole handles /eights role
func (b *Bot) handleRole(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actor := b.actor(i)
	id, ok := b.store.GetUserEventID(actor.ID)
	if !ok {
		respondEphemeral(s, i, "You are not signed up for a session.")
		return
	}

	role := stringOption(opts, "role")
	if err := b.engine.ChangeRole(context.Background(), id, actor, role, stringOption(opts, "rank")); err != nil {
		respondEphemeral(s, i, userMessage(err))
		return
	}
	respondEphemeral(s, i, fmt.Sprintf("Your role is now **%s**.", role))
}

// handleTransfer handles /eights transfer
func (b *Bot) handleTransfer(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actor := b.actor(i)
	id, ok := b.targetSession(actor, opts)
	if !ok {
		respondEphemeral(s, i, "You are not in a session.")
		return
	}

	to := opts["user"].UserValue(nil)
	if err := b.engine.TransferOwnership(context.Background(), id, actor, to.ID); err != nil {
		respondEphemeral(s, i, userMessage(err))
		return
	}
	respondEphemeral(s, i, fmt.Sprintf("<@%s> now runs the session.", to.ID))
}

// handleReping handles /eights reping
func (b *Bot) handleReping(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actor := b.actor(i)
	id, ok := b.targetSession(actor, opts)
	if !ok {
		respondEphemeral(s, i, "You are not in a session.")
		return
	}

	deferEphemeral(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.engine.Reping(ctx, id, actor); err != nil {
		editResponse(s, i, userMessage(err))
		return
	}
	editResponse(s, i, "Pinged for more players.")
}

// handleSpectators handles /eights spectators
func (b *Bot) handleSpectators(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actor := b.actor(i)
	id, ok := b.targetSession(actor, opts)
	if !ok {
		respondEphemeral(s, i, "You are not in a session.")
		return
	}

	enabled := opts["enabled"].BoolValue()
	evicted, err := b.engine.SetSpectators(context.Background(), id, actor, enabled)
	if err != nil {
		respondEphemeral(s, i, userMessage(err))
		return
	}

	if enabled {
		respondEphemeral(s, i, "Spectators are now allowed.")
		return
	}
	respondEphemeral(s, i, fmt.Sprintf("Spectators are now disabled (%d removed).", len(evicted)))
}

// handleSetup handles /eights setup
func (b *Bot) handleSetup(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.settings.isModerator(i.GuildID, i.Member) {
		respondEphemeral(s, i, userMessage(lifecycle.ErrNotAuthorized))
		return
	}

	settings, err := b.repo.GetGuildSettings(i.GuildID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.log.Error("Failed to load guild settings", "guild", i.GuildID, "error", err)
			respondEphemeral(s, i, "Failed to load settings. Please try again.")
			return
		}
		settings = &storage.GuildSettings{GuildID: i.GuildID}
	}

	if opt, ok := opts["voice_category"]; ok {
		settings.VoiceCategoryID = opt.ChannelValue(nil).ID
	}
	if opt, ok := opts["moderator_role"]; ok {
		settings.ModeratorRoleID = opt.RoleValue(nil, i.GuildID).ID
	}
	if opt, ok := opts["ping_role"]; ok {
		settings.PingRoleID = opt.RoleValue(nil, i.GuildID).ID
	}

	if err := b.repo.UpsertGuildSettings(settings); err != nil {
		b.log.Error("Failed to save guild settings", "error", err)
		respondEphemeral(s, i, "Failed to save settings. Please try again.")
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("Settings saved.\nVoice category: %s\nModerator role: %s\nPing role: %s",
		orNone(settings.VoiceCategoryID, "<#%s>"),
		orNone(settings.ModeratorRoleID, "<@&%s>"),
		orNone(settings.PingRoleID, "<@&%s>"),
	))
}

// handleHistory handles /eights history
func (b *Bot) handleHistory(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	matches, err := b.repo.GetRecentMatches(ctx, i.GuildID, historyLimit)
	if err != nil {
		b.log.Error("Failed to get recent matches", "guild", i.GuildID, "error", err)
		respondEphemeral(s, i, "Failed to load history. Please try again.")
		return
	}

	if len(matches) == 0 {
		respondEphemeral(s, i, "No sessions have been played here yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Recent sessions:**\n\n")
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("`%s` %s <t:%d:R> with %d players\n", shortID(m.MatchID), m.Outcome, m.EndedAt.Unix(), len(m.Participants)))
	}

	respondEphemeral(s, i, sb.String())
}

// targetSession resolves the session a command acts on
func (b *Bot) targetSession(actor lifecycle.Actor, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (string, bool) {
	if id := stringOption(opts, "session"); id != "" {
		return id, true
	}
	return b.store.GetUserEventID(actor.ID)
}

// actor identifies the user behind an interaction
func (b *Bot) actor(i *discordgo.InteractionCreate) lifecycle.Actor {
	if i.Member != nil && i.Member.User != nil {
		return lifecycle.Actor{
			ID:        i.Member.User.ID,
			Moderator: b.settings.isModerator(i.GuildID, i.Member),
		}
	}
	if i.User != nil {
		return lifecycle.Actor{ID: i.User.ID}
	}
	return lifecycle.Actor{}
}

// Helper functions

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func orNone(id, format string) string {
	if id == "" {
		return "not set"
	}
	return fmt.Sprintf(format, id)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func messageLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
}
