package bot

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/hfcRed/Agent-8s-sub001/internal/config"
	"github.com/hfcRed/Agent-8s-sub001/internal/storage"
)

// moderatorPermissions lets a member act on sessions they did not create
const moderatorPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageMessages | discordgo.PermissionManageEvents

// guildSettings resolves per-guild settings, falling back to the environment
// for anything a guild has not configured with /eights setup.
type guildSettings struct {
	repo     *storage.Repository
	fallback storage.GuildSettings
	log      *slog.Logger
}

func newGuildSettings(repo *storage.Repository, cfg *config.Config, log *slog.Logger) *guildSettings {
	return &guildSettings{
		repo: repo,
		fallback: storage.GuildSettings{
			ModeratorRoleID: cfg.ModeratorRoleID,
			PingRoleID:      cfg.PingRoleID,
		},
		log: log.With("component", "settings"),
	}
}

func (g *guildSettings) get(guildID string) storage.GuildSettings {
	merged := g.fallback
	merged.GuildID = guildID

	stored, err := g.repo.GetGuildSettings(guildID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			g.log.Error("Failed to load guild settings", "guild", guildID, "error", err)
		}
		return merged
	}

	if stored.VoiceCategoryID != "" {
		merged.VoiceCategoryID = stored.VoiceCategoryID
	}
	if stored.ModeratorRoleID != "" {
		merged.ModeratorRoleID = stored.ModeratorRoleID
	}
	if stored.PingRoleID != "" {
		merged.PingRoleID = stored.PingRoleID
	}
	merged.CreatedAt = stored.CreatedAt
	return merged
}

// VoiceCategory returns the parent category of session voice rooms
func (g *guildSettings) VoiceCategory(guildID string) string {
	return g.get(guildID).VoiceCategoryID
}

// PingRole returns the role mentioned by repings
func (g *guildSettings) PingRole(guildID string) string {
	return g.get(guildID).PingRoleID
}

// isModerator reports whether member may manage other users' sessions
func (g *guildSettings) isModerator(guildID string, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&moderatorPermissions != 0 {
		return true
	}
	role := g.get(guildID).ModeratorRoleID
	return role != "" && slices.Contains(member.Roles, role)
}
