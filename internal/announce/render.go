// Package announce renders session announcements and keeps them up to date.
package announce

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
	"github.com/hfcRed/Agent-8s-sub001/internal/platform/discord"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

// Button custom IDs. The announcement message ID identifies the session.
const (
	ButtonJoin     = "eights:join"
	ButtonLeave    = "eights:leave"
	ButtonQueue    = "eights:queue"
	ButtonSpectate = "eights:spectate"
	ButtonDropIn   = "eights:dropin"
	ButtonStart    = "eights:start"
	ButtonCancel   = "eights:cancel"
	ButtonFinish   = "eights:finish"
)

// Outcome is how a session ended
type Outcome string

const (
	OutcomeFinished  Outcome = "finished"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
	OutcomeShutdown  Outcome = "shutdown"
)

const (
	colorOpen       = 0x3498DB
	colorFinalizing = 0xF1C40F
	colorStarted    = 0x2ECC71
	colorClosed     = 0x95A5A6
)

// Renderer builds announcement messages
type Renderer struct {
	capacity int
}

// NewRenderer creates a Renderer for sessions of the given capacity
func NewRenderer(capacity int) *Renderer {
	return &Renderer{capacity: capacity}
}

// Render builds the live announcement of a session
func (r *Renderer) Render(s session.Session) platform.Message {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Eights %s (%d/%d)", stateTitle(s.State), len(s.Participants), r.capacity),
		Description: fmt.Sprintf("Hosted by <@%s>", s.Creator),
		Color:       stateColor(s.State),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Participants",
				Value: formatRoster(s.Participants),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Match ID: %s", s.MatchID),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if deadline := s.Timer.Deadline(); !deadline.IsZero() && !s.Timer.Started {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Starts",
			Value:  fmt.Sprintf("<t:%d:R>", deadline.Unix()),
			Inline: true,
		})
	}
	if len(s.Queue) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Waitlist",
			Value:  formatMentions(s.Queue, true),
			Inline: true,
		})
	}
	if s.SpectatorsEnabled {
		value := "None"
		if len(s.Spectators) > 0 {
			value = formatMentions(s.Spectators, false)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("Spectators (%d/%d)", len(s.Spectators), session.MaxSpectators),
			Value:  value,
			Inline: true,
		})
	}
	if s.ThreadID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Thread",
			Value:  fmt.Sprintf("<#%s>", s.ThreadID),
			Inline: true,
		})
	}

	return platform.Message{
		Payload: &discord.Rich{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: r.buttons(s),
		},
	}
}

// RenderClosed builds the final announcement; it has no buttons
func (r *Renderer) RenderClosed(s session.Session, outcome Outcome) platform.Message {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Eights %s", outcomeTitle(outcome)),
		Description: formatRoster(s.Participants),
		Color:       colorClosed,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Match ID: %s", s.MatchID),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	return platform.Message{
		Payload: &discord.Rich{Embeds: []*discordgo.MessageEmbed{embed}},
	}
}

// RenderReping builds a re-announcement pinging pingRoleID
func (r *Renderer) RenderReping(s session.Session, pingRoleID string) platform.Message {
	missing := r.capacity - len(s.Participants)
	content := fmt.Sprintf("Eights looking for %d more! https://discord.com/channels/%s/%s/%s",
		missing, s.GuildID, s.ChannelID, s.ID)
	rich := &discord.Rich{}
	if pingRoleID != "" {
		content = fmt.Sprintf("<@&%s> %s", pingRoleID, content)
		rich.MentionRoles = []string{pingRoleID}
	}
	return platform.Message{Content: content, Payload: rich}
}

func (r *Renderer) buttons(s session.Session) []discordgo.MessageComponent {
	var row []discordgo.MessageComponent
	switch s.State {
	case session.StateOpen, session.StateFinalizing:
		row = append(row,
			discordgo.Button{Label: "Join", Style: discordgo.SuccessButton, CustomID: ButtonJoin, Disabled: s.State == session.StateFinalizing},
			discordgo.Button{Label: "Leave", Style: discordgo.SecondaryButton, CustomID: ButtonLeave},
			discordgo.Button{Label: "Start", Style: discordgo.PrimaryButton, CustomID: ButtonStart},
			discordgo.Button{Label: "Cancel", Style: discordgo.DangerButton, CustomID: ButtonCancel},
		)
	case session.StateStarted:
		full := len(s.Participants) >= r.capacity
		row = append(row,
			discordgo.Button{Label: "Drop in", Style: discordgo.SuccessButton, CustomID: ButtonJoin, Disabled: full},
			discordgo.Button{Label: "Drop out", Style: discordgo.SecondaryButton, CustomID: ButtonLeave},
			discordgo.Button{Label: "Waitlist", Style: discordgo.PrimaryButton, CustomID: ButtonQueue, Disabled: !full},
			discordgo.Button{Label: "Finish", Style: discordgo.DangerButton, CustomID: ButtonFinish},
		)
	default:
		return nil
	}
	rows := []discordgo.MessageComponent{discordgo.ActionsRow{Components: row}}

	if s.SpectatorsEnabled {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Spectate", Style: discordgo.SecondaryButton, CustomID: ButtonSpectate},
			discordgo.Button{Label: "Spectator drop in", Style: discordgo.SecondaryButton, CustomID: ButtonDropIn},
		}})
	}
	return rows
}

func formatRoster(participants []session.Participant) string {
	if len(participants) == 0 {
		return "Nobody yet"
	}
	var sb strings.Builder
	for idx, p := range participants {
		sb.WriteString(fmt.Sprintf("%d. <@%s>", idx+1, p.UserID))
		if p.Role != "" {
			sb.WriteString(fmt.Sprintf(" · %s", p.Role))
		}
		if p.Rank != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", p.Rank))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMentions(ids []string, numbered bool) string {
	var sb strings.Builder
	for idx, id := range ids {
		if numbered {
			sb.WriteString(fmt.Sprintf("%d. ", idx+1))
		}
		sb.WriteString(fmt.Sprintf("<@%s>\n", id))
	}
	return sb.String()
}

func stateTitle(state session.State) string {
	switch state {
	case session.StateFinalizing:
		return "- Finalizing"
	case session.StateStarted:
		return "- Started"
	case session.StateClosing:
		return "- Closing"
	default:
		return "- Open"
	}
}

func stateColor(state session.State) int {
	switch state {
	case session.StateFinalizing:
		return colorFinalizing
	case session.StateStarted:
		return colorStarted
	case session.StateClosing:
		return colorClosed
	default:
		return colorOpen
	}
}

func outcomeTitle(outcome Outcome) string {
	switch outcome {
	case OutcomeFinished:
		return "finished"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeExpired:
		return "expired"
	default:
		return "closed"
	}
}
