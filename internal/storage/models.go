package storage

import "time"

// GuildSettings stores per-server configuration
type GuildSettings struct {
	GuildID         string
	VoiceCategoryID string // parent category for session voice rooms
	ModeratorRoleID string
	PingRoleID      string // role mentioned by repings
	CreatedAt       time.Time
}

// SessionEvent is one persisted lifecycle event
type SessionEvent struct {
	ID           int64
	SessionID    string
	MatchID      string
	GuildID      string
	ChannelID    string
	Kind         string
	ActorID      string
	Participants []string
	Detail       string
	CreatedAt    time.Time
}

// MatchSummary is the terminal event of one past session
type MatchSummary struct {
	MatchID      string
	Outcome      string
	Participants []string
	EndedAt      time.Time
}
