// Package platform defines the chat-platform capabilities the session engine
// consumes. The Discord implementation lives in platform/discord.
package platform

import "context"

// Message is an outgoing or edited message body.
// Payload carries platform-specific content (embeds, components).
type Message struct {
	Content string
	Payload any
}

// Venue sends and edits messages in channels
type Venue interface {
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	SendMessage(ctx context.Context, channelID string, msg Message) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Threads manages the private discussion thread of a session
type Threads interface {
	CreatePrivateThread(ctx context.Context, channelID, name string) (string, error)
	AddMember(ctx context.Context, threadID, userID string) error
	RemoveMember(ctx context.Context, threadID, userID string) error
	LockAndArchive(ctx context.Context, threadID string) error
}

// RoomSpec describes one voice room to create
type RoomSpec struct {
	GuildID  string
	ParentID string // category, optional
	Name     string
	Allow    []string // users granted view+connect
}

// Voice manages per-session voice rooms
type Voice interface {
	CreateRoom(ctx context.Context, spec RoomSpec) (string, error)
	SetAccess(ctx context.Context, channelID, userID string, allow bool) error
	// Disconnect kicks the user out of channelID if they are connected to it.
	Disconnect(ctx context.Context, guildID, channelID, userID string) error
	DeleteRoom(ctx context.Context, channelID string) error
}

// Platform bundles the capabilities
type Platform interface {
	Venue
	Threads
	Voice
}
