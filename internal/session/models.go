package session

import (
	"errors"
	"time"
)

// State is the non-terminal lifecycle phase of a live session.
// Terminal outcomes are never stored: a terminal session is purged.
type State string

const (
	StateOpen       State = "open"
	StateFinalizing State = "finalizing"
	StateStarted    State = "started"
	// StateClosing marks a session claimed by teardown.
	StateClosing State = "closing"
)

// Kind is an operation kind guarded by the processing lock
type Kind string

const (
	KindStarting   Kind = "starting"
	KindFinishing  Kind = "finishing"
	KindCancelling Kind = "cancelling"
	KindCleanup    Kind = "cleanup"
)

const (
	// DefaultCapacity is the production participant limit
	DefaultCapacity = 8
	// TestCapacity is the reduced participant limit used in test mode
	TestCapacity = 2
	// MaxSpectators bounds the spectator set of a session
	MaxSpectators = 2
	// DefaultProcessingTimeout is how long a processing lock lives without an explicit release
	DefaultProcessingTimeout = 30 * time.Second
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrSessionClosed      = errors.New("session is closing")
	ErrSessionFull        = errors.New("session is full")
	ErrNotFull            = errors.New("session is not full")
	ErrNotStarted         = errors.New("session has not started")
	ErrAlreadyStarted     = errors.New("session already started")
	ErrAlreadyParticipant = errors.New("user is already a participant")
	ErrInOtherSession     = errors.New("user is participating in another session")
	ErrNotParticipant     = errors.New("user is not a participant")
	ErrIsCreator          = errors.New("user is the session creator")
	ErrAlreadyQueued      = errors.New("user is already queued")
	ErrNotQueued          = errors.New("user is not queued")
	ErrSpectatorsDisabled = errors.New("spectators are disabled")
	ErrSpectatorsFull     = errors.New("spectator slots are full")
	ErrAlreadySpectating  = errors.New("user is already spectating")
	ErrNotSpectating      = errors.New("user is not spectating")
	ErrInvalidRoster      = errors.New("invalid participant roster")
	ErrRepingCooldown     = errors.New("reping is on cooldown")
)

// Participant is one signed-up user
type Participant struct {
	UserID   string
	Role     string
	Rank     string // optional
	JoinedAt time.Time
}

// Timer governs auto-start and expiry of a session.
// Countdown is zero when the session starts as soon as it is full.
type Timer struct {
	StartAt   time.Time
	Countdown time.Duration
	Started   bool
}

// Deadline returns when the countdown elapses, or the zero time if there is none.
func (t Timer) Deadline() time.Time {
	if t.Countdown <= 0 {
		return time.Time{}
	}
	return t.StartAt.Add(t.Countdown)
}

// Session is a point-in-time copy of a session's attributes.
// Mutating a Session never affects the Store.
type Session struct {
	ID        string // announcement message ID
	ChannelID string
	GuildID   string
	MatchID   string
	Creator   string
	State     State

	Participants []Participant
	Timer        Timer

	ThreadID        string
	VoiceChannelIDs []string

	Queue             []string
	Spectators        []string
	SpectatorsEnabled bool

	RepingCooldown  time.Time
	RepingMessageID string

	Processing []Kind
}

// HasParticipant reports whether userID is signed up
func (s Session) HasParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns participant user IDs in display order
func (s Session) ParticipantIDs() []string {
	ids := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		ids[i] = p.UserID
	}
	return ids
}

// Members returns everyone with access to side resources: participants then spectators.
func (s Session) Members() []string {
	return append(s.ParticipantIDs(), s.Spectators...)
}

// NewSession carries the attributes fixed at creation
type NewSession struct {
	ID                string
	ChannelID         string
	GuildID           string
	MatchID           string
	Creator           Participant
	Countdown         time.Duration
	SpectatorsEnabled bool
}

// JoinResult describes the session after a participant was added
type JoinResult struct {
	Session Session
	// Full is true when this addition filled the last slot
	Full bool
}

// DropOutResult describes the single atomic step that removes a participant.
type DropOutResult struct {
	Removed    Participant
	Promoted   *Participant
	NewCreator string
	// Discarded lists queued users skipped because they joined another session
	Discarded []string
	// Empty is true when no participants remain. The session is then
	// already claimed for teardown (StateClosing).
	Empty   bool
	Session Session
}

// Stopper is a cancellable scheduled task, satisfied by *time.Timer
type Stopper interface {
	Stop() bool
}
