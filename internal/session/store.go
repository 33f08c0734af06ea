package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// entry holds every attribute of one session. Keeping them in a single
// value means they are created and purged together.
type entry struct {
	Session
	createdAt   time.Time
	timerHandle Stopper
	processing  map[Kind]*lease
}

// Store is the authoritative registry of live sessions.
// Every method is one critical section and performs no external I/O.
type Store struct {
	mu sync.Mutex

	capacity          int
	processingTimeout time.Duration
	now               func() time.Time
	log               *slog.Logger

	sessions  map[string]*entry
	userIndex map[string]string // participant user ID -> session ID
	leaseGen  uint64
}

// Option configures a Store
type Option func(*Store)

// WithCapacity sets the participant limit
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithProcessingTimeout sets the watchdog delay for processing locks
func WithProcessingTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.processingTimeout = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for watchdog releases
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates an empty Store
func NewStore(opts ...Option) *Store {
	s := &Store{
		capacity:          DefaultCapacity,
		processingTimeout: DefaultProcessingTimeout,
		now:               time.Now,
		log:               slog.Default(),
		sessions:          make(map[string]*entry),
		userIndex:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "session-store")
	return s
}

// Capacity returns the participant limit
func (s *Store) Capacity() int {
	return s.capacity
}

// Create registers a new session with its creator as the first participant.
func (s *Store) Create(ns NewSession) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns.ID == "" || ns.Creator.UserID == "" {
		return Session{}, fmt.Errorf("create session: %w", ErrInvalidRoster)
	}
	if _, exists := s.sessions[ns.ID]; exists {
		return Session{}, ErrSessionExists
	}
	if _, busy := s.userIndex[ns.Creator.UserID]; busy {
		return Session{}, ErrInOtherSession
	}

	now := s.now()
	creator := ns.Creator
	if creator.JoinedAt.IsZero() {
		creator.JoinedAt = now
	}

	e := &entry{
		Session: Session{
			ID:                ns.ID,
			ChannelID:         ns.ChannelID,
			GuildID:           ns.GuildID,
			MatchID:           ns.MatchID,
			Creator:           creator.UserID,
			State:             StateOpen,
			Participants:      []Participant{creator},
			Timer:             Timer{StartAt: now, Countdown: ns.Countdown},
			SpectatorsEnabled: ns.SpectatorsEnabled,
		},
		createdAt:  now,
		processing: make(map[Kind]*lease),
	}
	s.sessions[ns.ID] = e
	s.userIndex[creator.UserID] = ns.ID

	return e.snapshot(), nil
}

// Get returns a copy of the session
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return e.snapshot(), true
}

// Exists reports whether the session is registered (including while closing)
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Participants returns the ordered participant list, or nil if the session is gone.
func (s *Store) Participants(id string) []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]Participant(nil), e.Participants...)
}

// SetParticipants replaces the roster and rebuilds the reverse index for it.
// The roster must be unique, within capacity, free of users from other
// sessions and must contain the creator.
func (s *Store) SetParticipants(id string, roster []Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	if len(roster) > s.capacity {
		return ErrSessionFull
	}

	seen := make(map[string]struct{}, len(roster))
	hasCreator := false
	for _, p := range roster {
		if p.UserID == "" {
			return ErrInvalidRoster
		}
		if _, dup := seen[p.UserID]; dup {
			return ErrInvalidRoster
		}
		seen[p.UserID] = struct{}{}
		if owner, busy := s.userIndex[p.UserID]; busy && owner != id {
			return ErrInOtherSession
		}
		if p.UserID == e.Creator {
			hasCreator = true
		}
	}
	if !hasCreator {
		return ErrInvalidRoster
	}

	for _, p := range e.Participants {
		delete(s.userIndex, p.UserID)
	}
	e.Participants = append([]Participant(nil), roster...)
	for _, p := range e.Participants {
		s.userIndex[p.UserID] = id
		e.Queue = removeString(e.Queue, p.UserID)
		e.Spectators = removeString(e.Spectators, p.UserID)
	}
	return nil
}

// AddParticipant signs a user up. A queued or spectating user is moved out of
// the queue or spectator set in the same step. When the addition fills an
// Open session that has a pending countdown, the session becomes Finalizing.
func (s *Store) AddParticipant(id string, p Participant) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return JoinResult{}, err
	}
	if err := s.admit(e, p.UserID); err != nil {
		return JoinResult{}, err
	}

	full := s.appendParticipant(e, p)
	return JoinResult{Session: e.snapshot(), Full: full}, nil
}

// RemoveParticipant removes a non-creator participant without promoting anyone.
func (s *Store) RemoveParticipant(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	if e.Creator == userID {
		return ErrIsCreator
	}
	if _, ok := e.removeParticipant(userID); !ok {
		return ErrNotParticipant
	}
	delete(s.userIndex, userID)
	if e.State == StateFinalizing {
		e.State = StateOpen
	}
	return nil
}

// DropOut removes a participant and, in the same step, promotes the head of
// the waitlist (started sessions only) and transfers ownership to the
// longest-standing remaining participant if the creator left. When nobody
// remains the session is claimed for teardown.
func (s *Store) DropOut(id, userID string) (DropOutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return DropOutResult{}, err
	}
	removed, ok := e.removeParticipant(userID)
	if !ok {
		return DropOutResult{}, ErrNotParticipant
	}
	delete(s.userIndex, userID)

	res := DropOutResult{Removed: removed}

	switch e.State {
	case StateFinalizing:
		// a leave frees a seat, so signups reopen while the countdown runs
		e.State = StateOpen
	case StateStarted:
		res.Promoted, res.Discarded = s.promoteFromQueue(e)
	}

	if e.Creator == userID {
		if len(e.Participants) > 0 {
			e.Creator = e.Participants[0].UserID
			res.NewCreator = e.Creator
		} else {
			e.Creator = ""
		}
	}

	if len(e.Participants) == 0 {
		e.State = StateClosing
		res.Empty = true
	}

	res.Session = e.snapshot()
	return res, nil
}

// promoteFromQueue moves the first eligible queued user into the roster.
// Heads that meanwhile joined another session are dropped from the queue.
func (s *Store) promoteFromQueue(e *entry) (*Participant, []string) {
	var discarded []string
	for len(e.Queue) > 0 && len(e.Participants) < s.capacity {
		head := e.Queue[0]
		e.Queue = e.Queue[1:]
		if _, busy := s.userIndex[head]; busy {
			discarded = append(discarded, head)
			continue
		}
		p := Participant{UserID: head, JoinedAt: s.now()}
		s.appendParticipant(e, p)
		return &p, discarded
	}
	return nil, discarded
}

// UpdateRole changes a participant's role tag and rank
func (s *Store) UpdateRole(id, userID, role, rank string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	for i := range e.Participants {
		if e.Participants[i].UserID == userID {
			e.Participants[i].Role = role
			e.Participants[i].Rank = rank
			return nil
		}
	}
	return ErrNotParticipant
}

// TransferCreator hands ownership to another participant
func (s *Store) TransferCreator(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	if !e.HasParticipant(userID) {
		return ErrNotParticipant
	}
	e.Creator = userID
	return nil
}

// MarkStarted moves an Open or Finalizing session to Started.
func (s *Store) MarkStarted(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return Session{}, err
	}
	if e.State == StateStarted || e.Timer.Started {
		return Session{}, ErrAlreadyStarted
	}
	e.State = StateStarted
	e.Timer.Started = true
	return e.snapshot(), nil
}

// SetState sets the lifecycle state. A closing or missing session is left untouched.
func (s *Store) SetState(id string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, err := s.live(id); err == nil {
		e.State = state
	}
}

// SetThread records the provisioned discussion thread
func (s *Store) SetThread(id, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		e.ThreadID = threadID
	}
}

// SetVoiceChannels records the provisioned voice rooms
func (s *Store) SetVoiceChannels(id string, channelIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		e.VoiceChannelIDs = append([]string(nil), channelIDs...)
	}
}

// ClaimReping starts a reping cooldown if none is running and returns the
// previous reping message ID so the caller can delete it.
func (s *Store) ClaimReping(id string, cooldown time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return "", err
	}
	now := s.now()
	if now.Before(e.RepingCooldown) {
		return "", ErrRepingCooldown
	}
	e.RepingCooldown = now.Add(cooldown)
	return e.RepingMessageID, nil
}

// SetRepingMessage records the latest reping message
func (s *Store) SetRepingMessage(id, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		e.RepingMessageID = messageID
	}
}

// SetTimerHandle stores the pending auto-start task, stopping any previous one.
// If the session is gone the handle is stopped immediately.
func (s *Store) SetTimerHandle(id string, h Stopper) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		if h != nil {
			h.Stop()
		}
		return
	}
	if e.timerHandle != nil {
		e.timerHandle.Stop()
	}
	e.timerHandle = h
}

// CancelTimerHandle stops the pending auto-start task, if any
func (s *Store) CancelTimerHandle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok && e.timerHandle != nil {
		e.timerHandle.Stop()
		e.timerHandle = nil
	}
}

// UserOwnsEvent returns the session the user created, if any.
func (s *Store) UserOwnsEvent(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.sessions {
		if e.Creator == userID {
			return id, true
		}
	}
	return "", false
}

// GetUserEventID returns the session the user participates in
func (s *Store) GetUserEventID(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.userIndex[userID]
	return id, ok
}

// AllTimers returns the timer of every live session keyed by session ID
func (s *Store) AllTimers() map[string]Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	timers := make(map[string]Timer, len(s.sessions))
	for id, e := range s.sessions {
		timers[id] = e.Timer
	}
	return timers
}

// AllParticipants returns the roster of every live session keyed by session ID
func (s *Store) AllParticipants() map[string][]Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make(map[string][]Participant, len(s.sessions))
	for id, e := range s.sessions {
		all[id] = append([]Participant(nil), e.Participants...)
	}
	return all
}

// IDs returns the IDs of all registered sessions
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// CreatedAt returns when the session was registered
func (s *Store) CreatedAt(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return time.Time{}, false
	}
	return e.createdAt, true
}

// Len returns the number of registered sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// BeginTeardown claims a session for teardown and returns its final snapshot.
// Only the first caller gets ok == true.
func (s *Store) BeginTeardown(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || e.State == StateClosing {
		return Session{}, false
	}
	e.State = StateClosing
	return e.snapshot(), true
}

// ClearAllEventData purges every attribute of the session, its reverse index
// entries, its pending timer and its processing watchdogs. It returns false
// if there was nothing to purge.
func (s *Store) ClearAllEventData(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	if e.timerHandle != nil {
		e.timerHandle.Stop()
	}
	for kind, l := range e.processing {
		l.timer.Stop()
		delete(e.processing, kind)
	}
	for _, p := range e.Participants {
		if s.userIndex[p.UserID] == id {
			delete(s.userIndex, p.UserID)
		}
	}
	delete(s.sessions, id)
	return true
}

// live returns a session that can still be mutated
func (s *Store) live(id string) (*entry, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if e.State == StateClosing {
		return nil, ErrSessionClosed
	}
	return e, nil
}

// admit checks whether userID may become a participant of e
func (s *Store) admit(e *entry, userID string) error {
	if owner, busy := s.userIndex[userID]; busy {
		if owner == e.ID {
			return ErrAlreadyParticipant
		}
		return ErrInOtherSession
	}
	if e.State == StateFinalizing || len(e.Participants) >= s.capacity {
		return ErrSessionFull
	}
	return nil
}

// appendParticipant adds p and reports whether the roster is now full.
func (s *Store) appendParticipant(e *entry, p Participant) bool {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.now()
	}
	e.Queue = removeString(e.Queue, p.UserID)
	e.Spectators = removeString(e.Spectators, p.UserID)
	e.Participants = append(e.Participants, p)
	s.userIndex[p.UserID] = e.ID

	full := len(e.Participants) == s.capacity
	if full && e.State == StateOpen && e.Timer.Countdown > 0 && !e.Timer.Started {
		e.State = StateFinalizing
	}
	return full
}

func (e *entry) removeParticipant(userID string) (Participant, bool) {
	for i, p := range e.Participants {
		if p.UserID == userID {
			e.Participants = append(e.Participants[:i:i], e.Participants[i+1:]...)
			return p, true
		}
	}
	return Participant{}, false
}

func (e *entry) snapshot() Session {
	snap := e.Session
	snap.Participants = append([]Participant(nil), e.Participants...)
	snap.VoiceChannelIDs = append([]string(nil), e.VoiceChannelIDs...)
	snap.Queue = append([]string(nil), e.Queue...)
	snap.Spectators = append([]string(nil), e.Spectators...)
	snap.Processing = make([]Kind, 0, len(e.processing))
	for kind := range e.processing {
		snap.Processing = append(snap.Processing, kind)
	}
	return snap
}

func removeString(list []string, v string) []string {
	for i, item := range list {
		if item == v {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
