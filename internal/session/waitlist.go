package session

// Enqueue appends a user to the waitlist of a started, full session and
// returns the 1-based queue position.
func (s *Store) Enqueue(id, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return 0, err
	}
	if e.State != StateStarted {
		return 0, ErrNotStarted
	}
	if owner, busy := s.userIndex[userID]; busy {
		if owner == id {
			return 0, ErrAlreadyParticipant
		}
		return 0, ErrInOtherSession
	}
	if len(e.Participants) < s.capacity {
		return 0, ErrNotFull
	}
	if containsString(e.Spectators, userID) {
		return 0, ErrAlreadySpectating
	}
	if containsString(e.Queue, userID) {
		return 0, ErrAlreadyQueued
	}

	e.Queue = append(e.Queue, userID)
	return len(e.Queue), nil
}

// Dequeue removes a user from the waitlist
func (s *Store) Dequeue(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	if !containsString(e.Queue, userID) {
		return ErrNotQueued
	}
	e.Queue = removeString(e.Queue, userID)
	return nil
}

// Queue returns the waitlist in FIFO order
func (s *Store) Queue(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]string(nil), e.Queue...)
}

// AddSpectator adds an observer while spectating is enabled.
func (s *Store) AddSpectator(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	switch {
	case !e.SpectatorsEnabled:
		return ErrSpectatorsDisabled
	case e.HasParticipant(userID):
		return ErrAlreadyParticipant
	case containsString(e.Spectators, userID):
		return ErrAlreadySpectating
	case containsString(e.Queue, userID):
		return ErrAlreadyQueued
	case len(e.Spectators) >= MaxSpectators:
		return ErrSpectatorsFull
	}

	e.Spectators = append(e.Spectators, userID)
	return nil
}

// RemoveSpectator removes an observer
func (s *Store) RemoveSpectator(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	if !containsString(e.Spectators, userID) {
		return ErrNotSpectating
	}
	e.Spectators = removeString(e.Spectators, userID)
	return nil
}

// PromoteSpectator moves a spectator straight into the roster ("drop in"),
// bypassing the waitlist. Capacity still applies.
func (s *Store) PromoteSpectator(id, userID, role, rank string) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return JoinResult{}, err
	}
	if !containsString(e.Spectators, userID) {
		return JoinResult{}, ErrNotSpectating
	}
	if err := s.admit(e, userID); err != nil {
		return JoinResult{}, err
	}

	full := s.appendParticipant(e, Participant{UserID: userID, Role: role, Rank: rank})
	return JoinResult{Session: e.snapshot(), Full: full}, nil
}

// SetSpectatorsEnabled toggles spectating. Disabling returns the evicted spectators.
func (s *Store) SetSpectatorsEnabled(id string, enabled bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return nil, err
	}
	e.SpectatorsEnabled = enabled
	if enabled {
		return nil, nil
	}
	evicted := e.Spectators
	e.Spectators = nil
	return evicted, nil
}
