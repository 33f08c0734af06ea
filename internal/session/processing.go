package session

import "time"

// lease is one held processing lock. gen identifies the acquisition so a
// late watchdog never releases a newer lock of the same kind.
type lease struct {
	gen   uint64
	timer *time.Timer
}

// IsProcessing reports whether an operation of the given kind is in flight.
func (s *Store) IsProcessing(id string, kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	_, busy := e.processing[kind]
	return busy
}

// SetProcessing marks kind as in flight and arms the watchdog.
// Setting an already held kind re-arms it.
func (s *Store) SetProcessing(id string, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		s.acquire(e, kind)
	}
}

// TryProcessing is the atomic form of IsProcessing followed by SetProcessing.
// It returns false if the session is gone or kind is already held.
func (s *Store) TryProcessing(id string, kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	if _, busy := e.processing[kind]; busy {
		return false
	}
	s.acquire(e, kind)
	return true
}

// ClearProcessing releases kind. Releasing a lock that is not held is a no-op.
func (s *Store) ClearProcessing(id string, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return
	}
	if l, held := e.processing[kind]; held {
		l.timer.Stop()
		delete(e.processing, kind)
	}
}

func (s *Store) acquire(e *entry, kind Kind) {
	if l, held := e.processing[kind]; held {
		l.timer.Stop()
	}
	s.leaseGen++
	gen := s.leaseGen
	id := e.ID
	e.processing[kind] = &lease{
		gen:   gen,
		timer: time.AfterFunc(s.processingTimeout, func() { s.expireLease(id, kind, gen) }),
	}
}

// expireLease is the watchdog callback
func (s *Store) expireLease(id string, kind Kind, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return
	}
	if l, held := e.processing[kind]; held && l.gen == gen {
		delete(e.processing, kind)
		s.log.Warn("Processing lock released by watchdog", "session", id, "kind", kind, "timeout", s.processingTimeout)
	}
}
