// Package sweeper periodically expires sessions that outlived the expiry ceiling.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

// DefaultExpiry is how long a session may live before it is force-ended
const DefaultExpiry = 24 * time.Hour

// Expirer ends a single session
type Expirer interface {
	Expire(ctx context.Context, id string) error
}

// Sessions lists the timers of every live session
type Sessions interface {
	AllTimers() map[string]session.Timer
	Get(id string) (session.Session, bool)
}

// ChannelChecker reports whether a venue channel still exists
type ChannelChecker interface {
	ChannelExists(ctx context.Context, channelID string) (bool, error)
}

// Sweeper checks every live session on a fixed interval
type Sweeper struct {
	sessions Sessions
	expirer  Expirer
	venue    ChannelChecker
	interval time.Duration
	expiry   time.Duration
	now      func() time.Time
	log      *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Sweeper
func New(sessions Sessions, expirer Expirer, interval, expiry time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Sweeper{
		sessions: sessions,
		expirer:  expirer,
		interval: interval,
		expiry:   expiry,
		now:      time.Now,
		log:      log.With("component", "sweeper"),
		stopChan: make(chan struct{}),
	}
}

// WithClock replaces the clock used to age sessions
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// WithVenue makes every pass also expire sessions whose channel was deleted
func (s *Sweeper) WithVenue(venue ChannelChecker) *Sweeper {
	s.venue = venue
	return s
}

// Start runs the sweep loop until ctx is cancelled or Stop is called
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting sweeper", "interval", s.interval, "expiry", s.expiry)

	s.wg.Add(1)
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped (context cancelled)")
			return
		case <-s.stopChan:
			s.log.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop and waits for the running pass
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Sweep expires every session older than the expiry ceiling or whose channel
// is gone, and returns how many it ended.
func (s *Sweeper) Sweep(ctx context.Context) int {
	timers := s.sessions.AllTimers()
	if len(timers) == 0 {
		s.log.Debug("No sessions to sweep")
		return 0
	}

	now := s.now()
	expired := 0
	for id, timer := range timers {
		select {
		case <-ctx.Done():
			return expired
		default:
		}

		age := now.Sub(timer.StartAt)
		switch {
		case age > s.expiry:
			s.log.Info("Expiring session", "session", id, "age", age.Round(time.Second))
		case s.orphaned(ctx, id):
			s.log.Info("Expiring session, venue channel is gone", "session", id)
		default:
			continue
		}

		if err := s.expirer.Expire(ctx, id); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionClosed) {
				continue
			}
			// busy sessions are retried on the next pass
			s.log.Warn("Failed to expire session", "session", id, "error", err)
			continue
		}
		expired++
	}
	return expired
}

// orphaned reports whether the session's channel has been deleted. Lookup
// failures count as present.
func (s *Sweeper) orphaned(ctx context.Context, id string) bool {
	if s.venue == nil {
		return false
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return false
	}
	exists, err := s.venue.ChannelExists(ctx, sess.ChannelID)
	if err != nil {
		s.log.Warn("Failed to check venue channel", "session", id, "channel", sess.ChannelID, "error", err)
		return false
	}
	return !exists
}
