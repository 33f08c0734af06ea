package announce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

// Refresher re-renders announcements of sessions marked dirty. Updates are
// coalesced: many QueueUpdate calls between two flushes produce one edit.
type Refresher struct {
	store    *session.Store
	venue    platform.Venue
	renderer *Renderer
	interval time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	dirty map[string]struct{}

	// editMu orders refresh edits against Finalize so a closed
	// announcement is never overwritten by a stale render
	editMu sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRefresher creates a Refresher flushing every interval
func NewRefresher(store *session.Store, venue platform.Venue, renderer *Renderer, interval time.Duration, log *slog.Logger) *Refresher {
	return &Refresher{
		store:    store,
		venue:    venue,
		renderer: renderer,
		interval: interval,
		log:      log.With("component", "announce"),
		dirty:    make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}
}

// QueueUpdate marks a session for re-rendering
func (r *Refresher) QueueUpdate(id string) {
	r.mu.Lock()
	r.dirty[id] = struct{}{}
	r.mu.Unlock()
}

// Pending reports whether id is waiting for a flush
func (r *Refresher) Pending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.dirty[id]
	return ok
}

// Start runs the flush loop until ctx is done or Stop is called
func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Stop signals the flush loop to stop
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Flush edits the announcement of every dirty session that still exists
func (r *Refresher) Flush(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	r.dirty = make(map[string]struct{})
	r.mu.Unlock()

	for _, id := range ids {
		r.refresh(ctx, id)
	}
}

// Refresh edits the announcement of id now and drops any pending update for it
func (r *Refresher) Refresh(ctx context.Context, id string) {
	r.mu.Lock()
	delete(r.dirty, id)
	r.mu.Unlock()
	r.refresh(ctx, id)
}

func (r *Refresher) refresh(ctx context.Context, id string) {
	r.editMu.Lock()
	defer r.editMu.Unlock()

	s, ok := r.store.Get(id)
	if !ok || s.State == session.StateClosing {
		return
	}
	if err := r.venue.EditMessage(ctx, s.ChannelID, s.ID, r.renderer.Render(s)); err != nil {
		r.log.Error("Failed to refresh announcement", "session", id, "error", err)
	}
}

// Finalize replaces the announcement with its closed form. Callers must have
// moved the session to Closing first.
func (r *Refresher) Finalize(ctx context.Context, s session.Session, outcome Outcome) {
	r.mu.Lock()
	delete(r.dirty, s.ID)
	r.mu.Unlock()

	r.editMu.Lock()
	defer r.editMu.Unlock()
	if err := r.venue.EditMessage(ctx, s.ChannelID, s.ID, r.renderer.RenderClosed(s, outcome)); err != nil {
		r.log.Error("Failed to finalize announcement", "session", s.ID, "outcome", outcome, "error", err)
	}
}

// Reping posts a re-announcement and returns its message ID
func (r *Refresher) Reping(ctx context.Context, s session.Session, pingRoleID string) (string, error) {
	return r.venue.SendMessage(ctx, s.ChannelID, r.renderer.RenderReping(s, pingRoleID))
}
