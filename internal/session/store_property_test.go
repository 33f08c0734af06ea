package session

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"pgregory.net/rapid"
)

// genUser draws from a small pool so operations collide often
func genUser() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("user-%d", rapid.IntRange(0, 11).Draw(t, "user"))
	})
}

func genSessionID() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{"msg-a", "msg-b", "msg-c"})
}

// checkInvariants fails when any cross-session invariant is broken
func checkInvariants(t *rapid.T, s *Store) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]string)
	for id, e := range s.sessions {
		if len(e.Participants) > s.capacity {
			t.Fatalf("session %s has %d participants, capacity %d", id, len(e.Participants), s.capacity)
		}
		if e.State != StateClosing && !e.HasParticipant(e.Creator) {
			t.Fatalf("session %s creator %q is not a participant", id, e.Creator)
		}
		if len(e.Spectators) > MaxSpectators {
			t.Fatalf("session %s has %d spectators", id, len(e.Spectators))
		}
		if !e.SpectatorsEnabled && len(e.Spectators) > 0 {
			t.Fatalf("session %s has spectators while disabled", id)
		}
		for _, p := range e.Participants {
			if other, dup := seen[p.UserID]; dup {
				t.Fatalf("user %s participates in %s and %s", p.UserID, other, id)
			}
			seen[p.UserID] = id
			if s.userIndex[p.UserID] != id {
				t.Fatalf("index for %s is %q, want %s", p.UserID, s.userIndex[p.UserID], id)
			}
			if containsString(e.Queue, p.UserID) || containsString(e.Spectators, p.UserID) {
				t.Fatalf("participant %s is also queued or spectating in %s", p.UserID, id)
			}
		}
		for _, q := range e.Queue {
			if containsString(e.Spectators, q) {
				t.Fatalf("user %s is queued and spectating in %s", q, id)
			}
		}
	}
	for user, id := range s.userIndex {
		if seen[user] != id {
			t.Fatalf("stale index entry %s -> %s", user, id)
		}
	}
}

func TestStore_InvariantsHoldUnderRandomOperations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(TestCapacity, DefaultCapacity).Draw(t, "capacity")
		store := NewStore(
			WithCapacity(capacity),
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)

		t.Repeat(map[string]func(*rapid.T){
			"create": func(t *rapid.T) {
				_, _ = store.Create(NewSession{
					ID:                genSessionID().Draw(t, "id"),
					Creator:           Participant{UserID: genUser().Draw(t, "creator")},
					SpectatorsEnabled: rapid.Bool().Draw(t, "spectators"),
				})
			},
			"join": func(t *rapid.T) {
				_, _ = store.AddParticipant(genSessionID().Draw(t, "id"), Participant{UserID: genUser().Draw(t, "user")})
			},
			"dropOut": func(t *rapid.T) {
				_, _ = store.DropOut(genSessionID().Draw(t, "id"), genUser().Draw(t, "user"))
			},
			"start": func(t *rapid.T) {
				_, _ = store.MarkStarted(genSessionID().Draw(t, "id"))
			},
			"enqueue": func(t *rapid.T) {
				_, _ = store.Enqueue(genSessionID().Draw(t, "id"), genUser().Draw(t, "user"))
			},
			"dequeue": func(t *rapid.T) {
				_ = store.Dequeue(genSessionID().Draw(t, "id"), genUser().Draw(t, "user"))
			},
			"spectate": func(t *rapid.T) {
				_ = store.AddSpectator(genSessionID().Draw(t, "id"), genUser().Draw(t, "user"))
			},
			"dropIn": func(t *rapid.T) {
				_, _ = store.PromoteSpectator(genSessionID().Draw(t, "id"), genUser().Draw(t, "user"), "", "")
			},
			"toggleSpectators": func(t *rapid.T) {
				_, _ = store.SetSpectatorsEnabled(genSessionID().Draw(t, "id"), rapid.Bool().Draw(t, "enabled"))
			},
			"transfer": func(t *rapid.T) {
				_ = store.TransferCreator(genSessionID().Draw(t, "id"), genUser().Draw(t, "user"))
			},
			"teardown": func(t *rapid.T) {
				id := genSessionID().Draw(t, "id")
				if _, ok := store.BeginTeardown(id); ok {
					store.ClearAllEventData(id)
				}
			},
			"": func(t *rapid.T) {
				checkInvariants(t, store)
			},
		})
	})
}

func TestStore_FIFOPromotionOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(TestCapacity, DefaultCapacity).Draw(t, "capacity")
		waiting := rapid.IntRange(1, 6).Draw(t, "waiting")
		store := NewStore(
			WithCapacity(capacity),
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)

		if _, err := store.Create(NewSession{ID: "msg-1", Creator: Participant{UserID: "p1"}}); err != nil {
			t.Fatalf("create: %v", err)
		}
		for i := 2; i <= capacity; i++ {
			if _, err := store.AddParticipant("msg-1", Participant{UserID: fmt.Sprintf("p%d", i)}); err != nil {
				t.Fatalf("join: %v", err)
			}
		}
		if _, err := store.MarkStarted("msg-1"); err != nil {
			t.Fatalf("start: %v", err)
		}

		queue := make([]string, waiting)
		for i := range queue {
			queue[i] = fmt.Sprintf("q%d", i)
			if _, err := store.Enqueue("msg-1", queue[i]); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
		}

		leaver := fmt.Sprintf("p%d", rapid.IntRange(1, capacity).Draw(t, "leaver"))
		res, err := store.DropOut("msg-1", leaver)
		if err != nil {
			t.Fatalf("drop out: %v", err)
		}
		if res.Promoted == nil || res.Promoted.UserID != queue[0] {
			t.Fatalf("promoted %v, want %s", res.Promoted, queue[0])
		}
		rest := store.Queue("msg-1")
		if len(rest) != waiting-1 {
			t.Fatalf("queue has %d entries, want %d", len(rest), waiting-1)
		}
		for i, q := range rest {
			if q != queue[i+1] {
				t.Fatalf("queue[%d] = %s, want %s", i, q, queue[i+1])
			}
		}
	})
}
