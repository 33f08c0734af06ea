package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfcRed/Agent-8s-sub001/internal/telemetry"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepository_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.db")
	repo, err := NewRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// migrations are idempotent
	repo, err = NewRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestGuildSettings(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetGuildSettings("guild-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.UpsertGuildSettings(&GuildSettings{
		GuildID:         "guild-1",
		VoiceCategoryID: "cat-1",
		PingRoleID:      "role-1",
	}))
	got, err := repo.GetGuildSettings("guild-1")
	require.NoError(t, err)
	assert.Equal(t, "cat-1", got.VoiceCategoryID)
	assert.Equal(t, "role-1", got.PingRoleID)
	assert.Empty(t, got.ModeratorRoleID)

	require.NoError(t, repo.UpsertGuildSettings(&GuildSettings{
		GuildID:         "guild-1",
		VoiceCategoryID: "cat-2",
		ModeratorRoleID: "mods",
	}))
	got, err = repo.GetGuildSettings("guild-1")
	require.NoError(t, err)
	assert.Equal(t, "cat-2", got.VoiceCategoryID)
	assert.Equal(t, "mods", got.ModeratorRoleID)
	assert.Empty(t, got.PingRoleID)
}

func event(kind telemetry.EventKind, match string, at time.Time, participants ...string) telemetry.Event {
	return telemetry.Event{
		Kind:         kind,
		SessionID:    "msg-" + match,
		GuildID:      "guild-1",
		ChannelID:    "chan-1",
		MatchID:      match,
		ActorID:      "u1",
		Participants: participants,
		At:           at,
	}
}

func TestRecord_GetEventsByMatch(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, event(telemetry.EventCreated, "m1", base, "u1")))
	require.NoError(t, repo.Record(ctx, event(telemetry.EventJoined, "m1", base.Add(time.Minute), "u1", "u2")))
	require.NoError(t, repo.Record(ctx, event(telemetry.EventCreated, "m2", base, "u3")))

	events, err := repo.GetEventsByMatch(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "created", events[0].Kind)
	assert.Equal(t, []string{"u1"}, events[0].Participants)
	assert.Equal(t, "joined", events[1].Kind)
	assert.Equal(t, []string{"u1", "u2"}, events[1].Participants)
	assert.Equal(t, "msg-m1", events[1].SessionID)
	assert.True(t, events[1].CreatedAt.Equal(base.Add(time.Minute)))

	none, err := repo.GetEventsByMatch(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecord_EmptyRoster(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, event(telemetry.EventShutdown, "m1", time.Now())))
	events, err := repo.GetEventsByMatch(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Participants)
}

func TestGetRecentMatches(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, event(telemetry.EventStarted, "m1", base, "u1", "u2")))
	require.NoError(t, repo.Record(ctx, event(telemetry.EventFinished, "m1", base.Add(time.Hour), "u1", "u2")))
	require.NoError(t, repo.Record(ctx, event(telemetry.EventCancelled, "m2", base.Add(2*time.Hour), "u3")))
	require.NoError(t, repo.Record(ctx, event(telemetry.EventExpired, "m3", base.Add(3*time.Hour), "u4")))

	other := event(telemetry.EventFinished, "m4", base.Add(4*time.Hour), "u5")
	other.GuildID = "guild-2"
	require.NoError(t, repo.Record(ctx, other))

	matches, err := repo.GetRecentMatches(ctx, "guild-1", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "m3", matches[0].MatchID)
	assert.Equal(t, "expired", matches[0].Outcome)
	assert.Equal(t, "m2", matches[1].MatchID)

	matches, err = repo.GetRecentMatches(ctx, "guild-1", 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"u1", "u2"}, matches[2].Participants)
}
