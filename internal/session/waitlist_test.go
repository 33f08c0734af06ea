package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedFullSession(t *testing.T, capacity int) *Store {
	t.Helper()
	store := newTestStore(t, WithCapacity(capacity))
	_, err := store.Create(NewSession{
		ID:                "msg-1",
		MatchID:           "match-1",
		Creator:           Participant{UserID: "u1"},
		SpectatorsEnabled: true,
	})
	require.NoError(t, err)
	fill(t, store, "msg-1", capacity)
	_, err = store.MarkStarted("msg-1")
	require.NoError(t, err)
	return store
}

func TestEnqueue_Guards(t *testing.T) {
	store := newTestStore(t, WithCapacity(2))
	createSession(t, store, "msg-1", "u1", 0)

	_, err := store.Enqueue("msg-1", "A")
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = store.MarkStarted("msg-1")
	require.NoError(t, err)
	_, err = store.Enqueue("msg-1", "A")
	assert.ErrorIs(t, err, ErrNotFull)

	fill(t, store, "msg-1", 2)
	_, err = store.Enqueue("msg-1", "u2")
	assert.ErrorIs(t, err, ErrAlreadyParticipant)

	createSession(t, store, "msg-2", "x1", 0)
	_, err = store.Enqueue("msg-1", "x1")
	assert.ErrorIs(t, err, ErrInOtherSession)

	_, err = store.Enqueue("msg-1", "A")
	require.NoError(t, err)
	_, err = store.Enqueue("msg-1", "A")
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	require.NoError(t, store.Dequeue("msg-1", "A"))
	assert.ErrorIs(t, store.Dequeue("msg-1", "A"), ErrNotQueued)
	assert.Empty(t, store.Queue("msg-1"))
}

func TestSpectators(t *testing.T) {
	store := startedFullSession(t, 2)

	require.NoError(t, store.AddSpectator("msg-1", "s1"))
	assert.ErrorIs(t, store.AddSpectator("msg-1", "s1"), ErrAlreadySpectating)
	assert.ErrorIs(t, store.AddSpectator("msg-1", "u1"), ErrAlreadyParticipant)
	require.NoError(t, store.AddSpectator("msg-1", "s2"))
	assert.ErrorIs(t, store.AddSpectator("msg-1", "s3"), ErrSpectatorsFull)

	_, err := store.Enqueue("msg-1", "s1")
	assert.ErrorIs(t, err, ErrAlreadySpectating)

	require.NoError(t, store.RemoveSpectator("msg-1", "s2"))
	assert.ErrorIs(t, store.RemoveSpectator("msg-1", "s2"), ErrNotSpectating)

	sess, _ := store.Get("msg-1")
	assert.Equal(t, []string{"s1"}, sess.Spectators)
	assert.Equal(t, []string{"u1", "u2", "s1"}, sess.Members())
}

func TestSpectators_Disabled(t *testing.T) {
	store := startedFullSession(t, 2)
	require.NoError(t, store.AddSpectator("msg-1", "s1"))
	require.NoError(t, store.AddSpectator("msg-1", "s2"))

	evicted, err := store.SetSpectatorsEnabled("msg-1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, evicted)

	sess, _ := store.Get("msg-1")
	assert.Empty(t, sess.Spectators)
	assert.False(t, sess.SpectatorsEnabled)
	assert.ErrorIs(t, store.AddSpectator("msg-1", "s1"), ErrSpectatorsDisabled)

	evicted, err = store.SetSpectatorsEnabled("msg-1", true)
	require.NoError(t, err)
	assert.Empty(t, evicted)
	require.NoError(t, store.AddSpectator("msg-1", "s1"))
}

func TestPromoteSpectator(t *testing.T) {
	store := startedFullSession(t, 3)
	require.NoError(t, store.AddSpectator("msg-1", "s1"))

	_, err := store.PromoteSpectator("msg-1", "s1", "Flex", "")
	assert.ErrorIs(t, err, ErrSessionFull)

	_, err = store.DropOut("msg-1", "u3")
	require.NoError(t, err)

	res, err := store.PromoteSpectator("msg-1", "s1", "Backline", "X")
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Empty(t, res.Session.Spectators)
	assert.True(t, res.Session.HasParticipant("s1"))

	_, err = store.PromoteSpectator("msg-1", "nobody", "", "")
	assert.ErrorIs(t, err, ErrNotSpectating)
}

func TestDropOut_PromotionKeepsSpectators(t *testing.T) {
	store := startedFullSession(t, 2)

	_, err := store.Enqueue("msg-1", "q1")
	require.NoError(t, err)
	require.NoError(t, store.AddSpectator("msg-1", "s1"))

	res, err := store.DropOut("msg-1", "u2")
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, "q1", res.Promoted.UserID)
	assert.Equal(t, []string{"s1"}, res.Session.Spectators)
}
