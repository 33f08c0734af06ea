package platform_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
	"github.com/hfcRed/Agent-8s-sub001/internal/platform/platformtest"
)

func newRetrier(retries int) *platform.Retrier {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return platform.NewRetrier(retries, log).WithIntervals(time.Millisecond, 2*time.Millisecond)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want platform.Class
	}{
		{"not found", platform.ErrNotFound, platform.Fatal},
		{"forbidden", fmt.Errorf("edit channel: %w", platform.ErrForbidden), platform.Fatal},
		{"bad request", platform.ErrBadRequest, platform.Fatal},
		{"cancelled", context.Canceled, platform.Fatal},
		{"rate limited", platform.ErrRateLimited, platform.Retryable},
		{"unavailable", platform.ErrUnavailable, platform.Retryable},
		{"transport", errors.New("connection reset by peer"), platform.Retryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, platform.Classify(tt.err))
		})
	}
}

func TestRetrier_RetriesTransientErrors(t *testing.T) {
	r := newRetrier(3)

	attempts := 0
	err := r.Do(context.Background(), "send message", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return platform.ErrUnavailable
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_GivesUpAfterMaxRetries(t *testing.T) {
	r := newRetrier(2)

	attempts := 0
	err := r.Do(context.Background(), "send message", func(context.Context) error {
		attempts++
		return platform.ErrRateLimited
	})
	assert.ErrorIs(t, err, platform.ErrRateLimited)
	assert.Equal(t, 3, attempts, "one call plus two retries")
}

func TestRetrier_FatalErrorsStopImmediately(t *testing.T) {
	r := newRetrier(5)

	attempts := 0
	err := r.Do(context.Background(), "delete voice room", func(context.Context) error {
		attempts++
		return platform.ErrNotFound
	})
	assert.ErrorIs(t, err, platform.ErrNotFound)
	assert.Contains(t, err.Error(), "delete voice room")
	assert.Equal(t, 1, attempts)
}

func TestRetrier_StopsOnCancelledContext(t *testing.T) {
	r := newRetrier(10)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Do(ctx, "create thread", func(context.Context) error {
		attempts++
		cancel()
		return platform.ErrUnavailable
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCall_ReturnsValue(t *testing.T) {
	r := newRetrier(2)

	attempts := 0
	id, err := platform.Call(context.Background(), r, "create thread", func(context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", platform.ErrUnavailable
		}
		return "thread-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", id)
}

func TestWithRetries(t *testing.T) {
	fake := platformtest.New()
	p := platform.WithRetries(fake, newRetrier(2))

	fake.FailNext(platformtest.OpRoomCreate, platform.ErrUnavailable)
	id, err := p.CreateRoom(context.Background(), platform.RoomSpec{GuildID: "guild-1", Name: "Alpha"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 2, fake.Count(platformtest.OpRoomCreate))

	fake.FailNext(platformtest.OpRoomDelete, platform.ErrForbidden)
	err = p.DeleteRoom(context.Background(), id)
	assert.ErrorIs(t, err, platform.ErrForbidden)
	assert.Equal(t, 1, fake.Count(platformtest.OpRoomDelete))
}
