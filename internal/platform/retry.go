package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Platform error classes. Adapters wrap their native errors with these.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrForbidden   = errors.New("missing permissions")
	ErrBadRequest  = errors.New("request rejected")
	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("platform unavailable")
)

// Class tells whether a failed call may succeed if repeated
type Class int

const (
	Retryable Class = iota
	Fatal
)

// Classify maps an error to a retry class. Not found, forbidden and bad
// requests never succeed on retry; everything transient does.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Fatal
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrBadRequest):
		return Fatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Fatal
	}
	// rate limits, 5xx and transport errors
	return Retryable
}

// Retrier runs platform calls with bounded exponential backoff
type Retrier struct {
	maxRetries uint64
	initial    time.Duration
	maxWait    time.Duration
	log        *slog.Logger
}

// NewRetrier creates a Retrier that repeats a retryable call at most maxRetries times
func NewRetrier(maxRetries int, log *slog.Logger) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retrier{
		maxRetries: uint64(maxRetries),
		initial:    250 * time.Millisecond,
		maxWait:    5 * time.Second,
		log:        log.With("component", "platform-retrier"),
	}
}

// WithIntervals overrides the backoff intervals
func (r *Retrier) WithIntervals(initial, maxWait time.Duration) *Retrier {
	cp := *r
	cp.initial = initial
	cp.maxWait = maxWait
	return &cp
}

// Do runs fn until it succeeds, fails fatally, or retries are exhausted.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.maxWait
	b.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err != nil && Classify(err) == Fatal {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx), func(err error, wait time.Duration) {
		r.log.Warn("Retrying platform call", "op", op, "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Call is Do for calls that return a value
func Call[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type retrying struct {
	next Platform
	r    *Retrier
}

// WithRetries decorates every capability of p with r
func WithRetries(p Platform, r *Retrier) Platform {
	return &retrying{next: p, r: r}
}

func (p *retrying) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	return Call(ctx, p.r, "fetch channel", func(ctx context.Context) (bool, error) {
		return p.next.ChannelExists(ctx, channelID)
	})
}

func (p *retrying) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	return Call(ctx, p.r, "send message", func(ctx context.Context) (string, error) {
		return p.next.SendMessage(ctx, channelID, msg)
	})
}

func (p *retrying) EditMessage(ctx context.Context, channelID, messageID string, msg Message) error {
	return p.r.Do(ctx, "edit message", func(ctx context.Context) error {
		return p.next.EditMessage(ctx, channelID, messageID, msg)
	})
}

func (p *retrying) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return p.r.Do(ctx, "delete message", func(ctx context.Context) error {
		return p.next.DeleteMessage(ctx, channelID, messageID)
	})
}

func (p *retrying) CreatePrivateThread(ctx context.Context, channelID, name string) (string, error) {
	return Call(ctx, p.r, "create thread", func(ctx context.Context) (string, error) {
		return p.next.CreatePrivateThread(ctx, channelID, name)
	})
}

func (p *retrying) AddMember(ctx context.Context, threadID, userID string) error {
	return p.r.Do(ctx, "add thread member", func(ctx context.Context) error {
		return p.next.AddMember(ctx, threadID, userID)
	})
}

func (p *retrying) RemoveMember(ctx context.Context, threadID, userID string) error {
	return p.r.Do(ctx, "remove thread member", func(ctx context.Context) error {
		return p.next.RemoveMember(ctx, threadID, userID)
	})
}

func (p *retrying) LockAndArchive(ctx context.Context, threadID string) error {
	return p.r.Do(ctx, "archive thread", func(ctx context.Context) error {
		return p.next.LockAndArchive(ctx, threadID)
	})
}

func (p *retrying) CreateRoom(ctx context.Context, spec RoomSpec) (string, error) {
	return Call(ctx, p.r, "create voice room", func(ctx context.Context) (string, error) {
		return p.next.CreateRoom(ctx, spec)
	})
}

func (p *retrying) SetAccess(ctx context.Context, channelID, userID string, allow bool) error {
	return p.r.Do(ctx, "edit voice access", func(ctx context.Context) error {
		return p.next.SetAccess(ctx, channelID, userID, allow)
	})
}

func (p *retrying) Disconnect(ctx context.Context, guildID, channelID, userID string) error {
	return p.r.Do(ctx, "disconnect voice member", func(ctx context.Context) error {
		return p.next.Disconnect(ctx, guildID, channelID, userID)
	})
}

func (p *retrying) DeleteRoom(ctx context.Context, channelID string) error {
	return p.r.Do(ctx, "delete voice room", func(ctx context.Context) error {
		return p.next.DeleteRoom(ctx, channelID)
	})
}
