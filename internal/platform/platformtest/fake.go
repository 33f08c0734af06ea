// Package platformtest provides an in-memory platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
)

// Operation names recorded by Fake
const (
	OpChannel       = "channel"
	OpSend          = "send"
	OpEdit          = "edit"
	OpDelete        = "delete"
	OpThreadCreate  = "thread.create"
	OpThreadAdd     = "thread.add"
	OpThreadRemove  = "thread.remove"
	OpThreadArchive = "thread.archive"
	OpRoomCreate    = "room.create"
	OpRoomAccess    = "room.access"
	OpDisconnect    = "room.disconnect"
	OpRoomDelete    = "room.delete"
)

// Call is one recorded platform call
type Call struct {
	Op   string
	Args []string
}

// Fake records every call and can be told to fail specific operations
type Fake struct {
	mu       sync.Mutex
	calls    []Call
	nextID   int
	failures map[string][]error
	missing  map[string]bool
	messages map[string]platform.Message

	// Hook, when set, runs before every call outside the lock
	Hook func(op string)
}

var _ platform.Platform = (*Fake)(nil)

// New creates an empty Fake
func New() *Fake {
	return &Fake{
		failures: make(map[string][]error),
		missing:  make(map[string]bool),
		messages: make(map[string]platform.Message),
	}
}

// FailNext makes the next calls of op return errs in order
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// RemoveChannel makes ChannelExists report channelID as deleted
func (f *Fake) RemoveChannel(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[channelID] = true
}

// Calls returns the recorded calls of op, or all calls when op is empty
func (f *Fake) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times op was called
func (f *Fake) Count(op string) int {
	return len(f.Calls(op))
}

// Message returns the latest body sent or edited for messageID
func (f *Fake) Message(messageID string) (platform.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	return m, ok
}

func (f *Fake) record(op string, args ...string) error {
	if f.Hook != nil {
		f.Hook(op)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: op, Args: args})
	if queued := f.failures[op]; len(queued) > 0 {
		f.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *Fake) newID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return prefix + "-" + strconv.Itoa(f.nextID)
}

func (f *Fake) ChannelExists(_ context.Context, channelID string) (bool, error) {
	if err := f.record(OpChannel, channelID); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missing[channelID], nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.Message) (string, error) {
	if err := f.record(OpSend, channelID, msg.Content); err != nil {
		return "", err
	}
	id := f.newID("msg")
	f.mu.Lock()
	f.messages[id] = msg
	f.mu.Unlock()
	return id, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID string, msg platform.Message) error {
	if err := f.record(OpEdit, channelID, messageID); err != nil {
		return err
	}
	f.mu.Lock()
	f.messages[messageID] = msg
	f.mu.Unlock()
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	if err := f.record(OpDelete, channelID, messageID); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.messages, messageID)
	f.mu.Unlock()
	return nil
}

func (f *Fake) CreatePrivateThread(_ context.Context, channelID, name string) (string, error) {
	if err := f.record(OpThreadCreate, channelID, name); err != nil {
		return "", err
	}
	return f.newID("thread"), nil
}

func (f *Fake) AddMember(_ context.Context, threadID, userID string) error {
	return f.record(OpThreadAdd, threadID, userID)
}

func (f *Fake) RemoveMember(_ context.Context, threadID, userID string) error {
	return f.record(OpThreadRemove, threadID, userID)
}

func (f *Fake) LockAndArchive(_ context.Context, threadID string) error {
	return f.record(OpThreadArchive, threadID)
}

func (f *Fake) CreateRoom(_ context.Context, spec platform.RoomSpec) (string, error) {
	if err := f.record(OpRoomCreate, spec.GuildID, spec.ParentID, spec.Name, fmt.Sprint(spec.Allow)); err != nil {
		return "", err
	}
	return f.newID("room"), nil
}

func (f *Fake) SetAccess(_ context.Context, channelID, userID string, allow bool) error {
	return f.record(OpRoomAccess, channelID, userID, strconv.FormatBool(allow))
}

func (f *Fake) Disconnect(_ context.Context, guildID, channelID, userID string) error {
	return f.record(OpDisconnect, guildID, channelID, userID)
}

func (f *Fake) DeleteRoom(_ context.Context, channelID string) error {
	return f.record(OpRoomDelete, channelID)
}
