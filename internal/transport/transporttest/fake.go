// Package transporttest provides an in-memory Messenger for tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/vexx32/thread-tracker/internal/transport"
)

// Sent records one SendMessage call.
type Sent struct {
	ChannelID int64
	MessageID int64
	Text      string
}

// Edit records one EditMessage call.
type Edit struct {
	Ref  transport.MessageRef
	Text string
}

// DM records one SendDirect call.
type DM struct {
	UserID int64
	Text   string
}

// Fake is an in-memory Messenger. Error injection maps let tests simulate
// deleted messages, unavailable channels, blocked users, and transient
// failures. The zero value is not usable; call New.
type Fake struct {
	mu     sync.Mutex
	nextID int64

	recent map[int64][]transport.Message // newest first

	ChannelErr map[int64]error                   // RecentMessages failures per channel
	SendErr    map[int64]error                   // SendMessage failures per channel
	EditErr    map[transport.MessageRef]error    // EditMessage failures per ref
	DirectErr  map[int64]error                   // SendDirect failures per user

	Sent    []Sent
	Edits   []Edit
	Deleted []transport.MessageRef
	DMs     []DM
}

func New() *Fake {
	return &Fake{
		nextID:     1000,
		recent:     map[int64][]transport.Message{},
		ChannelErr: map[int64]error{},
		SendErr:    map[int64]error{},
		EditErr:    map[transport.MessageRef]error{},
		DirectErr:  map[int64]error{},
	}
}

// AddRecent pushes a message to the front of a channel's history.
func (f *Fake) AddRecent(channelID, authorID int64, authorName string, at time.Time, text string) transport.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := transport.Message{
		ID:         f.nextID,
		ChannelID:  channelID,
		AuthorID:   authorID,
		AuthorName: authorName,
		SentAt:     at,
		Text:       text,
	}
	f.recent[channelID] = append([]transport.Message{m}, f.recent[channelID]...)
	return m
}

func (f *Fake) RecentMessages(_ context.Context, channelID int64, limit int) ([]transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ChannelErr[channelID]; err != nil {
		return nil, err
	}
	msgs := f.recent[channelID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]transport.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *Fake) SendMessage(_ context.Context, channelID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendErr[channelID]; err != nil {
		return 0, err
	}
	f.nextID++
	f.Sent = append(f.Sent, Sent{ChannelID: channelID, MessageID: f.nextID, Text: text})
	return f.nextID, nil
}

func (f *Fake) EditMessage(_ context.Context, ref transport.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.EditErr[ref]; err != nil {
		return err
	}
	f.Edits = append(f.Edits, Edit{Ref: ref, Text: text})
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, ref transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, ref)
	return nil
}

func (f *Fake) SendDirect(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.DirectErr[userID]; err != nil {
		return err
	}
	f.DMs = append(f.DMs, DM{UserID: userID, Text: text})
	return nil
}

// SentTexts returns the texts of all channel sends, oldest first.
func (f *Fake) SentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Sent))
	for i, s := range f.Sent {
		out[i] = s.Text
	}
	return out
}

// EditCount returns the number of successful edits so far.
func (f *Fake) EditCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Edits)
}

// DMCount returns the number of delivered direct messages.
func (f *Fake) DMCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DMs)
}
