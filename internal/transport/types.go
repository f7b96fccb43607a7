package transport

import (
	"context"
	"errors"
	"time"
)

// Message is a single chat-platform message as seen by the tracker core.
type Message struct {
	ID         int64
	ChannelID  int64
	AuthorID   int64
	AuthorName string
	SentAt     time.Time
	Text       string
}

// MessageRef addresses an already-sent message for edits.
type MessageRef struct {
	ChannelID int64
	MessageID int64
}

// Error taxonomy for outbound platform calls.
//
// Adapters must map their platform errors onto these sentinels so the
// background services can decide between cleanup, retry, and give-up
// without knowing the platform.
var (
	// ErrMessageNotFound means the target message no longer exists
	// (deleted by the platform or a user). Callers clean up local state.
	ErrMessageNotFound = errors.New("transport: message not found")

	// ErrChannelUnavailable means the channel was deleted or access was
	// revoked. Callers treat the dependent entity as stale.
	ErrChannelUnavailable = errors.New("transport: channel unavailable")

	// ErrBlocked means the recipient refuses direct messages.
	ErrBlocked = errors.New("transport: recipient blocked direct messages")

	// ErrRateLimited covers rate-limit and network failures.
	// Callers retry on the next tick without mutating state.
	ErrRateLimited = errors.New("transport: rate limited or transient failure")
)

// Messenger is the outbound surface of the chat platform consumed by the
// tracker core: recent-activity reads plus message sends, edits, and DMs.
type Messenger interface {
	// RecentMessages returns up to limit most recent messages in the
	// channel, newest first. Returns ErrChannelUnavailable when the
	// channel is gone or access was revoked.
	RecentMessages(ctx context.Context, channelID int64, limit int) ([]Message, error)

	// SendMessage posts text to a channel and returns the new message id.
	SendMessage(ctx context.Context, channelID int64, text string) (int64, error)

	// EditMessage replaces the content of an existing message.
	// Returns ErrMessageNotFound when the message has been deleted.
	EditMessage(ctx context.Context, ref MessageRef, text string) error

	// DeleteMessage removes a message. Missing messages are not an error.
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// SendDirect delivers a private message to a user.
	// Returns ErrBlocked when the user refuses DMs.
	SendDirect(ctx context.Context, userID int64, text string) error
}
