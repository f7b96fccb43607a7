// Package reply determines who last responded to a tracked thread.
package reply

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vexx32/thread-tracker/internal/storage"
	"github.com/vexx32/thread-tracker/internal/transport"
)

// Classification labels the author of the latest message in a thread.
type Classification int

const (
	// ClassNone means the thread has no messages yet.
	ClassNone Classification = iota
	// ClassSelf means the thread owner replied last.
	ClassSelf
	// ClassMuse means one of the owner's registered muses replied last.
	ClassMuse
	// ClassOther means someone else replied last: the owner is awaiting reply.
	ClassOther
)

// AwaitingReply reports whether the owner still owes a response.
func (c Classification) AwaitingReply() bool { return c == ClassOther }

// Resolution is the outcome of resolving one thread.
type Resolution struct {
	Class  Classification
	Author string // short display label, possibly truncated
	At     time.Time
}

// lookbackLimit bounds the recent-message fetch per thread.
const lookbackLimit = 1

// maxAuthorRunes caps author labels in rendered digests.
const maxAuthorRunes = 32

// Resolver classifies the last responder of tracked threads.
// It only reads from the platform; it never mutates anything.
type Resolver struct {
	msgr transport.Messenger
}

func NewResolver(msgr transport.Messenger) *Resolver {
	return &Resolver{msgr: msgr}
}

// Resolve fetches the latest activity in the thread's channel and classifies
// its author against the owner and their muse names.
//
// A transport.ErrChannelUnavailable passes through unchanged; the caller must
// treat the thread as stale rather than retry.
func (r *Resolver) Resolve(ctx context.Context, thread storage.TrackedThread, muses []string) (Resolution, error) {
	msgs, err := r.msgr.RecentMessages(ctx, thread.ChannelID, lookbackLimit)
	if err != nil {
		return Resolution{}, err
	}
	if len(msgs) == 0 {
		return Resolution{Class: ClassNone, Author: "No replies yet"}, nil
	}

	last := msgs[0]
	res := Resolution{
		Author: truncRunes(last.AuthorName, maxAuthorRunes),
		At:     last.SentAt,
	}
	switch {
	case last.AuthorID == thread.UserID:
		res.Class = ClassSelf
	case isMuse(last.AuthorName, muses):
		res.Class = ClassMuse
	default:
		res.Class = ClassOther
	}
	return res, nil
}

func isMuse(author string, muses []string) bool {
	for _, m := range muses {
		if strings.EqualFold(author, m) {
			return true
		}
	}
	return false
}

// truncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func truncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}
