package telegram

import (
	"sync"

	"github.com/vexx32/thread-tracker/internal/transport"
)

// history is a bounded per-chat message buffer fed by incoming updates.
//
// The Bot API has no call to page a chat's history, so reply resolution runs
// off whatever the bot has seen since it joined. A chat with no observed
// traffic resolves as "no replies yet", which converges as soon as someone
// posts.
type history struct {
	mu    sync.RWMutex
	depth int
	chats map[int64][]transport.Message // newest first
}

func newHistory(depth int) *history {
	if depth <= 0 {
		depth = 50
	}
	return &history{depth: depth, chats: map[int64][]transport.Message{}}
}

func (h *history) add(m transport.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := append([]transport.Message{m}, h.chats[m.ChannelID]...)
	if len(msgs) > h.depth {
		msgs = msgs[:h.depth]
	}
	h.chats[m.ChannelID] = msgs
}

func (h *history) recent(chatID int64, limit int) []transport.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msgs := h.chats[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]transport.Message, len(msgs))
	copy(out, msgs)
	return out
}
