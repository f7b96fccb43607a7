package telegram

import (
	"testing"
	"time"

	"github.com/vexx32/thread-tracker/internal/transport"
)

func msg(id, chat int64, text string) transport.Message {
	return transport.Message{
		ID: id, ChannelID: chat, AuthorID: 1, AuthorName: "A",
		SentAt: time.Now().UTC(), Text: text,
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	t.Parallel()
	h := newHistory(10)
	h.add(msg(1, 100, "first"))
	h.add(msg(2, 100, "second"))
	h.add(msg(3, 200, "elsewhere"))

	got := h.recent(100, 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Text != "second" || got[1].Text != "first" {
		t.Fatalf("order wrong: %q, %q", got[0].Text, got[1].Text)
	}
}

func TestHistoryRespectsDepth(t *testing.T) {
	t.Parallel()
	h := newHistory(3)
	for i := int64(1); i <= 5; i++ {
		h.add(msg(i, 100, ""))
	}
	got := h.recent(100, 0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want depth 3", len(got))
	}
	if got[0].ID != 5 || got[2].ID != 3 {
		t.Fatalf("kept wrong messages: %d..%d", got[0].ID, got[2].ID)
	}
}

func TestHistoryLimitAndCopy(t *testing.T) {
	t.Parallel()
	h := newHistory(10)
	for i := int64(1); i <= 4; i++ {
		h.add(msg(i, 100, ""))
	}
	got := h.recent(100, 1)
	if len(got) != 1 || got[0].ID != 4 {
		t.Fatalf("limit ignored: %+v", got)
	}
	// Mutating the returned slice must not touch the buffer.
	got[0].Text = "mutated"
	if h.recent(100, 1)[0].Text == "mutated" {
		t.Fatal("recent returned shared backing storage")
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want error
	}{
		{"telegram: Bad Request: message to edit not found (400)", transport.ErrMessageNotFound},
		{"telegram: Bad Request: message to delete not found (400)", transport.ErrMessageNotFound},
		{"telegram: Too Many Requests: retry after 14 (429)", transport.ErrRateLimited},
		{"telegram: Forbidden: bot was kicked from the supergroup chat (403)", transport.ErrChannelUnavailable},
		{"telegram: Forbidden: bot was blocked by the user (403)", transport.ErrBlocked},
		{"telegram: Bad Request: message is not modified (400)", nil},
	}
	for _, tc := range cases {
		got := mapError(stringError(tc.in))
		if got != tc.want {
			t.Errorf("mapError(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }
