// Package notify sends best-effort direct messages when someone else
// replies to a tracked thread.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vexx32/thread-tracker/internal/digest"
	"github.com/vexx32/thread-tracker/internal/storage"
	"github.com/vexx32/thread-tracker/internal/transport"
	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

// SettingName is the user setting that opts into reply notifications.
// Absence or any value other than "on" means off.
const SettingName = "notifications"

// Service watches reply resolutions for self/muse -> other transitions and
// DMs the thread owner at most once per new reply.
//
// The last-notified timestamp per thread lives only in memory. After a
// restart the first observed "awaiting reply" state may trigger one
// redundant notification; that is a documented trade-off, not a bug.
type Service struct {
	store storage.Store
	msgr  transport.Messenger
	log   logx.Logger

	mu           sync.Mutex
	lastNotified map[int64]time.Time // thread id -> reply timestamp last notified
}

func New(store storage.Store, msgr transport.Messenger, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:        store,
		msgr:         msgr,
		log:          log.With(logx.String("task", "notify")),
		lastNotified: map[int64]time.Time{},
	}
}

// Observe inspects one thread resolution. Delivery failures are swallowed;
// notifications are best-effort and never surface to the user as errors.
func (s *Service) Observe(ctx context.Context, tr digest.ThreadResolution) {
	if !tr.Res.Class.AwaitingReply() || tr.Res.At.IsZero() {
		return
	}

	threadID := tr.Thread.ID
	s.mu.Lock()
	last, seen := s.lastNotified[threadID]
	if seen && !tr.Res.At.After(last) {
		s.mu.Unlock()
		return
	}
	// Record before delivery: a transition is notified at most once even
	// when delivery fails or notifications are disabled.
	s.lastNotified[threadID] = tr.Res.At
	s.mu.Unlock()

	value, ok, err := s.store.GetUserSetting(ctx, tr.Thread.UserID, SettingName)
	if err != nil {
		s.log.Warn("reading notify setting failed",
			logx.Int64("user_id", tr.Thread.UserID), logx.Err(err))
		return
	}
	if !ok || value != "on" {
		return
	}

	text := fmt.Sprintf("New reply in #%d from %s", tr.Thread.ChannelID, tr.Res.Author)
	if err := s.msgr.SendDirect(ctx, tr.Thread.UserID, text); err != nil {
		// Owner may have blocked DMs; nothing to do.
		s.log.Debug("notification not delivered",
			logx.Int64("user_id", tr.Thread.UserID), logx.Err(err))
	}
}

// Forget drops the in-memory reply state for a thread that is no longer
// tracked.
func (s *Service) Forget(threadID int64) {
	s.mu.Lock()
	delete(s.lastNotified, threadID)
	s.mu.Unlock()
}
