// Package dispatch sends scheduled messages when they come due and either
// archives them or re-arms the next occurrence.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vexx32/thread-tracker/internal/schedule"
	"github.com/vexx32/thread-tracker/internal/storage"
	"github.com/vexx32/thread-tracker/internal/transport"
	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

// Service scans for due scheduled messages on each tick.
type Service struct {
	store storage.Store
	msgr  transport.Messenger
	log   logx.Logger

	now func() time.Time // injectable clock for tests
}

func New(store storage.Store, msgr transport.Messenger, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store: store,
		msgr:  msgr,
		log:   log.With(logx.String("task", "dispatch")),
		now:   time.Now,
	}
}

// Tick sends every non-archived message whose UTC due instant has passed.
//
// The archived flag or advanced due time is written in the same step that
// follows the send, so a message is never selected twice: at-most-once
// dispatch per occurrence. Per-message failures are isolated; one bad row
// cannot block the rest of the tick.
func (s *Service) Tick(ctx context.Context) error {
	now := s.now().UTC()
	due, err := s.store.ListDueScheduledMessages(ctx, now)
	if err != nil {
		return fmt.Errorf("listing due messages: %w", err)
	}

	for i, m := range due {
		if ctx.Err() != nil {
			s.log.Info("dispatch pass interrupted", logx.Int("remaining", len(due)-i))
			return ctx.Err()
		}
		s.dispatchOne(ctx, m, now)
	}
	return nil
}

func (s *Service) dispatchOne(ctx context.Context, m storage.ScheduledMessage, now time.Time) {
	log := s.log.With(logx.Int64("message_id", m.ID), logx.Int64("channel_id", m.ChannelID))

	if _, err := s.msgr.SendMessage(ctx, m.ChannelID, renderMessage(m)); err != nil {
		if errors.Is(err, transport.ErrRateLimited) {
			// Transient: no state change, the row is selected again next tick.
			log.Warn("send deferred", logx.Err(err))
			return
		}
		// Channel gone or access revoked: archive with a failure marker
		// instead of retrying forever. Surfaced only via listing.
		log.Warn("send failed, archiving", logx.Err(err))
		if aerr := s.store.ArchiveScheduledMessage(ctx, m.ID, err.Error()); aerr != nil {
			log.Error("archiving failed message", logx.Err(aerr))
		}
		return
	}

	rep, err := schedule.ParseRepeat(m.Repeat)
	if err != nil {
		// A rule this old code can no longer parse should not spin forever.
		log.Error("stored repeat rule invalid, archiving", logx.String("repeat", m.Repeat), logx.Err(err))
		rep = schedule.Repeat{}
	}

	if rep.IsNone() {
		if err := s.store.ArchiveScheduledMessage(ctx, m.ID, ""); err != nil {
			log.Error("archiving sent message", logx.Err(err))
		}
		return
	}

	// Advance strictly past now, skipping occurrences missed while the
	// process was down; the backlog is not replayed.
	next := rep.Next(m.DueAt)
	for !next.After(now) {
		next = rep.Next(next)
	}
	if err := s.store.RescheduleMessage(ctx, m.ID, next); err != nil {
		log.Error("rescheduling repeating message", logx.Err(err))
		return
	}
	log.Info("message sent and re-armed", logx.Time("next", next))
}

func renderMessage(m storage.ScheduledMessage) string {
	if m.Title == "" {
		return m.Body
	}
	return "*" + m.Title + "*\n" + m.Body
}
