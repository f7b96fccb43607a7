// Package watch refreshes every active watcher's digest message on a fixed
// tick.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vexx32/thread-tracker/internal/category"
	"github.com/vexx32/thread-tracker/internal/digest"
	"github.com/vexx32/thread-tracker/internal/storage"
	"github.com/vexx32/thread-tracker/internal/transport"
	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

// Observer receives the reply resolution of every tracked thread once per
// refresh pass. The notification dispatcher hangs off this hook.
type Observer interface {
	Observe(ctx context.Context, tr digest.ThreadResolution)
}

// Service re-renders watcher digests and keeps their bound messages current.
//
// Per-watcher render output is cached in memory so unchanged digests cost no
// edit call. The cache has no durability requirement: after a restart the
// first tick re-edits every watcher once and the cache is warm again.
type Service struct {
	store    storage.Store
	renderer *digest.Renderer
	msgr     transport.Messenger
	observer Observer
	log      logx.Logger

	// mu guards the caches against Forget() calls from the command path.
	mu        sync.Mutex
	lastParts map[int64][]string               // watcher id -> last rendered parts
	extraRefs map[int64][]transport.MessageRef // follow-up messages for parts beyond the first
	cursor    int                              // round-robin start offset across ticks
}

func New(store storage.Store, renderer *digest.Renderer, msgr transport.Messenger, observer Observer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:     store,
		renderer:  renderer,
		msgr:      msgr,
		observer:  observer,
		log:       log.With(logx.String("task", "watch-refresh")),
		lastParts: map[int64][]string{},
		extraRefs: map[int64][]transport.MessageRef{},
	}
}

// Tick runs one refresh pass over all active watchers.
//
// Ticks are single-flight (enforced by the cron chain in the app wiring), so
// no internal locking is needed. A cancelled context stops the pass between
// watchers; the watcher being processed always finishes, so a send is never
// left without its state update.
func (s *Service) Tick(ctx context.Context) error {
	// Reply observation covers every tracked thread, whether or not a
	// watcher exists for the owner and regardless of watcher filters.
	s.observeReplies(ctx)

	watchers, err := s.store.ListWatchers(ctx)
	if err != nil {
		return fmt.Errorf("listing watchers: %w", err)
	}
	if len(watchers) == 0 {
		return nil
	}

	// Start from a different position each tick so a slow or failing
	// watcher near the front cannot starve the rest forever.
	start := s.cursor % len(watchers)
	s.cursor++

	for i := range watchers {
		if ctx.Err() != nil {
			s.log.Info("refresh pass interrupted", logx.Int("remaining", len(watchers)-i))
			return ctx.Err()
		}
		w := watchers[(start+i)%len(watchers)]
		s.refreshOne(ctx, w)
	}
	return nil
}

// observeReplies feeds the observer one resolution per tracked thread,
// for every owner in the store. Failures are logged and skipped; the
// watcher refresh that follows is unaffected.
func (s *Service) observeReplies(ctx context.Context) {
	if s.observer == nil {
		return
	}
	owners, err := s.store.ListThreadOwners(ctx)
	if err != nil {
		s.log.Warn("listing thread owners failed", logx.Err(err))
		return
	}
	for _, o := range owners {
		if ctx.Err() != nil {
			return
		}
		resolutions, err := s.renderer.ResolveAll(ctx, o.GuildID, o.UserID)
		if err != nil {
			s.log.Warn("resolving threads failed",
				logx.Int64("user_id", o.UserID), logx.Err(err))
			continue
		}
		for _, tr := range resolutions {
			s.observer.Observe(ctx, tr)
		}
	}
}

func (s *Service) refreshOne(ctx context.Context, w storage.Watcher) {
	log := s.log.With(logx.Int64("watcher_id", w.ID), logx.Int64("user_id", w.UserID))

	d, err := s.renderer.Render(ctx, digest.Options{
		GuildID:    w.GuildID,
		UserID:     w.UserID,
		Categories: category.SplitSet(w.Categories),
		Sort:       digest.SortByCategory,
	})
	if err != nil {
		log.Warn("rendering digest failed", logx.Err(err))
		return
	}

	s.mu.Lock()
	unchanged := equalParts(s.lastParts[w.ID], d.Parts)
	s.mu.Unlock()
	if unchanged {
		return
	}

	ref := transport.MessageRef{ChannelID: w.ChannelID, MessageID: w.MessageID}
	if err := s.msgr.EditMessage(ctx, ref, d.Parts[0]); err != nil {
		if errors.Is(err, transport.ErrMessageNotFound) {
			log.Info("bound message gone, removing watcher")
			s.removeWatcher(ctx, w, log)
			return
		}
		// Transient or permission failure: keep the watcher and retry on
		// the next tick. The cache stays stale so the edit is re-attempted.
		log.Warn("editing watcher message failed", logx.Err(err))
		return
	}

	if !s.syncExtraParts(ctx, w, d.Parts[1:], log) {
		return
	}

	s.mu.Lock()
	s.lastParts[w.ID] = d.Parts
	s.mu.Unlock()
}

// syncExtraParts keeps follow-up messages in step with parts beyond the
// first: edits existing ones, sends missing ones, deletes leftovers.
func (s *Service) syncExtraParts(ctx context.Context, w storage.Watcher, parts []string, log logx.Logger) bool {
	s.mu.Lock()
	refs := s.extraRefs[w.ID]
	s.mu.Unlock()

	for i, part := range parts {
		if i < len(refs) {
			if err := s.msgr.EditMessage(ctx, refs[i], part); err == nil {
				continue
			} else if !errors.Is(err, transport.ErrMessageNotFound) {
				log.Warn("editing digest part failed", logx.Int("part", i+2), logx.Err(err))
				return false
			}
			// Part message was deleted; fall through and send a new one.
		}
		id, err := s.msgr.SendMessage(ctx, w.ChannelID, part)
		if err != nil {
			log.Warn("sending digest part failed", logx.Int("part", i+2), logx.Err(err))
			return false
		}
		ref := transport.MessageRef{ChannelID: w.ChannelID, MessageID: id}
		if i < len(refs) {
			refs[i] = ref
		} else {
			refs = append(refs, ref)
		}
	}

	for _, ref := range refs[min(len(parts), len(refs)):] {
		_ = s.msgr.DeleteMessage(ctx, ref)
	}
	refs = refs[:min(len(parts), len(refs))]

	s.mu.Lock()
	if len(refs) == 0 {
		delete(s.extraRefs, w.ID)
	} else {
		s.extraRefs[w.ID] = refs
	}
	s.mu.Unlock()
	return true
}

func (s *Service) removeWatcher(ctx context.Context, w storage.Watcher, log logx.Logger) {
	if _, err := s.store.RemoveWatcher(ctx, w.ID); err != nil {
		log.Error("removing watcher failed", logx.Err(err))
		return
	}
	s.mu.Lock()
	refs := s.extraRefs[w.ID]
	delete(s.lastParts, w.ID)
	delete(s.extraRefs, w.ID)
	s.mu.Unlock()
	for _, ref := range refs {
		_ = s.msgr.DeleteMessage(ctx, ref)
	}
}

// Forget drops cached state for a watcher removed outside the tick
// (e.g. by an unwatch command).
func (s *Service) Forget(watcherID int64) {
	s.mu.Lock()
	delete(s.lastParts, watcherID)
	delete(s.extraRefs, watcherID)
	s.mu.Unlock()
}

func equalParts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
