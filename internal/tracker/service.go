// Package tracker is the surface exposed to the command-handling layer:
// thread tracking, watchers, muses, todos, settings, and message scheduling.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vexx32/thread-tracker/internal/category"
	"github.com/vexx32/thread-tracker/internal/digest"
	"github.com/vexx32/thread-tracker/internal/schedule"
	"github.com/vexx32/thread-tracker/internal/services/notify"
	"github.com/vexx32/thread-tracker/internal/storage"
	"github.com/vexx32/thread-tracker/internal/transport"
	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("tracker: not found")
	// ErrNotAllowed means the caller does not own the referenced entity.
	ErrNotAllowed = errors.New("tracker: not allowed")
	// ErrInvalid flags arguments rejected before touching the store.
	ErrInvalid = errors.New("tracker: invalid argument")
)

// TimezoneSetting stores the user's IANA zone identifier. Unset means UTC.
const TimezoneSetting = "timezone"

// forgetter lets the facade drop scheduler-side caches when entities are
// removed on the command path.
type forgetter interface {
	Forget(id int64)
}

// Service wires the store, renderer, and messenger behind the command API.
type Service struct {
	store    storage.Store
	renderer *digest.Renderer
	msgr     transport.Messenger
	log      logx.Logger

	watchCache  forgetter // watcher refresh cache
	threadCache forgetter // notification reply-state cache

	now func() time.Time
}

func New(store storage.Store, renderer *digest.Renderer, msgr transport.Messenger, watchCache, threadCache forgetter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:       store,
		renderer:    renderer,
		msgr:        msgr,
		log:         log,
		watchCache:  watchCache,
		threadCache: threadCache,
		now:         time.Now,
	}
}

// ---- Digest ----

// RenderDigest renders the caller's digest; multi-part results are numbered.
func (s *Service) RenderDigest(ctx context.Context, opts digest.Options) ([]string, error) {
	d, err := s.renderer.Render(ctx, opts)
	if err != nil {
		return nil, err
	}
	return d.Parts, nil
}

// ---- Tracked threads ----

func (s *Service) Track(ctx context.Context, guildID, userID, channelID int64, cat string) (bool, error) {
	if category.IsTodo(cat) {
		return false, fmt.Errorf("%w: thread categories cannot start with %q", ErrInvalid, category.TodoMarker)
	}
	return s.store.AddThread(ctx, storage.TrackedThread{
		UserID: userID, GuildID: guildID, ChannelID: channelID, Category: cat,
	})
}

func (s *Service) SetThreadCategory(ctx context.Context, guildID, userID, channelID int64, cat string) (bool, error) {
	switch strings.ToLower(cat) {
	case category.None, category.Unset:
		cat = ""
	}
	return s.store.SetThreadCategory(ctx, guildID, userID, channelID, cat)
}

func (s *Service) Untrack(ctx context.Context, guildID, userID, channelID int64) (int64, error) {
	if t, err := s.store.GetThread(ctx, guildID, userID, channelID); err == nil && t != nil && s.threadCache != nil {
		s.threadCache.Forget(t.ID)
	}
	return s.store.RemoveThread(ctx, guildID, userID, channelID)
}

func (s *Service) UntrackCategory(ctx context.Context, guildID, userID int64, cat string) (int64, error) {
	return s.store.RemoveThreadsInCategory(ctx, guildID, userID, cat)
}

func (s *Service) UntrackAll(ctx context.Context, guildID, userID int64) (int64, error) {
	return s.store.RemoveAllThreads(ctx, guildID, userID)
}

func (s *Service) ListThreads(ctx context.Context, guildID, userID int64) ([]storage.TrackedThread, error) {
	return s.store.ListThreads(ctx, guildID, userID)
}

// ---- Watchers ----

// RegisterWatcher binds an already-sent digest message to the caller's
// tracked threads; the refresh task picks it up on its next tick.
func (s *Service) RegisterWatcher(ctx context.Context, guildID, userID, channelID, messageID int64, categories []string) (int64, error) {
	w := storage.Watcher{
		UserID:     userID,
		GuildID:    guildID,
		ChannelID:  channelID,
		MessageID:  messageID,
		Categories: category.JoinSet(categories),
	}
	return s.store.AddWatcher(ctx, w)
}

// RemoveWatcher unbinds a watcher identified by its bound message and
// deletes the message itself. Only the owner may remove it.
func (s *Service) RemoveWatcher(ctx context.Context, userID, channelID, messageID int64) error {
	w, err := s.store.GetWatcher(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("%w: no watcher bound to that message", ErrNotFound)
	}
	if w.UserID != userID {
		return fmt.Errorf("%w: watcher belongs to another user", ErrNotAllowed)
	}
	if _, err := s.store.RemoveWatcher(ctx, w.ID); err != nil {
		return err
	}
	if s.watchCache != nil {
		s.watchCache.Forget(w.ID)
	}
	_ = s.msgr.DeleteMessage(ctx, transport.MessageRef{ChannelID: channelID, MessageID: messageID})
	return nil
}

// ---- Muses ----

func (s *Service) AddMuse(ctx context.Context, guildID, userID int64, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: muse name is empty", ErrInvalid)
	}
	return s.store.AddMuse(ctx, guildID, userID, name)
}

func (s *Service) RemoveMuse(ctx context.Context, guildID, userID int64, name string) (int64, error) {
	return s.store.RemoveMuse(ctx, guildID, userID, name)
}

func (s *Service) ListMuses(ctx context.Context, guildID, userID int64) ([]string, error) {
	return s.store.ListMuses(ctx, guildID, userID)
}

// ---- Todos ----

func (s *Service) AddTodo(ctx context.Context, guildID, userID int64, content, cat string) (bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return false, fmt.Errorf("%w: todo text is empty", ErrInvalid)
	}
	if cat != "" && !category.IsTodo(cat) {
		return false, fmt.Errorf("%w: todo categories must start with %q", ErrInvalid, category.TodoMarker)
	}
	return s.store.AddTodo(ctx, guildID, userID, content, cat)
}

// RemoveTodos interprets the argument the way the done command does: a
// marked category removes that category, "!all" removes everything, and
// anything else removes the single matching entry.
func (s *Service) RemoveTodos(ctx context.Context, guildID, userID int64, arg string) (int64, error) {
	if category.IsTodo(arg) {
		if strings.EqualFold(category.TrimTodoMarker(arg), category.All) {
			return s.store.RemoveAllTodos(ctx, guildID, userID)
		}
		return s.store.RemoveTodosInCategory(ctx, guildID, userID, arg)
	}
	return s.store.RemoveTodo(ctx, guildID, userID, arg)
}

func (s *Service) ListTodos(ctx context.Context, guildID, userID int64) ([]storage.Todo, error) {
	return s.store.ListTodos(ctx, guildID, userID)
}

// ---- Settings ----

func (s *Service) SetTimezone(ctx context.Context, userID int64, name string) error {
	loc, err := schedule.LoadZone(name)
	if err != nil {
		return err
	}
	return s.store.SetUserSetting(ctx, userID, TimezoneSetting, loc.String())
}

func (s *Service) SetNotifications(ctx context.Context, userID int64, enabled bool) error {
	value := "off"
	if enabled {
		value = "on"
	}
	return s.store.SetUserSetting(ctx, userID, notify.SettingName, value)
}

func (s *Service) userZone(ctx context.Context, userID int64) (*time.Location, error) {
	name, ok, err := s.store.GetUserSetting(ctx, userID, TimezoneSetting)
	if err != nil {
		return nil, err
	}
	if !ok {
		return time.UTC, nil
	}
	loc, err := schedule.LoadZone(name)
	if err != nil {
		// A stored zone the tz database no longer knows; fall back rather
		// than break every scheduling command.
		s.log.Warn("stored timezone is invalid, using UTC",
			logx.Int64("user_id", userID), logx.String("tz", name))
		return time.UTC, nil
	}
	return loc, nil
}

// ---- Scheduled messages ----

// ScheduleMessage validates and persists a new scheduled message. The local
// datetime is resolved against the caller's stored timezone exactly once;
// later timezone changes never shift the stored instant.
func (s *Service) ScheduleMessage(ctx context.Context, userID, channelID int64, localDatetime, repeatRaw, title, body string) (storage.ScheduledMessage, error) {
	loc, err := s.userZone(ctx, userID)
	if err != nil {
		return storage.ScheduledMessage{}, err
	}
	due, err := schedule.ParseLocal(localDatetime, loc)
	if err != nil {
		return storage.ScheduledMessage{}, err
	}
	if !due.After(s.now().UTC()) {
		return storage.ScheduledMessage{}, fmt.Errorf("%w: %s is not in the future", schedule.ErrInvalid, due.Format(time.RFC3339))
	}
	rep, err := schedule.ParseRepeat(repeatRaw)
	if err != nil {
		return storage.ScheduledMessage{}, err
	}

	m := storage.ScheduledMessage{
		UserID:    userID,
		ChannelID: channelID,
		DueAt:     due,
		Repeat:    rep.String(),
		Title:     title,
		Body:      body,
	}
	id, err := s.store.AddScheduledMessage(ctx, m)
	if err != nil {
		return storage.ScheduledMessage{}, err
	}
	m.ID = id
	return m, nil
}

// ScheduledMessageUpdate carries the optional fields of an update; nil
// pointers leave the stored value alone.
type ScheduledMessageUpdate struct {
	Title         *string
	Body          *string
	LocalDatetime *string
	Repeat        *string
	ChannelID     *int64
}

func (u ScheduledMessageUpdate) empty() bool {
	return u.Title == nil && u.Body == nil && u.LocalDatetime == nil && u.Repeat == nil && u.ChannelID == nil
}

func (s *Service) UpdateScheduledMessage(ctx context.Context, userID, id int64, upd ScheduledMessageUpdate) (storage.ScheduledMessage, error) {
	if upd.empty() {
		return storage.ScheduledMessage{}, fmt.Errorf("%w: no fields to update", ErrInvalid)
	}
	m, err := s.ownedMessage(ctx, userID, id)
	if err != nil {
		return storage.ScheduledMessage{}, err
	}

	if upd.LocalDatetime != nil {
		loc, err := s.userZone(ctx, userID)
		if err != nil {
			return storage.ScheduledMessage{}, err
		}
		due, err := schedule.ParseLocal(*upd.LocalDatetime, loc)
		if err != nil {
			return storage.ScheduledMessage{}, err
		}
		if !due.After(s.now().UTC()) {
			return storage.ScheduledMessage{}, fmt.Errorf("%w: %s is not in the future", schedule.ErrInvalid, due.Format(time.RFC3339))
		}
		m.DueAt = due
	}
	if upd.Repeat != nil {
		rep, err := schedule.ParseRepeat(*upd.Repeat)
		if err != nil {
			return storage.ScheduledMessage{}, err
		}
		m.Repeat = rep.String()
	}
	if upd.Title != nil {
		m.Title = *upd.Title
	}
	if upd.Body != nil {
		m.Body = *upd.Body
	}
	if upd.ChannelID != nil {
		m.ChannelID = *upd.ChannelID
	}

	ok, err := s.store.UpdateScheduledMessage(ctx, *m)
	if err != nil {
		return storage.ScheduledMessage{}, err
	}
	if !ok {
		return storage.ScheduledMessage{}, fmt.Errorf("%w: scheduled message %d", ErrNotFound, id)
	}
	return *m, nil
}

func (s *Service) RemoveScheduledMessage(ctx context.Context, userID, id int64) error {
	if _, err := s.ownedMessage(ctx, userID, id); err != nil {
		return err
	}
	_, err := s.store.RemoveScheduledMessage(ctx, id)
	return err
}

func (s *Service) GetScheduledMessage(ctx context.Context, userID, id int64) (storage.ScheduledMessage, error) {
	m, err := s.ownedMessage(ctx, userID, id)
	if err != nil {
		return storage.ScheduledMessage{}, err
	}
	return *m, nil
}

func (s *Service) ownedMessage(ctx context.Context, userID, id int64) (*storage.ScheduledMessage, error) {
	m, err := s.store.GetScheduledMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: scheduled message %d", ErrNotFound, id)
	}
	if m.UserID != userID {
		return nil, fmt.Errorf("%w: scheduled message %d belongs to another user", ErrNotAllowed, id)
	}
	return m, nil
}

// ScheduledMessageView is a listing row with the due instant rendered in
// the owner's timezone.
type ScheduledMessageView struct {
	storage.ScheduledMessage
	NextDueLocal string
}

func (s *Service) ListScheduledMessages(ctx context.Context, userID int64) ([]ScheduledMessageView, error) {
	msgs, err := s.store.ListScheduledMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc, err := s.userZone(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ScheduledMessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ScheduledMessageView{
			ScheduledMessage: m,
			NextDueLocal:     m.DueAt.In(loc).Format(time.RFC1123),
		})
	}
	return out, nil
}

// ---- Stats ----

func (s *Service) Statistics(ctx context.Context) (storage.Statistics, error) {
	return s.store.Statistics(ctx)
}
