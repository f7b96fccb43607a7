package storage

import (
	"context"
	"testing"
	"time"

	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

const (
	testGuild = int64(1)
	testUser  = int64(10)
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("Open with empty path should fail")
	}
}

func TestThreadLifecycle(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	added, err := st.AddThread(ctx, TrackedThread{UserID: testUser, GuildID: testGuild, ChannelID: 100, Category: "ic"})
	if err != nil || !added {
		t.Fatalf("AddThread: added=%v err=%v", added, err)
	}

	// Same (guild, user, channel) again is a no-op, not an error.
	added, err = st.AddThread(ctx, TrackedThread{UserID: testUser, GuildID: testGuild, ChannelID: 100, Category: "other"})
	if err != nil {
		t.Fatalf("AddThread duplicate: %v", err)
	}
	if added {
		t.Fatal("duplicate thread reported as added")
	}

	got, err := st.GetThread(ctx, testGuild, testUser, 100)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got == nil || got.Category != "ic" {
		t.Fatalf("GetThread = %+v, want category ic", got)
	}

	ok, err := st.SetThreadCategory(ctx, testGuild, testUser, 100, "ooc")
	if err != nil || !ok {
		t.Fatalf("SetThreadCategory: ok=%v err=%v", ok, err)
	}
	got, _ = st.GetThread(ctx, testGuild, testUser, 100)
	if got.Category != "ooc" {
		t.Fatalf("category after update = %q", got.Category)
	}

	// The same channel can be tracked by a different user independently.
	if _, err := st.AddThread(ctx, TrackedThread{UserID: 11, GuildID: testGuild, ChannelID: 100}); err != nil {
		t.Fatalf("AddThread for second user: %v", err)
	}

	n, err := st.RemoveThread(ctx, testGuild, testUser, 100)
	if err != nil || n != 1 {
		t.Fatalf("RemoveThread: n=%d err=%v", n, err)
	}
	if other, _ := st.GetThread(ctx, testGuild, 11, 100); other == nil {
		t.Fatal("removing one user's thread removed another user's")
	}
}

func TestListThreadOwners(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	seed := []TrackedThread{
		{UserID: testUser, GuildID: testGuild, ChannelID: 100},
		{UserID: testUser, GuildID: testGuild, ChannelID: 101},
		{UserID: 11, GuildID: testGuild, ChannelID: 100},
		{UserID: testUser, GuildID: 2, ChannelID: 200},
	}
	for _, thr := range seed {
		if _, err := st.AddThread(ctx, thr); err != nil {
			t.Fatalf("AddThread(%+v): %v", thr, err)
		}
	}

	owners, err := st.ListThreadOwners(ctx)
	if err != nil {
		t.Fatalf("ListThreadOwners: %v", err)
	}
	want := []ThreadOwner{
		{GuildID: testGuild, UserID: testUser},
		{GuildID: testGuild, UserID: 11},
		{GuildID: 2, UserID: testUser},
	}
	if len(owners) != len(want) {
		t.Fatalf("owners = %+v, want %d entries", owners, len(want))
	}
	for i, w := range want {
		if owners[i] != w {
			t.Fatalf("owners[%d] = %+v, want %+v", i, owners[i], w)
		}
	}
}

func TestRemoveThreadsInCategoryIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	for ch, cat := range map[int64]string{100: "IC", 101: "ic", 102: "ooc"} {
		if _, err := st.AddThread(ctx, TrackedThread{UserID: testUser, GuildID: testGuild, ChannelID: ch, Category: cat}); err != nil {
			t.Fatalf("AddThread: %v", err)
		}
	}
	n, err := st.RemoveThreadsInCategory(ctx, testGuild, testUser, "Ic")
	if err != nil {
		t.Fatalf("RemoveThreadsInCategory: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed %d threads, want 2", n)
	}
}

func TestWatcherLifecycle(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.AddWatcher(ctx, Watcher{UserID: testUser, GuildID: testGuild, ChannelID: 500, MessageID: 9000, Categories: "ic ooc"})
	if err != nil || id == 0 {
		t.Fatalf("AddWatcher: id=%d err=%v", id, err)
	}

	w, err := st.GetWatcher(ctx, 500, 9000)
	if err != nil {
		t.Fatalf("GetWatcher: %v", err)
	}
	if w == nil || w.ID != id || w.Categories != "ic ooc" {
		t.Fatalf("GetWatcher = %+v", w)
	}

	if missing, _ := st.GetWatcher(ctx, 500, 9001); missing != nil {
		t.Fatalf("GetWatcher for unknown message = %+v", missing)
	}

	n, err := st.RemoveWatcher(ctx, id)
	if err != nil || n != 1 {
		t.Fatalf("RemoveWatcher: n=%d err=%v", n, err)
	}
}

func TestMuseNamesAreCaseInsensitivelyUnique(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	added, err := st.AddMuse(ctx, testGuild, testUser, "Aurelia")
	if err != nil || !added {
		t.Fatalf("AddMuse: added=%v err=%v", added, err)
	}
	added, err = st.AddMuse(ctx, testGuild, testUser, "aurelia")
	if err != nil {
		t.Fatalf("AddMuse duplicate: %v", err)
	}
	if added {
		t.Fatal("case-variant muse reported as added")
	}

	names, err := st.ListMuses(ctx, testGuild, testUser)
	if err != nil {
		t.Fatalf("ListMuses: %v", err)
	}
	if len(names) != 1 || names[0] != "Aurelia" {
		t.Fatalf("ListMuses = %v", names)
	}
}

func TestAddTodoMovesBetweenCategories(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.AddTodo(ctx, testGuild, testUser, "write starter", "!ic"); err != nil {
		t.Fatalf("AddTodo: %v", err)
	}
	// Re-adding with a different category moves the entry, no duplicate row.
	if _, err := st.AddTodo(ctx, testGuild, testUser, "write starter", "!ooc"); err != nil {
		t.Fatalf("AddTodo move: %v", err)
	}

	todos, err := st.ListTodos(ctx, testGuild, testUser)
	if err != nil {
		t.Fatalf("ListTodos: %v", err)
	}
	if len(todos) != 1 || todos[0].Category != "!ooc" {
		t.Fatalf("ListTodos = %+v", todos)
	}
}

func TestScheduledMessageRoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	id, err := st.AddScheduledMessage(ctx, ScheduledMessage{
		UserID: testUser, ChannelID: 200, DueAt: due, Repeat: "weekly",
		Title: "Check-in", Body: "weekly post",
	})
	if err != nil {
		t.Fatalf("AddScheduledMessage: %v", err)
	}

	m, err := st.GetScheduledMessage(ctx, id)
	if err != nil {
		t.Fatalf("GetScheduledMessage: %v", err)
	}
	if m == nil {
		t.Fatal("scheduled message missing after insert")
	}
	if !m.DueAt.Equal(due) || m.Repeat != "weekly" || m.Title != "Check-in" || m.Archived {
		t.Fatalf("round trip mismatch: %+v", m)
	}
}

func TestListDueScheduledMessages(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	pastID, _ := st.AddScheduledMessage(ctx, ScheduledMessage{UserID: testUser, ChannelID: 200, DueAt: now.Add(-time.Hour), Body: "past"})
	_, _ = st.AddScheduledMessage(ctx, ScheduledMessage{UserID: testUser, ChannelID: 200, DueAt: now.Add(time.Hour), Body: "future"})
	archivedID, _ := st.AddScheduledMessage(ctx, ScheduledMessage{UserID: testUser, ChannelID: 200, DueAt: now.Add(-2 * time.Hour), Body: "done"})
	if err := st.ArchiveScheduledMessage(ctx, archivedID, ""); err != nil {
		t.Fatalf("ArchiveScheduledMessage: %v", err)
	}

	due, err := st.ListDueScheduledMessages(ctx, now)
	if err != nil {
		t.Fatalf("ListDueScheduledMessages: %v", err)
	}
	if len(due) != 1 || due[0].ID != pastID {
		t.Fatalf("due = %+v, want only the unarchived past message", due)
	}
}

func TestRescheduleMessage(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	id, _ := st.AddScheduledMessage(ctx, ScheduledMessage{UserID: testUser, ChannelID: 200, DueAt: due, Repeat: "daily", Body: "x"})

	next := due.AddDate(0, 0, 1)
	if err := st.RescheduleMessage(ctx, id, next); err != nil {
		t.Fatalf("RescheduleMessage: %v", err)
	}
	m, _ := st.GetScheduledMessage(ctx, id)
	if !m.DueAt.Equal(next) || m.Archived {
		t.Fatalf("after reschedule: %+v", m)
	}
}

func TestArchivePreservesFailReason(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	id, _ := st.AddScheduledMessage(ctx, ScheduledMessage{UserID: testUser, ChannelID: 200, DueAt: time.Now().UTC(), Body: "x"})
	if err := st.ArchiveScheduledMessage(ctx, id, "channel unavailable"); err != nil {
		t.Fatalf("ArchiveScheduledMessage: %v", err)
	}
	m, _ := st.GetScheduledMessage(ctx, id)
	if !m.Archived || m.FailReason != "channel unavailable" {
		t.Fatalf("after archive: %+v", m)
	}
}

func TestUserSettings(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetUserSetting(ctx, testUser, "timezone"); err != nil || ok {
		t.Fatalf("unset setting: ok=%v err=%v", ok, err)
	}
	if err := st.SetUserSetting(ctx, testUser, "timezone", "Europe/London"); err != nil {
		t.Fatalf("SetUserSetting: %v", err)
	}
	if err := st.SetUserSetting(ctx, testUser, "timezone", "America/New_York"); err != nil {
		t.Fatalf("SetUserSetting overwrite: %v", err)
	}
	value, ok, err := st.GetUserSetting(ctx, testUser, "timezone")
	if err != nil || !ok {
		t.Fatalf("GetUserSetting: ok=%v err=%v", ok, err)
	}
	if value != "America/New_York" {
		t.Fatalf("value = %q", value)
	}
}

func TestStatistics(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	_, _ = st.AddThread(ctx, TrackedThread{UserID: 10, GuildID: 1, ChannelID: 100})
	_, _ = st.AddThread(ctx, TrackedThread{UserID: 11, GuildID: 1, ChannelID: 100})
	_, _ = st.AddThread(ctx, TrackedThread{UserID: 10, GuildID: 2, ChannelID: 101})
	_, _ = st.AddMuse(ctx, 1, 10, "Aurelia")
	_, _ = st.AddWatcher(ctx, Watcher{UserID: 10, GuildID: 1, ChannelID: 500, MessageID: 9000})

	stats, err := st.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	want := Statistics{Users: 2, Guilds: 2, ThreadsDistinct: 2, ThreadsTotal: 3, Muses: 1, Watchers: 1}
	if stats != want {
		t.Fatalf("Statistics = %+v, want %+v", stats, want)
	}
}
