package storage

import (
	"context"
	"time"
)

// Config configures storage.
//
// The only backend is a SQLite database file; Path is required.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// TrackedThread is a conversation channel a user asked the tracker to follow.
// Category is empty for uncategorized threads.
type TrackedThread struct {
	ID        int64  `db:"id"`
	UserID    int64  `db:"user_id"`
	GuildID   int64  `db:"guild_id"`
	ChannelID int64  `db:"channel_id"`
	Category  string `db:"category"`
}

// ThreadOwner identifies one user's tracked-thread set within a guild.
type ThreadOwner struct {
	GuildID int64 `db:"guild_id"`
	UserID  int64 `db:"user_id"`
}

// Watcher binds a live digest message to a user's tracked threads.
// Categories is a space-separated filter set; empty means all categories.
type Watcher struct {
	ID         int64  `db:"id"`
	UserID     int64  `db:"user_id"`
	GuildID    int64  `db:"guild_id"`
	ChannelID  int64  `db:"channel_id"`
	MessageID  int64  `db:"message_id"`
	Categories string `db:"categories"`
}

// Muse is a display name the owner also writes under.
type Muse struct {
	ID      int64  `db:"id"`
	UserID  int64  `db:"user_id"`
	GuildID int64  `db:"guild_id"`
	Name    string `db:"name"`
}

// Todo is a free-text to-do entry. Its Category carries the reserved "!"
// marker so it never collides with thread categories by accident.
type Todo struct {
	ID       int64  `db:"id"`
	UserID   int64  `db:"user_id"`
	GuildID  int64  `db:"guild_id"`
	Content  string `db:"content"`
	Category string `db:"category"`
}

// ScheduledMessage is a user-authored message to be sent at DueAt (UTC).
// Repeat is the original rule string ("" for one-off); FailReason is set
// when the message was archived because delivery failed.
type ScheduledMessage struct {
	ID         int64
	UserID     int64
	ChannelID  int64
	DueAt      time.Time
	Repeat     string
	Title      string
	Body       string
	Archived   bool
	FailReason string
}

// UserSetting is one (name, value) pair owned by a user.
type UserSetting struct {
	UserID int64  `db:"user_id"`
	Name   string `db:"name"`
	Value  string `db:"value"`
}

// Statistics is an operator-facing aggregate over all entities.
type Statistics struct {
	Users           int64 `db:"users"`
	Guilds          int64 `db:"guilds"`
	ThreadsDistinct int64 `db:"threads_distinct"`
	ThreadsTotal    int64 `db:"threads_total"`
	Muses           int64 `db:"muses"`
	Todos           int64 `db:"todos"`
	Watchers        int64 `db:"watchers"`
}

// Store is typed read/write access to the persistent entities.
// No business logic lives here.
type Store interface {
	// Tracked threads.
	AddThread(ctx context.Context, t TrackedThread) (bool, error)
	GetThread(ctx context.Context, guildID, userID, channelID int64) (*TrackedThread, error)
	ListThreads(ctx context.Context, guildID, userID int64) ([]TrackedThread, error)
	ListThreadOwners(ctx context.Context) ([]ThreadOwner, error)
	SetThreadCategory(ctx context.Context, guildID, userID, channelID int64, category string) (bool, error)
	RemoveThread(ctx context.Context, guildID, userID, channelID int64) (int64, error)
	RemoveThreadsInCategory(ctx context.Context, guildID, userID int64, category string) (int64, error)
	RemoveAllThreads(ctx context.Context, guildID, userID int64) (int64, error)

	// Watchers.
	AddWatcher(ctx context.Context, w Watcher) (int64, error)
	GetWatcher(ctx context.Context, channelID, messageID int64) (*Watcher, error)
	ListWatchers(ctx context.Context) ([]Watcher, error)
	RemoveWatcher(ctx context.Context, id int64) (int64, error)

	// Muses.
	AddMuse(ctx context.Context, guildID, userID int64, name string) (bool, error)
	ListMuses(ctx context.Context, guildID, userID int64) ([]string, error)
	RemoveMuse(ctx context.Context, guildID, userID int64, name string) (int64, error)

	// Todos.
	AddTodo(ctx context.Context, guildID, userID int64, content, category string) (bool, error)
	ListTodos(ctx context.Context, guildID, userID int64) ([]Todo, error)
	RemoveTodo(ctx context.Context, guildID, userID int64, content string) (int64, error)
	RemoveTodosInCategory(ctx context.Context, guildID, userID int64, category string) (int64, error)
	RemoveAllTodos(ctx context.Context, guildID, userID int64) (int64, error)

	// Scheduled messages.
	AddScheduledMessage(ctx context.Context, m ScheduledMessage) (int64, error)
	GetScheduledMessage(ctx context.Context, id int64) (*ScheduledMessage, error)
	ListScheduledMessages(ctx context.Context, userID int64) ([]ScheduledMessage, error)
	ListDueScheduledMessages(ctx context.Context, now time.Time) ([]ScheduledMessage, error)
	UpdateScheduledMessage(ctx context.Context, m ScheduledMessage) (bool, error)
	RescheduleMessage(ctx context.Context, id int64, next time.Time) error
	ArchiveScheduledMessage(ctx context.Context, id int64, failReason string) error
	RemoveScheduledMessage(ctx context.Context, id int64) (int64, error)

	// User settings.
	GetUserSetting(ctx context.Context, userID int64, name string) (string, bool, error)
	SetUserSetting(ctx context.Context, userID int64, name, value string) error

	Statistics(ctx context.Context) (Statistics, error)

	Close() error
}
