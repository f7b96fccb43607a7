package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

// Open initializes the SQLite store at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Tracked threads ----

func (s *sqliteStore) AddThread(ctx context.Context, t TrackedThread) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO threads(user_id, guild_id, channel_id, category) VALUES(?,?,?,?)`,
		t.UserID, t.GuildID, t.ChannelID, t.Category,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) GetThread(ctx context.Context, guildID, userID, channelID int64) (*TrackedThread, error) {
	var t TrackedThread
	err := s.db.GetContext(ctx, &t,
		`SELECT id, user_id, guild_id, channel_id, category FROM threads
		 WHERE guild_id = ? AND user_id = ? AND channel_id = ?`,
		guildID, userID, channelID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *sqliteStore) ListThreads(ctx context.Context, guildID, userID int64) ([]TrackedThread, error) {
	var out []TrackedThread
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, user_id, guild_id, channel_id, category FROM threads
		 WHERE guild_id = ? AND user_id = ? ORDER BY id`,
		guildID, userID,
	)
	return out, err
}

func (s *sqliteStore) ListThreadOwners(ctx context.Context) ([]ThreadOwner, error) {
	var out []ThreadOwner
	err := s.db.SelectContext(ctx, &out,
		`SELECT DISTINCT guild_id, user_id FROM threads ORDER BY guild_id, user_id`,
	)
	return out, err
}

func (s *sqliteStore) SetThreadCategory(ctx context.Context, guildID, userID, channelID int64, category string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET category = ? WHERE guild_id = ? AND user_id = ? AND channel_id = ?`,
		category, guildID, userID, channelID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) RemoveThread(ctx context.Context, guildID, userID, channelID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM threads WHERE guild_id = ? AND user_id = ? AND channel_id = ?`,
		guildID, userID, channelID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) RemoveThreadsInCategory(ctx context.Context, guildID, userID int64, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM threads WHERE guild_id = ? AND user_id = ? AND category = ? COLLATE NOCASE`,
		guildID, userID, category,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) RemoveAllThreads(ctx context.Context, guildID, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM threads WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- Watchers ----

func (s *sqliteStore) AddWatcher(ctx context.Context, w Watcher) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO watchers(user_id, guild_id, channel_id, message_id, categories) VALUES(?,?,?,?,?)`,
		w.UserID, w.GuildID, w.ChannelID, w.MessageID, w.Categories,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetWatcher(ctx context.Context, channelID, messageID int64) (*Watcher, error) {
	var w Watcher
	err := s.db.GetContext(ctx, &w,
		`SELECT id, user_id, guild_id, channel_id, message_id, categories FROM watchers
		 WHERE channel_id = ? AND message_id = ?`,
		channelID, messageID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *sqliteStore) ListWatchers(ctx context.Context) ([]Watcher, error) {
	var out []Watcher
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, user_id, guild_id, channel_id, message_id, categories FROM watchers ORDER BY id`,
	)
	return out, err
}

func (s *sqliteStore) RemoveWatcher(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchers WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- Muses ----

func (s *sqliteStore) AddMuse(ctx context.Context, guildID, userID int64, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO muses(user_id, guild_id, name) VALUES(?,?,?)`,
		userID, guildID, name,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) ListMuses(ctx context.Context, guildID, userID int64) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out,
		`SELECT name FROM muses WHERE guild_id = ? AND user_id = ? ORDER BY id`,
		guildID, userID,
	)
	return out, err
}

func (s *sqliteStore) RemoveMuse(ctx context.Context, guildID, userID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM muses WHERE guild_id = ? AND user_id = ? AND name = ?`,
		guildID, userID, name,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- Todos ----

func (s *sqliteStore) AddTodo(ctx context.Context, guildID, userID int64, content, category string) (bool, error) {
	// Re-adding an existing entry with a different category moves it there.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO todos(user_id, guild_id, content, category) VALUES(?,?,?,?)
		 ON CONFLICT(guild_id, user_id, content) DO UPDATE SET category = excluded.category
		 WHERE category <> excluded.category`,
		userID, guildID, content, category,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) ListTodos(ctx context.Context, guildID, userID int64) ([]Todo, error) {
	var out []Todo
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, user_id, guild_id, content, category FROM todos
		 WHERE guild_id = ? AND user_id = ? ORDER BY id`,
		guildID, userID,
	)
	return out, err
}

func (s *sqliteStore) RemoveTodo(ctx context.Context, guildID, userID int64, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM todos WHERE guild_id = ? AND user_id = ? AND content = ?`,
		guildID, userID, content,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) RemoveTodosInCategory(ctx context.Context, guildID, userID int64, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM todos WHERE guild_id = ? AND user_id = ? AND category = ? COLLATE NOCASE`,
		guildID, userID, category,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) RemoveAllTodos(ctx context.Context, guildID, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM todos WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- Scheduled messages ----

// scheduledRow is the wire shape of a scheduled message; due_at is kept as
// unix milliseconds so comparisons stay integer-typed in SQL.
type scheduledRow struct {
	ID         int64  `db:"id"`
	UserID     int64  `db:"user_id"`
	ChannelID  int64  `db:"channel_id"`
	DueAt      int64  `db:"due_at"`
	Repeat     string `db:"repeat"`
	Title      string `db:"title"`
	Body       string `db:"body"`
	Archived   bool   `db:"archived"`
	FailReason string `db:"fail_reason"`
}

func (r scheduledRow) entity() ScheduledMessage {
	return ScheduledMessage{
		ID:         r.ID,
		UserID:     r.UserID,
		ChannelID:  r.ChannelID,
		DueAt:      time.UnixMilli(r.DueAt).UTC(),
		Repeat:     r.Repeat,
		Title:      r.Title,
		Body:       r.Body,
		Archived:   r.Archived,
		FailReason: r.FailReason,
	}
}

const scheduledCols = `id, user_id, channel_id, due_at, repeat, title, body, archived, fail_reason`

func (s *sqliteStore) AddScheduledMessage(ctx context.Context, m ScheduledMessage) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_messages(user_id, channel_id, due_at, repeat, title, body, archived, fail_reason)
		 VALUES(?,?,?,?,?,?,0,'')`,
		m.UserID, m.ChannelID, m.DueAt.UnixMilli(), m.Repeat, m.Title, m.Body,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetScheduledMessage(ctx context.Context, id int64) (*ScheduledMessage, error) {
	var r scheduledRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+scheduledCols+` FROM scheduled_messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := r.entity()
	return &m, nil
}

func (s *sqliteStore) ListScheduledMessages(ctx context.Context, userID int64) ([]ScheduledMessage, error) {
	var rows []scheduledRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+scheduledCols+` FROM scheduled_messages WHERE user_id = ? ORDER BY due_at, id`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ScheduledMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entity())
	}
	return out, nil
}

func (s *sqliteStore) ListDueScheduledMessages(ctx context.Context, now time.Time) ([]ScheduledMessage, error) {
	var rows []scheduledRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+scheduledCols+` FROM scheduled_messages
		 WHERE archived = 0 AND due_at <= ? ORDER BY due_at, id`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	out := make([]ScheduledMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entity())
	}
	return out, nil
}

func (s *sqliteStore) UpdateScheduledMessage(ctx context.Context, m ScheduledMessage) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages
		 SET channel_id = ?, due_at = ?, repeat = ?, title = ?, body = ?, archived = ?, fail_reason = ?
		 WHERE id = ?`,
		m.ChannelID, m.DueAt.UnixMilli(), m.Repeat, m.Title, m.Body, m.Archived, m.FailReason, m.ID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) RescheduleMessage(ctx context.Context, id int64, next time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET due_at = ? WHERE id = ?`,
		next.UnixMilli(), id,
	)
	return err
}

func (s *sqliteStore) ArchiveScheduledMessage(ctx context.Context, id int64, failReason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET archived = 1, fail_reason = ? WHERE id = ?`,
		failReason, id,
	)
	return err
}

func (s *sqliteStore) RemoveScheduledMessage(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_messages WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- User settings ----

func (s *sqliteStore) GetUserSetting(ctx context.Context, userID int64, name string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM user_settings WHERE user_id = ? AND name = ?`, userID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *sqliteStore) SetUserSetting(ctx context.Context, userID int64, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings(user_id, name, value) VALUES(?,?,?)
		 ON CONFLICT(user_id, name) DO UPDATE SET value = excluded.value`,
		userID, name, value,
	)
	return err
}

func (s *sqliteStore) Statistics(ctx context.Context) (Statistics, error) {
	var st Statistics
	err := s.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(DISTINCT user_id) FROM threads)   AS users,
			(SELECT COUNT(DISTINCT guild_id) FROM threads)  AS guilds,
			(SELECT COUNT(DISTINCT channel_id) FROM threads) AS threads_distinct,
			(SELECT COUNT(*) FROM threads)  AS threads_total,
			(SELECT COUNT(*) FROM muses)    AS muses,
			(SELECT COUNT(*) FROM todos)    AS todos,
			(SELECT COUNT(*) FROM watchers) AS watchers`)
	return st, err
}
