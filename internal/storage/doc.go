// Package storage is the persistence gateway for the tracker's entities:
// tracked threads, watchers, muses, todos, scheduled messages, and user
// settings.
//
// It exposes typed CRUD over a SQLite database file and nothing else;
// filtering and scheduling decisions belong to the callers.
package storage
