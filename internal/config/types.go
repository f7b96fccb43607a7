// Package config loads and hot-reloads the tracker configuration file.
// JSON and YAML are both accepted; YAML is coerced to JSON so one strict
// decoder covers both.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Tracker  TrackerConfig  `json:"tracker"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outgoing API calls. 0 keeps the default.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string passed to SQLite.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// TrackerConfig controls the background engines.
//
// All durations are Go duration strings. Defaults when omitted:
//   - refresh_interval: "10m"
//   - dispatch_interval: "1m"
//   - recent_history: 50
type TrackerConfig struct {
	RefreshInterval  string `json:"refresh_interval,omitempty"`
	DispatchInterval string `json:"dispatch_interval,omitempty"`
	// RecentHistory is how many messages per channel are retained for
	// reply resolution.
	RecentHistory int `json:"recent_history,omitempty"`
}

const (
	DefaultRefreshInterval  = 10 * time.Minute
	DefaultDispatchInterval = time.Minute
	DefaultRecentHistory    = 50
)

// Validate rejects configs that cannot possibly run. Called on initial load
// and before every hot-reload commit.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	for path, raw := range map[string]string{
		"telegram.poll_timeout":     c.Telegram.PollTimeout,
		"storage.busy_timeout":      c.Storage.BusyTimeout,
		"tracker.refresh_interval":  c.Tracker.RefreshInterval,
		"tracker.dispatch_interval": c.Tracker.DispatchInterval,
	} {
		if _, err := parseDurationField(path, raw); err != nil {
			return err
		}
	}
	if c.Tracker.RecentHistory < 0 {
		return errors.New("tracker.recent_history must be >= 0")
	}
	return nil
}

// RefreshInterval returns the parsed refresh cadence or its default.
func (c *Config) RefreshInterval() time.Duration {
	return durationOrDefault(c.Tracker.RefreshInterval, DefaultRefreshInterval)
}

// DispatchInterval returns the parsed dispatch cadence or its default.
func (c *Config) DispatchInterval() time.Duration {
	return durationOrDefault(c.Tracker.DispatchInterval, DefaultDispatchInterval)
}

// RecentHistory returns the per-channel history depth or its default.
func (c *Config) RecentHistory() int {
	if c.Tracker.RecentHistory > 0 {
		return c.Tracker.RecentHistory
	}
	return DefaultRecentHistory
}

// PollTimeout returns the long-poll timeout or the given default.
func (c *Config) PollTimeout(def time.Duration) time.Duration {
	return durationOrDefault(c.Telegram.PollTimeout, def)
}

// BusyTimeout returns the SQLite busy timeout, 0 when omitted.
func (c *Config) BusyTimeout() time.Duration {
	return durationOrDefault(c.Storage.BusyTimeout, 0)
}

func parseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func durationOrDefault(raw string, def time.Duration) time.Duration {
	d, err := parseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
