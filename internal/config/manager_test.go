package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validJSON = `{
	"telegram": {"token": "123:abc", "poll_timeout": "10s"},
	"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
	"storage": {"path": "tracker.db", "busy_timeout": "5s"},
	"tracker": {"refresh_interval": "5m", "dispatch_interval": "30s", "recent_history": 25}
}`

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON), logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if got := cfg.RefreshInterval(); got != 5*time.Minute {
		t.Fatalf("refresh interval = %v", got)
	}
	if got := cfg.DispatchInterval(); got != 30*time.Second {
		t.Fatalf("dispatch interval = %v", got)
	}
	if got := cfg.RecentHistory(); got != 25 {
		t.Fatalf("recent history = %d", got)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: tracker.db
tracker: {}
`)
	cfg, err := NewManager(path, logx.Nop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if got := cfg.RefreshInterval(); got != DefaultRefreshInterval {
		t.Fatalf("default refresh interval = %v", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc", "pol_timeout": "10s"},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"path": "tracker.db"},
		"tracker": {}
	}`)
	if _, err := NewManager(path, logx.Nop()).Load(); err == nil {
		t.Fatal("misspelled key accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing token", func(c *Config) { c.Telegram.Token = " " }, false},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }, false},
		{"bad interval", func(c *Config) { c.Tracker.RefreshInterval = "soon" }, false},
		{"negative interval", func(c *Config) { c.Tracker.DispatchInterval = "-1m" }, false},
		{"negative history", func(c *Config) { c.Tracker.RecentHistory = -1 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{
				Telegram: TelegramConfig{Token: "123:abc"},
				Storage:  StorageConfig{Path: "tracker.db"},
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestSubscribePublishAndUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON), logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	next := &Config{Telegram: TelegramConfig{Token: "x"}, Storage: StorageConfig{Path: "y"}}
	m.commit(next)
	m.publish(next)

	select {
	case got := <-ch:
		if got != next {
			t.Fatal("subscriber received wrong config")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the update")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel not closed after Unsubscribe")
	}
}

func TestPublishKeepsNewestForSlowSubscriber(t *testing.T) {
	t.Parallel()
	m := NewManager("unused", logx.Nop())
	ch := m.Subscribe(1)

	first := &Config{Telegram: TelegramConfig{Token: "first"}}
	second := &Config{Telegram: TelegramConfig{Token: "second"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got.Telegram.Token != "second" {
		t.Fatalf("slow subscriber got %q, want the newest config", got.Telegram.Token)
	}
}
