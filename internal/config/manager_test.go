package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const yamlConfig = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  poll_timeout: "15s"
logging:
  level: "debug"
  console: true
storage:
  driver: "sqlite"
  path: "/tmp/reminders.db"
engine:
  enabled: true
  scan_interval: "20s"
convo:
  pending_ttl: "45m"
  default_timezone: "America/New_York"
nlu:
  url: "http://localhost:9000/parse"
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.yaml", yamlConfig)

	m := NewConfigManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if !cfg.Engine.Enabled || cfg.Engine.ScanInterval != "20s" {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if cfg.Convo.DefaultTimezone != "America/New_York" {
		t.Fatalf("timezone = %q", cfg.Convo.DefaultTimezone)
	}
	if cfg.Notifier != nil {
		t.Fatal("omitted notifier section should stay nil")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.json",
		`{"telegram":{"token":"t"},"logging":{"level":"info","console":true},"storage":{"driver":"sqlite","path":"x.db"},"engine":{"enabled":false},"convo":{},"nlu":{"url":""}}`)

	m := NewConfigManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.yaml", "telegram:\n  token: t\n  tokken_typo: x\n")

	m := NewConfigManager(path)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.yaml", yamlConfig)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestReloadPublishesValidatedChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", yamlConfig)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(2)
	defer m.Unsubscribe(sub)

	// Unchanged content: no publish.
	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatal("unchanged config must not publish")
	case <-time.After(50 * time.Millisecond):
	}

	writeFile(t, dir, "config.yaml", yamlConfig+"notifier:\n  enabled: true\n  rate_per_sec: 5\n")
	m.reload(context.Background())
	select {
	case cfg := <-sub:
		if cfg.Notifier == nil || cfg.Notifier.RatePerSec != 5 {
			t.Fatalf("published cfg = %+v", cfg.Notifier)
		}
		if m.Get() != cfg {
			t.Fatal("published config must be committed")
		}
	case <-time.After(time.Second):
		t.Fatal("no publish after change")
	}
}

func TestReloadRejectedByValidatorKeepsOld(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", yamlConfig)

	m := NewConfigManager(path)
	old, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Engine.ScanInterval == "1ns" {
			return errors.New("too aggressive")
		}
		return nil
	})

	sub := m.Subscribe(2)
	defer m.Unsubscribe(sub)

	writeFile(t, dir, "config.yaml",
		"engine:\n  scan_interval: \"1ns\"\ntelegram:\n  token: t\nlogging: {}\nstorage: {}\nconvo: {}\nnlu: {url: \"\"}\n")

	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatal("rejected config must not publish")
	case <-time.After(50 * time.Millisecond):
	}
	if m.Get() != old {
		t.Fatal("rejected config must not be committed")
	}
}
