package app

import (
	"testing"
	"time"

	"remindbot/internal/config"
)

func TestMapStorageConfigDefaultsToSQLite(t *testing.T) {
	t.Parallel()
	sc, err := mapStorageConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapStorageConfig: %v", err)
	}
	if sc.Driver != "sqlite" || sc.Path != "./remindbot.db" {
		t.Fatalf("got %+v", sc)
	}
}

func TestMapStorageConfigPostgresNeedsDSN(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Storage.Driver = "postgres"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("expected error for missing dsn")
	}
	cfg.Storage.DSN = "postgres://localhost/reminders"
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		t.Fatalf("mapStorageConfig: %v", err)
	}
	if sc.Driver != "postgres" {
		t.Fatalf("driver = %q", sc.Driver)
	}
}

func TestMapStorageConfigRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Storage.Driver = "cassandra"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestMapEngineConfigParsesDurations(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Engine.Enabled = true
	cfg.Engine.ScanInterval = "15s"
	cfg.Engine.StaleAfter = "2m"

	ec, err := mapEngineConfig(cfg)
	if err != nil {
		t.Fatalf("mapEngineConfig: %v", err)
	}
	if ec.ScanInterval != 15*time.Second || ec.StaleAfter != 2*time.Minute {
		t.Fatalf("got %+v", ec)
	}
	// Unset durations stay zero; the engine substitutes its own defaults.
	if ec.ReapInterval != 0 {
		t.Fatalf("reap = %v, want 0", ec.ReapInterval)
	}

	cfg.Engine.Horizon = "one day"
	if _, err := mapEngineConfig(cfg); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestMapConvoConfigRejectsBadThreshold(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Convo.ConfidenceThreshold = 1.5
	if _, err := mapConvoConfig(cfg); err == nil {
		t.Fatal("expected error for threshold > 1")
	}
}

func TestMapNotifierConfigNilSectionDefaultsEnabled(t *testing.T) {
	t.Parallel()
	nc, err := mapNotifierConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if !nc.Enabled {
		t.Fatal("omitted notifier section should default to enabled")
	}
}
