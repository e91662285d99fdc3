package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Engine controls the scan/claim/deliver/reap cycle.
	Engine EngineConfig `json:"engine"`

	// Convo controls the clarification dialog layer.
	Convo ConvoConfig `json:"convo"`

	NLU      NLUConfig       `json:"nlu"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Debug exposes pprof on a side port. Off unless configured.
	Debug *DebugConfig `json:"debug,omitempty"`
}

// DebugConfig controls the pprof side server. A non-loopback addr
// requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Examples:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
//
// The sqlite driver is single-node; run multiple worker processes only
// against postgres, whose row locks partition the due set between them.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// EngineConfig controls the reminder delivery engine.
//
// All durations are Go duration strings (e.g. "30s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - scan_interval: "30s"
//   - batch_size: 10
//   - reap_interval: "5m"
//   - stale_after: "5m"
//   - horizon_interval: "1h"
//   - horizon: "24h"
//   - send_timeout: "10s"
//   - retry_max: 3
//
// stale_after must comfortably exceed send_timeout, or the reaper will race
// in-flight deliveries and cause duplicate sends.
type EngineConfig struct {
	Enabled         bool   `json:"enabled"`
	ScanInterval    string `json:"scan_interval,omitempty"`
	BatchSize       int    `json:"batch_size,omitempty"`
	ReapInterval    string `json:"reap_interval,omitempty"`
	StaleAfter      string `json:"stale_after,omitempty"`
	HorizonInterval string `json:"horizon_interval,omitempty"`
	Horizon         string `json:"horizon,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
}

// ConvoConfig controls the clarification state machine.
//
// Defaults:
//   - pending_ttl: "30m"
//   - confidence_threshold: 0.6
//   - default_timezone: "UTC"
//   - snooze_default: "10m"
type ConvoConfig struct {
	PendingTTL          string  `json:"pending_ttl,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	DefaultTimezone     string  `json:"default_timezone,omitempty"`
	SnoozeDefault       string  `json:"snooze_default,omitempty"`
}

// NLUConfig points at the external intent-extraction service.
type NLUConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key,omitempty"`
	// Timeout is a Go duration string. Default "5s".
	Timeout string `json:"timeout,omitempty"`
}

// NotifierConfig controls the async pipeline used for prompts and acks.
//
// All durations are Go duration strings. If the whole section is omitted,
// the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}
