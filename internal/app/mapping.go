package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/convo"
	"remindbot/internal/engine"
	"remindbot/internal/nlu"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/pprof"
	"remindbot/internal/storage"
)

// The config file carries durations as strings; these map* helpers parse
// them into the typed component configs and reject bad values up front.

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			path = "./remindbot.db"
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql":
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=postgres")
		}
		return storage.Config{Driver: "postgres", DSN: sc.DSN}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	ec := cfg.Engine

	scan, err := config.ParseDurationField("engine.scan_interval", ec.ScanInterval)
	if err != nil {
		return engine.Config{}, err
	}
	reap, err := config.ParseDurationField("engine.reap_interval", ec.ReapInterval)
	if err != nil {
		return engine.Config{}, err
	}
	stale, err := config.ParseDurationField("engine.stale_after", ec.StaleAfter)
	if err != nil {
		return engine.Config{}, err
	}
	horizonInt, err := config.ParseDurationField("engine.horizon_interval", ec.HorizonInterval)
	if err != nil {
		return engine.Config{}, err
	}
	horizon, err := config.ParseDurationField("engine.horizon", ec.Horizon)
	if err != nil {
		return engine.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("engine.send_timeout", ec.SendTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	if ec.BatchSize < 0 {
		return engine.Config{}, fmt.Errorf("engine.batch_size must be >= 0")
	}
	if ec.RetryMax < 0 {
		return engine.Config{}, fmt.Errorf("engine.retry_max must be >= 0")
	}

	return engine.Config{
		Enabled:         ec.Enabled,
		ScanInterval:    scan,
		BatchSize:       ec.BatchSize,
		ReapInterval:    reap,
		StaleAfter:      stale,
		HorizonInterval: horizonInt,
		Horizon:         horizon,
		SendTimeout:     sendTimeout,
		RetryMax:        ec.RetryMax,
	}, nil
}

func mapConvoConfig(cfg *config.Config) (convo.Config, error) {
	cc := cfg.Convo

	ttl, err := config.ParseDurationField("convo.pending_ttl", cc.PendingTTL)
	if err != nil {
		return convo.Config{}, err
	}
	snooze, err := config.ParseDurationField("convo.snooze_default", cc.SnoozeDefault)
	if err != nil {
		return convo.Config{}, err
	}
	if cc.ConfidenceThreshold < 0 || cc.ConfidenceThreshold > 1 {
		return convo.Config{}, fmt.Errorf("convo.confidence_threshold must be in [0,1]")
	}

	return convo.Config{
		PendingTTL:          ttl,
		ConfidenceThreshold: cc.ConfidenceThreshold,
		DefaultTimezone:     cc.DefaultTimezone,
		SnoozeDefault:       snooze,
	}, nil
}

func mapNLUConfig(cfg *config.Config) (nlu.Config, error) {
	timeout, err := config.ParseDurationOrDefault("nlu.timeout", cfg.NLU.Timeout, 5*time.Second)
	if err != nil {
		return nlu.Config{}, err
	}
	return nlu.Config{
		URL:     strings.TrimSpace(cfg.NLU.URL),
		APIKey:  cfg.NLU.APIKey,
		Timeout: timeout,
	}, nil
}

func mapDebugConfig(cfg *config.Config) pprof.Config {
	if cfg.Debug == nil {
		return pprof.Config{}
	}
	return pprof.Config{
		Enabled: cfg.Debug.Enabled,
		Addr:    cfg.Debug.Addr,
		Token:   cfg.Debug.Token,
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{Enabled: true}, nil
	}

	retryBase, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	if nc.Workers < 0 || nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 || nc.DedupMaxEntries < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: counts must be >= 0")
	}

	return notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedup,
		DedupMaxEntries: nc.DedupMaxEntries,
	}, nil
}
