package config

import (
	"reflect"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like the bot
// token or the NLU api key).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.token_changed", strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token)),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage (restart required; never log the DSN, it can embed credentials)
	if strings.TrimSpace(oldCfg.Storage.Driver) != strings.TrimSpace(newCfg.Storage.Driver) ||
		strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.DSN) != strings.TrimSpace(newCfg.Storage.DSN) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)))
	}

	// Engine
	if oldCfg.Engine != newCfg.Engine {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Bool("engine.enabled", newCfg.Engine.Enabled),
			logx.String("engine.scan_interval", newCfg.Engine.ScanInterval),
			logx.String("engine.stale_after", newCfg.Engine.StaleAfter),
			logx.Int("engine.retry_max", newCfg.Engine.RetryMax),
		)
	}

	// Convo
	if oldCfg.Convo != newCfg.Convo {
		changed = append(changed, "convo")
		attrs = append(attrs,
			logx.String("convo.pending_ttl", newCfg.Convo.PendingTTL),
			logx.String("convo.default_timezone", newCfg.Convo.DefaultTimezone),
		)
	}

	// NLU (never log api key)
	if strings.TrimSpace(oldCfg.NLU.URL) != strings.TrimSpace(newCfg.NLU.URL) ||
		strings.TrimSpace(oldCfg.NLU.Timeout) != strings.TrimSpace(newCfg.NLU.Timeout) ||
		(strings.TrimSpace(oldCfg.NLU.APIKey) != "") != (strings.TrimSpace(newCfg.NLU.APIKey) != "") {
		changed = append(changed, "nlu")
		attrs = append(attrs,
			logx.String("nlu.url", strings.TrimSpace(newCfg.NLU.URL)),
			logx.Bool("nlu.api_key_set", strings.TrimSpace(newCfg.NLU.APIKey) != ""),
		)
	}

	// Notifier
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if (oldN == nil) != (newN == nil) || (oldN != nil && newN != nil && *oldN != *newN) {
		changed = append(changed, "notifier")
		if newN != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", newN.Enabled),
				logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			)
		}
	}

	// Debug (never log the token)
	oldD, newD := oldCfg.Debug, newCfg.Debug
	if (oldD == nil) != (newD == nil) || (oldD != nil && newD != nil && *oldD != *newD) {
		changed = append(changed, "debug")
		if newD != nil {
			attrs = append(attrs,
				logx.Bool("debug.enabled", newD.Enabled),
				logx.String("debug.addr", newD.Addr),
			)
		}
	}

	return changed, attrs
}
