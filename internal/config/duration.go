package config

import (
	"fmt"
	"strings"
	"time"
)

// Cadences and TTLs arrive from the file as strings ("90s", "30m", "24h").

// ParseDurationField parses one such field. Empty means unset and maps to
// zero; the owning component substitutes its own default. Negative values
// are rejected, a sweep cannot run every -5m.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with the default applied
// here rather than by the component.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
