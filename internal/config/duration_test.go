package config

import (
	"testing"
	"time"
)

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("engine.scan_interval", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("engine.scan_interval", ""); err != nil || d != 0 {
		t.Fatalf("unset field: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("convo.pending_ttl", "half an hour"); err == nil {
		t.Fatal("malformed duration accepted")
	}
	if _, err := ParseDurationField("engine.reap_interval", "-5m"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("nlu.timeout", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("nlu.timeout", "2s", 5*time.Second); err != nil || d != 2*time.Second {
		t.Fatalf("explicit value lost: %v, %v", d, err)
	}
}
