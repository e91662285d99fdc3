package convo

import (
	"testing"
	"time"
)

func TestParseClockTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in        string
		hour, min int
		ambiguous bool
		ok        bool
	}{
		{in: "4", hour: 4, ambiguous: true, ok: true},
		{in: "at 4", hour: 4, ambiguous: true, ok: true},
		{in: "4:30", hour: 4, min: 30, ambiguous: true, ok: true},
		{in: "4pm", hour: 16, ok: true},
		{in: "4 p.m.", hour: 16, ok: true},
		{in: "12am", hour: 0, ok: true},
		{in: "12pm", hour: 12, ok: true},
		{in: "16:45", hour: 16, min: 45, ok: true},
		{in: "06:45", hour: 6, min: 45, ok: true},
		{in: "0:30", hour: 0, min: 30, ok: true},
		{in: "noon", hour: 12, ok: true},
		{in: "midnight", hour: 0, ok: true},
		{in: "25:00", ok: false},
		{in: "4:75", ok: false},
		{in: "13pm", ok: false},
		{in: "soonish", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			ct, ok := parseClockTime(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if ct.ambiguous() != tt.ambiguous {
				t.Fatalf("ambiguous = %v, want %v", ct.ambiguous(), tt.ambiguous)
			}
			if tt.ambiguous {
				if ct.Hour != tt.hour || ct.Minute != tt.min {
					t.Fatalf("got %d:%02d, want %d:%02d", ct.Hour, ct.Minute, tt.hour, tt.min)
				}
				return
			}
			h, m := ct.resolved()
			if h != tt.hour || m != tt.min {
				t.Fatalf("resolved = %d:%02d, want %d:%02d", h, m, tt.hour, tt.min)
			}
		})
	}
}

func TestParseMeridiem(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"am": "am", "AM": "am", "a.m.": "am", "a": "am",
		"pm": "pm", "PM": "pm", "p.m.": "pm", "p": "pm",
	} {
		got, ok := parseMeridiem(in)
		if !ok || got != want {
			t.Fatalf("parseMeridiem(%q) = %q %v", in, got, ok)
		}
	}
	for _, in := range []string{"maybe", "ampm", "4pm", ""} {
		if _, ok := parseMeridiem(in); ok {
			t.Fatalf("parseMeridiem(%q) unexpectedly ok", in)
		}
	}
}

func TestCancelAndCommandDetection(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"cancel", "Nevermind", "never mind", "skip", "forget it", "no thanks", "undo"} {
		if !isCancel(in) {
			t.Fatalf("isCancel(%q) = false", in)
		}
	}
	if isCancel("cancel my 3pm meeting reminder") {
		t.Fatal("partial match must not count as cancel")
	}

	for _, in := range []string{
		"remind me to stretch", "set a timer", "alarm for 6", "/list",
		"show my lists", "list my reminders", "cancel the second one", "snooze",
	} {
		if !isNewCommand(in) {
			t.Fatalf("isNewCommand(%q) = false", in)
		}
	}
	for _, in := range []string{"friday", "the 15th", "4:30 pm", "yes"} {
		if isNewCommand(in) {
			t.Fatalf("slot answer %q flagged as new command", in)
		}
	}
}

func TestParseWhen(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		date    string
		hour    int
		min     int
		ambig   bool
		ok      bool
	}{
		{in: "tomorrow at 9am", date: "tomorrow", hour: 9, ok: true},
		{in: "monday 4:30 pm", date: "monday", hour: 16, min: 30, ok: true},
		{in: "2026-01-08 at 7", date: "2026-01-08", hour: 7, ambig: true, ok: true},
		{in: "at 4:30 pm", hour: 16, min: 30, ok: true},
		{in: "9am", hour: 9, ok: true},
		{in: "tomorrow", ok: false},
		{in: "whenever", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			date, ct, ok := parseWhen(tt.in, time.UTC)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if date != tt.date {
				t.Fatalf("date = %q, want %q", date, tt.date)
			}
			if ct.ambiguous() != tt.ambig {
				t.Fatalf("ambiguous = %v", ct.ambiguous())
			}
			if !tt.ambig {
				h, m := ct.resolved()
				if h != tt.hour || m != tt.min {
					t.Fatalf("time = %d:%02d, want %d:%02d", h, m, tt.hour, tt.min)
				}
			} else if ct.Hour != tt.hour {
				t.Fatalf("hour = %d, want %d", ct.Hour, tt.hour)
			}
		})
	}
}

func TestParseSnooze(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		minutes int
		ok      bool
	}{
		{in: "snooze", minutes: 0, ok: true},
		{in: "SNOOZE", minutes: 0, ok: true},
		{in: "snooze 20", minutes: 20, ok: true},
		{in: "snooze for 45 minutes", minutes: 45, ok: true},
		{in: "snooze 15m", minutes: 15, ok: true},
		{in: "snooze forever", ok: false},
		{in: "snoozed", ok: false},
	}
	for _, tt := range tests {
		got, ok := parseSnooze(tt.in)
		if ok != tt.ok || got != tt.minutes {
			t.Fatalf("parseSnooze(%q) = %d %v, want %d %v", tt.in, got, ok, tt.minutes, tt.ok)
		}
	}
}

func TestParseDayOfMonth(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]int{
		"15": 15, "the 31st": 31, "1st": 1, "2nd": 2, "3rd": 3, "22nd": 22,
	} {
		got, ok := parseDayOfMonth(in)
		if !ok || got != want {
			t.Fatalf("parseDayOfMonth(%q) = %d %v", in, got, ok)
		}
	}
	for _, in := range []string{"0", "32", "the", "first"} {
		if _, ok := parseDayOfMonth(in); ok {
			t.Fatalf("parseDayOfMonth(%q) unexpectedly ok", in)
		}
	}
}
