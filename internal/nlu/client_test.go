package nlu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "remindbot/pkg/logx"
)

func TestInterpretRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		var in struct {
			OwnerID   int64  `json:"owner_id"`
			Utterance string `json:"utterance"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if in.OwnerID != 42 || in.Utterance != "remind me at 4 to call mom" {
			t.Errorf("request = %+v", in)
		}
		_ = json.NewEncoder(w).Encode(Result{
			Intent:     IntentCreate,
			Confidence: 0.92,
			Text:       "call mom",
			HourOnly:   4,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, APIKey: "sk-test"}, logx.Nop())
	got, err := c.Interpret(context.Background(), 42, "remind me at 4 to call mom")
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if got.Intent != IntentCreate || got.Text != "call mom" || got.HourOnly != 4 {
		t.Fatalf("result = %+v", got)
	}
}

func TestInterpretServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, logx.Nop())
	if _, err := c.Interpret(context.Background(), 1, "hi"); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestInterpretUnconfigured(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{}, logx.Nop())
	if c.Configured() {
		t.Fatal("empty URL reported configured")
	}
	if _, err := c.Interpret(context.Background(), 1, "hi"); err == nil {
		t.Fatal("expected ErrUnavailable")
	}
}

func TestInterpretClampsConfidence(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"intent":"create_reminder","confidence":1.7}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, logx.Nop())
	got, err := c.Interpret(context.Background(), 1, "x")
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if got.Confidence != 1 {
		t.Fatalf("confidence = %v, want clamped to 1", got.Confidence)
	}
}
