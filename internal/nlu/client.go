// Package nlu extracts reminder intents from free-form utterances by calling
// an external interpretation endpoint. Callers treat results as untrusted
// guesses: the confidence score decides whether a parse is acted on directly
// or routed through a confirmation prompt.
package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Intent names the action an utterance asks for.
type Intent string

const (
	IntentCreate  Intent = "create_reminder"
	IntentList    Intent = "list_reminders"
	IntentCancel  Intent = "cancel_reminder"
	IntentSnooze  Intent = "snooze"
	IntentUnknown Intent = "unknown"
)

// Result is one interpretation of an utterance. Slot fields are empty when
// the utterance did not carry them; the conversation layer decides which
// missing slots to ask for.
type Result struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`

	// Slots for create_reminder.
	Text        string `json:"text,omitempty"`         // what to be reminded of
	Date        string `json:"date,omitempty"`         // "2026-01-08", "today", "tomorrow"
	TimeOfDay   string `json:"time_of_day,omitempty"`  // "15:04" (24h) when unambiguous
	HourOnly    int    `json:"hour_only,omitempty"`    // bare hour with no meridiem, 1..12
	Recurrence  string `json:"recurrence,omitempty"`   // daily/weekly/weekdays/weekends/monthly
	RecurDay    string `json:"recur_day,omitempty"`    // weekday or day-of-month for recurring
	Timezone    string `json:"timezone,omitempty"`     // IANA id or colloquial zone name
	SnoozeMin   int    `json:"snooze_minutes,omitempty"`
	TargetIndex int    `json:"target_index,omitempty"` // 1-based, for cancel
}

// Interpreter turns an owner's utterance into a structured Result.
type Interpreter interface {
	Interpret(ctx context.Context, ownerID int64, utterance string) (Result, error)
}

// Config configures the HTTP client.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

var ErrUnavailable = errors.New("nlu: endpoint not configured")

// Client calls a JSON parse endpoint. One POST per utterance; the endpoint
// answers with a Result body.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Configured reports whether an endpoint URL is set.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.cfg.URL) != ""
}

func (c *Client) Interpret(ctx context.Context, ownerID int64, utterance string) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrUnavailable
	}

	payload, err := json.Marshal(struct {
		OwnerID   int64  `json:"owner_id"`
		Utterance string `json:"utterance"`
	}{OwnerID: ownerID, Utterance: utterance})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("nlu request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("nlu response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("nlu endpoint error",
			logx.Int("status", resp.StatusCode),
			logx.Int("body_len", len(body)))
		return Result{}, fmt.Errorf("nlu status %d", resp.StatusCode)
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, fmt.Errorf("nlu decode: %w", err)
	}
	if out.Intent == "" {
		out.Intent = IntentUnknown
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}
