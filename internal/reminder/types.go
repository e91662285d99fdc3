// Package reminder holds the domain model: reminders, recurrence rules,
// pending clarification states, and the pure recurrence expansion.
package reminder

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Reminder is one deliverable occurrence.
//
// DueAt (UTC) is authoritative for scheduling. LocalTime + Timezone record
// the wall-clock basis the user expressed, and must re-derive the same
// instant at creation time; they exist for display and recomputation.
type Reminder struct {
	ID      int64
	OwnerID int64
	ChatID  int64 // chat the request came from; 0 means the owner's direct chat
	Text    string

	DueAt     time.Time // UTC
	LocalTime string    // "15:04" wall clock in Timezone
	Timezone  string    // IANA id

	Status     Status
	ClaimOwner string
	ClaimAt    time.Time // zero unless Status == claimed
	Attempts   int

	RecurrenceID int64 // 0 when one-shot
	ParentID     int64 // occurrence that spawned this one, 0 for the first

	CreatedAt time.Time
}

// Recurring reports whether this occurrence belongs to a recurrence chain.
func (r Reminder) Recurring() bool { return r.RecurrenceID != 0 }

type RecurrenceType string

const (
	RecurDaily    RecurrenceType = "daily"
	RecurWeekly   RecurrenceType = "weekly"
	RecurWeekdays RecurrenceType = "weekdays"
	RecurWeekends RecurrenceType = "weekends"
	RecurMonthly  RecurrenceType = "monthly"
)

// RecurrenceRule describes how a chain advances.
//
// AnchorWeekday applies to weekly rules, AnchorDay (1..31) to monthly ones.
// TimeOfDay and Timezone fix the wall clock each occurrence fires at.
type RecurrenceRule struct {
	ID      int64
	OwnerID int64

	Type          RecurrenceType
	AnchorWeekday time.Weekday
	AnchorDay     int
	TimeOfDay     string // "15:04"
	Timezone      string

	Active    bool
	CreatedAt time.Time
}

type PendingKind string

const (
	PendingNeedsTime          PendingKind = "needs_time"
	PendingNeedsDateTime      PendingKind = "needs_date_time"
	PendingNeedsRecurrenceDay PendingKind = "needs_recurrence_day"
	PendingConfirm            PendingKind = "confirm_low_confidence"
)

// PendingState is an open clarification dialog for one owner.
// At most one exists per owner; a new one supersedes any prior one.
type PendingState struct {
	OwnerID int64
	Kind    PendingKind
	Staged  Staged

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the state should be treated as abandoned.
func (p PendingState) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// Staged is the partial reminder carried across clarification turns.
// It is persisted as JSON alongside the state kind.
type Staged struct {
	Text       string         `json:"text"`
	ChatID     int64          `json:"chat_id,omitempty"` // originating chat, kept across dialog turns
	Date       string         `json:"date,omitempty"`        // "today", "tomorrow", weekday, or "2006-01-02"
	TimeOfDay  string         `json:"time_of_day,omitempty"` // "15:04" local, once unambiguous
	HourOnly   int            `json:"hour_only,omitempty"`   // 1..12 awaiting AM/PM
	MinuteOnly int            `json:"minute_only,omitempty"` // minutes paired with HourOnly
	Recurrence RecurrenceType `json:"recurrence,omitempty"`
	RecurDay   string         `json:"recur_day,omitempty"` // weekday name or day-of-month digits
	Timezone   string         `json:"timezone,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	DueAt      time.Time      `json:"due_at,omitempty"` // set for confirm_low_confidence
}
