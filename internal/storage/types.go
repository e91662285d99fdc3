package storage

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/reminder"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (single-node mode)
//   - "postgres": PostgreSQL via DSN (multi-process mode)
type Config struct {
	Driver      string
	Path        string        // sqlite file path
	DSN         string        // postgres connection string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrNotClaimed is returned when a finalize/fail transition finds the row
	// no longer claimed by the given worker (reaped, or finalized elsewhere).
	ErrNotClaimed = errors.New("storage: reminder not claimed by this worker")
)

// Store is the persistence and coordination substrate.
//
// ClaimDue and FinalizeSent carry the two correctness-critical transitions:
// claims are atomic pending->claimed updates that never block on contended
// rows, and FinalizeSent commits claimed->sent plus the recurrence successor
// in one transaction while the claim is still held.
type Store interface {
	// Reminders.
	CreateReminder(ctx context.Context, r reminder.Reminder) (int64, error)
	GetReminder(ctx context.Context, id int64) (reminder.Reminder, error)
	// ListOpenByOwner returns pending and claimed rows ordered by due time.
	ListOpenByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error)
	// ListDueWindow returns rows of any status with due_at in [from, to).
	ListDueWindow(ctx context.Context, from, to time.Time) ([]reminder.Reminder, error)
	// CancelReminder cancels an owner's pending reminder.
	CancelReminder(ctx context.Context, ownerID, id int64) error
	// LastSentByOwner returns the most recently sent reminder since the given
	// instant (snooze replies attach to it).
	LastSentByOwner(ctx context.Context, ownerID int64, since time.Time) (reminder.Reminder, error)

	// Claim ledger.
	//
	// ClaimDue atomically claims up to limit due pending rows for claimOwner,
	// bumping their attempt counter. Rows locked by another worker are
	// skipped, never waited on.
	ClaimDue(ctx context.Context, claimOwner string, now time.Time, limit int) ([]reminder.Reminder, error)
	// FinalizeSent commits claimed->sent and, when successor is non-nil,
	// inserts the next pending occurrence in the same transaction.
	FinalizeSent(ctx context.Context, id int64, claimOwner string, successor *reminder.Reminder) error
	// MarkFailed commits claimed->failed (terminal).
	MarkFailed(ctx context.Context, id int64, claimOwner string) error
	// ReleaseStale resets claimed rows with claim_at older than olderThan:
	// back to pending while attempts < maxAttempts, to failed otherwise.
	ReleaseStale(ctx context.Context, olderThan time.Time, maxAttempts int) (released, failed int, err error)

	// Recurrence rules.
	CreateRule(ctx context.Context, rule reminder.RecurrenceRule) (int64, error)
	GetRule(ctx context.Context, id int64) (reminder.RecurrenceRule, error)
	DeactivateRule(ctx context.Context, ownerID, id int64) error
	// RulesMissingOccurrence returns active rules whose chain has no open
	// (pending or claimed) occurrence. The horizon sweep decides whether the
	// computed next occurrence is near enough to materialize.
	RulesMissingOccurrence(ctx context.Context) ([]reminder.RecurrenceRule, error)
	// LastOccurrence returns the chain's latest row by due time, any status.
	LastOccurrence(ctx context.Context, ruleID int64) (reminder.Reminder, error)

	// Pending conversation state (one per owner; Put supersedes).
	PutPending(ctx context.Context, st reminder.PendingState) error
	GetPending(ctx context.Context, ownerID int64) (reminder.PendingState, bool, error)
	ClearPending(ctx context.Context, ownerID int64) error
	PurgeExpiredPending(ctx context.Context, now time.Time) (int, error)

	// Delivery dedup keys.
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}
