package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Timestamps are stored as Unix milliseconds. Claims rely on conditional
// UPDATE ... WHERE status='pending', which SQLite executes atomically; with a
// single writer connection this gives the same partition guarantee that
// postgres gets from FOR UPDATE SKIP LOCKED, for one process.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reminders (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id      INTEGER NOT NULL,
	chat_id       INTEGER NOT NULL DEFAULT 0,
	text          TEXT    NOT NULL,
	due_at        INTEGER NOT NULL,
	local_time    TEXT    NOT NULL DEFAULT '',
	timezone      TEXT    NOT NULL DEFAULT 'UTC',
	status        TEXT    NOT NULL DEFAULT 'pending',
	claim_owner   TEXT    NOT NULL DEFAULT '',
	claim_at      INTEGER,
	attempts      INTEGER NOT NULL DEFAULT 0,
	recurrence_id INTEGER NOT NULL DEFAULT 0,
	parent_id     INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, due_at);
CREATE INDEX IF NOT EXISTS idx_reminders_owner ON reminders(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_reminders_chain ON reminders(recurrence_id, due_at);

CREATE TABLE IF NOT EXISTS recurrence_rules (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id       INTEGER NOT NULL,
	type           TEXT    NOT NULL,
	anchor_weekday INTEGER NOT NULL DEFAULT 0,
	anchor_day     INTEGER NOT NULL DEFAULT 0,
	time_of_day    TEXT    NOT NULL DEFAULT '',
	timezone       TEXT    NOT NULL DEFAULT 'UTC',
	active         INTEGER NOT NULL DEFAULT 1,
	created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_states (
	owner_id   INTEGER PRIMARY KEY,
	kind       TEXT    NOT NULL,
	staged     TEXT    NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dedup (
	key   TEXT PRIMARY KEY,
	until INTEGER NOT NULL
);
`

const sqliteReminderCols = `id, owner_id, chat_id, text, due_at, local_time, timezone, status, claim_owner, claim_at, attempts, recurrence_id, parent_id, created_at`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- reminders ----

func (s *sqliteStore) CreateReminder(ctx context.Context, r reminder.Reminder) (int64, error) {
	if r.Status == "" {
		r.Status = reminder.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(owner_id, chat_id, text, due_at, local_time, timezone, status, claim_owner, attempts, recurrence_id, parent_id, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.OwnerID, r.ChatID, r.Text, r.DueAt.UnixMilli(), r.LocalTime, r.Timezone,
		string(r.Status), r.ClaimOwner, r.Attempts, r.RecurrenceID, r.ParentID,
		r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetReminder(ctx context.Context, id int64) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteReminderCols+` FROM reminders WHERE id = ?`, id)
	return scanSQLiteReminder(row)
}

func (s *sqliteStore) ListOpenByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteReminderCols+` FROM reminders
		 WHERE owner_id = ? AND status IN ('pending','claimed')
		 ORDER BY due_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteReminders(rows)
}

func (s *sqliteStore) ListDueWindow(ctx context.Context, from, to time.Time) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteReminderCols+` FROM reminders
		 WHERE due_at >= ? AND due_at < ?
		 ORDER BY due_at ASC`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteReminders(rows)
}

func (s *sqliteStore) CancelReminder(ctx context.Context, ownerID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'cancelled'
		 WHERE id = ? AND owner_id = ? AND status = 'pending'`, id, ownerID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) LastSentByOwner(ctx context.Context, ownerID int64, since time.Time) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteReminderCols+` FROM reminders
		 WHERE owner_id = ? AND status = 'sent' AND due_at >= ?
		 ORDER BY due_at DESC LIMIT 1`, ownerID, since.UnixMilli())
	return scanSQLiteReminder(row)
}

// ---- claim ledger ----

func (s *sqliteStore) ClaimDue(ctx context.Context, claimOwner string, now time.Time, limit int) ([]reminder.Reminder, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM reminders
		 WHERE status = 'pending' AND due_at <= ?
		 ORDER BY due_at ASC LIMIT ?`, now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	claimedAt := now.UnixMilli()
	var claimed []int64
	for _, id := range ids {
		// The status guard makes the claim conditional; a row claimed by a
		// concurrent transaction is skipped, not waited on.
		res, err := tx.ExecContext(ctx,
			`UPDATE reminders
			 SET status = 'claimed', claim_owner = ?, claim_at = ?, attempts = attempts + 1
			 WHERE id = ? AND status = 'pending'`,
			claimOwner, claimedAt, id)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			claimed = append(claimed, id)
		}
	}

	out := make([]reminder.Reminder, 0, len(claimed))
	for _, id := range claimed {
		row := tx.QueryRowContext(ctx,
			`SELECT `+sqliteReminderCols+` FROM reminders WHERE id = ?`, id)
		r, err := scanSQLiteReminder(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteStore) FinalizeSent(ctx context.Context, id int64, claimOwner string, successor *reminder.Reminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE reminders
		 SET status = 'sent', claim_owner = '', claim_at = NULL
		 WHERE id = ? AND status = 'claimed' AND claim_owner = ?`,
		id, claimOwner)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotClaimed
	}

	if successor != nil {
		sc := *successor
		if sc.Status == "" {
			sc.Status = reminder.StatusPending
		}
		if sc.CreatedAt.IsZero() {
			sc.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reminders(owner_id, chat_id, text, due_at, local_time, timezone, status, claim_owner, attempts, recurrence_id, parent_id, created_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
			sc.OwnerID, sc.ChatID, sc.Text, sc.DueAt.UnixMilli(), sc.LocalTime, sc.Timezone,
			string(sc.Status), "", 0, sc.RecurrenceID, sc.ParentID,
			sc.CreatedAt.UnixMilli(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) MarkFailed(ctx context.Context, id int64, claimOwner string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders
		 SET status = 'failed', claim_owner = '', claim_at = NULL
		 WHERE id = ? AND status = 'claimed' AND claim_owner = ?`,
		id, claimOwner)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *sqliteStore) ReleaseStale(ctx context.Context, olderThan time.Time, maxAttempts int) (released, failed int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := olderThan.UnixMilli()

	res, err := tx.ExecContext(ctx,
		`UPDATE reminders
		 SET status = 'failed', claim_owner = '', claim_at = NULL
		 WHERE status = 'claimed' AND claim_at < ? AND attempts >= ?`,
		cutoff, maxAttempts)
	if err != nil {
		return 0, 0, err
	}
	nf, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`UPDATE reminders
		 SET status = 'pending', claim_owner = '', claim_at = NULL
		 WHERE status = 'claimed' AND claim_at < ?`,
		cutoff)
	if err != nil {
		return 0, 0, err
	}
	nr, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return int(nr), int(nf), nil
}

// ---- recurrence rules ----

func (s *sqliteStore) CreateRule(ctx context.Context, rule reminder.RecurrenceRule) (int64, error) {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recurrence_rules(owner_id, type, anchor_weekday, anchor_day, time_of_day, timezone, active, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		rule.OwnerID, string(rule.Type), int(rule.AnchorWeekday), rule.AnchorDay,
		rule.TimeOfDay, rule.Timezone, boolToInt(rule.Active), rule.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetRule(ctx context.Context, id int64) (reminder.RecurrenceRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, type, anchor_weekday, anchor_day, time_of_day, timezone, active, created_at
		 FROM recurrence_rules WHERE id = ?`, id)
	return scanSQLiteRule(row)
}

func (s *sqliteStore) DeactivateRule(ctx context.Context, ownerID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurrence_rules SET active = 0 WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) RulesMissingOccurrence(ctx context.Context) ([]reminder.RecurrenceRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.owner_id, r.type, r.anchor_weekday, r.anchor_day, r.time_of_day, r.timezone, r.active, r.created_at
		 FROM recurrence_rules r
		 WHERE r.active = 1
		   AND NOT EXISTS (
		     SELECT 1 FROM reminders m
		     WHERE m.recurrence_id = r.id AND m.status IN ('pending','claimed')
		   )`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.RecurrenceRule
	for rows.Next() {
		r, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) LastOccurrence(ctx context.Context, ruleID int64) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteReminderCols+` FROM reminders
		 WHERE recurrence_id = ?
		 ORDER BY due_at DESC LIMIT 1`, ruleID)
	return scanSQLiteReminder(row)
}

// ---- pending conversation state ----

func (s *sqliteStore) PutPending(ctx context.Context, st reminder.PendingState) error {
	staged, err := json.Marshal(st.Staged)
	if err != nil {
		return err
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_states(owner_id, kind, staged, created_at, expires_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   kind = excluded.kind,
		   staged = excluded.staged,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		st.OwnerID, string(st.Kind), string(staged),
		st.CreatedAt.UnixMilli(), st.ExpiresAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetPending(ctx context.Context, ownerID int64) (reminder.PendingState, bool, error) {
	var (
		st         reminder.PendingState
		kind       string
		staged     string
		createdMS  int64
		expiresMS  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, staged, created_at, expires_at FROM pending_states WHERE owner_id = ?`,
		ownerID).Scan(&kind, &staged, &createdMS, &expiresMS)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.PendingState{}, false, nil
	}
	if err != nil {
		return reminder.PendingState{}, false, err
	}
	st.OwnerID = ownerID
	st.Kind = reminder.PendingKind(kind)
	st.CreatedAt = time.UnixMilli(createdMS).UTC()
	st.ExpiresAt = time.UnixMilli(expiresMS).UTC()
	if err := json.Unmarshal([]byte(staged), &st.Staged); err != nil {
		return reminder.PendingState{}, false, fmt.Errorf("pending staged payload: %w", err)
	}
	return st, true, nil
}

func (s *sqliteStore) ClearPending(ctx context.Context, ownerID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_states WHERE owner_id = ?`, ownerID)
	return err
}

func (s *sqliteStore) PurgeExpiredPending(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_states WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- dedup ----

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until = excluded.until`,
		key, until.UnixMilli())
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteReminder(row rowScanner) (reminder.Reminder, error) {
	var (
		r       reminder.Reminder
		status  string
		dueMS   int64
		claimMS sql.NullInt64
		createdMS int64
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.ChatID, &r.Text, &dueMS, &r.LocalTime, &r.Timezone,
		&status, &r.ClaimOwner, &claimMS, &r.Attempts, &r.RecurrenceID, &r.ParentID, &createdMS)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, ErrNotFound
	}
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.Status = reminder.Status(status)
	r.DueAt = time.UnixMilli(dueMS).UTC()
	if claimMS.Valid {
		r.ClaimAt = time.UnixMilli(claimMS.Int64).UTC()
	}
	r.CreatedAt = time.UnixMilli(createdMS).UTC()
	return r, nil
}

func collectSQLiteReminders(rows *sql.Rows) ([]reminder.Reminder, error) {
	var out []reminder.Reminder
	for rows.Next() {
		r, err := scanSQLiteReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSQLiteRule(row rowScanner) (reminder.RecurrenceRule, error) {
	var (
		r         reminder.RecurrenceRule
		typ       string
		weekday   int
		active    int
		createdMS int64
	)
	err := row.Scan(&r.ID, &r.OwnerID, &typ, &weekday, &r.AnchorDay,
		&r.TimeOfDay, &r.Timezone, &active, &createdMS)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.RecurrenceRule{}, ErrNotFound
	}
	if err != nil {
		return reminder.RecurrenceRule{}, err
	}
	r.Type = reminder.RecurrenceType(typ)
	r.AnchorWeekday = time.Weekday(weekday)
	r.Active = active != 0
	r.CreatedAt = time.UnixMilli(createdMS).UTC()
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
