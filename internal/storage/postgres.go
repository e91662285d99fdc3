package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reminders (
	id            BIGSERIAL PRIMARY KEY,
	owner_id      BIGINT      NOT NULL,
	chat_id       BIGINT      NOT NULL DEFAULT 0,
	text          TEXT        NOT NULL,
	due_at        TIMESTAMPTZ NOT NULL,
	local_time    TEXT        NOT NULL DEFAULT '',
	timezone      TEXT        NOT NULL DEFAULT 'UTC',
	status        TEXT        NOT NULL DEFAULT 'pending',
	claim_owner   TEXT        NOT NULL DEFAULT '',
	claim_at      TIMESTAMPTZ,
	attempts      INT         NOT NULL DEFAULT 0,
	recurrence_id BIGINT      NOT NULL DEFAULT 0,
	parent_id     BIGINT      NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, due_at);
CREATE INDEX IF NOT EXISTS idx_reminders_owner ON reminders(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_reminders_chain ON reminders(recurrence_id, due_at);

CREATE TABLE IF NOT EXISTS recurrence_rules (
	id             BIGSERIAL PRIMARY KEY,
	owner_id       BIGINT      NOT NULL,
	type           TEXT        NOT NULL,
	anchor_weekday INT         NOT NULL DEFAULT 0,
	anchor_day     INT         NOT NULL DEFAULT 0,
	time_of_day    TEXT        NOT NULL DEFAULT '',
	timezone       TEXT        NOT NULL DEFAULT 'UTC',
	active         BOOLEAN     NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pending_states (
	owner_id   BIGINT PRIMARY KEY,
	kind       TEXT        NOT NULL,
	staged     JSONB       NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dedup (
	key   TEXT PRIMARY KEY,
	until TIMESTAMPTZ NOT NULL
);
`

const pgReminderCols = `id, owner_id, chat_id, text, due_at, local_time, timezone, status, claim_owner, claim_at, attempts, recurrence_id, parent_id, created_at`

type postgresStore struct {
	db  *sql.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &postgresStore{db: db, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- reminders ----

func (s *postgresStore) CreateReminder(ctx context.Context, r reminder.Reminder) (int64, error) {
	if r.Status == "" {
		r.Status = reminder.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO reminders(owner_id, chat_id, text, due_at, local_time, timezone, status, claim_owner, attempts, recurrence_id, parent_id, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING id`,
		r.OwnerID, r.ChatID, r.Text, r.DueAt.UTC(), r.LocalTime, r.Timezone,
		string(r.Status), r.ClaimOwner, r.Attempts, r.RecurrenceID, r.ParentID,
		r.CreatedAt.UTC(),
	).Scan(&id)
	return id, err
}

func (s *postgresStore) GetReminder(ctx context.Context, id int64) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgReminderCols+` FROM reminders WHERE id = $1`, id)
	return scanPGReminder(row)
}

func (s *postgresStore) ListOpenByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgReminderCols+` FROM reminders
		 WHERE owner_id = $1 AND status IN ('pending','claimed')
		 ORDER BY due_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGReminders(rows)
}

func (s *postgresStore) ListDueWindow(ctx context.Context, from, to time.Time) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgReminderCols+` FROM reminders
		 WHERE due_at >= $1 AND due_at < $2
		 ORDER BY due_at ASC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGReminders(rows)
}

func (s *postgresStore) CancelReminder(ctx context.Context, ownerID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'cancelled'
		 WHERE id = $1 AND owner_id = $2 AND status = 'pending'`, id, ownerID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) LastSentByOwner(ctx context.Context, ownerID int64, since time.Time) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgReminderCols+` FROM reminders
		 WHERE owner_id = $1 AND status = 'sent' AND due_at >= $2
		 ORDER BY due_at DESC LIMIT 1`, ownerID, since.UTC())
	return scanPGReminder(row)
}

// ---- claim ledger ----

func (s *postgresStore) ClaimDue(ctx context.Context, claimOwner string, now time.Time, limit int) ([]reminder.Reminder, error) {
	if limit <= 0 {
		return nil, nil
	}
	// SKIP LOCKED partitions due rows across concurrent workers without
	// blocking; a contended row simply falls out of this batch.
	rows, err := s.db.QueryContext(ctx,
		`WITH due AS (
		   SELECT id FROM reminders
		   WHERE status = 'pending' AND due_at <= $2
		   ORDER BY due_at ASC
		   LIMIT $3
		   FOR UPDATE SKIP LOCKED
		 )
		 UPDATE reminders r
		 SET status = 'claimed', claim_owner = $1, claim_at = $2, attempts = r.attempts + 1
		 FROM due
		 WHERE r.id = due.id
		 RETURNING `+pgQualified("r", pgReminderCols),
		claimOwner, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGReminders(rows)
}

func (s *postgresStore) FinalizeSent(ctx context.Context, id int64, claimOwner string, successor *reminder.Reminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE reminders
		 SET status = 'sent', claim_owner = '', claim_at = NULL
		 WHERE id = $1 AND status = 'claimed' AND claim_owner = $2`,
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
			 VALUES($1,$2,$3,$4,$5,$6,$7,'',0,$8,$9,$10)`,
			sc.OwnerID, sc.ChatID, sc.Text, sc.DueAt.UTC(), sc.LocalTime, sc.Timezone,
			string(sc.Status), sc.RecurrenceID, sc.ParentID, sc.CreatedAt.UTC(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *postgresStore) MarkFailed(ctx context.Context, id int64, claimOwner string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders
		 SET status = 'failed', claim_owner = '', claim_at = NULL
		 WHERE id = $1 AND status = 'claimed' AND claim_owner = $2`,
		id, claimOwner)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *postgresStore) ReleaseStale(ctx context.Context, olderThan time.Time, maxAttempts int) (released, failed int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := olderThan.UTC()

	res, err := tx.ExecContext(ctx,
		`UPDATE reminders
		 SET status = 'failed', claim_owner = '', claim_at = NULL
		 WHERE status = 'claimed' AND claim_at < $1 AND attempts >= $2`,
		cutoff, maxAttempts)
	if err != nil {
		return 0, 0, err
	}
	nf, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`UPDATE reminders
		 SET status = 'pending', claim_owner = '', claim_at = NULL
		 WHERE status = 'claimed' AND claim_at < $1`,
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

func (s *postgresStore) CreateRule(ctx context.Context, rule reminder.RecurrenceRule) (int64, error) {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO recurrence_rules(owner_id, type, anchor_weekday, anchor_day, time_of_day, timezone, active, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING id`,
		rule.OwnerID, string(rule.Type), int(rule.AnchorWeekday), rule.AnchorDay,
		rule.TimeOfDay, rule.Timezone, rule.Active, rule.CreatedAt.UTC(),
	).Scan(&id)
	return id, err
}

func (s *postgresStore) GetRule(ctx context.Context, id int64) (reminder.RecurrenceRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, type, anchor_weekday, anchor_day, time_of_day, timezone, active, created_at
		 FROM recurrence_rules WHERE id = $1`, id)
	return scanPGRule(row)
}

func (s *postgresStore) DeactivateRule(ctx context.Context, ownerID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurrence_rules SET active = FALSE WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) RulesMissingOccurrence(ctx context.Context) ([]reminder.RecurrenceRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.owner_id, r.type, r.anchor_weekday, r.anchor_day, r.time_of_day, r.timezone, r.active, r.created_at
		 FROM recurrence_rules r
		 WHERE r.active
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
		r, err := scanPGRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresStore) LastOccurrence(ctx context.Context, ruleID int64) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgReminderCols+` FROM reminders
		 WHERE recurrence_id = $1
		 ORDER BY due_at DESC LIMIT 1`, ruleID)
	return scanPGReminder(row)
}

// ---- pending conversation state ----

func (s *postgresStore) PutPending(ctx context.Context, st reminder.PendingState) error {
	staged, err := json.Marshal(st.Staged)
	if err != nil {
		return err
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_states(owner_id, kind, staged, created_at, expires_at)
		 VALUES($1,$2,$3,$4,$5)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   kind = EXCLUDED.kind,
		   staged = EXCLUDED.staged,
		   created_at = EXCLUDED.created_at,
		   expires_at = EXCLUDED.expires_at`,
		st.OwnerID, string(st.Kind), string(staged),
		st.CreatedAt.UTC(), st.ExpiresAt.UTC(),
	)
	return err
}

func (s *postgresStore) GetPending(ctx context.Context, ownerID int64) (reminder.PendingState, bool, error) {
	var (
		st     reminder.PendingState
		kind   string
		staged []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, staged, created_at, expires_at FROM pending_states WHERE owner_id = $1`,
		ownerID).Scan(&kind, &staged, &st.CreatedAt, &st.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.PendingState{}, false, nil
	}
	if err != nil {
		return reminder.PendingState{}, false, err
	}
	st.OwnerID = ownerID
	st.Kind = reminder.PendingKind(kind)
	st.CreatedAt = st.CreatedAt.UTC()
	st.ExpiresAt = st.ExpiresAt.UTC()
	if err := json.Unmarshal(staged, &st.Staged); err != nil {
		return reminder.PendingState{}, false, fmt.Errorf("pending staged payload: %w", err)
	}
	return st, true, nil
}

func (s *postgresStore) ClearPending(ctx context.Context, ownerID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_states WHERE owner_id = $1`, ownerID)
	return err
}

func (s *postgresStore) PurgeExpiredPending(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_states WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- dedup ----

func (s *postgresStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES($1,$2)
		 ON CONFLICT(key) DO UPDATE SET until = EXCLUDED.until`,
		key, until.UTC())
	return err
}

func (s *postgresStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var until time.Time
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = $1`, key).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return until.UTC(), true, nil
}

// ---- scanning helpers ----

func scanPGReminder(row rowScanner) (reminder.Reminder, error) {
	var (
		r       reminder.Reminder
		status  string
		claimAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.ChatID, &r.Text, &r.DueAt, &r.LocalTime, &r.Timezone,
		&status, &r.ClaimOwner, &claimAt, &r.Attempts, &r.RecurrenceID, &r.ParentID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, ErrNotFound
	}
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.Status = reminder.Status(status)
	r.DueAt = r.DueAt.UTC()
	if claimAt.Valid {
		r.ClaimAt = claimAt.Time.UTC()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func collectPGReminders(rows *sql.Rows) ([]reminder.Reminder, error) {
	var out []reminder.Reminder
	for rows.Next() {
		r, err := scanPGReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanPGRule(row rowScanner) (reminder.RecurrenceRule, error) {
	var (
		r       reminder.RecurrenceRule
		typ     string
		weekday int
	)
	err := row.Scan(&r.ID, &r.OwnerID, &typ, &weekday, &r.AnchorDay,
		&r.TimeOfDay, &r.Timezone, &r.Active, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.RecurrenceRule{}, ErrNotFound
	}
	if err != nil {
		return reminder.RecurrenceRule{}, err
	}
	r.Type = reminder.RecurrenceType(typ)
	r.AnchorWeekday = time.Weekday(weekday)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// pgQualified prefixes each column in a comma list with the given alias.
func pgQualified(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
