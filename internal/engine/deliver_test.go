package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/tz"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeSender struct {
	fail  bool
	sent  []string
	chats []int64
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.fail {
		return kit.MessageRef{}, errors.New("telegram unreachable")
	}
	f.sent = append(f.sent, text)
	f.chats = append(f.chats, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

// fakeStore scripts only the Store methods the engine touches.
type fakeStore struct {
	storage.Store // panics on anything not scripted below

	claimable []reminder.Reminder

	// When set, ClaimDue signals claimEntered and parks until claimRelease
	// closes, so tests can hold a sweep in flight.
	claimEntered chan struct{}
	claimRelease chan struct{}

	rules map[int64]reminder.RecurrenceRule
	last  map[int64]reminder.Reminder

	dedupHits map[string]time.Time

	finalized   []int64
	successors  []*reminder.Reminder
	failedIDs   []int64
	created     []reminder.Reminder
	dedupWrites []string

	releaseCutoff time.Time
	releaseMaxAtt int
	released      int
	reapFailed    int
	purged        int
	purgeCalls    int

	finalizeErr error
}

func (f *fakeStore) ClaimDue(ctx context.Context, owner string, now time.Time, limit int) ([]reminder.Reminder, error) {
	if f.claimRelease != nil {
		select {
		case f.claimEntered <- struct{}{}:
		default:
		}
		<-f.claimRelease
		return nil, nil
	}
	out := f.claimable
	f.claimable = nil
	return out, nil
}

func (f *fakeStore) FinalizeSent(ctx context.Context, id int64, owner string, succ *reminder.Reminder) error {
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	f.finalized = append(f.finalized, id)
	f.successors = append(f.successors, succ)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id int64, owner string) error {
	f.failedIDs = append(f.failedIDs, id)
	return nil
}

func (f *fakeStore) ReleaseStale(ctx context.Context, olderThan time.Time, maxAttempts int) (int, int, error) {
	f.releaseCutoff = olderThan
	f.releaseMaxAtt = maxAttempts
	return f.released, f.reapFailed, nil
}

func (f *fakeStore) PurgeExpiredPending(ctx context.Context, now time.Time) (int, error) {
	f.purgeCalls++
	return f.purged, nil
}

func (f *fakeStore) GetRule(ctx context.Context, id int64) (reminder.RecurrenceRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return reminder.RecurrenceRule{}, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) RulesMissingOccurrence(ctx context.Context) ([]reminder.RecurrenceRule, error) {
	var out []reminder.RecurrenceRule
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) LastOccurrence(ctx context.Context, ruleID int64) (reminder.Reminder, error) {
	r, ok := f.last[ruleID]
	if !ok {
		return reminder.Reminder{}, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) CreateReminder(ctx context.Context, r reminder.Reminder) (int64, error) {
	f.created = append(f.created, r)
	return int64(len(f.created)), nil
}

func (f *fakeStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	until, ok := f.dedupHits[key]
	return until, ok, nil
}

func (f *fakeStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	f.dedupWrites = append(f.dedupWrites, key)
	return nil
}

func newTestEngine(t *testing.T, st *fakeStore, send Sender, cfg Config) *Service {
	t.Helper()
	cfg.Enabled = true
	return New(cfg, st, send, tz.NewResolver("UTC"), eventbus.New(), logx.Nop())
}

func TestScanDeliversAndFinalizes(t *testing.T) {
	t.Parallel()
	st := &fakeStore{
		claimable: []reminder.Reminder{{
			ID: 11, OwnerID: 42, Text: "call mom",
			DueAt:    time.Now().UTC().Add(-time.Minute),
			Timezone: "UTC", Status: reminder.StatusClaimed, Attempts: 1,
		}},
	}
	snd := &fakeSender{}
	e := newTestEngine(t, st, snd, Config{})

	e.scan(context.Background())

	if len(snd.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(snd.sent))
	}
	if !strings.Contains(snd.sent[0], "call mom") || !strings.Contains(snd.sent[0], "SNOOZE") {
		t.Fatalf("message = %q", snd.sent[0])
	}
	if snd.chats[0] != 42 {
		t.Fatalf("sent to chat %d, want 42", snd.chats[0])
	}
	if len(st.finalized) != 1 || st.finalized[0] != 11 {
		t.Fatalf("finalized = %v", st.finalized)
	}
	if st.successors[0] != nil {
		t.Fatalf("one-shot reminder spawned a successor: %+v", st.successors[0])
	}
	if len(st.dedupWrites) != 1 {
		t.Fatalf("dedup writes = %v", st.dedupWrites)
	}
}

func TestDeliverTargetsOriginatingChat(t *testing.T) {
	t.Parallel()
	st := &fakeStore{
		claimable: []reminder.Reminder{{
			ID: 12, OwnerID: 42, ChatID: -100200, Text: "standup notes",
			DueAt:    time.Now().UTC().Add(-time.Minute),
			Timezone: "UTC", Status: reminder.StatusClaimed, Attempts: 1,
		}},
	}
	snd := &fakeSender{}
	e := newTestEngine(t, st, snd, Config{})

	e.scan(context.Background())

	// A group-originated reminder goes back to the group, not the owner's DM.
	if len(snd.chats) != 1 || snd.chats[0] != -100200 {
		t.Fatalf("sent to chats %v, want [-100200]", snd.chats)
	}
}

func TestDeliverRecurringSpawnsSuccessor(t *testing.T) {
	t.Parallel()
	due := time.Date(2026, time.April, 10, 14, 0, 0, 0, time.UTC) // 10:00 in New York (EDT)
	st := &fakeStore{
		claimable: []reminder.Reminder{{
			ID: 5, OwnerID: 9, Text: "stand up", DueAt: due,
			Timezone: "America/New_York", Status: reminder.StatusClaimed,
			Attempts: 1, RecurrenceID: 3,
		}},
		rules: map[int64]reminder.RecurrenceRule{
			3: {ID: 3, OwnerID: 9, Type: reminder.RecurDaily, TimeOfDay: "10:00",
				Timezone: "America/New_York", Active: true},
		},
	}
	snd := &fakeSender{}
	e := newTestEngine(t, st, snd, Config{})

	e.scan(context.Background())

	if len(st.successors) != 1 || st.successors[0] == nil {
		t.Fatalf("successors = %v", st.successors)
	}
	succ := st.successors[0]
	if !succ.DueAt.Equal(due.AddDate(0, 0, 1)) {
		t.Fatalf("successor due = %v, want %v", succ.DueAt, due.AddDate(0, 0, 1))
	}
	if succ.ParentID != 5 || succ.RecurrenceID != 3 {
		t.Fatalf("successor lineage = %+v", succ)
	}
	if succ.Status != reminder.StatusPending {
		t.Fatalf("successor status = %s", succ.Status)
	}
}

func TestDeliverTransientFailureLeavesClaim(t *testing.T) {
	t.Parallel()
	st := &fakeStore{
		claimable: []reminder.Reminder{{
			ID: 7, OwnerID: 1, Text: "x",
			DueAt: time.Now().UTC(), Timezone: "UTC",
			Status: reminder.StatusClaimed, Attempts: 1,
		}},
	}
	snd := &fakeSender{fail: true}
	e := newTestEngine(t, st, snd, Config{RetryMax: 3})

	e.scan(context.Background())

	if len(st.finalized) != 0 {
		t.Fatalf("finalized %v on failure", st.finalized)
	}
	if len(st.failedIDs) != 0 {
		t.Fatalf("marked failed %v with attempts remaining", st.failedIDs)
	}
}

func TestDeliverExhaustedAttemptsGoTerminal(t *testing.T) {
	t.Parallel()
	st := &fakeStore{
		claimable: []reminder.Reminder{{
			ID: 8, OwnerID: 1, Text: "x",
			DueAt: time.Now().UTC(), Timezone: "UTC",
			Status: reminder.StatusClaimed, Attempts: 3,
		}},
	}
	snd := &fakeSender{fail: true}
	e := newTestEngine(t, st, snd, Config{RetryMax: 3})

	e.scan(context.Background())

	if len(st.failedIDs) != 1 || st.failedIDs[0] != 8 {
		t.Fatalf("failed ids = %v, want [8]", st.failedIDs)
	}
}

func TestDeliverDuplicateSuppressed(t *testing.T) {
	t.Parallel()
	due := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	r := reminder.Reminder{
		ID: 9, OwnerID: 4, Text: "pay rent", DueAt: due,
		Timezone: "UTC", Status: reminder.StatusClaimed, Attempts: 1,
	}
	st := &fakeStore{
		claimable: []reminder.Reminder{r},
		dedupHits: map[string]time.Time{
			naturalKey(r): time.Now().Add(time.Hour),
		},
	}
	snd := &fakeSender{}
	e := newTestEngine(t, st, snd, Config{})

	e.scan(context.Background())

	if len(snd.sent) != 0 {
		t.Fatalf("duplicate was sent: %v", snd.sent)
	}
	if len(st.finalized) != 1 || st.finalized[0] != 9 {
		t.Fatalf("duplicate not finalized: %v", st.finalized)
	}
}

func TestDeliverClaimLostBeforeFinalize(t *testing.T) {
	t.Parallel()
	st := &fakeStore{
		claimable: []reminder.Reminder{{
			ID: 10, OwnerID: 1, Text: "x",
			DueAt: time.Now().UTC(), Timezone: "UTC",
			Status: reminder.StatusClaimed, Attempts: 1,
		}},
		finalizeErr: storage.ErrNotClaimed,
	}
	snd := &fakeSender{}
	e := newTestEngine(t, st, snd, Config{})

	// Must not panic or mark failed; the row now belongs to another worker.
	e.scan(context.Background())
	if len(st.failedIDs) != 0 {
		t.Fatalf("failed ids = %v", st.failedIDs)
	}
}

func TestReapUsesConfiguredCutoff(t *testing.T) {
	t.Parallel()
	st := &fakeStore{released: 2, reapFailed: 1}
	e := newTestEngine(t, st, &fakeSender{}, Config{StaleAfter: 10 * time.Minute, RetryMax: 3})

	before := time.Now().UTC().Add(-10 * time.Minute)
	e.reap(context.Background())

	if st.releaseCutoff.Before(before.Add(-time.Minute)) || st.releaseCutoff.After(time.Now()) {
		t.Fatalf("cutoff = %v, want ~%v", st.releaseCutoff, before)
	}
	if st.releaseMaxAtt != 3 {
		t.Fatalf("max attempts = %d, want 3", st.releaseMaxAtt)
	}
	if st.purgeCalls != 1 {
		t.Fatalf("purge calls = %d, want 1", st.purgeCalls)
	}
}

func TestApplyDuringInFlightJobDoesNotDeadlock(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	st := &fakeStore{claimEntered: entered, claimRelease: release}
	e := newTestEngine(t, st, &fakeSender{}, Config{ScanInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop(context.Background())

	<-entered // a scan is in flight, parked inside the store

	applied := make(chan struct{})
	go func() {
		e.Apply(Config{Enabled: true, ScanInterval: 20 * time.Millisecond})
		close(applied)
	}()

	// Apply waits out the old cron; the config lock must stay free the whole
	// time or the parked job could never finish.
	snapped := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		e.snapshot()
		close(snapped)
	}()
	select {
	case <-snapped:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot blocked during a cadence reload")
	}

	close(release)
	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("Apply did not return after the in-flight sweep finished")
	}
	if got := e.snapshot().ScanInterval; got != 20*time.Millisecond {
		t.Fatalf("scan interval = %v after reload", got)
	}
}

func TestHorizonReseedsMissedChain(t *testing.T) {
	t.Parallel()
	// Last occurrence fired days ago; the sweep must land on the next future
	// slot, not replay the missed ones.
	lastDue := time.Now().UTC().Add(-72 * time.Hour).Truncate(time.Second)
	st := &fakeStore{
		rules: map[int64]reminder.RecurrenceRule{
			6: {ID: 6, OwnerID: 2, Type: reminder.RecurDaily, TimeOfDay: "09:00",
				Timezone: "UTC", Active: true},
		},
		last: map[int64]reminder.Reminder{
			6: {ID: 30, OwnerID: 2, Text: "journal", DueAt: lastDue,
				Timezone: "UTC", Status: reminder.StatusSent, RecurrenceID: 6},
		},
	}
	e := newTestEngine(t, st, &fakeSender{}, Config{Horizon: 24 * time.Hour})

	e.horizon(context.Background())

	if len(st.created) != 1 {
		t.Fatalf("created %d rows, want 1", len(st.created))
	}
	got := st.created[0]
	if !got.DueAt.After(time.Now().UTC()) {
		t.Fatalf("reseeded occurrence in the past: %v", got.DueAt)
	}
	if got.DueAt.Sub(time.Now().UTC()) > 24*time.Hour {
		t.Fatalf("reseeded occurrence beyond horizon: %v", got.DueAt)
	}
	if got.Text != "journal" || got.RecurrenceID != 6 || got.ParentID != 30 {
		t.Fatalf("reseeded row = %+v", got)
	}
}

func TestHorizonSkipsFarFutureOccurrence(t *testing.T) {
	t.Parallel()
	// Monthly chain whose next slot is ~3 weeks out: nothing to do yet.
	lastDue := time.Now().UTC().Add(-7 * 24 * time.Hour)
	st := &fakeStore{
		rules: map[int64]reminder.RecurrenceRule{
			7: {ID: 7, OwnerID: 2, Type: reminder.RecurMonthly, AnchorDay: lastDue.Day(),
				Timezone: "UTC", Active: true},
		},
		last: map[int64]reminder.Reminder{
			7: {ID: 31, OwnerID: 2, Text: "rent", DueAt: lastDue,
				Timezone: "UTC", Status: reminder.StatusSent, RecurrenceID: 7},
		},
	}
	e := newTestEngine(t, st, &fakeSender{}, Config{Horizon: 24 * time.Hour})

	e.horizon(context.Background())

	if len(st.created) != 0 {
		t.Fatalf("created %v, want none beyond horizon", st.created)
	}
}
