package convo

import (
	"context"
	"strings"
	"testing"
	"time"

	"remindbot/internal/nlu"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/tz"
	logx "remindbot/pkg/logx"
)

// memStore scripts only the Store methods the dialog layer touches.
type memStore struct {
	storage.Store

	pending     map[int64]reminder.PendingState
	created     []reminder.Reminder
	rules       []reminder.RecurrenceRule
	open        []reminder.Reminder
	lastSent    *reminder.Reminder
	cancelled   []int64
	deactivated []int64
}

func newMemStore() *memStore {
	return &memStore{pending: map[int64]reminder.PendingState{}}
}

func (s *memStore) GetPending(ctx context.Context, ownerID int64) (reminder.PendingState, bool, error) {
	ps, ok := s.pending[ownerID]
	return ps, ok, nil
}

func (s *memStore) PutPending(ctx context.Context, ps reminder.PendingState) error {
	s.pending[ps.OwnerID] = ps
	return nil
}

func (s *memStore) ClearPending(ctx context.Context, ownerID int64) error {
	delete(s.pending, ownerID)
	return nil
}

func (s *memStore) CreateReminder(ctx context.Context, r reminder.Reminder) (int64, error) {
	s.created = append(s.created, r)
	return int64(len(s.created)), nil
}

func (s *memStore) CreateRule(ctx context.Context, rule reminder.RecurrenceRule) (int64, error) {
	s.rules = append(s.rules, rule)
	return int64(len(s.rules)), nil
}

func (s *memStore) ListOpenByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	return s.open, nil
}

func (s *memStore) CancelReminder(ctx context.Context, ownerID, id int64) error {
	s.cancelled = append(s.cancelled, id)
	return nil
}

func (s *memStore) DeactivateRule(ctx context.Context, ownerID, id int64) error {
	s.deactivated = append(s.deactivated, id)
	return nil
}

func (s *memStore) LastSentByOwner(ctx context.Context, ownerID int64, since time.Time) (reminder.Reminder, error) {
	if s.lastSent == nil {
		return reminder.Reminder{}, storage.ErrNotFound
	}
	return *s.lastSent, nil
}

type scriptInterp struct {
	res nlu.Result
	err error
}

func (s scriptInterp) Interpret(ctx context.Context, ownerID int64, utterance string) (nlu.Result, error) {
	return s.res, s.err
}

func newMachine(st *memStore, interp nlu.Interpreter, defZone string) *Machine {
	return New(Config{DefaultTimezone: defZone}, st, tz.NewResolver(defZone), interp, nil, logx.Nop())
}

func say(t *testing.T, m *Machine, owner int64, text string, now time.Time) string {
	t.Helper()
	// Direct chats carry the owner's id as the chat id.
	return sayIn(t, m, owner, owner, text, now)
}

func sayIn(t *testing.T, m *Machine, owner, chat int64, text string, now time.Time) string {
	t.Helper()
	reply, err := m.HandleUtterance(context.Background(), owner, chat, text, now)
	if err != nil {
		t.Fatalf("HandleUtterance(%q): %v", text, err)
	}
	return reply
}

func TestAmbiguousHourThenMeridiem(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC") // nil interpreter exercises the fallback grammar
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	reply := say(t, m, 1, "remind me at 4 to call mom", now)
	if reply != promptMeridiem {
		t.Fatalf("reply = %q, want meridiem prompt", reply)
	}
	if ps := st.pending[1]; ps.Kind != reminder.PendingNeedsTime || ps.Staged.HourOnly != 4 {
		t.Fatalf("pending = %+v", ps)
	}

	reply = say(t, m, 1, "pm", now)
	if !strings.Contains(reply, "call mom") {
		t.Fatalf("ack = %q", reply)
	}
	if len(st.created) != 1 {
		t.Fatalf("created %d reminders", len(st.created))
	}
	want := time.Date(2026, time.January, 7, 16, 0, 0, 0, time.UTC)
	if !st.created[0].DueAt.Equal(want) {
		t.Fatalf("due = %v, want %v", st.created[0].DueAt, want)
	}
	if _, ok := st.pending[1]; ok {
		t.Fatal("pending state not cleared after creation")
	}
}

func TestPassedTimeRollsToTomorrow(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 18, 0, 0, 0, time.UTC)

	say(t, m, 1, "remind me to call mom at 4pm", now)

	if len(st.created) != 1 {
		t.Fatalf("created %d reminders", len(st.created))
	}
	want := time.Date(2026, time.January, 8, 16, 0, 0, 0, time.UTC)
	if !st.created[0].DueAt.Equal(want) {
		t.Fatalf("due = %v, want next day %v", st.created[0].DueAt, want)
	}
}

func TestLocalTimeConvertsToUTC(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	interp := scriptInterp{res: nlu.Result{
		Intent: nlu.IntentCreate, Confidence: 0.95,
		Text: "take meds", Date: "2026-01-08", TimeOfDay: "06:45",
		Timezone: "America/New_York",
	}}
	m := newMachine(st, interp, "UTC")
	now := time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC)

	say(t, m, 1, "remind me to take meds tomorrow at 6:45am eastern", now)

	if len(st.created) != 1 {
		t.Fatalf("created %d reminders", len(st.created))
	}
	// 06:45 EST is UTC-5 in January.
	want := time.Date(2026, time.January, 8, 11, 45, 0, 0, time.UTC)
	if !st.created[0].DueAt.Equal(want) {
		t.Fatalf("due = %v, want %v", st.created[0].DueAt, want)
	}
	if st.created[0].Timezone != "America/New_York" || st.created[0].LocalTime != "06:45" {
		t.Fatalf("wall clock basis = %q %q", st.created[0].LocalTime, st.created[0].Timezone)
	}
}

func TestUnresolvableDueGetsPromptNotError(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		date  string
		reply string
	}{
		{name: "past absolute date", date: "2026-01-01", reply: promptPastTime},
		{name: "unreadable date", date: "the 32nd of nevember", reply: promptBadDate("the 32nd of nevember")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			interp := scriptInterp{res: nlu.Result{
				Intent: nlu.IntentCreate, Confidence: 0.95,
				Text: "pay rent", Date: tt.date, TimeOfDay: "09:00",
			}}
			m := newMachine(st, interp, "UTC")

			if reply := say(t, m, 1, "remind me to pay rent", now); reply != tt.reply {
				t.Fatalf("reply = %q, want %q", reply, tt.reply)
			}
			if len(st.created) != 0 {
				t.Fatalf("created %+v", st.created)
			}
		})
	}
}

func TestNeedsDateTimeFlow(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	reply := say(t, m, 1, "remind me to stretch", now)
	if reply != promptNeedsDateTime {
		t.Fatalf("reply = %q", reply)
	}

	reply = say(t, m, 1, "blah blah", now)
	if reply != promptNeedsDateTime {
		t.Fatalf("unparseable reply should re-prompt, got %q", reply)
	}

	say(t, m, 1, "tomorrow at 9am", now)
	want := time.Date(2026, time.January, 8, 9, 0, 0, 0, time.UTC)
	if len(st.created) != 1 || !st.created[0].DueAt.Equal(want) {
		t.Fatalf("created = %+v, want due %v", st.created, want)
	}
}

func TestRecurrenceDayFlow(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC) // a Wednesday

	reply := say(t, m, 1, "remind me every week at 9am to review goals", now)
	if !strings.Contains(reply, "day of the week") {
		t.Fatalf("reply = %q, want weekday prompt", reply)
	}

	reply = say(t, m, 1, "someday", now)
	if !strings.Contains(reply, "day of the week") {
		t.Fatalf("bad weekday should re-prompt, got %q", reply)
	}

	say(t, m, 1, "friday", now)
	if len(st.rules) != 1 || st.rules[0].Type != reminder.RecurWeekly || st.rules[0].AnchorWeekday != time.Friday {
		t.Fatalf("rules = %+v", st.rules)
	}
	if len(st.created) != 1 {
		t.Fatalf("created %d seed occurrences", len(st.created))
	}
	if wd := st.created[0].DueAt.Weekday(); wd != time.Friday {
		t.Fatalf("first occurrence on %v, want Friday", wd)
	}
	if st.created[0].RecurrenceID != 1 {
		t.Fatalf("seed not linked to rule: %+v", st.created[0])
	}
}

func TestNewCommandOverridesPendingDialog(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	say(t, m, 1, "remind me every week at 9am to review goals", now)
	if _, ok := st.pending[1]; !ok {
		t.Fatal("expected pending recurrence dialog")
	}

	reply := say(t, m, 1, "remind me to drink water at 2pm", now)
	if !strings.Contains(reply, "drink water") {
		t.Fatalf("reply = %q", reply)
	}
	if len(st.created) != 1 || st.created[0].Text != "drink water" {
		t.Fatalf("created = %+v", st.created)
	}
	if _, ok := st.pending[1]; ok {
		t.Fatal("stale dialog survived the new command")
	}
	if len(st.rules) != 0 {
		t.Fatalf("abandoned dialog created rules: %+v", st.rules)
	}
}

func TestReminderKeepsOriginatingChat(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	// Group chat ids differ from the requesting user's id; the reminder must
	// deliver back into the group, surviving the clarification turn.
	sayIn(t, m, 1, -100200, "remind me at 4 to call mom", now)
	sayIn(t, m, 1, -100200, "pm", now)

	if len(st.created) != 1 {
		t.Fatalf("created %d reminders", len(st.created))
	}
	if got := st.created[0].ChatID; got != -100200 {
		t.Fatalf("chat id = %d, want -100200", got)
	}
	if got := st.created[0].OwnerID; got != 1 {
		t.Fatalf("owner id = %d, want 1", got)
	}
}

func TestUnrelatedCommandOverridesPendingDialog(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	say(t, m, 1, "remind me every week at 9am to review goals", now)
	if ps := st.pending[1]; ps.Kind != reminder.PendingNeedsRecurrenceDay {
		t.Fatalf("pending = %+v, want recurrence-day dialog", ps)
	}

	// Not a weekday answer and not a reminder phrase either; the dialog must
	// yield to the list request instead of re-prompting.
	reply := say(t, m, 1, "show my lists", now)
	if reply != promptNothingOpen {
		t.Fatalf("reply = %q, want list output", reply)
	}
	if _, ok := st.pending[1]; ok {
		t.Fatal("stale dialog survived the list request")
	}
	if len(st.rules) != 0 || len(st.created) != 0 {
		t.Fatalf("abandoned dialog persisted something: rules=%v created=%v", st.rules, st.created)
	}
}

func TestCancelWordAbandonsDialog(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	say(t, m, 1, "remind me to stretch", now)
	reply := say(t, m, 1, "nevermind", now)
	if reply != promptCancelled {
		t.Fatalf("reply = %q", reply)
	}
	if _, ok := st.pending[1]; ok {
		t.Fatal("dialog survived cancel")
	}
	if len(st.created) != 0 {
		t.Fatalf("cancel still created %+v", st.created)
	}
}

func TestLowConfidenceConfirmYes(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	interp := scriptInterp{res: nlu.Result{
		Intent: nlu.IntentCreate, Confidence: 0.3,
		Text: "water the plants", TimeOfDay: "18:00",
	}}
	m := newMachine(st, interp, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	reply := say(t, m, 1, "mumble water plants evening", now)
	if !strings.Contains(reply, "confirm") || !strings.Contains(reply, "water the plants") {
		t.Fatalf("reply = %q, want confirm prompt", reply)
	}
	if len(st.created) != 0 {
		t.Fatal("created before confirmation")
	}

	say(t, m, 1, "yes", now)
	if len(st.created) != 1 {
		t.Fatalf("created %d after yes", len(st.created))
	}
	want := time.Date(2026, time.January, 7, 18, 0, 0, 0, time.UTC)
	if !st.created[0].DueAt.Equal(want) {
		t.Fatalf("due = %v, want %v", st.created[0].DueAt, want)
	}
}

func TestLowConfidenceConfirmNo(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	interp := scriptInterp{res: nlu.Result{
		Intent: nlu.IntentCreate, Confidence: 0.3,
		Text: "water the plants", TimeOfDay: "18:00",
	}}
	m := newMachine(st, interp, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	say(t, m, 1, "mumble", now)
	reply := say(t, m, 1, "no", now)
	if reply != promptScrapped {
		t.Fatalf("reply = %q", reply)
	}
	if len(st.created) != 0 {
		t.Fatalf("created %+v after no", st.created)
	}
	if _, ok := st.pending[1]; ok {
		t.Fatal("confirm state survived rejection")
	}
}

func TestExpiredDialogIsDropped(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	start := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	say(t, m, 1, "remind me at 4 to call mom", start)

	// Well past the 30 minute TTL; "pm" is no longer an answer to anything.
	later := start.Add(45 * time.Minute)
	reply := say(t, m, 1, "pm", later)
	if reply != promptUnknown {
		t.Fatalf("reply = %q, want unknown prompt after expiry", reply)
	}
	if _, ok := st.pending[1]; ok {
		t.Fatal("expired dialog still stored")
	}
	if len(st.created) != 0 {
		t.Fatalf("expired dialog created %+v", st.created)
	}
}

func TestSnoozeDefaultAndExplicit(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.lastSent = &reminder.Reminder{ID: 3, OwnerID: 1, Text: "call mom", Timezone: "UTC"}
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	reply := say(t, m, 1, "snooze", now)
	if !strings.Contains(reply, "10 minutes") {
		t.Fatalf("reply = %q, want default snooze", reply)
	}
	if !st.created[0].DueAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("due = %v", st.created[0].DueAt)
	}

	say(t, m, 1, "snooze 25", now)
	if !st.created[1].DueAt.Equal(now.Add(25 * time.Minute)) {
		t.Fatalf("due = %v", st.created[1].DueAt)
	}
}

func TestSnoozeWithNothingSent(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	m := newMachine(st, nil, "UTC")
	now := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)

	if reply := say(t, m, 1, "snooze", now); reply != promptNoSnooze {
		t.Fatalf("reply = %q", reply)
	}
}

func TestCancelByIndexStopsRecurrence(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.open = []reminder.Reminder{
		{ID: 10, OwnerID: 1, Text: "stand up", Timezone: "UTC", RecurrenceID: 4},
		{ID: 11, OwnerID: 1, Text: "one shot", Timezone: "UTC"},
	}
	m := newMachine(st, nil, "UTC")

	reply, err := m.CancelByIndex(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(reply, "stopped its repeats") {
		t.Fatalf("reply = %q", reply)
	}
	if len(st.cancelled) != 1 || st.cancelled[0] != 10 {
		t.Fatalf("cancelled = %v", st.cancelled)
	}
	if len(st.deactivated) != 1 || st.deactivated[0] != 4 {
		t.Fatalf("deactivated = %v", st.deactivated)
	}

	if reply, _ := m.CancelByIndex(context.Background(), 1, 9); !strings.Contains(reply, "no reminder #9") {
		t.Fatalf("reply = %q", reply)
	}
}
