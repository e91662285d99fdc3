// Package convo implements the clarification dialog that turns partial
// reminder requests into scheduled reminders.
//
// At most one pending dialog exists per owner, persisted so a half-finished
// exchange survives restarts. Each pending kind accepts a restricted grammar;
// anything else re-prompts, cancel words abandon the dialog, and a fresh
// reminder command overrides it.
package convo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/nlu"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/tz"
	logx "remindbot/pkg/logx"
)

// Config controls dialog behavior.
type Config struct {
	PendingTTL          time.Duration // abandoned dialogs expire after this
	ConfidenceThreshold float64       // parses below this get a confirm prompt
	DefaultTimezone     string
	SnoozeDefault       time.Duration
}

// Sentinel causes for a staged reminder that cannot resolve to an instant.
// They stay diagnostic; duePrompt maps them to user copy.
var (
	errUnreadableDate = errors.New("unreadable date token")
	errPastDue        = errors.New("due instant already passed")
)

// ExpiredEvent is the bus payload when an abandoned dialog is dropped.
type ExpiredEvent struct {
	OwnerID int64     `json:"owner_id"`
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
}

type Machine struct {
	mu  sync.Mutex
	cfg Config

	store  storage.Store
	tzr    *tz.Resolver
	interp nlu.Interpreter
	bus    eventbus.Bus
	log    logx.Logger
}

func New(cfg Config, store storage.Store, tzr *tz.Resolver, interp nlu.Interpreter, bus eventbus.Bus, log logx.Logger) *Machine {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Machine{store: store, tzr: tzr, interp: interp, bus: bus, log: log}
	m.Apply(cfg)
	return m
}

func (m *Machine) Apply(cfg Config) {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 30 * time.Minute
	}
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		cfg.ConfidenceThreshold = 0.6
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	if cfg.SnoozeDefault <= 0 {
		cfg.SnoozeDefault = 10 * time.Minute
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Machine) snapshot() Config {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()
	return cfg
}

// HandleUtterance processes one inbound message for an owner and returns the
// reply text. chatID is the chat the message arrived in; reminders created
// from it deliver back there.
func (m *Machine) HandleUtterance(ctx context.Context, ownerID, chatID int64, text string, now time.Time) (string, error) {
	ps, open, err := m.store.GetPending(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if open && ps.Expired(now) {
		_ = m.store.ClearPending(ctx, ownerID)
		m.publishExpired(ps)
		open = false
	}

	if open {
		if isCancel(text) {
			if err := m.store.ClearPending(ctx, ownerID); err != nil {
				return "", err
			}
			return promptCancelled, nil
		}
		if !isNewCommand(text) {
			return m.resume(ctx, ps, text, now)
		}
		// A fresh reminder command mid-dialog wins; the old dialog is dropped.
		_ = m.store.ClearPending(ctx, ownerID)
	}

	return m.fresh(ctx, ownerID, chatID, text, now)
}

func (m *Machine) fresh(ctx context.Context, ownerID, chatID int64, text string, now time.Time) (string, error) {
	// Snooze replies are a grammar of their own, no interpretation needed.
	if minutes, ok := parseSnooze(text); ok {
		return m.Snooze(ctx, ownerID, minutes, now)
	}

	res, err := m.interpret(ctx, ownerID, text)
	if err != nil {
		m.log.Warn("utterance interpretation failed", logx.Int64("owner", ownerID), logx.Err(err))
		return promptNLUDown, nil
	}

	switch res.Intent {
	case nlu.IntentCreate:
		return m.stageCreate(ctx, ownerID, chatID, res, now)
	case nlu.IntentList:
		return m.ListText(ctx, ownerID)
	case nlu.IntentCancel:
		if res.TargetIndex > 0 {
			return m.CancelByIndex(ctx, ownerID, res.TargetIndex)
		}
		list, err := m.ListText(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return list + "\nReply /cancel <number> to cancel one.", nil
	case nlu.IntentSnooze:
		return m.Snooze(ctx, ownerID, res.SnoozeMin, now)
	default:
		return promptUnknown, nil
	}
}

// interpret prefers the configured interpreter and falls back to the built-in
// pattern grammar when none is available.
func (m *Machine) interpret(ctx context.Context, ownerID int64, text string) (nlu.Result, error) {
	if m.interp != nil {
		res, err := m.interp.Interpret(ctx, ownerID, text)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, nlu.ErrUnavailable) {
			return nlu.Result{}, err
		}
	}
	return m.fallbackInterpret(text), nil
}

func (m *Machine) stageCreate(ctx context.Context, ownerID, chatID int64, res nlu.Result, now time.Time) (string, error) {
	cfg := m.snapshot()

	stg := reminder.Staged{
		Text:       strings.TrimSpace(res.Text),
		ChatID:     chatID,
		Date:       normalize(res.Date),
		Recurrence: reminder.RecurrenceType(res.Recurrence),
		RecurDay:   normalize(res.RecurDay),
		Timezone:   res.Timezone,
		Confidence: res.Confidence,
	}
	if stg.Text == "" {
		return promptUnknown, nil
	}
	if stg.Timezone == "" {
		stg.Timezone = cfg.DefaultTimezone
	}
	if stg.Recurrence != "" {
		if _, err := reminder.NextOccurrence(reminder.RecurrenceRule{Type: stg.Recurrence}, now); err != nil {
			stg.Recurrence = ""
			stg.RecurDay = ""
		}
	}

	// Time slot: a bare 12-hour value stays ambiguous until AM/PM arrives.
	if res.TimeOfDay != "" {
		if ct, ok := parseClockTime(res.TimeOfDay); ok {
			if ct.ambiguous() {
				stg.HourOnly, stg.MinuteOnly = ct.Hour, ct.Minute
			} else {
				h, min := ct.resolved()
				stg.TimeOfDay = fmtHHMM(h, min)
			}
		}
	}
	if stg.TimeOfDay == "" && stg.HourOnly == 0 && res.HourOnly >= 1 && res.HourOnly <= 12 {
		stg.HourOnly = res.HourOnly
	}

	return m.advance(ctx, ownerID, stg, now, false)
}

// advance routes a staged reminder to the next missing slot, a confirmation,
// or creation.
func (m *Machine) advance(ctx context.Context, ownerID int64, stg reminder.Staged, now time.Time, fromDialog bool) (string, error) {
	cfg := m.snapshot()

	if needsRecurrenceDay(stg) {
		if err := m.putPending(ctx, ownerID, reminder.PendingNeedsRecurrenceDay, stg, now); err != nil {
			return "", err
		}
		return promptRecurrenceDay(stg.Recurrence), nil
	}

	if stg.TimeOfDay == "" {
		if stg.HourOnly > 0 {
			if err := m.putPending(ctx, ownerID, reminder.PendingNeedsTime, stg, now); err != nil {
				return "", err
			}
			return promptMeridiem, nil
		}
		if stg.Recurrence == "" && stg.Date == "" {
			if err := m.putPending(ctx, ownerID, reminder.PendingNeedsDateTime, stg, now); err != nil {
				return "", err
			}
			return promptNeedsDateTime, nil
		}
		if err := m.putPending(ctx, ownerID, reminder.PendingNeedsTime, stg, now); err != nil {
			return "", err
		}
		return promptNeedsTime, nil
	}

	// Slot answers are explicit user input; only unclarified parses get the
	// confirmation gate.
	if !fromDialog && stg.Confidence > 0 && stg.Confidence < cfg.ConfidenceThreshold {
		return m.stageConfirm(ctx, ownerID, stg, now)
	}

	return m.finish(ctx, ownerID, stg, now)
}

func (m *Machine) stageConfirm(ctx context.Context, ownerID int64, stg reminder.Staged, now time.Time) (string, error) {
	loc, _ := m.location(stg.Timezone)
	if stg.Recurrence == "" {
		local, err := m.resolveDue(stg, now, loc)
		if err != nil {
			_ = m.store.ClearPending(ctx, ownerID)
			return duePrompt(stg, err)
		}
		stg.DueAt = local.UTC()
	}
	if err := m.putPending(ctx, ownerID, reminder.PendingConfirm, stg, now); err != nil {
		return "", err
	}
	return promptConfirm(stg, loc), nil
}

func (m *Machine) resume(ctx context.Context, ps reminder.PendingState, text string, now time.Time) (string, error) {
	stg := ps.Staged

	switch ps.Kind {
	case reminder.PendingNeedsTime:
		if mer, ok := parseMeridiem(text); ok && stg.HourOnly > 0 {
			h, min := clockTime{Hour: stg.HourOnly, Minute: stg.MinuteOnly, Meridiem: mer}.resolved()
			stg.TimeOfDay = fmtHHMM(h, min)
			stg.HourOnly, stg.MinuteOnly = 0, 0
			return m.advance(ctx, ps.OwnerID, stg, now, true)
		}
		if ct, ok := parseClockTime(text); ok {
			if ct.ambiguous() {
				stg.HourOnly, stg.MinuteOnly = ct.Hour, ct.Minute
				stg.TimeOfDay = ""
				if err := m.putPending(ctx, ps.OwnerID, reminder.PendingNeedsTime, stg, now); err != nil {
					return "", err
				}
				return promptMeridiem, nil
			}
			h, min := ct.resolved()
			stg.TimeOfDay = fmtHHMM(h, min)
			stg.HourOnly, stg.MinuteOnly = 0, 0
			return m.advance(ctx, ps.OwnerID, stg, now, true)
		}
		if stg.HourOnly > 0 {
			return promptMeridiem, nil
		}
		return promptNeedsTime, nil

	case reminder.PendingNeedsDateTime:
		loc, _ := m.location(stg.Timezone)
		tok, ct, ok := parseWhen(text, loc)
		if !ok {
			return promptNeedsDateTime, nil
		}
		if tok != "" {
			stg.Date = tok
		}
		if ct.ambiguous() {
			stg.HourOnly, stg.MinuteOnly = ct.Hour, ct.Minute
			if err := m.putPending(ctx, ps.OwnerID, reminder.PendingNeedsTime, stg, now); err != nil {
				return "", err
			}
			return promptMeridiem, nil
		}
		h, min := ct.resolved()
		stg.TimeOfDay = fmtHHMM(h, min)
		return m.advance(ctx, ps.OwnerID, stg, now, true)

	case reminder.PendingNeedsRecurrenceDay:
		if stg.Recurrence == reminder.RecurMonthly {
			d, ok := parseDayOfMonth(text)
			if !ok {
				return promptRecurrenceDay(stg.Recurrence), nil
			}
			stg.RecurDay = strconv.Itoa(d)
		} else {
			wd, ok := parseWeekday(text)
			if !ok {
				return promptRecurrenceDay(stg.Recurrence), nil
			}
			stg.RecurDay = strings.ToLower(wd.String())
		}
		return m.advance(ctx, ps.OwnerID, stg, now, true)

	case reminder.PendingConfirm:
		if isAffirmative(text) {
			return m.finish(ctx, ps.OwnerID, stg, now)
		}
		if isNegative(text) {
			if err := m.store.ClearPending(ctx, ps.OwnerID); err != nil {
				return "", err
			}
			return promptScrapped, nil
		}
		loc, _ := m.location(stg.Timezone)
		return promptConfirm(stg, loc), nil
	}

	// Unknown persisted kind (schema drift): drop it rather than wedge the owner.
	_ = m.store.ClearPending(ctx, ps.OwnerID)
	return promptUnknown, nil
}

func (m *Machine) finish(ctx context.Context, ownerID int64, stg reminder.Staged, now time.Time) (string, error) {
	if stg.Recurrence != "" {
		return m.createRecurring(ctx, ownerID, stg, now)
	}
	return m.createOneShot(ctx, ownerID, stg, now)
}

func (m *Machine) createOneShot(ctx context.Context, ownerID int64, stg reminder.Staged, now time.Time) (string, error) {
	loc, zone := m.location(stg.Timezone)
	local, err := m.resolveDue(stg, now, loc)
	if err != nil {
		_ = m.store.ClearPending(ctx, ownerID)
		return duePrompt(stg, err)
	}

	id, err := m.store.CreateReminder(ctx, reminder.Reminder{
		OwnerID:   ownerID,
		ChatID:    stg.ChatID,
		Text:      stg.Text,
		DueAt:     local.UTC(),
		LocalTime: stg.TimeOfDay,
		Timezone:  zone,
		Status:    reminder.StatusPending,
	})
	if err != nil {
		return "", err
	}
	if err := m.store.ClearPending(ctx, ownerID); err != nil {
		m.log.Warn("pending clear failed", logx.Int64("owner", ownerID), logx.Err(err))
	}
	m.log.Info("reminder created",
		logx.Int64("id", id), logx.Int64("owner", ownerID), logx.Time("due", local.UTC()))
	return ackOneShot(stg.Text, local), nil
}

func (m *Machine) createRecurring(ctx context.Context, ownerID int64, stg reminder.Staged, now time.Time) (string, error) {
	loc, zone := m.location(stg.Timezone)
	h, min, err := parseHHMM(stg.TimeOfDay)
	if err != nil {
		return "", err
	}

	rule := reminder.RecurrenceRule{
		OwnerID:   ownerID,
		Type:      stg.Recurrence,
		TimeOfDay: stg.TimeOfDay,
		Timezone:  zone,
		Active:    true,
	}
	switch stg.Recurrence {
	case reminder.RecurWeekly:
		wd, ok := parseWeekday(stg.RecurDay)
		if !ok {
			return promptRecurrenceDay(stg.Recurrence), nil
		}
		rule.AnchorWeekday = wd
	case reminder.RecurMonthly:
		d, ok := parseDayOfMonth(stg.RecurDay)
		if !ok {
			return promptRecurrenceDay(stg.Recurrence), nil
		}
		rule.AnchorDay = d
	}

	first := firstOccurrence(rule, now.In(loc), h, min)

	ruleID, err := m.store.CreateRule(ctx, rule)
	if err != nil {
		return "", err
	}
	id, err := m.store.CreateReminder(ctx, reminder.Reminder{
		OwnerID:      ownerID,
		ChatID:       stg.ChatID,
		Text:         stg.Text,
		DueAt:        first.UTC(),
		LocalTime:    stg.TimeOfDay,
		Timezone:     zone,
		Status:       reminder.StatusPending,
		RecurrenceID: ruleID,
	})
	if err != nil {
		return "", err
	}
	if err := m.store.ClearPending(ctx, ownerID); err != nil {
		m.log.Warn("pending clear failed", logx.Int64("owner", ownerID), logx.Err(err))
	}
	m.log.Info("recurring reminder created",
		logx.Int64("id", id), logx.Int64("rule", ruleID), logx.Int64("owner", ownerID),
		logx.String("cadence", string(stg.Recurrence)), logx.Time("first", first.UTC()))
	return ackRecurring(stg, first), nil
}

// resolveDue turns the staged date token and time of day into a concrete
// local instant. A bare time that already passed today rolls to tomorrow.
func (m *Machine) resolveDue(stg reminder.Staged, now time.Time, loc *time.Location) (time.Time, error) {
	h, min, err := parseHHMM(stg.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	nowLocal := now.In(loc)
	at := func(y int, mo time.Month, d int) time.Time {
		return time.Date(y, mo, d, h, min, 0, 0, loc)
	}

	if stg.Date == "" || stg.Date == "today" || stg.Date == "tonight" {
		cand := at(nowLocal.Date())
		if !cand.After(nowLocal) {
			cand = cand.AddDate(0, 0, 1)
		}
		return cand, nil
	}

	ds, ok := parseDateWord(stg.Date, loc)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", errUnreadableDate, stg.Date)
	}
	switch ds.Kind {
	case dateRelative:
		return at(nowLocal.Date()).AddDate(0, 0, ds.Relative), nil
	case dateWeekday:
		ahead := (int(ds.Weekday) - int(nowLocal.Weekday()) + 7) % 7
		cand := at(nowLocal.Date()).AddDate(0, 0, ahead)
		if !cand.After(nowLocal) {
			cand = cand.AddDate(0, 0, 7)
		}
		return cand, nil
	default:
		cand := at(ds.Absolute.Date())
		if !cand.After(nowLocal) {
			return time.Time{}, errPastDue
		}
		return cand, nil
	}
}

// duePrompt turns a resolveDue failure into the reply for the user. Causes
// outside the sentinel set are real faults and propagate as errors.
func duePrompt(stg reminder.Staged, err error) (string, error) {
	switch {
	case errors.Is(err, errUnreadableDate):
		return promptBadDate(stg.Date), nil
	case errors.Is(err, errPastDue):
		return promptPastTime, nil
	}
	return "", err
}

// firstOccurrence finds the first local instant matching the rule at or
// after now.
func firstOccurrence(rule reminder.RecurrenceRule, nowLocal time.Time, h, min int) time.Time {
	loc := nowLocal.Location()
	cand := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), h, min, 0, 0, loc)

	switch rule.Type {
	case reminder.RecurDaily:
		if !cand.After(nowLocal) {
			cand = cand.AddDate(0, 0, 1)
		}
	case reminder.RecurWeekdays:
		for !cand.After(nowLocal) || weekend(cand.Weekday()) {
			cand = cand.AddDate(0, 0, 1)
		}
	case reminder.RecurWeekends:
		for !cand.After(nowLocal) || !weekend(cand.Weekday()) {
			cand = cand.AddDate(0, 0, 1)
		}
	case reminder.RecurWeekly:
		ahead := (int(rule.AnchorWeekday) - int(nowLocal.Weekday()) + 7) % 7
		cand = cand.AddDate(0, 0, ahead)
		if !cand.After(nowLocal) {
			cand = cand.AddDate(0, 0, 7)
		}
	case reminder.RecurMonthly:
		y, mo := nowLocal.Year(), nowLocal.Month()
		cand = monthlyAt(y, mo, rule.AnchorDay, h, min, loc)
		if !cand.After(nowLocal) {
			mo++
			if mo > time.December {
				y, mo = y+1, time.January
			}
			cand = monthlyAt(y, mo, rule.AnchorDay, h, min, loc)
		}
	}
	return cand
}

// monthlyAt places the anchor day in the month, clamping to its last day.
func monthlyAt(y int, mo time.Month, anchor, h, min int, loc *time.Location) time.Time {
	day := anchor
	if last := time.Date(y, mo+1, 0, 0, 0, 0, 0, loc).Day(); day > last {
		day = last
	}
	return time.Date(y, mo, day, h, min, 0, 0, loc)
}

func weekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

func needsRecurrenceDay(stg reminder.Staged) bool {
	if stg.RecurDay != "" {
		return false
	}
	return stg.Recurrence == reminder.RecurWeekly || stg.Recurrence == reminder.RecurMonthly
}

// ListText renders the owner's open reminders.
func (m *Machine) ListText(ctx context.Context, ownerID int64) (string, error) {
	rows, err := m.store.ListOpenByOwner(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return promptNothingOpen, nil
	}
	var b strings.Builder
	b.WriteString("Your reminders:\n")
	for i, r := range rows {
		local := m.tzr.ToLocal(r.DueAt, r.Timezone)
		fmt.Fprintf(&b, "%d. %q at %s", i+1, r.Text, local.Format("Mon, Jan 2 3:04 PM"))
		if r.Recurring() {
			b.WriteString(" (repeats)")
		}
		b.WriteByte('\n')
	}
	b.WriteString("Reply /cancel <number> to cancel one.")
	return b.String(), nil
}

// CancelByIndex cancels the n-th reminder from the owner's open list
// (1-based). Cancelling a recurring occurrence stops its chain.
func (m *Machine) CancelByIndex(ctx context.Context, ownerID int64, index int) (string, error) {
	rows, err := m.store.ListOpenByOwner(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if index < 1 || index > len(rows) {
		return fmt.Sprintf("There's no reminder #%d. Use /list to see yours.", index), nil
	}
	r := rows[index-1]
	if err := m.store.CancelReminder(ctx, ownerID, r.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "That one is already on its way out, too late to cancel.", nil
		}
		return "", err
	}
	if r.Recurring() {
		if err := m.store.DeactivateRule(ctx, ownerID, r.RecurrenceID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn("rule deactivation failed", logx.Int64("rule", r.RecurrenceID), logx.Err(err))
		}
		return fmt.Sprintf("Cancelled %q and stopped its repeats.", r.Text), nil
	}
	return fmt.Sprintf("Cancelled %q.", r.Text), nil
}

// Snooze reschedules the owner's most recently delivered reminder.
// minutes <= 0 uses the configured default.
func (m *Machine) Snooze(ctx context.Context, ownerID int64, minutes int, now time.Time) (string, error) {
	cfg := m.snapshot()
	if minutes <= 0 {
		minutes = int(cfg.SnoozeDefault.Minutes())
	}

	last, err := m.store.LastSentByOwner(ctx, ownerID, now.Add(-24*time.Hour))
	if errors.Is(err, storage.ErrNotFound) {
		return promptNoSnooze, nil
	}
	if err != nil {
		return "", err
	}

	_, err = m.store.CreateReminder(ctx, reminder.Reminder{
		OwnerID:  ownerID,
		ChatID:   last.ChatID,
		Text:     last.Text,
		DueAt:    now.Add(time.Duration(minutes) * time.Minute).UTC(),
		Timezone: last.Timezone,
		Status:   reminder.StatusPending,
	})
	if err != nil {
		return "", err
	}
	return ackSnooze(last.Text, minutes), nil
}

func (m *Machine) putPending(ctx context.Context, ownerID int64, kind reminder.PendingKind, stg reminder.Staged, now time.Time) error {
	cfg := m.snapshot()
	return m.store.PutPending(ctx, reminder.PendingState{
		OwnerID:   ownerID,
		Kind:      kind,
		Staged:    stg,
		CreatedAt: now,
		ExpiresAt: now.Add(cfg.PendingTTL),
	})
}

func (m *Machine) publishExpired(ps reminder.PendingState) {
	if m.bus == nil {
		return
	}
	now := time.Now()
	m.bus.Publish(eventbus.Event{Type: eventbus.EventConvoExpired, Time: now,
		Data: ExpiredEvent{OwnerID: ps.OwnerID, Kind: string(ps.Kind), At: now}})
}

func (m *Machine) location(zone string) (*time.Location, string) {
	cfg := m.snapshot()
	if zone == "" {
		zone = cfg.DefaultTimezone
	}
	loc, err := m.tzr.Lookup(zone)
	if err != nil {
		def := m.tzr.Default()
		return def, def.String()
	}
	return loc, loc.String()
}

// fallbackInterpret covers the common "remind me ..." shapes without the
// external interpreter.
func (m *Machine) fallbackInterpret(text string) nlu.Result {
	cfg := m.snapshot()
	loc, _ := m.location(cfg.DefaultTimezone)
	n := normalize(text)

	fill := func(res nlu.Result, when string) (nlu.Result, bool) {
		tok, ct, ok := parseWhen(when, loc)
		if !ok {
			return res, false
		}
		if tok != "" {
			res.Date = tok
		}
		if ct.ambiguous() {
			res.HourOnly = ct.Hour
		} else {
			h, min := ct.resolved()
			res.TimeOfDay = fmtHHMM(h, min)
		}
		return res, true
	}

	if rest, ok := strings.CutPrefix(n, "remind me every "); ok {
		res := nlu.Result{Intent: nlu.IntentCreate, Confidence: 0.9}
		fields := strings.SplitN(rest, " ", 2)
		if len(fields) == 2 {
			if rt, ok := parseRecurrenceWord("every " + fields[0]); ok {
				res.Recurrence = string(rt)
			} else if wd, ok := parseWeekday(fields[0]); ok {
				res.Recurrence = string(reminder.RecurWeekly)
				res.RecurDay = strings.ToLower(wd.String())
			}
			if res.Recurrence != "" {
				rest = fields[1]
				if idx := strings.LastIndex(rest, " to "); idx >= 0 {
					if got, ok := fill(res, strings.TrimSpace(strings.TrimPrefix(rest[:idx], "at "))); ok {
						got.Text = strings.TrimSpace(rest[idx+len(" to "):])
						if got.Text != "" {
							return got
						}
					}
				}
				if after, ok := strings.CutPrefix(rest, "to "); ok {
					res.Text = strings.TrimSpace(after)
					if res.Text != "" {
						return res
					}
				}
			}
		}
		return nlu.Result{Intent: nlu.IntentUnknown}
	}

	if rest, ok := strings.CutPrefix(n, "remind me to "); ok {
		res := nlu.Result{Intent: nlu.IntentCreate, Confidence: 0.9}
		if idx := strings.LastIndex(rest, " at "); idx >= 0 {
			if got, ok := fill(res, rest[idx+len(" at "):]); ok {
				got.Text = strings.TrimSpace(rest[:idx])
				return got
			}
		}
		res.Text = strings.TrimSpace(rest)
		return res
	}

	if rest, ok := strings.CutPrefix(n, "remind me at "); ok {
		if idx := strings.Index(rest, " to "); idx >= 0 {
			res := nlu.Result{Intent: nlu.IntentCreate, Confidence: 0.9}
			if got, ok := fill(res, rest[:idx]); ok {
				got.Text = strings.TrimSpace(rest[idx+len(" to "):])
				return got
			}
		}
	}

	if strings.Contains(n, "list") || strings.Contains(n, "reminders") {
		return nlu.Result{Intent: nlu.IntentList, Confidence: 0.9}
	}
	return nlu.Result{Intent: nlu.IntentUnknown}
}

func parseHHMM(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("bad time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func fmtHHMM(h, min int) string {
	return fmt.Sprintf("%02d:%02d", h, min)
}
