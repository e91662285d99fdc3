package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// DeliveryEvent is the bus payload for delivery lifecycle events.
type DeliveryEvent struct {
	ReminderID int64     `json:"reminder_id"`
	OwnerID    int64     `json:"owner_id"`
	Attempts   int       `json:"attempts"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

// ReapEvent is the bus payload for a reaper sweep that moved rows.
type ReapEvent struct {
	Released int       `json:"released"`
	Failed   int       `json:"failed"`
	At       time.Time `json:"at"`
}

// Duplicate rows sharing a natural key are suppressed for this long after
// the first one is delivered.
const deliveryDedupTTL = 6 * time.Hour

var openers = []string{
	"Reminder:",
	"Don't forget:",
	"Hey, it's time:",
	"Nudge:",
}

// renderDelivery formats the outbound reminder message.
func renderDelivery(r reminder.Reminder) string {
	opener := openers[int(r.ID)%len(openers)]
	return fmt.Sprintf("%s %s\n(Reply SNOOZE to snooze)", opener, r.Text)
}

// naturalKey identifies semantically identical reminders regardless of row id.
func naturalKey(r reminder.Reminder) string {
	return fmt.Sprintf("%d|%s|%d", r.OwnerID, r.Text, r.DueAt.Unix())
}

// target is the chat the reminder goes to. Rows from before chat tracking
// carry a zero chat id and deliver to the owner's direct chat.
func target(r reminder.Reminder) kit.ChatTarget {
	if r.ChatID != 0 {
		return kit.ChatTarget{ChatID: r.ChatID}
	}
	return kit.ChatTarget{ChatID: r.OwnerID}
}

// scan claims a batch of due rows and delivers each one. Rows claimed by a
// concurrent worker are invisible here and get picked up on its side.
func (s *Service) scan(ctx context.Context) {
	cfg := s.snapshot()
	now := time.Now().UTC()

	claimed, err := s.store.ClaimDue(ctx, s.workerID, now, cfg.BatchSize)
	if err != nil {
		s.log.Error("claim sweep failed", logx.Err(err))
		return
	}
	if len(claimed) == 0 {
		return
	}
	s.log.Debug("claimed due reminders", logx.Int("count", len(claimed)))

	for _, r := range claimed {
		if ctx.Err() != nil {
			// Remaining claims go back via the reaper.
			return
		}
		s.deliver(ctx, cfg, r)
	}
}

func (s *Service) deliver(ctx context.Context, cfg Config, r reminder.Reminder) {
	key := naturalKey(r)

	// A duplicate row whose twin already went out is finalized silently.
	if until, ok, err := s.store.GetDedup(ctx, key); err == nil && ok && time.Now().Before(until) {
		s.log.Info("duplicate reminder suppressed",
			logx.Int64("id", r.ID), logx.Int64("owner", r.OwnerID))
		if err := s.store.FinalizeSent(ctx, r.ID, s.workerID, nil); err != nil {
			s.log.Warn("finalize of suppressed duplicate failed", logx.Int64("id", r.ID), logx.Err(err))
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	_, sendErr := s.send.SendText(sendCtx, target(r), renderDelivery(r), nil)
	cancel()

	if sendErr != nil {
		// Transient failure: the row stays claimed and the reaper returns it
		// to pending for a later attempt. Exhausted rows go terminal now.
		if r.Attempts >= cfg.RetryMax {
			if err := s.store.MarkFailed(ctx, r.ID, s.workerID); err != nil {
				s.log.Warn("mark failed rejected", logx.Int64("id", r.ID), logx.Err(err))
			}
			s.publishDelivery(eventbus.EventReminderFailed, r, sendErr)
			s.log.Error("reminder delivery failed permanently",
				logx.Int64("id", r.ID), logx.Int("attempts", r.Attempts), logx.Err(sendErr))
			return
		}
		s.log.Warn("reminder delivery failed, will retry",
			logx.Int64("id", r.ID), logx.Int("attempts", r.Attempts), logx.Err(sendErr))
		return
	}

	successor, err := s.successorFor(ctx, r)
	if err != nil {
		// Never lose the sent transition over a broken chain.
		s.log.Error("successor computation failed", logx.Int64("id", r.ID), logx.Err(err))
		successor = nil
	}

	if err := s.store.FinalizeSent(ctx, r.ID, s.workerID, successor); err != nil {
		if errors.Is(err, storage.ErrNotClaimed) {
			// The reaper took the claim mid-send; the row may be delivered
			// again. Duplicate delivery is the accepted failure mode here,
			// losing reminders is not.
			s.log.Warn("claim lost before finalize", logx.Int64("id", r.ID))
			return
		}
		s.log.Error("finalize failed", logx.Int64("id", r.ID), logx.Err(err))
		return
	}

	if err := s.store.PutDedup(ctx, key, time.Now().Add(deliveryDedupTTL)); err != nil {
		s.log.Debug("dedup write failed", logx.Err(err))
	}
	s.publishDelivery(eventbus.EventReminderSent, r, nil)
	s.log.Info("reminder delivered",
		logx.Int64("id", r.ID), logx.Int64("owner", r.OwnerID),
		logx.Bool("recurring", r.Recurring()))
}

// successorFor computes the next pending occurrence for a recurring chain.
// Wall-clock math happens in the rule's zone, so DST transitions keep the
// local time of day stable.
func (s *Service) successorFor(ctx context.Context, r reminder.Reminder) (*reminder.Reminder, error) {
	if !r.Recurring() {
		return nil, nil
	}
	rule, err := s.store.GetRule(ctx, r.RecurrenceID)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return nil, nil
	}

	lastLocal := s.tzr.ToLocal(r.DueAt, rule.Timezone)
	nextLocal, err := reminder.NextOccurrence(rule, lastLocal)
	if err != nil {
		return nil, err
	}

	return &reminder.Reminder{
		OwnerID:      r.OwnerID,
		ChatID:       r.ChatID,
		Text:         r.Text,
		DueAt:        nextLocal.UTC(),
		LocalTime:    rule.TimeOfDay,
		Timezone:     rule.Timezone,
		Status:       reminder.StatusPending,
		RecurrenceID: rule.ID,
		ParentID:     r.ID,
	}, nil
}

// reap returns stale claims to pending, or fails them when attempts ran out.
// It also sweeps out conversation state whose owner never came back; the
// lazy expiry on read only fires when the owner does.
func (s *Service) reap(ctx context.Context) {
	cfg := s.snapshot()
	cutoff := time.Now().UTC().Add(-cfg.StaleAfter)

	if purged, err := s.store.PurgeExpiredPending(ctx, time.Now().UTC()); err != nil {
		s.log.Warn("pending state purge failed", logx.Err(err))
	} else if purged > 0 {
		s.log.Info("abandoned dialogs purged", logx.Int("count", purged))
	}

	released, failed, err := s.store.ReleaseStale(ctx, cutoff, cfg.RetryMax)
	if err != nil {
		s.log.Error("stale claim sweep failed", logx.Err(err))
		return
	}
	if released == 0 && failed == 0 {
		return
	}
	s.log.Warn("stale claims reaped", logx.Int("released", released), logx.Int("failed", failed))
	if s.bus != nil {
		now := time.Now()
		s.bus.Publish(eventbus.Event{Type: eventbus.EventClaimReaped, Time: now,
			Data: ReapEvent{Released: released, Failed: failed, At: now}})
	}
}

// horizon reseeds recurring chains that have no open occurrence, catching up
// past occurrences without replaying them.
func (s *Service) horizon(ctx context.Context) {
	cfg := s.snapshot()
	now := time.Now().UTC()

	rules, err := s.store.RulesMissingOccurrence(ctx)
	if err != nil {
		s.log.Error("recurrence sweep failed", logx.Err(err))
		return
	}

	for _, rule := range rules {
		if ctx.Err() != nil {
			return
		}
		last, err := s.store.LastOccurrence(ctx, rule.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue // chain never seeded; creation does that
		}
		if err != nil {
			s.log.Error("last occurrence lookup failed", logx.Int64("rule", rule.ID), logx.Err(err))
			continue
		}

		nextLocal, err := s.advancePast(rule, s.tzr.ToLocal(last.DueAt, rule.Timezone), now)
		if err != nil {
			s.log.Error("occurrence advance failed", logx.Int64("rule", rule.ID), logx.Err(err))
			continue
		}
		next := nextLocal.UTC()
		if next.After(now.Add(cfg.Horizon)) {
			continue // too far out, a later sweep materializes it
		}

		id, err := s.store.CreateReminder(ctx, reminder.Reminder{
			OwnerID:      rule.OwnerID,
			ChatID:       last.ChatID,
			Text:         last.Text,
			DueAt:        next,
			LocalTime:    rule.TimeOfDay,
			Timezone:     rule.Timezone,
			Status:       reminder.StatusPending,
			RecurrenceID: rule.ID,
			ParentID:     last.ID,
		})
		if err != nil {
			s.log.Error("occurrence insert failed", logx.Int64("rule", rule.ID), logx.Err(err))
			continue
		}
		s.log.Info("recurrence chain reseeded",
			logx.Int64("rule", rule.ID), logx.Int64("reminder", id),
			logx.Time("due", next))
	}
}

// advancePast walks occurrences forward until the first one after now.
// Missed occurrences are skipped, not replayed.
func (s *Service) advancePast(rule reminder.RecurrenceRule, lastLocal time.Time, now time.Time) (time.Time, error) {
	next := lastLocal
	for i := 0; i < 1000; i++ {
		n, err := reminder.NextOccurrence(rule, next)
		if err != nil {
			return time.Time{}, err
		}
		next = n
		if next.UTC().After(now) {
			return next, nil
		}
	}
	return time.Time{}, fmt.Errorf("rule %d: no future occurrence within bounds", rule.ID)
}

func (s *Service) publishDelivery(typ string, r reminder.Reminder, sendErr error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := DeliveryEvent{ReminderID: r.ID, OwnerID: r.OwnerID, Attempts: r.Attempts, At: now}
	if sendErr != nil {
		ev.Error = sendErr.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}
