package convo

import (
	"fmt"
	"time"

	"remindbot/internal/reminder"
)

const (
	promptCancelled     = "Okay, cancelled."
	promptScrapped      = "Okay, scrapped that."
	promptNeedsDateTime = "When should I remind you? (e.g. \"tomorrow at 9am\" or \"at 4:30 pm\")"
	promptNeedsTime     = "What time should I remind you? (e.g. \"9am\" or \"16:45\")"
	promptMeridiem      = "AM or PM?"
	promptNothingOpen   = "You have no upcoming reminders."
	promptNoSnooze      = "There's nothing recent to snooze."
	promptUnknown       = "I didn't catch that. Try something like \"remind me at 7pm to take out the trash\", or /help."
	promptNLUDown       = "I'm having trouble understanding right now, try again in a moment."
	promptPastTime      = "That time has already passed."
)

func promptBadDate(date string) string {
	return fmt.Sprintf("I couldn't read the date %q.", date)
}

func promptRecurrenceDay(rt reminder.RecurrenceType) string {
	if rt == reminder.RecurMonthly {
		return "Which day of the month? (e.g. \"the 15th\")"
	}
	return "Which day of the week? (e.g. \"monday\")"
}

func promptConfirm(st reminder.Staged, loc *time.Location) string {
	if st.Recurrence != "" {
		return fmt.Sprintf("Just to confirm: remind you to %q %s at %s? (yes/no)",
			st.Text, describeCadence(st), st.TimeOfDay)
	}
	return fmt.Sprintf("Just to confirm: remind you to %q on %s? (yes/no)",
		st.Text, st.DueAt.In(loc).Format("Mon, Jan 2 at 3:04 PM"))
}

func describeCadence(st reminder.Staged) string {
	switch st.Recurrence {
	case reminder.RecurDaily:
		return "every day"
	case reminder.RecurWeekly:
		if st.RecurDay != "" {
			return "every " + st.RecurDay
		}
		return "every week"
	case reminder.RecurWeekdays:
		return "on weekdays"
	case reminder.RecurWeekends:
		return "on weekends"
	case reminder.RecurMonthly:
		if st.RecurDay != "" {
			return "monthly on day " + st.RecurDay
		}
		return "every month"
	}
	return string(st.Recurrence)
}

func ackOneShot(text string, local time.Time) string {
	return fmt.Sprintf("Got it. I'll remind you to %q on %s.",
		text, local.Format("Mon, Jan 2 at 3:04 PM"))
}

func ackRecurring(st reminder.Staged, firstLocal time.Time) string {
	return fmt.Sprintf("Got it. I'll remind you to %q %s at %s, starting %s.",
		st.Text, describeCadence(st), st.TimeOfDay,
		firstLocal.Format("Mon, Jan 2"))
}

func ackSnooze(text string, minutes int) string {
	return fmt.Sprintf("Snoozed. I'll nudge you about %q again in %d minutes.", text, minutes)
}
