package reminder

import (
	"fmt"
	"time"
)

// NextOccurrence computes the local wall-clock time of the occurrence after
// last, per the rule. Pure function: no I/O, no clock reads.
//
// last must carry the owner's location; the result keeps the same location
// and the same time of day.
//
// Monthly rules clamp to the target month's last day when the anchor day
// doesn't exist there (Jan 31 -> Feb 28/29, never rolling into March). The
// anchor is preserved on the rule, so a clamped February still advances to
// March 31, not March 28.
func NextOccurrence(rule RecurrenceRule, last time.Time) (time.Time, error) {
	switch rule.Type {
	case RecurDaily:
		return last.AddDate(0, 0, 1), nil

	case RecurWeekly:
		return last.AddDate(0, 0, 7), nil

	case RecurWeekdays:
		next := last.AddDate(0, 0, 1)
		for isWeekend(next.Weekday()) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case RecurWeekends:
		next := last.AddDate(0, 0, 1)
		for !isWeekend(next.Weekday()) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case RecurMonthly:
		anchor := rule.AnchorDay
		if anchor <= 0 {
			anchor = last.Day()
		}
		y, m := last.Year(), last.Month()+1
		if m > time.December {
			y, m = y+1, time.January
		}
		day := anchor
		if maxDay := daysIn(y, m); day > maxDay {
			day = maxDay
		}
		return time.Date(y, m, day,
			last.Hour(), last.Minute(), last.Second(), 0, last.Location()), nil

	default:
		return time.Time{}, fmt.Errorf("unknown recurrence type %q", rule.Type)
	}
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// daysIn returns the number of days in the given month.
func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
