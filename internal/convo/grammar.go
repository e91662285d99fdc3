package convo

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
)

// Pending states accept a deliberately narrow grammar: each prompt names what
// it wants and only that shape (plus cancel words) is parsed. Everything else
// re-prompts.

var cancelWords = map[string]struct{}{
	"cancel": {}, "nevermind": {}, "never mind": {}, "skip": {},
	"forget it": {}, "no thanks": {}, "undo": {},
}

// isCancel reports whether the utterance abandons the pending flow.
func isCancel(s string) bool {
	_, ok := cancelWords[normalize(s)]
	return ok
}

var newCommandRe = regexp.MustCompile(`\b(remind(er)?s?|timers?|alarms?|snooze|lists?|show|help|cancel)\b`)

// isNewCommand detects an unrelated fresh request arriving mid-flow, like
// "show my lists" while a weekday answer is pending. Slash commands always
// count. Every pending-state answer grammar (times, weekdays, day numbers,
// yes/no) is disjoint from these words.
func isNewCommand(s string) bool {
	n := normalize(s)
	if strings.HasPrefix(n, "/") {
		return true
	}
	return newCommandRe.MatchString(n)
}

var affirmWords = map[string]struct{}{
	"yes": {}, "y": {}, "yep": {}, "yeah": {}, "sure": {}, "ok": {}, "okay": {}, "correct": {}, "right": {},
}

var negativeWords = map[string]struct{}{
	"no": {}, "n": {}, "nope": {}, "nah": {}, "wrong": {},
}

func isAffirmative(s string) bool {
	_, ok := affirmWords[normalize(s)]
	return ok
}

func isNegative(s string) bool {
	_, ok := negativeWords[normalize(s)]
	return ok
}

// clockTime is a parsed wall-clock time of day. Meridiem is "" when the
// utterance gave a bare 12-hour value that still needs AM/PM.
type clockTime struct {
	Hour     int // 0..23 once meridiem is applied, 1..12 when ambiguous
	Minute   int
	Meridiem string // "am", "pm", or ""
}

func (c clockTime) ambiguous() bool {
	return c.Meridiem == "" && c.Hour >= 1 && c.Hour <= 12
}

// resolved returns the 24h hour and minute, applying the meridiem.
func (c clockTime) resolved() (int, int) {
	h := c.Hour
	switch c.Meridiem {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	return h, c.Minute
}

var clockRe = regexp.MustCompile(`^(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(?:([ap])\.?m?\.?)?$`)

// parseClockTime parses a time-of-day reply: "4", "4:30", "at 4 pm",
// "16:45", "noon", "midnight".
func parseClockTime(s string) (clockTime, bool) {
	n := normalize(s)
	switch n {
	case "noon":
		return clockTime{Hour: 12, Meridiem: "pm"}, true
	case "midnight":
		return clockTime{Hour: 12, Meridiem: "am"}, true
	}

	m := clockRe.FindStringSubmatch(n)
	if m == nil {
		return clockTime{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return clockTime{}, false
	}

	mer := ""
	switch m[3] {
	case "a":
		mer = "am"
	case "p":
		mer = "pm"
	}

	if mer == "" {
		if hour > 23 {
			return clockTime{}, false
		}
		// Unambiguous 24h forms: hour 0, hours past 12, and zero-padded
		// hours ("06:45" means 06:45, not "6 something").
		if hour == 0 || hour > 12 || (len(m[1]) == 2 && m[1][0] == '0') {
			return clockTime{Hour: hour, Minute: minute, Meridiem: "24h"}, true
		}
		return clockTime{Hour: hour, Minute: minute}, true
	}
	if hour < 1 || hour > 12 {
		return clockTime{}, false
	}
	return clockTime{Hour: hour, Minute: minute, Meridiem: mer}, true
}

var meridiemRe = regexp.MustCompile(`^([ap])\.?m?\.?$`)

// parseMeridiem parses a bare "am"/"pm" reply.
func parseMeridiem(s string) (string, bool) {
	m := meridiemRe.FindStringSubmatch(normalize(s))
	if m == nil {
		return "", false
	}
	if m[1] == "a" {
		return "am", true
	}
	return "pm", true
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.TrimSuffix(normalize(s), "s")]
	if ok {
		return wd, true
	}
	wd, ok = weekdayNames[normalize(s)]
	return wd, ok
}

var dayOfMonthRe = regexp.MustCompile(`^(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?$`)

// parseDayOfMonth parses "31", "the 31st", "1st". Valid range is 1..31;
// short months clamp at expansion time.
func parseDayOfMonth(s string) (int, bool) {
	m := dayOfMonthRe.FindStringSubmatch(normalize(s))
	if m == nil {
		return 0, false
	}
	d, _ := strconv.Atoi(m[1])
	if d < 1 || d > 31 {
		return 0, false
	}
	return d, true
}

var isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// dateSpec is a parsed date reference relative to "now" in the owner's zone.
type dateSpec struct {
	Relative int        // 0 today, 1 tomorrow; used when !HasAbsolute
	Absolute time.Time  // date component only, in the owner's zone
	Weekday  time.Weekday
	Kind     dateKind
}

type dateKind int

const (
	dateRelative dateKind = iota
	dateAbsolute
	dateWeekday
)

func parseDateWord(s string, loc *time.Location) (dateSpec, bool) {
	n := normalize(s)
	switch n {
	case "today", "tonight":
		return dateSpec{Kind: dateRelative, Relative: 0}, true
	case "tomorrow":
		return dateSpec{Kind: dateRelative, Relative: 1}, true
	}
	if wd, ok := parseWeekday(n); ok {
		return dateSpec{Kind: dateWeekday, Weekday: wd}, true
	}
	if m := isoDateRe.FindStringSubmatch(n); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo < 1 || mo > 12 || d < 1 || d > 31 {
			return dateSpec{}, false
		}
		return dateSpec{Kind: dateAbsolute, Absolute: time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)}, true
	}
	return dateSpec{}, false
}

// parseWhen parses a combined date+time reply like "tomorrow at 9am",
// "monday 4:30 pm", "2026-01-08 at 7", or just a time. The returned date
// token is "" when only a time was given.
func parseWhen(s string, loc *time.Location) (string, clockTime, bool) {
	n := normalize(s)

	// Pull a leading date word off, if any.
	fields := strings.Fields(n)
	if len(fields) == 0 {
		return "", clockTime{}, false
	}
	if _, ok := parseDateWord(fields[0], loc); ok {
		rest := strings.TrimSpace(strings.Join(fields[1:], " "))
		if rest == "" {
			return "", clockTime{}, false // date alone is not enough
		}
		ct, ok := parseClockTime(rest)
		if !ok {
			return "", clockTime{}, false
		}
		return fields[0], ct, true
	}
	ct, ok := parseClockTime(n)
	if !ok {
		return "", clockTime{}, false
	}
	return "", ct, true
}

var snoozeRe = regexp.MustCompile(`^snooze(?:\s+(?:for\s+)?(\d{1,3})(?:\s*(?:m|min|mins|minutes))?)?$`)

// parseSnooze parses "snooze", "snooze 20", "snooze for 20 minutes".
// Returns minutes, 0 meaning "use the default".
func parseSnooze(s string) (int, bool) {
	m := snoozeRe.FindStringSubmatch(normalize(s))
	if m == nil {
		return 0, false
	}
	if m[1] == "" {
		return 0, true
	}
	n, _ := strconv.Atoi(m[1])
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// parseRecurrenceWord maps a recurrence phrase onto a rule type.
func parseRecurrenceWord(s string) (reminder.RecurrenceType, bool) {
	switch normalize(s) {
	case "daily", "every day", "everyday":
		return reminder.RecurDaily, true
	case "weekly", "every week":
		return reminder.RecurWeekly, true
	case "weekdays", "every weekday", "on weekdays":
		return reminder.RecurWeekdays, true
	case "weekends", "every weekend", "on weekends":
		return reminder.RecurWeekends, true
	case "monthly", "every month":
		return reminder.RecurMonthly, true
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
