// Package timecodec parses and formats the scheduled-time encodings found in
// outline text. All parsing is local wall-clock; no timezone conversion.
package timecodec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Recognized encodings, in priority order.
var (
	// <2025-10-14 Tue 14:30>
	journalRe = regexp.MustCompile(`<(\d{4}-\d{2}-\d{2})\s+\w+\s+(\d{1,2}:\d{2})>`)
	// 2025-10-14 14:30 or 2025-10-14T14:30
	propertyRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[T\s](\d{1,2}:\d{2})`)
	// 2025-10-14T14:30:00 (seconds truncated)
	isoRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})T(\d{1,2}:\d{2}:\d{2})`)

	// <2025-10-14> or <2025-10-14 Tue>
	allDayBracketRe = regexp.MustCompile(`<(\d{4}-\d{2}-\d{2})(?:\s+\w+)?>`)
	// a standalone date string, nothing else
	allDayBareRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})$`)
)

// CalendarDate is a date with no time-of-day, as extracted from an all-day
// annotation. Resolve it to an instant with ResolveAllDayInstant.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseScheduledInstant extracts a timed schedule from text. It tries the
// journal timestamp first, then the date+HH:MM property form, then the full
// ISO form with seconds (truncated to the minute). Returns false when no
// pattern matches or the matched fields do not form a valid local instant.
func ParseScheduledInstant(text string) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	if m := journalRe.FindStringSubmatch(text); m != nil {
		return composeInstant(m[1], m[2])
	}
	if m := propertyRe.FindStringSubmatch(text); m != nil {
		return composeInstant(m[1], m[2])
	}
	if m := isoRe.FindStringSubmatch(text); m != nil {
		hhmmss := m[2]
		return composeInstant(m[1], hhmmss[:strings.LastIndex(hhmmss, ":")])
	}
	return time.Time{}, false
}

// ParseAllDayDate extracts a date-only schedule: a bracketed date with an
// optional weekday token, or a string that is exactly a date.
func ParseAllDayDate(text string) (CalendarDate, bool) {
	if text == "" {
		return CalendarDate{}, false
	}
	m := allDayBracketRe.FindStringSubmatch(text)
	if m == nil {
		m = allDayBareRe.FindStringSubmatch(strings.TrimSpace(text))
	}
	if m == nil {
		return CalendarDate{}, false
	}
	y, mo, d, ok := splitDate(m[1])
	if !ok {
		return CalendarDate{}, false
	}
	if !calendarValid(y, mo, d) {
		return CalendarDate{}, false
	}
	return CalendarDate{Year: y, Month: time.Month(mo), Day: d}, true
}

// ResolveAllDayInstant combines a calendar date with a configured "HH:MM"
// time-of-day. A malformed or out-of-range time string falls back to 09:00.
func ResolveAllDayInstant(date CalendarDate, defaultTimeOfDay string) time.Time {
	h, min, ok := splitClock(defaultTimeOfDay)
	if !ok {
		h, min = 9, 0
	}
	return time.Date(date.Year, date.Month, date.Day, h, min, 0, 0, time.Local)
}

// FormatForNotification renders an instant relative to now: "Today at 14:30",
// "Tomorrow at 09:00", or "2025-10-14 at 14:30".
func FormatForNotification(at, now time.Time) string {
	clock := at.Format("15:04")
	today := startOfDay(now)
	day := startOfDay(at)
	switch {
	case day.Equal(today):
		return "Today at " + clock
	case day.Equal(today.AddDate(0, 0, 1)):
		return "Tomorrow at " + clock
	default:
		return at.Format("2006-01-02") + " at " + clock
	}
}

// NotificationKey builds the dedup-ledger key for (item, instant, lead time).
// The interval is part of the key so each configured lead time fires
// independently.
func NotificationKey(id string, at time.Time, leadMinutes int) (string, bool) {
	if id == "" || at.IsZero() {
		return "", false
	}
	return fmt.Sprintf("%s_%s_%s_%dmin", id, at.Format("2006-01-02"), at.Format("15:04:05"), leadMinutes), true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func composeInstant(datePart, clockPart string) (time.Time, bool) {
	y, mo, d, ok := splitDate(datePart)
	if !ok {
		return time.Time{}, false
	}
	h, min, ok := splitClock(clockPart)
	if !ok {
		return time.Time{}, false
	}
	if !calendarValid(y, mo, d) {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(mo), d, h, min, 0, 0, time.Local), true
}

func splitDate(s string) (year, month, day int, ok bool) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	y, err1 := strconv.Atoi(parts[0])
	mo, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	if y < 1970 || mo < 1 || mo > 12 || d < 1 || d > 31 {
		return 0, 0, 0, false
	}
	return y, mo, d, true
}

func splitClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// calendarValid rejects combinations like Feb 30 that pass the per-field
// range checks. time.Date normalizes overflow, so a round-trip mismatch
// means the fields were not a real date.
func calendarValid(year, month, day int) bool {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	return t.Year() == year && t.Month() == time.Month(month) && t.Day() == day
}
