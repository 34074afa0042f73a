package model

import "time"

// NextOccurrence computes the timestamp of the occurrence following t.
// Arithmetic is calendar-local in t's location; no zone conversion happens.
//
//   - weekly:  exactly 7 days later
//   - monthly: one calendar month later, day-of-month clamped to the last
//     valid day of the target month (Jan 31 -> Feb 28/29)
//   - yearly:  one calendar year later with standard rollover
//     (Feb 29 -> Mar 1 in non-leap years)
//
// Callers must not pass RecurrenceNone; a one-shot reminder has no next
// occurrence and the zero time is returned.
func NextOccurrence(t time.Time, kind Recurrence) time.Time {
	switch kind {
	case RecurrenceWeekly:
		return t.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return addMonthClamped(t)
	case RecurrenceYearly:
		return t.AddDate(1, 0, 0)
	default:
		return time.Time{}
	}
}

func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	last := daysIn(year, month+1)
	if day > last {
		day = last
	}
	return time.Date(year, month+1, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysIn relies on time.Date normalizing day 0 to the last day of the
// previous month. month may be out of range; time.Date normalizes that too.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
