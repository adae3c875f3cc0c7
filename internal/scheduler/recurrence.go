package scheduler

import (
	"time"

	"RecallSentinel/internal/model"
)

// Next computes the next due time after prev for the given recurrence,
// preserving wall-clock time-of-day in loc across DST transitions. Returns
// nil for one-time investigations.
func Next(prev time.Time, r model.Recurrence, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.UTC
	}
	p := prev.In(loc)
	var next time.Time
	switch r {
	case model.RecurrenceDaily:
		next = p.AddDate(0, 0, 1)
	case model.RecurrenceWeekly:
		next = p.AddDate(0, 0, 7)
	case model.RecurrenceBiweekly:
		next = p.AddDate(0, 0, 14)
	case model.RecurrenceMonthly:
		next = addMonthClamped(p)
	default: // OneTime or unknown
		return nil
	}
	return &next
}

// NextAfter advances prev's schedule until it lies strictly after now, so
// missed ticks collapse into a single future occurrence rather than a
// catch-up burst. The advance is always anchored to the prior scheduled
// time, never to completion time, to avoid drift.
func NextAfter(prev time.Time, r model.Recurrence, loc *time.Location, now time.Time) *time.Time {
	next := Next(prev, r, loc)
	for next != nil && !next.After(now) {
		next = Next(*next, r, loc)
	}
	return next
}

// addMonthClamped moves to the same day-of-month in the next month,
// clamping to the last day when the target month is shorter (Jan 31 ->
// Feb 28/29). time.AddDate would normalize Jan 31 into March, which is not
// what a monthly schedule means.
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
