package scheduler

import (
	"testing"
	"time"

	"RecallSentinel/internal/model"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestNext_Weekly(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	prev := time.Date(2024, 1, 1, 9, 0, 0, 0, ny)
	next := Next(prev, model.RecurrenceWeekly, ny)
	if next == nil {
		t.Fatal("expected next time")
	}
	want := time.Date(2024, 1, 8, 9, 0, 0, 0, ny)
	if !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}
}

func TestNext_DailyPreservesWallClockAcrossDST(t *testing.T) {
	// US spring-forward: 2024-03-10. The next day's run keeps 09:00 local
	// even though only 23 hours elapse.
	ny := mustLoc(t, "America/New_York")
	prev := time.Date(2024, 3, 9, 9, 0, 0, 0, ny)
	next := Next(prev, model.RecurrenceDaily, ny)
	if next == nil {
		t.Fatal("expected next time")
	}
	if next.Hour() != 9 || next.Day() != 10 {
		t.Errorf("next = %s, want 2024-03-10 09:00 local", next)
	}
	if elapsed := next.Sub(prev); elapsed != 23*time.Hour {
		t.Errorf("elapsed = %v, want 23h across spring-forward", elapsed)
	}
}

func TestNext_Biweekly(t *testing.T) {
	utc := time.UTC
	prev := time.Date(2024, 6, 1, 12, 30, 0, 0, utc)
	next := Next(prev, model.RecurrenceBiweekly, utc)
	want := time.Date(2024, 6, 15, 12, 30, 0, 0, utc)
	if next == nil || !next.Equal(want) {
		t.Errorf("next = %v, want %s", next, want)
	}
}

func TestNext_MonthlyClampsShortMonths(t *testing.T) {
	tests := []struct {
		prev, want time.Time
	}{
		// Jan 31 -> Feb 29 (2024 is a leap year)
		{time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)},
		// Jan 31 2025 -> Feb 28
		{time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC), time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC)},
		// Mar 31 -> Apr 30
		{time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC), time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)},
		// Dec 15 -> Jan 15 next year
		{time.Date(2024, 12, 15, 9, 0, 0, 0, time.UTC), time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)},
		// mid-month stays on the same day
		{time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		next := Next(tt.prev, model.RecurrenceMonthly, time.UTC)
		if next == nil || !next.Equal(tt.want) {
			t.Errorf("Next(%s, Monthly) = %v, want %s", tt.prev.Format("2006-01-02"), next, tt.want.Format("2006-01-02"))
		}
	}
}

func TestNext_OneTimeNeverReschedules(t *testing.T) {
	if next := Next(time.Now(), model.RecurrenceOneTime, time.UTC); next != nil {
		t.Errorf("one-time recurrence returned %s", next)
	}
}

func TestNextAfter_SkipsMissedTicks(t *testing.T) {
	// Scheduler was down for three weeks; missed occurrences collapse into
	// the next future one.
	prev := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 23, 12, 0, 0, 0, time.UTC)
	next := NextAfter(prev, model.RecurrenceWeekly, time.UTC, now)
	want := time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Errorf("NextAfter = %v, want %s", next, want)
	}
}

func TestNextAfter_StrictlyIncreases(t *testing.T) {
	for _, r := range []model.Recurrence{model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceBiweekly, model.RecurrenceMonthly} {
		prev := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
		for i := 0; i < 24; i++ {
			next := NextAfter(prev, r, time.UTC, prev)
			if next == nil {
				t.Fatalf("%s: unexpected nil at step %d", r, i)
			}
			if !next.After(prev) {
				t.Fatalf("%s: next %s not after prev %s", r, next, prev)
			}
			prev = *next
		}
	}
}
