package model

import "time"

// InvestigationState is the lifecycle state of an investigation.
type InvestigationState string

const (
	StateScheduled InvestigationState = "Scheduled"
	StateRunning   InvestigationState = "Running"
	StateCompleted InvestigationState = "Completed"
	StateFailed    InvestigationState = "Failed"
	StateCancelled InvestigationState = "Cancelled"
)

// Recurrence is the cadence governing when an investigation re-runs.
type Recurrence string

const (
	RecurrenceOneTime  Recurrence = "OneTime"
	RecurrenceDaily    Recurrence = "Daily"
	RecurrenceWeekly   Recurrence = "Weekly"
	RecurrenceBiweekly Recurrence = "Biweekly"
	RecurrenceMonthly  Recurrence = "Monthly"
)

// Valid reports whether r is a known recurrence policy.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOneTime, RecurrenceDaily, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Investigation is a configured, schedulable search for listings matching
// one or more banned products across selected marketplaces. Owned exclusively
// by the scheduler; mutated only through defined state transitions.
type Investigation struct {
	ID             string
	Name           string
	ProductIDs     []string
	MarketplaceIDs []string
	Recurrence     Recurrence
	StartAt        time.Time
	Timezone       string // IANA name, e.g. "America/New_York"
	State          InvestigationState
	NextRunAt      *time.Time // nil while Cancelled, or after a one-time run completed
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the state admits no further transitions except
// via explicit user action.
func (s InvestigationState) Terminal() bool {
	return s == StateCancelled
}
