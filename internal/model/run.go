package model

import "time"

// RunStatus is the overall outcome of one investigation run.
type RunStatus string

const (
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
)

// MarketplaceOutcome records the result of one marketplace's search pass
// within a run. Error is empty on success.
type MarketplaceOutcome struct {
	MarketplaceID string
	ListingsFound int
	QueriesIssued int
	Error         string
}

// InvestigationRun is one execution instance of an investigation.
// Append-only history: created by the executor, never mutated after
// completion.
type InvestigationRun struct {
	ID              string
	InvestigationID string
	StartedAt       time.Time
	EndedAt         time.Time
	Status          RunStatus
	Outcomes        []MarketplaceOutcome
	ListingsFound   int
	FlaggedCount    int
	Cancelled       bool
}

// ErrorCount returns how many marketplace passes failed.
func (r *InvestigationRun) ErrorCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Error != "" {
			n++
		}
	}
	return n
}
