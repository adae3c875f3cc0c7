package model

import "time"

// RiskLevel is the computed severity tier of a banned product.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// BannedProduct is a recalled/banned product record. It is owned by the
// import subsystem and read-only to the investigation engine; riskLevel is
// computed at import time, never user-editable.
type BannedProduct struct {
	ID              string
	Name            string
	Manufacturer    string
	ModelNumbers    []string
	HazardTags      []string
	Deaths          int
	SeriousInjuries int
	MinorInjuries   int
	UnitsAffected   int
	RiskLevel       RiskLevel
	ImportedAt      time.Time
}
