// Package classify derives a severity tier for a banned product from its
// injury, death, unit-count and hazard data.
package classify

import (
	"strings"

	"RecallSentinel/internal/model"
)

// Hazard tags that force a tier regardless of unit counts.
var (
	highHazards = map[string]bool{
		"fire":           true,
		"electrocution":  true,
		"choking":        true,
		"lead-poisoning": true,
		"strangulation":  true,
	}
	mediumHazards = map[string]bool{
		"cuts":     true,
		"burns":    true,
		"falls":    true,
		"tip-over": true,
	}
)

// Inputs holds the severity-relevant fields of a banned product. Missing
// fields default to zero/empty and degrade toward LOW.
type Inputs struct {
	Deaths          int
	SeriousInjuries int
	MinorInjuries   int
	UnitsAffected   int
	HazardTags      []string
}

// Risk computes the severity tier. Pure function: rules are evaluated
// high-to-low, first match wins, so a product matching both a HIGH rule and
// a MEDIUM rule is HIGH.
func Risk(in Inputs) model.RiskLevel {
	if in.Deaths > 0 || in.SeriousInjuries > 0 || in.UnitsAffected > 10000 || hasAny(in.HazardTags, highHazards) {
		return model.RiskHigh
	}
	if in.MinorInjuries > 0 || (in.UnitsAffected >= 1000 && in.UnitsAffected <= 10000) || hasAny(in.HazardTags, mediumHazards) {
		return model.RiskMedium
	}
	return model.RiskLow
}

// RiskOf classifies a banned product record.
func RiskOf(p *model.BannedProduct) model.RiskLevel {
	return Risk(Inputs{
		Deaths:          p.Deaths,
		SeriousInjuries: p.SeriousInjuries,
		MinorInjuries:   p.MinorInjuries,
		UnitsAffected:   p.UnitsAffected,
		HazardTags:      p.HazardTags,
	})
}

// Import feeds are messy: tags are matched after trimming and lowercasing.
func hasAny(tags []string, set map[string]bool) bool {
	for _, t := range tags {
		if set[strings.ToLower(strings.TrimSpace(t))] {
			return true
		}
	}
	return false
}
