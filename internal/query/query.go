// Package query builds marketplace search query strings from a banned
// product's identifying fields.
package query

import (
	"strings"

	"RecallSentinel/internal/model"
)

// Build returns the ordered, deduplicated query strings for a product:
// full name, name+manufacturer, each model number, and manufacturer+model
// combinations. Whitespace-only fields are skipped. The result is recomputed
// fresh on every call; an empty slice means the product has no usable fields
// and the marketplace pass should be a no-op.
func Build(p *model.BannedProduct) []string {
	name := strings.TrimSpace(p.Name)
	manufacturer := strings.TrimSpace(p.Manufacturer)

	var queries []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" {
			return
		}
		key := strings.ToLower(q)
		if seen[key] {
			return
		}
		seen[key] = true
		queries = append(queries, q)
	}

	add(name)
	if name != "" && manufacturer != "" {
		add(name + " " + manufacturer)
	}
	for _, m := range p.ModelNumbers {
		add(m)
	}
	if manufacturer != "" {
		for _, m := range p.ModelNumbers {
			if strings.TrimSpace(m) == "" {
				continue
			}
			add(manufacturer + " " + m)
		}
	}
	return queries
}
