// Package notifier delivers run-completion events to an external channel.
// Delivery is fire-and-forget: a notifier failure never affects
// investigation state.
package notifier

import (
	"context"
	"fmt"
)

// Event describes a finished (or failed-to-start) investigation run.
type Event struct {
	InvestigationID   string `json:"investigation_id"`
	InvestigationName string `json:"investigation_name"`
	RunID             string `json:"run_id,omitempty"`
	Status            string `json:"status,omitempty"`
	ListingsFound     int    `json:"listings_found"`
	FlaggedCount      int    `json:"flagged_count"`
	Errors            int    `json:"marketplace_errors"`
	Note              string `json:"note,omitempty"`
}

// Summary renders a one-line human-readable version of the event.
func (e Event) Summary() string {
	if e.RunID == "" {
		return fmt.Sprintf("investigation %q: %s", e.InvestigationName, e.Note)
	}
	return fmt.Sprintf("investigation %q run %s: %s, %d listings, %d flagged, %d marketplace errors",
		e.InvestigationName, e.RunID, e.Status, e.ListingsFound, e.FlaggedCount, e.Errors)
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Noop is used when no notification channel is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Notify(context.Context, Event) error { return nil }
