// Package store persists banned products, investigations, runs and candidate
// listings behind a single interface with SQLite and in-memory backends.
package store

import (
	"context"
	"errors"
	"time"

	"RecallSentinel/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence collaborator used by the investigation engine.
// Banned products are read-only to the engine (owned by the import
// subsystem); SaveProduct exists for the import path and for seeding.
type Store interface {
	// Banned products.
	SaveProduct(ctx context.Context, p *model.BannedProduct) error
	GetProduct(ctx context.Context, id string) (*model.BannedProduct, error)
	ListProducts(ctx context.Context) ([]*model.BannedProduct, error)

	// Investigations.
	CreateInvestigation(ctx context.Context, inv *model.Investigation) error
	// UpdateInvestigation writes the record only if its stored state still
	// equals expect, so an edit can never stomp a concurrent claim or
	// finalize. Returns false (and no error) when the state moved on since
	// the caller read it.
	UpdateInvestigation(ctx context.Context, inv *model.Investigation, expect model.InvestigationState) (bool, error)
	GetInvestigation(ctx context.Context, id string) (*model.Investigation, error)
	ListInvestigations(ctx context.Context) ([]*model.Investigation, error)
	// DueInvestigations returns investigations in Scheduled state whose
	// nextRunAt is at or before now.
	DueInvestigations(ctx context.Context, now time.Time) ([]*model.Investigation, error)
	// ClaimInvestigation atomically transitions Scheduled -> Running.
	// Returns false (and no error) when the investigation is not currently
	// claimable, so racing claims resolve to exactly one winner.
	ClaimInvestigation(ctx context.Context, id string) (bool, error)
	// SetInvestigationState records a state transition and the next due time
	// (nil clears it).
	SetInvestigationState(ctx context.Context, id string, state model.InvestigationState, nextRunAt *time.Time) error

	// Runs. SaveRunResults records a run together with its candidate
	// listings atomically: both are stored or neither is.
	SaveRunResults(ctx context.Context, run *model.InvestigationRun, listings []*model.CandidateListing) error
	RunHistory(ctx context.Context, investigationID string) ([]*model.InvestigationRun, error)
	ListingsForRun(ctx context.Context, runID string) ([]*model.CandidateListing, error)

	Close() error
}
