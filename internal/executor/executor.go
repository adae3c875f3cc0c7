// Package executor performs one investigation run: it fans queries out to
// every enabled marketplace, scores every returned listing, and records the
// outcome, tolerating per-marketplace failure.
package executor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"RecallSentinel/internal/marketplace"
	"RecallSentinel/internal/match"
	"RecallSentinel/internal/model"
	"RecallSentinel/internal/query"
	"RecallSentinel/internal/store"
)

// CancelFlag is the cooperative cancellation signal checked between
// marketplace calls. In-flight calls are allowed to finish; no further calls
// are issued once the flag is set.
type CancelFlag interface {
	Cancelled() bool
}

// NeverCancelled is a CancelFlag that is never set.
type NeverCancelled struct{}

func (NeverCancelled) Cancelled() bool { return false }

// Executor runs investigations against marketplace searchers.
type Executor struct {
	Store         store.Store
	Searcher      marketplace.Searcher
	Analyzer      *match.Analyzer
	Parallelism   int           // bounded fan-out cap across all search calls
	SearchTimeout time.Duration // per marketplace call
}

// New creates an Executor, applying defaults for zero-valued knobs.
func New(st store.Store, sr marketplace.Searcher, an *match.Analyzer, parallelism int, searchTimeout time.Duration) *Executor {
	if parallelism < 1 {
		parallelism = 4
	}
	if searchTimeout <= 0 {
		searchTimeout = 15 * time.Second
	}
	return &Executor{
		Store:         st,
		Searcher:      sr,
		Analyzer:      an,
		Parallelism:   parallelism,
		SearchTimeout: searchTimeout,
	}
}

// outcomeTracker aggregates per-marketplace results under a single lock.
type outcomeTracker struct {
	mu       sync.Mutex
	outcomes map[string]*model.MarketplaceOutcome
	calls    int
	failures int
}

func newOutcomeTracker(marketplaceIDs []string) *outcomeTracker {
	t := &outcomeTracker{outcomes: make(map[string]*model.MarketplaceOutcome)}
	for _, id := range marketplaceIDs {
		t.outcomes[id] = &model.MarketplaceOutcome{MarketplaceID: id}
	}
	return t
}

func (t *outcomeTracker) success(marketplaceID string, found int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomes[marketplaceID]
	o.QueriesIssued++
	o.ListingsFound += found
	t.calls++
}

func (t *outcomeTracker) failure(marketplaceID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomes[marketplaceID]
	o.QueriesIssued++
	o.Error = err.Error()
	t.calls++
	t.failures++
}

func (t *outcomeTracker) results(order []string) (outcomes []model.MarketplaceOutcome, calls, failures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range order {
		outcomes = append(outcomes, *t.outcomes[id])
	}
	return outcomes, t.calls, t.failures
}

// Run executes one investigation run and persists it, together with any
// flagged candidate listings, atomically. A non-nil error means no run record
// could be produced; per-marketplace failures are absorbed into the run.
func (e *Executor) Run(ctx context.Context, inv *model.Investigation, flag CancelFlag) (*model.InvestigationRun, error) {
	if flag == nil {
		flag = NeverCancelled{}
	}

	run := &model.InvestigationRun{
		ID:              uuid.New().String(),
		InvestigationID: inv.ID,
		StartedAt:       time.Now(),
	}

	products := e.resolveProducts(ctx, inv)

	// Fatal preconditions short-circuit to Failed without network calls.
	if len(inv.MarketplaceIDs) == 0 || len(products) == 0 {
		run.Status = model.RunFailed
		run.EndedAt = time.Now()
		log.Printf("[WARN] investigation %s: precondition failed (marketplaces=%d products=%d)",
			inv.ID, len(inv.MarketplaceIDs), len(products))
		if err := e.Store.SaveRunResults(ctx, run, nil); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
		return run, nil
	}

	tracker := newOutcomeTracker(inv.MarketplaceIDs)

	var listingMu sync.Mutex
	var flagged []*model.CandidateListing
	totalFound := 0
	seen := make(map[string]bool) // dedup key: marketplace|product|external id

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Parallelism)

	for _, marketplaceID := range inv.MarketplaceIDs {
		for _, p := range products {
			queries := query.Build(p)
			if len(queries) == 0 {
				// No usable identifying fields: the pass is a no-op for
				// this product, not an error.
				continue
			}
			for _, q := range queries {
				marketplaceID, p, q := marketplaceID, p, q
				g.Go(func() error {
					if flag.Cancelled() || gctx.Err() != nil {
						return nil
					}
					callCtx, cancel := context.WithTimeout(gctx, e.SearchTimeout)
					defer cancel()
					listings, err := e.Searcher.Search(callCtx, marketplaceID, q)
					if err != nil {
						tracker.failure(marketplaceID, err)
						log.Printf("[WARN] search %s %q: %v", marketplaceID, q, err)
						return nil // absorbed; never aborts the group
					}
					tracker.success(marketplaceID, len(listings))

					listingMu.Lock()
					defer listingMu.Unlock()
					for i := range listings {
						l := listings[i]
						key := marketplaceID + "|" + p.ID + "|" + l.ExternalID
						if l.ExternalID != "" && seen[key] {
							continue
						}
						seen[key] = true
						totalFound++
						res := e.Analyzer.Evaluate(&l, p)
						if !res.Flagged {
							continue
						}
						flagged = append(flagged, &model.CandidateListing{
							ID:              uuid.New().String(),
							RunID:           run.ID,
							MarketplaceID:   marketplaceID,
							ProductID:       p.ID,
							Listing:         l,
							ConfidenceScore: res.Confidence,
							Flagged:         true,
							DiscoveredAt:    time.Now(),
						})
					}
					return nil
				})
			}
		}
	}
	_ = g.Wait() // tasks never return errors; failures live in the tracker

	outcomes, calls, failures := tracker.results(inv.MarketplaceIDs)
	run.Outcomes = outcomes
	run.ListingsFound = totalFound
	run.FlaggedCount = len(flagged)
	run.Cancelled = flag.Cancelled()
	run.EndedAt = time.Now()

	// Failed only when every attempted call failed; partial success is a
	// completed run with error entries attached for visibility.
	if calls > 0 && failures == calls {
		run.Status = model.RunFailed
		flagged = nil
		run.FlaggedCount = 0
	} else {
		run.Status = model.RunCompleted
	}

	if err := e.Store.SaveRunResults(ctx, run, flagged); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	log.Printf("[INFO] run %s for investigation %s: status=%s listings=%d flagged=%d errors=%d cancelled=%v",
		run.ID, inv.ID, run.Status, run.ListingsFound, run.FlaggedCount, failures, run.Cancelled)
	return run, nil
}

// resolveProducts loads the investigation's target products, skipping ids
// that no longer resolve.
func (e *Executor) resolveProducts(ctx context.Context, inv *model.Investigation) []*model.BannedProduct {
	var products []*model.BannedProduct
	for _, id := range inv.ProductIDs {
		p, err := e.Store.GetProduct(ctx, id)
		if err != nil {
			log.Printf("[WARN] investigation %s: product %s: %v", inv.ID, id, err)
			continue
		}
		products = append(products, p)
	}
	return products
}
