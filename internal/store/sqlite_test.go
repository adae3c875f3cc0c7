package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"RecallSentinel/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_ProductRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	p := &model.BannedProduct{
		ID:              "prod-1",
		Name:            "SuperHeat 2000",
		Manufacturer:    "Acme",
		ModelNumbers:    []string{"SH-2000", "SH-2000X"},
		HazardTags:      []string{"fire"},
		SeriousInjuries: 2,
		UnitsAffected:   500,
		RiskLevel:       model.RiskHigh,
		ImportedAt:      time.Now().Truncate(time.Second),
	}
	if err := s.SaveProduct(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetProduct(ctx, "prod-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != p.Name || got.RiskLevel != model.RiskHigh {
		t.Errorf("got %+v, want %+v", got, p)
	}
	if len(got.ModelNumbers) != 2 || got.ModelNumbers[0] != "SH-2000" {
		t.Errorf("model numbers = %v, want order preserved", got.ModelNumbers)
	}

	if _, err := s.GetProduct(ctx, "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ClaimInvestigation_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	if err := s.CreateInvestigation(ctx, scheduledInvestigation("inv-1", time.Now())); err != nil {
		t.Fatal(err)
	}

	first, err := s.ClaimInvestigation(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.ClaimInvestigation(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if !first || second {
		t.Errorf("claims = (%v, %v), want exactly the first to win", first, second)
	}

	inv, err := s.GetInvestigation(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if inv.State != model.StateRunning {
		t.Errorf("state = %s, want Running", inv.State)
	}
}

func TestSQLiteStore_UpdateInvestigation_StateGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	inv := scheduledInvestigation("inv-1", time.Now())
	if err := s.CreateInvestigation(ctx, inv); err != nil {
		t.Fatal(err)
	}

	// A write based on a stale state must lose without touching the row.
	stale := *inv
	stale.Name = "stale edit"
	stale.State = model.StateScheduled
	ok, err := s.UpdateInvestigation(ctx, &stale, model.StateRunning)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("write with stale expected state was applied")
	}
	got, err := s.GetInvestigation(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "test" {
		t.Errorf("name = %q, stale write leaked through", got.Name)
	}

	fresh := *got
	fresh.Name = "edited"
	ok, err = s.UpdateInvestigation(ctx, &fresh, got.State)
	if err != nil || !ok {
		t.Fatalf("guarded write: ok=%v err=%v", ok, err)
	}

	missing := *got
	missing.ID = "nope"
	if _, err := s.UpdateInvestigation(ctx, &missing, got.State); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_SaveRunResults_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	if err := s.CreateInvestigation(ctx, scheduledInvestigation("inv-1", time.Now())); err != nil {
		t.Fatal(err)
	}

	run := &model.InvestigationRun{
		ID:              "run-1",
		InvestigationID: "inv-1",
		StartedAt:       time.Now().Add(-time.Minute),
		EndedAt:         time.Now(),
		Status:          model.RunCompleted,
		Outcomes: []model.MarketplaceOutcome{
			{MarketplaceID: "ebay", ListingsFound: 3, QueriesIssued: 2},
			{MarketplaceID: "amazon", QueriesIssued: 2, Error: "timeout"},
		},
		ListingsFound: 3,
		FlaggedCount:  1,
	}
	listing := &model.CandidateListing{
		ID:              "cl-1",
		RunID:           "run-1",
		MarketplaceID:   "ebay",
		ProductID:       "prod-1",
		Listing:         model.Listing{ExternalID: "x-1", Title: "SuperHeat 2000", Price: 19.99, Currency: "USD"},
		ConfidenceScore: 0.75,
		Flagged:         true,
		DiscoveredAt:    time.Now(),
	}
	if err := s.SaveRunResults(ctx, run, []*model.CandidateListing{listing}); err != nil {
		t.Fatal(err)
	}

	history, err := s.RunHistory(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d runs, want 1", len(history))
	}
	got := history[0]
	if got.Status != model.RunCompleted || got.FlaggedCount != 1 {
		t.Errorf("run = %+v", got)
	}
	if len(got.Outcomes) != 2 || got.Outcomes[1].Error != "timeout" {
		t.Errorf("outcomes = %+v, want both marketplaces with the error preserved", got.Outcomes)
	}

	ls, err := s.ListingsForRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ls) != 1 || !ls[0].Flagged || ls[0].ConfidenceScore != 0.75 {
		t.Errorf("listings = %+v", ls)
	}
	if ls[0].Listing.Title != "SuperHeat 2000" {
		t.Errorf("title = %q", ls[0].Listing.Title)
	}
}

func TestSQLiteStore_SaveRunResults_AtomicOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	if err := s.CreateInvestigation(ctx, scheduledInvestigation("inv-1", time.Now())); err != nil {
		t.Fatal(err)
	}

	run := &model.InvestigationRun{
		ID:              "run-1",
		InvestigationID: "inv-1",
		StartedAt:       time.Now(),
		EndedAt:         time.Now(),
		Status:          model.RunCompleted,
	}
	good := &model.CandidateListing{ID: "cl-1", RunID: "run-1", DiscoveredAt: time.Now()}
	dup := &model.CandidateListing{ID: "cl-1", RunID: "run-1", DiscoveredAt: time.Now()}

	// The duplicate listing id forces the transaction to fail after the run
	// and the first listing were already inserted.
	if err := s.SaveRunResults(ctx, run, []*model.CandidateListing{good, dup}); err == nil {
		t.Fatal("expected SaveRunResults to fail on duplicate listing id")
	}

	history, err := s.RunHistory(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("run persisted despite failed transaction: %+v", history)
	}
	ls, err := s.ListingsForRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ls) != 0 {
		t.Errorf("listings persisted despite failed transaction: %+v", ls)
	}
}
