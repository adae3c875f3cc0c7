package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"RecallSentinel/internal/model"
)

func scheduledInvestigation(id string, due time.Time) *model.Investigation {
	return &model.Investigation{
		ID:         id,
		Name:       "test",
		Recurrence: model.RecurrenceWeekly,
		State:      model.StateScheduled,
		NextRunAt:  &due,
		CreatedAt:  time.Now(),
	}
}

func TestClaimInvestigation_ExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateInvestigation(ctx, scheduledInvestigation("inv-1", time.Now())); err != nil {
		t.Fatal(err)
	}

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimInvestigation(ctx, "inv-1")
			if err != nil {
				t.Errorf("claim error: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Errorf("expected exactly one successful claim, got %d", won)
	}

	inv, err := s.GetInvestigation(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if inv.State != model.StateRunning {
		t.Errorf("state = %s, want Running", inv.State)
	}
}

func TestClaimInvestigation_NonScheduledIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	inv := scheduledInvestigation("inv-1", time.Now())
	inv.State = model.StateCancelled
	if err := s.CreateInvestigation(ctx, inv); err != nil {
		t.Fatal(err)
	}
	ok, err := s.ClaimInvestigation(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("claim on cancelled investigation should fail silently")
	}
}

func TestDueInvestigations_FiltersStateAndTime(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	past := scheduledInvestigation("due", now.Add(-time.Minute))
	future := scheduledInvestigation("future", now.Add(time.Hour))
	running := scheduledInvestigation("running", now.Add(-time.Minute))
	running.State = model.StateRunning
	noNext := scheduledInvestigation("no-next", now)
	noNext.NextRunAt = nil

	for _, inv := range []*model.Investigation{past, future, running, noNext} {
		if err := s.CreateInvestigation(ctx, inv); err != nil {
			t.Fatal(err)
		}
	}

	due, err := s.DueInvestigations(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Errorf("due = %v, want exactly [due]", due)
	}
}

func TestUpdateInvestigation_RequiresExpectedState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateInvestigation(ctx, scheduledInvestigation("inv-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimInvestigation(ctx, "inv-1"); err != nil {
		t.Fatal(err)
	}

	// An edit based on the pre-claim Scheduled state must not apply.
	stale := scheduledInvestigation("inv-1", time.Now())
	stale.Name = "stale edit"
	ok, err := s.UpdateInvestigation(ctx, stale, model.StateScheduled)
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
	if got.State != model.StateRunning || got.Name == "stale edit" {
		t.Errorf("record stomped by stale edit: %+v", got)
	}

	fresh := *got
	fresh.Name = "edited"
	if ok, err := s.UpdateInvestigation(ctx, &fresh, model.StateRunning); err != nil || !ok {
		t.Fatalf("guarded write: ok=%v err=%v", ok, err)
	}
}

func TestSaveRunResults_AppendOnlyHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run1 := &model.InvestigationRun{ID: "run-1", InvestigationID: "inv-1", StartedAt: time.Now().Add(-time.Minute), Status: model.RunCompleted}
	run2 := &model.InvestigationRun{ID: "run-2", InvestigationID: "inv-1", StartedAt: time.Now(), Status: model.RunFailed}
	listing := &model.CandidateListing{ID: "cl-1", RunID: "run-1", ConfidenceScore: 0.7, Flagged: true}

	if err := s.SaveRunResults(ctx, run1, []*model.CandidateListing{listing}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRunResults(ctx, run2, nil); err != nil {
		t.Fatal(err)
	}

	history, err := s.RunHistory(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].ID != "run-1" || history[1].ID != "run-2" {
		t.Errorf("unexpected history order: %+v", history)
	}

	ls, err := s.ListingsForRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ls) != 1 || !ls[0].Flagged {
		t.Errorf("unexpected listings: %+v", ls)
	}
}
