// Package scheduler owns the investigation state machine: it computes
// next-run times from the recurrence policy, drives the executor when an
// investigation comes due, and guarantees at most one active run per
// investigation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"RecallSentinel/internal/executor"
	"RecallSentinel/internal/model"
	"RecallSentinel/internal/notifier"
	"RecallSentinel/internal/store"
)

// ErrValidation marks errors rejected synchronously at create/update time;
// they never enter the state machine.
var ErrValidation = errors.New("validation")

// ErrNotCancellable is returned when cancelling an already-cancelled
// investigation.
var ErrNotCancellable = errors.New("investigation is already cancelled")

// Runner executes one investigation run. Satisfied by *executor.Executor.
type Runner interface {
	Run(ctx context.Context, inv *model.Investigation, flag executor.CancelFlag) (*model.InvestigationRun, error)
}

// cancelFlag is the cooperative per-run cancellation signal.
type cancelFlag struct{ v atomic.Bool }

func (f *cancelFlag) Cancelled() bool { return f.v.Load() }

// Scheduler drives investigations through their lifecycle.
type Scheduler struct {
	Store    store.Store
	Runner   Runner
	Notifier notifier.Notifier

	MaxAttempts int           // attempts for a run that fails before producing a record
	BackoffBase time.Duration // first retry delay, doubled per attempt

	cron *cron.Cron
	ctx  context.Context
	now  func() time.Time

	mu    sync.Mutex
	flags map[string]*cancelFlag // cancellation flags for in-flight runs
	wg    sync.WaitGroup
}

// New creates a Scheduler. ctx bounds all background work.
func New(ctx context.Context, st store.Store, runner Runner, n notifier.Notifier) *Scheduler {
	if n == nil {
		n = notifier.NewNoop()
	}
	return &Scheduler{
		Store:       st,
		Runner:      runner,
		Notifier:    n,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		cron:        cron.New(),
		ctx:         ctx,
		now:         time.Now,
		flags:       make(map[string]*cancelFlag),
	}
}

// Start registers the due-scan tick and starts the cron driver.
func (s *Scheduler) Start(tickSpec string) error {
	if tickSpec == "" {
		tickSpec = "@every 1m"
	}
	if _, err := s.cron.AddFunc(tickSpec, s.Tick); err != nil {
		return fmt.Errorf("register due scan: %w", err)
	}
	s.cron.Start()
	log.Printf("[INFO] scheduler started (tick %s)", tickSpec)
	return nil
}

// Stop stops the cron driver and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.wg.Wait()
	log.Println("[INFO] scheduler stopped")
}

// CreateParams are the user-supplied fields of a new investigation.
type CreateParams struct {
	Name           string
	ProductIDs     []string
	MarketplaceIDs []string
	Recurrence     model.Recurrence
	StartAt        time.Time
	Timezone       string
	CreatedBy      string
}

func (p *CreateParams) validate() (*time.Location, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !p.Recurrence.Valid() {
		return nil, fmt.Errorf("%w: unknown recurrence %q", ErrValidation, p.Recurrence)
	}
	if len(p.ProductIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one target product is required", ErrValidation)
	}
	if len(p.MarketplaceIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one target marketplace is required", ErrValidation)
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %v", ErrValidation, err)
	}
	return loc, nil
}

// CreateInvestigation validates and stores a new investigation in Scheduled
// state, due at its start time.
func (s *Scheduler) CreateInvestigation(ctx context.Context, p CreateParams) (*model.Investigation, error) {
	loc, err := p.validate()
	if err != nil {
		return nil, err
	}
	if p.StartAt.IsZero() {
		p.StartAt = s.now()
	}
	startAt := p.StartAt.In(loc)
	now := s.now()
	inv := &model.Investigation{
		ID:             uuid.New().String(),
		Name:           p.Name,
		ProductIDs:     p.ProductIDs,
		MarketplaceIDs: p.MarketplaceIDs,
		Recurrence:     p.Recurrence,
		StartAt:        startAt,
		Timezone:       p.Timezone,
		State:          model.StateScheduled,
		NextRunAt:      &startAt,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Store.CreateInvestigation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create investigation: %w", err)
	}
	log.Printf("[INFO] investigation %s created (%s, %s, next run %s)",
		inv.ID, inv.Name, inv.Recurrence, startAt.Format(time.RFC3339))
	return inv, nil
}

// UpdateInvestigation applies new targets/schedule to an investigation.
// While Scheduled, the next due time is recomputed immediately from the new
// start time; while Running, the changes take effect on the next run. The
// write is conditional on the state the edit was based on, so an edit racing
// a claim or a finalize retries against the fresh state instead of stomping
// it.
func (s *Scheduler) UpdateInvestigation(ctx context.Context, id string, p CreateParams) (*model.Investigation, error) {
	loc, err := p.validate()
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < 3; attempt++ {
		inv, err := s.Store.GetInvestigation(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv.State == model.StateCancelled {
			return nil, fmt.Errorf("%w: cannot edit a cancelled investigation", ErrValidation)
		}
		readState := inv.State

		inv.Name = p.Name
		inv.ProductIDs = p.ProductIDs
		inv.MarketplaceIDs = p.MarketplaceIDs
		inv.Recurrence = p.Recurrence
		inv.Timezone = p.Timezone
		if !p.StartAt.IsZero() {
			inv.StartAt = p.StartAt.In(loc)
		}
		if inv.State != model.StateRunning {
			// Recompute immediately. A completed one-time investigation
			// becomes schedulable again with a fresh start time.
			next := inv.StartAt
			inv.NextRunAt = &next
			inv.State = model.StateScheduled
		}
		ok, err := s.Store.UpdateInvestigation(ctx, inv, readState)
		if err != nil {
			return nil, fmt.Errorf("update investigation: %w", err)
		}
		if ok {
			return inv, nil
		}
		// Lost against a concurrent claim, finalize or cancel: re-read and
		// re-apply the edit on top of the current state.
		log.Printf("[WARN] investigation %s changed state during edit, retrying", id)
	}
	return nil, fmt.Errorf("update investigation %s: state kept changing concurrently", id)
}

// CancelInvestigation moves any non-terminal investigation to Cancelled and
// clears its next due time. A run already in flight is signalled
// cooperatively and allowed to finish, but its completion will not
// reschedule.
func (s *Scheduler) CancelInvestigation(ctx context.Context, id string) error {
	inv, err := s.Store.GetInvestigation(ctx, id)
	if err != nil {
		return err
	}
	if inv.State == model.StateCancelled {
		return ErrNotCancellable
	}
	if err := s.Store.SetInvestigationState(ctx, id, model.StateCancelled, nil); err != nil {
		return err
	}

	s.mu.Lock()
	if flag, ok := s.flags[id]; ok {
		flag.v.Store(true)
	}
	s.mu.Unlock()

	log.Printf("[INFO] investigation %s cancelled", id)
	return nil
}

// TriggerNow claims and runs a Scheduled investigation immediately. A claim
// that loses the race with the automatic tick (or another manual trigger) is
// a silent no-op and returns false.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) (bool, error) {
	inv, err := s.Store.GetInvestigation(ctx, id)
	if err != nil {
		return false, err
	}
	claimed, err := s.Store.ClaimInvestigation(ctx, id)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	s.dispatch(inv)
	return true, nil
}

// RunHistory returns the append-only run history for an investigation.
func (s *Scheduler) RunHistory(ctx context.Context, id string) ([]*model.InvestigationRun, error) {
	if _, err := s.Store.GetInvestigation(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.RunHistory(ctx, id)
}

// Tick scans for due investigations and dispatches each one it wins the
// claim for. Runs for different investigations execute concurrently.
func (s *Scheduler) Tick() {
	due, err := s.Store.DueInvestigations(s.ctx, s.now())
	if err != nil {
		log.Printf("[ERROR] due scan: %v", err)
		return
	}
	for _, inv := range due {
		claimed, err := s.Store.ClaimInvestigation(s.ctx, inv.ID)
		if err != nil {
			log.Printf("[ERROR] claim %s: %v", inv.ID, err)
			continue
		}
		if !claimed {
			continue // another tick or a manual trigger got there first
		}
		s.dispatch(inv)
	}
}

// dispatch starts the run on its own goroutine. Caller must hold the claim.
func (s *Scheduler) dispatch(inv *model.Investigation) {
	flag := &cancelFlag{}
	s.mu.Lock()
	s.flags[inv.ID] = flag
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.flags, inv.ID)
			s.mu.Unlock()
		}()
		s.execute(inv, flag)
	}()
}

// execute runs the investigation with bounded retries, then finalizes the
// state machine transition. Per-marketplace failures are already absorbed by
// the executor; a retry here only happens when no run record could be
// produced at all.
func (s *Scheduler) execute(inv *model.Investigation, flag *cancelFlag) {
	var run *model.InvestigationRun
	var err error
	for attempt := 0; attempt < s.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := s.BackoffBase << uint(attempt-1)
			log.Printf("[WARN] run attempt %d/%d for %s failed: %v, retrying in %v",
				attempt, s.MaxAttempts, inv.ID, err, backoff)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
		run, err = s.Runner.Run(s.ctx, inv, flag)
		if err == nil {
			break
		}
	}
	if err != nil {
		// Scheduler-fatal: repeated failure to even record a run forces the
		// investigation to Failed for manual intervention.
		log.Printf("[ERROR] investigation %s forced to Failed after %d attempts: %v", inv.ID, s.MaxAttempts, err)
		if serr := s.Store.SetInvestigationState(s.ctx, inv.ID, model.StateFailed, nil); serr != nil {
			log.Printf("[ERROR] record forced failure for %s: %v", inv.ID, serr)
		}
		s.notify(inv, nil, fmt.Sprintf("forced to Failed: %v", err))
		return
	}
	s.finalize(inv, run)
}

// finalize applies the Running -> Completed|Failed transition and, for
// recurring investigations, the immediate reschedule back to Scheduled.
func (s *Scheduler) finalize(claimed *model.Investigation, run *model.InvestigationRun) {
	// Reload: the investigation may have been cancelled or edited while the
	// run was in flight. Edits take effect here, on the next reschedule.
	inv, err := s.Store.GetInvestigation(s.ctx, claimed.ID)
	if err != nil {
		log.Printf("[ERROR] reload investigation %s: %v", claimed.ID, err)
		return
	}
	if inv.State == model.StateCancelled {
		// Cancellation won: the finished run's results stand, but it does
		// not reschedule.
		s.notify(inv, run, "")
		return
	}

	state := model.StateCompleted
	if run.Status == model.RunFailed {
		state = model.StateFailed
	}

	var next *time.Time
	if inv.Recurrence != model.RecurrenceOneTime {
		loc, lerr := time.LoadLocation(inv.Timezone)
		if lerr != nil {
			log.Printf("[WARN] investigation %s: timezone %q: %v, using UTC", inv.ID, inv.Timezone, lerr)
			loc = time.UTC
		}
		// Anchor to the prior scheduled time so the cadence never drifts.
		anchor := inv.StartAt
		if claimed.NextRunAt != nil {
			anchor = *claimed.NextRunAt
		}
		next = NextAfter(anchor, inv.Recurrence, loc, s.now())
		if next != nil {
			// Outcome recorded, then straight back to Scheduled; failed
			// runs never permanently block future attempts.
			state = model.StateScheduled
		}
	}

	if err := s.Store.SetInvestigationState(s.ctx, inv.ID, state, next); err != nil {
		log.Printf("[ERROR] finalize investigation %s: %v", inv.ID, err)
	}
	s.notify(inv, run, "")
}

// notify is fire-and-forget: notifier failure never affects investigation
// state.
func (s *Scheduler) notify(inv *model.Investigation, run *model.InvestigationRun, note string) {
	ev := notifier.Event{
		InvestigationID:   inv.ID,
		InvestigationName: inv.Name,
		Note:              note,
	}
	if run != nil {
		ev.RunID = run.ID
		ev.Status = string(run.Status)
		ev.ListingsFound = run.ListingsFound
		ev.FlaggedCount = run.FlaggedCount
		ev.Errors = run.ErrorCount()
	}
	if err := s.Notifier.Notify(s.ctx, ev); err != nil {
		log.Printf("[WARN] notify for %s: %v", inv.ID, err)
	}
}
