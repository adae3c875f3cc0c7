package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"RecallSentinel/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store, used in tests and when no
// SQLite path is configured.
type MemoryStore struct {
	mu             sync.Mutex
	products       map[string]model.BannedProduct
	investigations map[string]model.Investigation
	runs           map[string][]model.InvestigationRun // keyed by investigation id
	listings       map[string][]model.CandidateListing // keyed by run id
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:       make(map[string]model.BannedProduct),
		investigations: make(map[string]model.Investigation),
		runs:           make(map[string][]model.InvestigationRun),
		listings:       make(map[string][]model.CandidateListing),
	}
}

func (s *MemoryStore) SaveProduct(_ context.Context, p *model.BannedProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*model.BannedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]*model.BannedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.BannedProduct, 0, len(s.products))
	for _, p := range s.products {
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateInvestigation(_ context.Context, inv *model.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.investigations[inv.ID] = *inv
	return nil
}

func (s *MemoryStore) UpdateInvestigation(_ context.Context, inv *model.Investigation, expect model.InvestigationState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.investigations[inv.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.State != expect {
		return false, nil
	}
	s.investigations[inv.ID] = *inv
	return true, nil
}

func (s *MemoryStore) GetInvestigation(_ context.Context, id string) (*model.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.investigations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (s *MemoryStore) ListInvestigations(_ context.Context) ([]*model.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Investigation, 0, len(s.investigations))
	for _, inv := range s.investigations {
		cp := inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DueInvestigations(_ context.Context, now time.Time) ([]*model.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*model.Investigation
	for _, inv := range s.investigations {
		if inv.State == model.StateScheduled && inv.NextRunAt != nil && !inv.NextRunAt.After(now) {
			cp := inv
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })
	return due, nil
}

func (s *MemoryStore) ClaimInvestigation(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.investigations[id]
	if !ok {
		return false, ErrNotFound
	}
	if inv.State != model.StateScheduled {
		return false, nil
	}
	inv.State = model.StateRunning
	inv.UpdatedAt = time.Now()
	s.investigations[id] = inv
	return true, nil
}

func (s *MemoryStore) SetInvestigationState(_ context.Context, id string, state model.InvestigationState, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.investigations[id]
	if !ok {
		return ErrNotFound
	}
	inv.State = state
	inv.NextRunAt = nextRunAt
	inv.UpdatedAt = time.Now()
	s.investigations[id] = inv
	return nil
}

func (s *MemoryStore) SaveRunResults(_ context.Context, run *model.InvestigationRun, listings []*model.CandidateListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.InvestigationID] = append(s.runs[run.InvestigationID], *run)
	for _, l := range listings {
		s.listings[run.ID] = append(s.listings[run.ID], *l)
	}
	return nil
}

func (s *MemoryStore) RunHistory(_ context.Context, investigationID string) ([]*model.InvestigationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := s.runs[investigationID]
	out := make([]*model.InvestigationRun, 0, len(runs))
	for _, r := range runs {
		cp := r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) ListingsForRun(_ context.Context, runID string) ([]*model.CandidateListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.listings[runID]
	out := make([]*model.CandidateListing, 0, len(ls))
	for _, l := range ls {
		cp := l
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
