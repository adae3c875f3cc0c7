package marketplace

import (
	"context"
	"sync"

	"RecallSentinel/internal/model"
)

// MockSearcher returns controllable fixed data for development and testing.
// Results and errors are keyed by marketplace id; unknown ids return no
// listings.
type MockSearcher struct {
	mu      sync.Mutex
	Results map[string][]model.Listing
	Errors  map[string]error
	Delay   func() // optional hook invoked before returning, for timeout tests
	calls   []Call
}

func NewMockSearcher() *MockSearcher {
	return &MockSearcher{
		Results: make(map[string][]model.Listing),
		Errors:  make(map[string]error),
	}
}

// Call records one Search invocation.
type Call struct {
	MarketplaceID string
	Query         string
}

func (m *MockSearcher) Name() string { return "mock" }

func (m *MockSearcher) Search(ctx context.Context, marketplaceID, query string) ([]model.Listing, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{MarketplaceID: marketplaceID, Query: query})
	delay := m.Delay
	m.mu.Unlock()

	if delay != nil {
		delay()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Errors != nil {
		if err, ok := m.Errors[marketplaceID]; ok && err != nil {
			return nil, err
		}
	}
	return m.Results[marketplaceID], nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockSearcher) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
