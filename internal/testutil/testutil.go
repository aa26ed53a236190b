package testutil

import (
	"context"
	"errors"
	"sync"

	"stockrecs/internal/fetcher"
	"stockrecs/internal/stock"
)

// ErrNotScripted is returned by a StaticFetcher for names it has no answer for.
var ErrNotScripted = errors.New("no scripted observation")

// MockFetcher is a mock implementation of the Fetcher interface for testing
type MockFetcher struct {
	FetchFunc  func(ctx context.Context, c stock.Candidate) (stock.Observation, error)
	SourceFunc func() string

	mu    sync.Mutex
	calls []string
}

// Fetch implements the Fetcher interface
func (m *MockFetcher) Fetch(ctx context.Context, c stock.Candidate) (stock.Observation, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c.Name)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, c)
	}
	return stock.Observation{}, nil
}

// Source implements the Fetcher interface
func (m *MockFetcher) Source() string {
	if m.SourceFunc != nil {
		return m.SourceFunc()
	}
	return "mock"
}

// Calls returns the candidate names fetched so far, in order.
func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// NewStaticFetcher returns a mock answering from a fixed table. Names mapped
// to the error observation, and names missing from the table, fail.
func NewStaticFetcher(observations map[string]stock.Observation) *MockFetcher {
	return &MockFetcher{
		FetchFunc: func(ctx context.Context, c stock.Candidate) (stock.Observation, error) {
			obs, ok := observations[c.Name]
			if !ok {
				return stock.ErrorObservation(), ErrNotScripted
			}
			if obs.IsError() {
				return obs, fetcher.NewNavigationError("scripted failure", nil)
			}
			return obs, nil
		},
	}
}
