package fetcher

import (
	"context"

	"stockrecs/internal/stock"
)

// Fetcher is the contract every live-data source implements.
// Implementations may be slow and may fail; they are called one candidate
// at a time and never concurrently.
type Fetcher interface {
	// Fetch retrieves price, recommendation label and analyst count for one
	// candidate. A failed fetch returns an error; the caller records the
	// error observation.
	Fetch(ctx context.Context, c stock.Candidate) (stock.Observation, error)

	// Source names the data source, e.g. "msn" or "alphavantage".
	Source() string
}

// Func adapts a plain function to the Fetcher interface.
type Func func(ctx context.Context, c stock.Candidate) (stock.Observation, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, c stock.Candidate) (stock.Observation, error) {
	return f(ctx, c)
}

// Source implements Fetcher.
func (f Func) Source() string {
	return "func"
}
