package fetcher

import (
	"encoding/json"
	"time"

	"stockrecs/internal/stock"
)

// Result is the outcome of fetching one candidate during a run.
type Result struct {
	// Name is the candidate's name.
	Name string `json:"name"`

	// Observation is what was recorded: the fetched data, or the error
	// sentinel when Error is set.
	Observation stock.Observation `json:"observation"`

	// Error holds the fetch failure, if any. It is encoded as its message.
	Error error `json:"-"`

	// Decision is what the reconciler did with the observation.
	Decision string `json:"decision"`

	Duration time.Duration `json:"duration"`
}

// ErrorMessage returns the error text or an empty string.
func (r Result) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// MarshalJSON encodes the result with the error as a string under "error".
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain(r), r.ErrorMessage()})
}
