// Package reconcile merges freshly fetched observations into the previously
// published result set.
//
// A run walks the candidate list once, in order, fetching each candidate
// exactly once. Qualifying observations are upserted, disqualified ones are
// removed, failed fetches leave the existing entry alone. Entries whose name
// is no longer in the candidate list are pruned and the set is capped at
// MaxResults, keeping candidates in list order.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stockrecs/internal/fetcher"
	"stockrecs/internal/rules"
	"stockrecs/internal/stock"
)

// DefaultMaxResults caps the published result set.
const DefaultMaxResults = 20

// Decision records what happened to one candidate.
const (
	DecisionInserted     = "inserted"
	DecisionUpdated      = "updated"
	DecisionDisqualified = "disqualified"
	DecisionRejected     = "rejected"
	DecisionFetchFailed  = "fetch_failed"
)

// Options tunes a Reconciler.
type Options struct {
	// MaxResults caps the result set; zero means DefaultMaxResults.
	MaxResults int
}

// Report summarizes one reconciliation pass.
type Report struct {
	Candidates   int `json:"candidates"`
	Skipped      int `json:"skipped"`
	Inserted     int `json:"inserted"`
	Updated      int `json:"updated"`
	Disqualified int `json:"disqualified"`
	Rejected     int `json:"rejected"`
	FetchFailed  int `json:"fetch_failed"`
	Preserved    int `json:"preserved"`
	Pruned       int `json:"pruned"`
	Truncated    int `json:"truncated"`

	Results []fetcher.Result `json:"results"`
}

// Reconciler applies the inclusion rules to fetched observations.
type Reconciler struct {
	rules      rules.Set
	maxResults int
	log        zerolog.Logger
}

// New creates a Reconciler.
func New(set rules.Set, opts Options, log zerolog.Logger) *Reconciler {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	return &Reconciler{
		rules:      set,
		maxResults: limit,
		log:        log.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile produces the result set to persist from prev and a fresh fetch
// of every candidate. prev is not modified. The context is checked between
// candidates; when it is done the run stops and its error is returned with
// a nil set, so nothing partial gets persisted.
func (r *Reconciler) Reconcile(ctx context.Context, prev *stock.ResultSet, candidates []stock.Candidate, f fetcher.Fetcher) (*stock.ResultSet, Report, error) {
	report := Report{Candidates: len(candidates)}

	working := stock.NewResultSet()
	if prev != nil {
		working = prev.Clone()
	}

	// First position of every current name; drives pruning and final order.
	var order []string
	current := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			r.log.Warn().Err(err).Int("processed", len(report.Results)).Msg("Reconciliation cancelled")
			return nil, report, err
		}

		if c.Name == "" {
			report.Skipped++
			continue
		}
		if _, seen := current[c.Name]; !seen {
			current[c.Name] = struct{}{}
			order = append(order, c.Name)
		}
		wasPresent := prev != nil && prev.Has(c.Name)

		start := time.Now()
		obs, err := fetchOne(ctx, f, c)
		if err != nil {
			obs = stock.ErrorObservation()
		}

		result := fetcher.Result{
			Name:        c.Name,
			Observation: obs,
			Error:       err,
			Duration:    time.Since(start),
		}

		switch {
		case obs.IsError():
			result.Decision = DecisionFetchFailed
			report.FetchFailed++
			if working.Has(c.Name) {
				report.Preserved++
			}
		case r.rules.AcceptObservation(obs):
			if working.Upsert(stock.Merge(c, obs)) {
				result.Decision = DecisionInserted
				report.Inserted++
			} else {
				result.Decision = DecisionUpdated
				report.Updated++
			}
		default:
			if working.Delete(c.Name) {
				result.Decision = DecisionDisqualified
				report.Disqualified++
			} else {
				result.Decision = DecisionRejected
				report.Rejected++
			}
		}

		r.logResult(result, wasPresent)
		report.Results = append(report.Results, result)
	}

	for _, name := range working.Names() {
		if _, ok := current[name]; !ok {
			working.Delete(name)
			report.Pruned++
			r.log.Info().Str("name", name).Msg("Pruned stock no longer in source list")
		}
	}

	next := stock.NewResultSet()
	for _, name := range order {
		if rec, ok := working.Get(name); ok {
			next.Upsert(rec)
		}
	}
	report.Truncated = next.Truncate(r.maxResults)
	if report.Truncated > 0 {
		r.log.Info().Int("dropped", report.Truncated).Int("max", r.maxResults).Msg("Result set truncated")
	}

	return next, report, nil
}

// fetchOne turns a panicking fetcher into an ordinary error so one bad
// candidate cannot abort the run.
func fetchOne(ctx context.Context, f fetcher.Fetcher, c stock.Candidate) (obs stock.Observation, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fetch %s panicked: %v", c.Name, p)
		}
	}()
	return f.Fetch(ctx, c)
}

func (r *Reconciler) logResult(res fetcher.Result, wasPresent bool) {
	if res.Error != nil {
		r.log.Warn().
			Str("name", res.Name).
			Bool("was_present", wasPresent).
			Str("error_type", string(fetcher.TypeOf(res.Error))).
			Err(res.Error).
			Dur("took", res.Duration).
			Msg("Fetch failed, keeping existing entry")
		return
	}

	r.log.Info().
		Str("name", res.Name).
		Bool("was_present", wasPresent).
		Str("decision", res.Decision).
		Str("price", res.Observation.Price).
		Str("label", res.Observation.RecommendationLabel).
		Int("analysts", res.Observation.AnalystCount).
		Dur("took", res.Duration).
		Msg("Candidate processed")
}
