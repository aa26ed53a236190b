// Package coordinator runs one reconciliation pass end to end: read the
// source list, load the published results, reconcile, and write back.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"stockrecs/internal/fetcher"
	"stockrecs/internal/reconcile"
	"stockrecs/internal/source"
	"stockrecs/internal/stock"
)

// ErrNoFetcher is returned by Run when no fetch collaborator is configured.
var ErrNoFetcher = errors.New("no fetcher configured")

// Store loads and persists the published result set.
type Store interface {
	Load() *stock.ResultSet
	Save(set *stock.ResultSet) error
}

// Reconciler merges fresh observations into a result set.
type Reconciler interface {
	Reconcile(ctx context.Context, prev *stock.ResultSet, candidates []stock.Candidate, f fetcher.Fetcher) (*stock.ResultSet, reconcile.Report, error)
}

// Config wires a Coordinator.
type Config struct {
	SourcePath    string
	SourceOptions source.Options

	Store      Store
	Reconciler Reconciler

	// Fetcher is closed at the end of every run when it implements io.Closer.
	Fetcher fetcher.Fetcher

	// Output, when set, receives one line per processed candidate.
	Output io.Writer

	Log zerolog.Logger
}

// Summary describes a finished run.
type Summary struct {
	Source   string           `json:"source"`
	Started  time.Time        `json:"started"`
	Finished time.Time        `json:"finished"`
	Rows     source.Stats     `json:"rows"`
	Previous int              `json:"previous"`
	Results  int              `json:"results"`
	Report   reconcile.Report `json:"report"`
}

// Duration returns how long the run took.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Coordinator runs reconciliation passes.
type Coordinator struct {
	cfg Config
	log zerolog.Logger
}

// New creates a new Coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg: cfg,
		log: cfg.Log.With().Str("component", "coordinator").Logger(),
	}
}

// Run executes one pass. A missing source file aborts before the store is
// read or written. Nothing is saved when the context ends mid-run.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Started: time.Now()}
	if c.cfg.Fetcher == nil {
		return summary, ErrNoFetcher
	}
	summary.Source = c.cfg.Fetcher.Source()

	if closer, ok := c.cfg.Fetcher.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				c.log.Warn().Err(err).Msg("Failed to close fetcher")
			}
		}()
	}

	opts := c.cfg.SourceOptions
	opts.Log = c.log
	candidates, stats, err := source.Read(c.cfg.SourcePath, opts)
	if err != nil {
		return summary, fmt.Errorf("read source list: %w", err)
	}
	summary.Rows = stats
	c.log.Info().
		Str("path", c.cfg.SourcePath).
		Int("rows", stats.Rows).
		Int("candidates", len(candidates)).
		Int("malformed", stats.Malformed).
		Msg("Source list read")

	prev := c.cfg.Store.Load()
	summary.Previous = prev.Len()

	next, report, err := c.cfg.Reconciler.Reconcile(ctx, prev, candidates, c.cfg.Fetcher)
	summary.Report = report
	if err != nil {
		summary.Finished = time.Now()
		return summary, fmt.Errorf("reconcile: %w", err)
	}

	if c.cfg.Output != nil {
		for _, res := range report.Results {
			printResult(c.cfg.Output, res)
		}
	}

	if err := c.cfg.Store.Save(next); err != nil {
		summary.Finished = time.Now()
		return summary, fmt.Errorf("save results: %w", err)
	}

	summary.Results = next.Len()
	summary.Finished = time.Now()
	c.log.Info().
		Str("source", summary.Source).
		Int("previous", summary.Previous).
		Int("results", summary.Results).
		Int("inserted", report.Inserted).
		Int("updated", report.Updated).
		Int("removed", report.Disqualified+report.Pruned+report.Truncated).
		Int("fetch_failed", report.FetchFailed).
		Dur("took", summary.Duration()).
		Msg("Run complete")
	return summary, nil
}

// printResult writes one line in the format:
//   - Success: "NAME: PRICE LABEL (N analysts) decision"
//   - Error: "NAME: ERROR - error message"
func printResult(w io.Writer, res fetcher.Result) {
	if res.Error != nil {
		fmt.Fprintf(w, "%s: ERROR - %v\n", res.Name, res.Error)
		return
	}
	o := res.Observation
	fmt.Fprintf(w, "%s: %s %s (%d analysts) %s\n", res.Name, o.Price, o.RecommendationLabel, o.AnalystCount, res.Decision)
}
