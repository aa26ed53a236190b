// Package source reads candidate stocks from the pipe-delimited
// recommendations file.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"stockrecs/internal/stock"
)

// ErrMissingSourceFile is returned when the recommendations file does not exist.
var ErrMissingSourceFile = errors.New("source file not found")

// Fields maps candidate fields to column positions, counted after leading
// and trailing empty columns have been dropped.
type Fields struct {
	Name           int `mapstructure:"name"`
	Recommendation int `mapstructure:"recommendation"`
	Extra          int `mapstructure:"extra"`
}

// Options controls how the file is parsed.
type Options struct {
	// HeaderLines is the number of leading lines to skip.
	HeaderLines int

	// MinFields is the minimum number of columns for a row to be usable.
	MinFields int

	Fields Fields

	// Filter, when set, keeps only the candidates it accepts.
	Filter func(stock.Candidate) bool

	Log zerolog.Logger
}

// DefaultOptions matches the layout of the maintained recommendations file.
func DefaultOptions() Options {
	return Options{
		HeaderLines: 2,
		MinFields:   5,
		Fields:      Fields{Name: 0, Recommendation: 1, Extra: 4},
		Log:         zerolog.Nop(),
	}
}

// Stats counts what happened to each data row.
type Stats struct {
	Rows      int `json:"rows"`
	Accepted  int `json:"accepted"`
	Malformed int `json:"malformed"`
	Skipped   int `json:"skipped"`
	Filtered  int `json:"filtered"`
}

// RecommendationFilter keeps candidates whose base recommendation equals one
// of labels, ignoring case and surrounding whitespace.
func RecommendationFilter(labels ...string) func(stock.Candidate) bool {
	want := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		want[normalize(l)] = struct{}{}
	}
	return func(c stock.Candidate) bool {
		_, ok := want[normalize(c.BaseRecommendation)]
		return ok
	}
}

// Read opens path and parses it. A missing file wraps ErrMissingSourceFile.
func Read(path string, opts Options) ([]stock.Candidate, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Stats{}, fmt.Errorf("%w: %s", ErrMissingSourceFile, path)
		}
		return nil, Stats{}, fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, opts)
}

// Parse reads candidates from r. Rows that are too short are counted as
// malformed and skipped; only read errors are returned.
func Parse(r io.Reader, opts Options) ([]stock.Candidate, Stats, error) {
	var (
		candidates []stock.Candidate
		stats      Stats
	)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if line <= opts.HeaderLines {
			continue
		}
		stats.Rows++

		c, ok := parseRow(scanner.Text(), opts)
		if !ok {
			stats.Malformed++
			opts.Log.Warn().Int("line", line).Msg("Skipping malformed source row")
			continue
		}
		if c.Name == "" {
			stats.Skipped++
			continue
		}
		if opts.Filter != nil && !opts.Filter(c) {
			stats.Filtered++
			continue
		}

		stats.Accepted++
		candidates = append(candidates, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to read source: %w", err)
	}

	return candidates, stats, nil
}

func parseRow(line string, opts Options) (stock.Candidate, bool) {
	fields := splitRow(line)
	if len(fields) == 0 || len(fields) < opts.MinFields {
		return stock.Candidate{}, false
	}

	f := opts.Fields
	if !inRange(f.Name, fields) || !inRange(f.Recommendation, fields) {
		return stock.Candidate{}, false
	}

	c := stock.Candidate{
		Name:               fields[f.Name],
		BaseRecommendation: fields[f.Recommendation],
	}
	if inRange(f.Extra, fields) {
		c.Extra = fields[f.Extra]
	}
	return c, true
}

// splitRow splits on '|', trims every column and drops the empty columns
// produced by a leading or trailing delimiter.
func splitRow(line string) []string {
	raw := strings.Split(strings.TrimSpace(line), "|")
	fields := make([]string, len(raw))
	for i, f := range raw {
		fields[i] = strings.TrimSpace(f)
	}

	if len(fields) > 0 && fields[0] == "" {
		fields = fields[1:]
	}
	if len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

func inRange(i int, fields []string) bool {
	return i >= 0 && i < len(fields)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
