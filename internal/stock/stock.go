package stock

import "strings"

// ErrorValue is the sentinel written into an Observation when a fetch fails.
const ErrorValue = "Error"

// Candidate is one row of the recommendations source file.
type Candidate struct {
	// Name identifies the stock and keys it in the result set,
	// e.g. "1AT (ATAL)".
	Name string

	// BaseRecommendation is the broker-side label, carried through unchanged.
	BaseRecommendation string

	// Extra is an auxiliary carried-through field (a computed target metric).
	Extra string
}

// Ticker returns the part of the name before a parenthesized qualifier.
// "1AT (ATAL)" yields "1AT"; a name without a qualifier is returned trimmed.
func (c Candidate) Ticker() string {
	ticker, _ := splitName(c.Name)
	return ticker
}

// Qualifier returns the parenthesized part of the name, or the ticker when
// the name has none. "1AT (ATAL)" yields "ATAL".
func (c Candidate) Qualifier() string {
	_, qualifier := splitName(c.Name)
	return qualifier
}

func splitName(name string) (string, string) {
	open := strings.Index(name, "(")
	if open < 0 || !strings.Contains(name[open:], ")") {
		trimmed := strings.TrimSpace(name)
		return trimmed, trimmed
	}
	ticker := strings.TrimSpace(name[:open])
	rest := name[open+1:]
	qualifier := strings.TrimSpace(rest[:strings.Index(rest, ")")])
	if qualifier == "" {
		qualifier = ticker
	}
	return ticker, qualifier
}

// Observation is the live data fetched for one candidate.
type Observation struct {
	Price               string
	RecommendationLabel string
	AnalystCount        int
}

// ErrorObservation returns the observation recorded for a failed fetch.
func ErrorObservation() Observation {
	return Observation{
		Price:               ErrorValue,
		RecommendationLabel: ErrorValue,
		AnalystCount:        0,
	}
}

// IsError reports whether the observation is the fetch-failure sentinel.
func (o Observation) IsError() bool {
	return o.RecommendationLabel == ErrorValue
}

// ResultRecord is a candidate merged with its latest qualifying observation.
// The JSON keys match the files written by earlier versions of the scraper.
type ResultRecord struct {
	Name                string `json:"name"`
	BaseRecommendation  string `json:"br_recommendation"`
	Extra               string `json:"cd_k"`
	Price               string `json:"price"`
	RecommendationLabel string `json:"msn_recommendation"`
	AnalystCount        int    `json:"analyst_count"`
}

// Merge builds the persisted record for a candidate and its observation.
func Merge(c Candidate, o Observation) ResultRecord {
	return ResultRecord{
		Name:                c.Name,
		BaseRecommendation:  c.BaseRecommendation,
		Extra:               c.Extra,
		Price:               o.Price,
		RecommendationLabel: o.RecommendationLabel,
		AnalystCount:        o.AnalystCount,
	}
}
