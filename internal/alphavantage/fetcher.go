// Package alphavantage fetches candidate observations from the AlphaVantage
// HTTP API: analyst ratings from OVERVIEW and the price from GLOBAL_QUOTE.
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"stockrecs/internal/fetcher"
	"stockrecs/internal/ratelimit"
	"stockrecs/internal/stock"
)

// DefaultBaseURL is the AlphaVantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// Labels maps the rating buckets to the recommendation labels written to
// results. The defaults use the MSN wording so one rule set serves both
// fetchers.
type Labels struct {
	StrongBuy  string `mapstructure:"strong_buy"`
	Buy        string `mapstructure:"buy"`
	Hold       string `mapstructure:"hold"`
	Sell       string `mapstructure:"sell"`
	StrongSell string `mapstructure:"strong_sell"`
}

// DefaultLabels returns the Polish labels MSN shows.
func DefaultLabels() Labels {
	return Labels{
		StrongBuy:  "Zdecydowanie kup",
		Buy:        "Kup",
		Hold:       "Trzymaj",
		Sell:       "Sprzedaj",
		StrongSell: "Zdecydowanie sprzedaj",
	}
}

// Config holds AlphaVantage settings.
type Config struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// SymbolSuffix is appended to the ticker, e.g. ".WAR".
	SymbolSuffix string `mapstructure:"symbol_suffix"`
	Labels       Labels `mapstructure:"labels"`
}

// OverviewResponse is the subset of the OVERVIEW payload we read.
type OverviewResponse struct {
	Symbol           string `json:"Symbol"`
	StrongBuy        string `json:"AnalystRatingStrongBuy"`
	Buy              string `json:"AnalystRatingBuy"`
	Hold             string `json:"AnalystRatingHold"`
	Sell             string `json:"AnalystRatingSell"`
	StrongSell       string `json:"AnalystRatingStrongSell"`
	Note             string `json:"Note"`
	Information      string `json:"Information"`
	ErrorMessageText string `json:"Error Message"`
}

// GlobalQuoteResponse represents the AlphaVantage API response for stock quotes
type GlobalQuoteResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
	Note             string `json:"Note"`
	Information      string `json:"Information"`
	ErrorMessageText string `json:"Error Message"`
}

// Fetcher implements fetcher.Fetcher against AlphaVantage.
type Fetcher struct {
	cfg     Config
	client  *resty.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// New creates an AlphaVantage fetcher. An empty BaseURL uses DefaultBaseURL
// and zero Labels use DefaultLabels.
func New(cfg Config, limiter *ratelimit.Limiter, log zerolog.Logger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Labels == (Labels{}) {
		cfg.Labels = DefaultLabels()
	}
	log = log.With().Str("component", "alphavantage").Logger()
	return &Fetcher{
		cfg:     cfg,
		client:  fetcher.NewHTTPClient(cfg.BaseURL, log),
		limiter: limiter,
		log:     log,
	}
}

// Source implements fetcher.Fetcher.
func (f *Fetcher) Source() string {
	return string(ratelimit.APIAlphaVantage)
}

// Fetch implements fetcher.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, c stock.Candidate) (stock.Observation, error) {
	symbol := f.Symbol(c)

	var overview OverviewResponse
	if err := f.get(ctx, "OVERVIEW", symbol, &overview); err != nil {
		return stock.ErrorObservation(), err
	}
	if err := apiError(overview.Note, overview.Information, overview.ErrorMessageText); err != nil {
		return stock.ErrorObservation(), err
	}

	label, count, err := f.rating(overview)
	if err != nil {
		return stock.ErrorObservation(), err
	}

	var quote GlobalQuoteResponse
	if err := f.get(ctx, "GLOBAL_QUOTE", symbol, &quote); err != nil {
		return stock.ErrorObservation(), err
	}
	if err := apiError(quote.Note, quote.Information, quote.ErrorMessageText); err != nil {
		return stock.ErrorObservation(), err
	}
	if quote.GlobalQuote.Price == "" {
		return stock.ErrorObservation(), fetcher.NewValidationError(fmt.Sprintf("price not found in response for %s", symbol))
	}

	f.log.Debug().Str("symbol", symbol).Str("label", label).Int("analyst_count", count).Msg("Fetched observation")

	return stock.Observation{
		Price:               quote.GlobalQuote.Price,
		RecommendationLabel: label,
		AnalystCount:        count,
	}, nil
}

// Symbol returns the AlphaVantage symbol for c.
func (f *Fetcher) Symbol(c stock.Candidate) string {
	return c.Ticker() + f.cfg.SymbolSuffix
}

func (f *Fetcher) get(ctx context.Context, function, symbol string, result any) error {
	if err := f.limiter.Wait(ctx, ratelimit.APIAlphaVantage); err != nil {
		return fetcher.Classify("rate limit wait", err)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey":   f.cfg.APIKey,
			"function": function,
			"symbol":   symbol,
		}).
		SetResult(result).
		Get("")
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return fetcher.Classify(function, err)
		}
		return fetcher.NewNetworkError(err)
	}
	if !resp.IsSuccess() {
		return fetcher.ClassifyHTTPError(resp.StatusCode())
	}
	return nil
}

type bucket struct {
	label string
	count string
}

// rating picks the bucket with the most analysts. Buckets are listed from
// most to least bullish and ties keep the earlier one.
func (f *Fetcher) rating(o OverviewResponse) (string, int, error) {
	buckets := []bucket{
		{f.cfg.Labels.StrongBuy, o.StrongBuy},
		{f.cfg.Labels.Buy, o.Buy},
		{f.cfg.Labels.Hold, o.Hold},
		{f.cfg.Labels.Sell, o.Sell},
		{f.cfg.Labels.StrongSell, o.StrongSell},
	}

	best, bestCount, total := "", -1, 0
	for _, b := range buckets {
		n, err := parseCount(b.count)
		if err != nil {
			return "", 0, fetcher.NewValidationError(fmt.Sprintf("analyst rating %q: %v", b.count, err))
		}
		total += n
		if n > bestCount {
			best, bestCount = b.label, n
		}
	}
	if total == 0 {
		return "", 0, fetcher.NewValidationError("no analyst ratings for " + o.Symbol)
	}
	return best, total, nil
}

func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "-" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// apiError reports the throttling and error payloads AlphaVantage returns
// with status 200.
func apiError(note, information, message string) error {
	switch {
	case note != "", information != "":
		fe := fetcher.NewRateLimitError(0)
		fe.Message = strings.TrimSpace(note + " " + information)
		return fe
	case message != "":
		return fetcher.NewClientError(0, message)
	default:
		return nil
	}
}

var _ fetcher.Fetcher = (*Fetcher)(nil)
