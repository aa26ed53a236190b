package browser

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"stockrecs/internal/fetcher"
	"stockrecs/internal/ratelimit"
	"stockrecs/internal/stock"
)

const urlPollInterval = 250 * time.Millisecond

// MSNFetcher looks candidates up through the MSN Finance search box and
// reads the analyst card of the resulting quote page.
type MSNFetcher struct {
	session *Session
	cfg     Config
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// NewMSNFetcher creates a fetcher sharing session's page.
func NewMSNFetcher(session *Session, cfg Config, limiter *ratelimit.Limiter, log zerolog.Logger) *MSNFetcher {
	return &MSNFetcher{
		session: session,
		cfg:     cfg,
		limiter: limiter,
		log:     log.With().Str("component", "msn_fetcher").Logger(),
	}
}

// Source implements fetcher.Fetcher.
func (f *MSNFetcher) Source() string {
	return string(ratelimit.APIMSN)
}

// Close shuts the browser down. The next Fetch starts a new one.
func (f *MSNFetcher) Close() error {
	return f.session.Close()
}

// Fetch implements fetcher.Fetcher.
func (f *MSNFetcher) Fetch(ctx context.Context, c stock.Candidate) (stock.Observation, error) {
	obs, err := f.fetch(ctx, c)
	if err != nil {
		// A half-navigated page can poison the next lookup.
		f.session.ResetPage()
		return stock.ErrorObservation(), err
	}
	return obs, nil
}

func (f *MSNFetcher) fetch(ctx context.Context, c stock.Candidate) (stock.Observation, error) {
	ticker, qualifier := c.Ticker(), c.Qualifier()
	log := f.log.With().Str("name", c.Name).Str("ticker", ticker).Logger()

	if err := f.limiter.Wait(ctx, ratelimit.APIMSN); err != nil {
		return stock.Observation{}, fetcher.Classify("rate limit wait", err)
	}

	page, err := f.session.Page(ctx)
	if err != nil {
		return stock.Observation{}, fetcher.NewNavigationError("browser unavailable", err)
	}

	if err := f.open(ctx, page); err != nil {
		return stock.Observation{}, err
	}
	f.dismissConsent(ctx, page, log)

	box, err := f.search(ctx, page, ticker)
	if err != nil {
		return stock.Observation{}, err
	}
	if err := sleep(ctx, f.cfg.SuggestionDelay); err != nil {
		return stock.Observation{}, fetcher.Classify("suggestion wait", err)
	}

	picked, err := f.pickSuggestion(ctx, page, qualifier)
	if err != nil {
		return stock.Observation{}, err
	}
	if !picked {
		log.Debug().Msg("No matching suggestion, submitting search")
		if err := box.Type(input.Enter); err != nil {
			return stock.Observation{}, fetcher.Classify("submit search", err)
		}
	}

	if err := f.waitForQuotePage(ctx, page); err != nil {
		return stock.Observation{}, err
	}
	if err := sleep(ctx, f.cfg.SettleDelay); err != nil {
		return stock.Observation{}, fetcher.Classify("settle wait", err)
	}

	html, err := page.Context(ctx).HTML()
	if err != nil {
		return stock.Observation{}, fetcher.Classify("read quote page", err)
	}
	return Extract(html, f.cfg.Selectors)
}

func (f *MSNFetcher) open(ctx context.Context, page *rod.Page) error {
	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
	defer cancel()

	p := page.Context(navCtx)
	if err := p.Navigate(f.cfg.MarketsURL); err != nil {
		return fetcher.NewNavigationError("open markets page", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fetcher.Classify("load markets page", err)
	}
	return nil
}

// dismissConsent clicks the consent button when it shows up in time. Its
// absence is normal.
func (f *MSNFetcher) dismissConsent(ctx context.Context, page *rod.Page, log zerolog.Logger) {
	sel := f.cfg.Selectors
	if sel.ConsentText == "" {
		return
	}

	consentCtx, cancel := context.WithTimeout(ctx, f.cfg.ConsentTimeout)
	defer cancel()

	btn, err := page.Context(consentCtx).ElementR(sel.ConsentButton, regexp.QuoteMeta(sel.ConsentText))
	if err != nil {
		log.Debug().Msg("No consent dialog")
		return
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		log.Debug().Err(err).Msg("Consent click failed")
	}
}

func (f *MSNFetcher) search(ctx context.Context, page *rod.Page, ticker string) (*rod.Element, error) {
	elemCtx, cancel := context.WithTimeout(ctx, f.cfg.ElementTimeout)
	defer cancel()

	box, err := page.Context(elemCtx).Element(f.cfg.Selectors.SearchBox)
	if err != nil {
		if ctx.Err() == nil {
			return nil, fetcher.NewMissingElementError("search box")
		}
		return nil, fetcher.Classify("find search box", err)
	}

	// The element keeps elemCtx; rebind it to the run context.
	box = box.Context(ctx)
	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fetcher.Classify("focus search box", err)
	}
	if err := box.SelectAllText(); err != nil {
		return nil, fetcher.Classify("clear search box", err)
	}
	if err := box.Input(ticker); err != nil {
		return nil, fetcher.Classify("type ticker", err)
	}
	return box, nil
}

// pickSuggestion clicks the first suggestion whose text mentions qualifier.
func (f *MSNFetcher) pickSuggestion(ctx context.Context, page *rod.Page, qualifier string) (bool, error) {
	options, err := page.Context(ctx).Elements(f.cfg.Selectors.Suggestion)
	if err != nil {
		return false, fetcher.Classify("list suggestions", err)
	}

	match := suggestionPattern(qualifier)
	for _, opt := range options {
		text, err := opt.Text()
		if err != nil || !match.MatchString(text) {
			continue
		}
		if err := opt.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return false, fetcher.Classify("click suggestion", err)
		}
		return true, nil
	}
	return false, nil
}

func (f *MSNFetcher) waitForQuotePage(ctx context.Context, page *rod.Page) error {
	waitCtx, cancel := context.WithTimeout(ctx, f.cfg.QuotePageTimeout)
	defer cancel()

	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()

	for {
		info, err := page.Context(waitCtx).Info()
		if err == nil && isQuoteURL(info.URL, f.cfg.Selectors.QuoteURL) {
			return nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return fetcher.Classify("wait for quote page", ctx.Err())
			}
			return fetcher.NewTimeoutError("wait for quote page", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func suggestionPattern(qualifier string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(qualifier))
}

func isQuoteURL(url, marker string) bool {
	return marker != "" && strings.Contains(url, marker)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ fetcher.Fetcher = (*MSNFetcher)(nil)
