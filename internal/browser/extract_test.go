package browser

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockrecs/internal/fetcher"
	"stockrecs/internal/ratelimit"
	"stockrecs/internal/stock"
)

const quotePage = `<!DOCTYPE html>
<html><body>
<div id="topStrip"><input aria-label="Wyszukaj akcje"></div>
<div class="mainPrice-DS-EntryPoint1-1 color_red-DS-EntryPoint1-1">
    45,10
    zł
</div>
<div data-t="{&quot;n&quot;:&quot;Anchor_Title_Analyst&quot;}">
  <div class="cardHeader">Rekomendacje analityków</div>
  <div class="cardBody">
    <span class="cardBody_content_keyWords_analystic-DS-EntryPoint1-1">  Zdecydowanie   kup </span>
    <div class="footer"><span>Na podstawie opinii</span> <span>12 analitycy</span></div>
  </div>
</div>
</body></html>`

func TestExtract(t *testing.T) {
	obs, err := Extract(quotePage, DefaultSelectors())
	require.NoError(t, err)

	assert.Equal(t, stock.Observation{
		Price:               "45,10 zł",
		RecommendationLabel: "Zdecydowanie kup",
		AnalystCount:        12,
	}, obs)
}

func TestExtract_MissingCountIsZero(t *testing.T) {
	page := `<div class="mainPrice color_green">10,00</div>
<div data-t="Anchor_Title_Analyst"><span class="cardBody_content_keyWords_analystic-DS-EntryPoint1-1">Trzymaj</span></div>`

	obs, err := Extract(page, DefaultSelectors())
	require.NoError(t, err)
	assert.Equal(t, "Trzymaj", obs.RecommendationLabel)
	assert.Zero(t, obs.AnalystCount)
}

func TestExtract_MissingElements(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		element string
	}{
		{
			name:    "no price",
			html:    `<div data-t="Anchor_Title_Analyst"><span class="cardBody_content_keyWords_analystic-DS-EntryPoint1-1">Kup</span></div>`,
			element: "price",
		},
		{
			name:    "no analyst card",
			html:    `<div class="mainPrice color_red">1,00</div>`,
			element: "recommendation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := Extract(tt.html, DefaultSelectors())
			require.Error(t, err)
			assert.True(t, obs.IsError())
			assert.Equal(t, fetcher.ErrorTypeMissingElement, fetcher.TypeOf(err))
			assert.Contains(t, err.Error(), tt.element)
		})
	}
}

func TestExtract_BadCountPattern(t *testing.T) {
	sel := DefaultSelectors()
	sel.AnalystCount = "("

	_, err := Extract(quotePage, sel)
	require.Error(t, err)
}

func TestExtract_CountPatternWithoutGroup(t *testing.T) {
	sel := DefaultSelectors()
	sel.AnalystCount = `\d+ analitycy`

	obs, err := Extract(quotePage, sel)
	require.NoError(t, err)
	assert.Equal(t, 12, obs.AnalystCount)
}

func TestSuggestionPattern(t *testing.T) {
	p := suggestionPattern("ATAL")
	assert.True(t, p.MatchString("1AT Atal SA · WSE"))
	assert.False(t, p.MatchString("Orlen"))

	// Qualifiers are literal text, not patterns.
	p = suggestionPattern("B&W (X.Y)")
	assert.True(t, p.MatchString("b&w (x.y)"))
	assert.False(t, p.MatchString("B&W (XAY)"))

	p = suggestionPattern("ATAL+")
	assert.True(t, p.MatchString("1AT atal+ SA"))
	assert.False(t, p.MatchString("1AT ATALL SA"))
}

func TestIsQuoteURL(t *testing.T) {
	assert.True(t, isQuoteURL("https://www.msn.com/pl-pl/finanse/notowania/fi-a1x2y3", "/fi-"))
	assert.False(t, isQuoteURL("https://www.msn.com/pl-pl/finanse/rynki", "/fi-"))
	assert.False(t, isQuoteURL("https://www.msn.com/pl-pl/finanse/rynki", ""))
	assert.False(t, isQuoteURL("https://www.msn.com/pl-pl/finanse/notowania/fi-a1x2y3", ""), "an empty marker never matches")
}

func TestSleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), 0))
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}

// TestMSNFetcher_Live drives a real Chromium against MSN. It is opt-in.
func TestMSNFetcher_Live(t *testing.T) {
	if os.Getenv("STOCKRECS_LIVE_BROWSER") == "" {
		t.Skip("set STOCKRECS_LIVE_BROWSER=1 to run against MSN")
	}

	cfg := DefaultConfig()
	session := NewSession(cfg, zerolog.Nop())
	defer session.Close()

	f := NewMSNFetcher(session, cfg, ratelimit.Unlimited(), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	obs, err := f.Fetch(ctx, stock.Candidate{Name: "PKN (ORLEN)"})
	require.NoError(t, err)
	assert.NotEmpty(t, obs.Price)
	assert.NotEmpty(t, obs.RecommendationLabel)
}
