// Package browser fetches quote data for candidates by driving a headless
// Chromium through MSN Finance.
package browser

import "time"

// Selectors locates the pieces of the MSN pages the fetcher touches.
type Selectors struct {
	// ConsentButton is the CSS selector of consent-dialog buttons and
	// ConsentText the visible text of the one that accepts.
	ConsentButton string `mapstructure:"consent_button"`
	ConsentText   string `mapstructure:"consent_text"`

	SearchBox  string `mapstructure:"search_box"`
	Suggestion string `mapstructure:"suggestion"`

	AnalystCard    string `mapstructure:"analyst_card"`
	Recommendation string `mapstructure:"recommendation"`

	// AnalystCount is a regular expression matched against the analyst card
	// text; its first group, or first run of digits, is the count.
	AnalystCount string `mapstructure:"analyst_count"`

	Price string `mapstructure:"price"`

	// QuoteURL is a substring present in the URL of a quote page.
	QuoteURL string `mapstructure:"quote_url"`
}

// Config holds browser configuration.
type Config struct {
	// ControlURL attaches to a running Chrome instead of launching one.
	ControlURL string `mapstructure:"control_url"`
	// Bin overrides the Chromium binary used by the launcher.
	Bin       string `mapstructure:"bin"`
	Headless  bool   `mapstructure:"headless"`
	UserAgent string `mapstructure:"user_agent"`

	MarketsURL string `mapstructure:"markets_url"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ConsentTimeout    time.Duration `mapstructure:"consent_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout"`
	SuggestionDelay   time.Duration `mapstructure:"suggestion_delay"`
	QuotePageTimeout  time.Duration `mapstructure:"quote_page_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`

	Selectors Selectors `mapstructure:"selectors"`
}

// DefaultConfig returns the settings for the Polish MSN markets site.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
		MarketsURL:        "https://www.msn.com/pl-pl/finanse/rynki",
		NavigationTimeout: 60 * time.Second,
		ConsentTimeout:    7 * time.Second,
		ElementTimeout:    15 * time.Second,
		SuggestionDelay:   1500 * time.Millisecond,
		QuotePageTimeout:  20 * time.Second,
		SettleDelay:       3 * time.Second,
		Selectors:         DefaultSelectors(),
	}
}

// DefaultSelectors matches the MSN Finance markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ConsentButton:  "button",
		ConsentText:    "Akceptuję",
		SearchBox:      "#topStrip input[aria-label*='Wyszukaj'], #topStrip input[placeholder*='Wyszukaj']",
		Suggestion:     "[role='option']",
		AnalystCard:    "div[data-t*='Anchor_Title_Analyst']",
		Recommendation: ".cardBody_content_keyWords_analystic-DS-EntryPoint1-1",
		AnalystCount:   `(\d+)\s+analitycy`,
		Price:          "div[class*='mainPrice'][class*='color_']",
		QuoteURL:       "/fi-",
	}
}
