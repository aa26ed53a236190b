package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stockrecs/internal/alphavantage"
	"stockrecs/internal/browser"
	"stockrecs/internal/logger"
	"stockrecs/internal/ratelimit"
	"stockrecs/internal/reconcile"
	"stockrecs/internal/rules"
	"stockrecs/internal/scheduler"
	"stockrecs/internal/source"
)

// EnvPrefix prefixes every environment variable, e.g. STOCKRECS_STORE_PATH.
const EnvPrefix = "STOCKRECS"

// Fetcher kinds.
const (
	FetcherBrowser      = "browser"
	FetcherAlphaVantage = "alphavantage"
)

// SourceConfig locates and describes the recommendations file.
type SourceConfig struct {
	Path        string        `mapstructure:"path"`
	HeaderLines int           `mapstructure:"header_lines"`
	MinFields   int           `mapstructure:"min_fields"`
	Fields      source.Fields `mapstructure:"fields"`
	// Filter keeps only rows whose base recommendation is one of these
	// labels; empty keeps every row.
	Filter []string `mapstructure:"filter"`
}

// StoreConfig locates the published result file.
type StoreConfig struct {
	Path   string `mapstructure:"path"`
	Pretty bool   `mapstructure:"pretty"`
}

// RulesConfig holds the inclusion table. Compact, when set, replaces Rules
// with rules in the "labels:match:op:threshold;..." form.
type RulesConfig struct {
	Policy  rules.Policy `mapstructure:"policy"`
	Rules   []rules.Rule `mapstructure:"rules"`
	Compact string       `mapstructure:"compact"`
}

// RateLimitConfig holds requests per minute per source; zero disables pacing.
type RateLimitConfig struct {
	MSN          float64 `mapstructure:"msn"`
	AlphaVantage float64 `mapstructure:"alphavantage"`
}

// ServerConfig holds the HTTP viewer settings.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Config holds all configuration for the recommendations scraper.
type Config struct {
	Source     SourceConfig `mapstructure:"source"`
	Store      StoreConfig  `mapstructure:"store"`
	Rules      RulesConfig  `mapstructure:"rules"`
	MaxResults int          `mapstructure:"max_results"`

	// Fetcher selects the fetch collaborator: "browser" or "alphavantage".
	Fetcher      string              `mapstructure:"fetcher"`
	Browser      browser.Config      `mapstructure:"browser"`
	AlphaVantage alphavantage.Config `mapstructure:"alphavantage"`
	RateLimit    RateLimitConfig     `mapstructure:"rate_limit"`

	// Schedule is the cron expression of the nightly run; empty disables it.
	Schedule   string       `mapstructure:"schedule"`
	JobHistory int          `mapstructure:"job_history"`
	Server     ServerConfig `mapstructure:"server"`
	Log        LogConfig    `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	src := source.DefaultOptions()
	v.SetDefault("source.path", "./Rekomendacje giełdowe")
	v.SetDefault("source.header_lines", src.HeaderLines)
	v.SetDefault("source.min_fields", src.MinFields)
	v.SetDefault("source.fields.name", src.Fields.Name)
	v.SetDefault("source.fields.recommendation", src.Fields.Recommendation)
	v.SetDefault("source.fields.extra", src.Fields.Extra)
	v.SetDefault("source.filter", []string{})

	v.SetDefault("store.path", "wyniki.json")
	v.SetDefault("store.pretty", true)

	def := rules.Default()
	v.SetDefault("rules.policy", string(def.Policy))
	v.SetDefault("rules.rules", def.Rules)
	v.SetDefault("rules.compact", "")
	v.SetDefault("max_results", reconcile.DefaultMaxResults)

	v.SetDefault("fetcher", FetcherBrowser)

	b := browser.DefaultConfig()
	v.SetDefault("browser.control_url", b.ControlURL)
	v.SetDefault("browser.bin", b.Bin)
	v.SetDefault("browser.headless", b.Headless)
	v.SetDefault("browser.user_agent", b.UserAgent)
	v.SetDefault("browser.markets_url", b.MarketsURL)
	v.SetDefault("browser.navigation_timeout", b.NavigationTimeout)
	v.SetDefault("browser.consent_timeout", b.ConsentTimeout)
	v.SetDefault("browser.element_timeout", b.ElementTimeout)
	v.SetDefault("browser.suggestion_delay", b.SuggestionDelay)
	v.SetDefault("browser.quote_page_timeout", b.QuotePageTimeout)
	v.SetDefault("browser.settle_delay", b.SettleDelay)
	sel := b.Selectors
	v.SetDefault("browser.selectors.consent_button", sel.ConsentButton)
	v.SetDefault("browser.selectors.consent_text", sel.ConsentText)
	v.SetDefault("browser.selectors.search_box", sel.SearchBox)
	v.SetDefault("browser.selectors.suggestion", sel.Suggestion)
	v.SetDefault("browser.selectors.analyst_card", sel.AnalystCard)
	v.SetDefault("browser.selectors.recommendation", sel.Recommendation)
	v.SetDefault("browser.selectors.analyst_count", sel.AnalystCount)
	v.SetDefault("browser.selectors.price", sel.Price)
	v.SetDefault("browser.selectors.quote_url", sel.QuoteURL)

	labels := alphavantage.DefaultLabels()
	v.SetDefault("alphavantage.api_key", "")
	v.SetDefault("alphavantage.base_url", alphavantage.DefaultBaseURL)
	v.SetDefault("alphavantage.symbol_suffix", "")
	v.SetDefault("alphavantage.labels.strong_buy", labels.StrongBuy)
	v.SetDefault("alphavantage.labels.buy", labels.Buy)
	v.SetDefault("alphavantage.labels.hold", labels.Hold)
	v.SetDefault("alphavantage.labels.sell", labels.Sell)
	v.SetDefault("alphavantage.labels.strong_sell", labels.StrongSell)

	limits := ratelimit.Defaults()
	v.SetDefault("rate_limit.msn", limits[ratelimit.APIMSN])
	v.SetDefault("rate_limit.alphavantage", limits[ratelimit.APIAlphaVantage])

	v.SetDefault("schedule", scheduler.DefaultSchedule)
	v.SetDefault("job_history", 50)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads configuration from defaults, an optional config file, a .env
// file and environment variables, in increasing order of precedence.
//
// An empty path searches for config.yaml in the working directory and in
// $HOME/.stockrecs; a missing file there is not an error. A non-empty path
// must exist.
//
// Environment variables are the upper-cased keys with "." replaced by "_"
// and prefixed with STOCKRECS_, e.g.:
//   - STOCKRECS_SOURCE_PATH
//   - STOCKRECS_STORE_PATH
//   - STOCKRECS_RULES_COMPACT (e.g. "kup,kupuj,zdecydowanie kup:exact:gte:7")
//   - STOCKRECS_FETCHER
//   - STOCKRECS_BROWSER_CONTROL_URL
//   - ALPHAVANTAGE_API_KEY (also accepted without the prefix)
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("alphavantage.api_key", EnvPrefix+"_ALPHAVANTAGE_API_KEY", "ALPHAVANTAGE_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.stockrecs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Rules.Compact != "" {
		parsed, err := rules.ParseAll(cfg.Rules.Compact)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: rules.compact: %w", err)
		}
		cfg.Rules.Rules = parsed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Source.Path == "" {
		add("source.path is required")
	}
	if c.Source.HeaderLines < 0 {
		add("source.header_lines must not be negative")
	}
	if c.Source.MinFields < 1 {
		add("source.min_fields must be at least 1")
	}
	f := c.Source.Fields
	if f.Name < 0 || f.Recommendation < 0 || f.Extra < 0 {
		add("source.fields must not be negative")
	}
	if c.Store.Path == "" {
		add("store.path is required")
	}

	if err := c.RuleSet().Validate(); err != nil {
		add("rules: %w", err)
	}
	if c.MaxResults < 1 {
		add("max_results must be at least 1")
	}

	switch c.Fetcher {
	case FetcherBrowser:
		if c.Browser.MarketsURL == "" {
			add("browser.markets_url is required")
		}
		if c.Browser.NavigationTimeout <= 0 || c.Browser.ElementTimeout <= 0 || c.Browser.QuotePageTimeout <= 0 {
			add("browser timeouts must be positive")
		}
	case FetcherAlphaVantage:
		if c.AlphaVantage.APIKey == "" {
			add("alphavantage.api_key is required for the alphavantage fetcher")
		}
	default:
		add("unknown fetcher %q", c.Fetcher)
	}

	if c.RateLimit.MSN < 0 || c.RateLimit.AlphaVantage < 0 {
		add("rate_limit must not be negative")
	}
	if c.Schedule != "" {
		if err := scheduler.ValidateSchedule(c.Schedule); err != nil {
			add("schedule %q: %w", c.Schedule, err)
		}
	}
	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		add("unknown log.level %q", c.Log.Level)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// RuleSet returns the configured inclusion table.
func (c *Config) RuleSet() rules.Set {
	policy := c.Rules.Policy
	if policy == "" {
		policy = rules.PolicyAny
	}
	return rules.Set{Rules: c.Rules.Rules, Policy: policy}
}

// SourceOptions returns the reader options for the configured layout.
func (c *Config) SourceOptions() source.Options {
	opts := source.DefaultOptions()
	opts.HeaderLines = c.Source.HeaderLines
	opts.MinFields = c.Source.MinFields
	opts.Fields = c.Source.Fields
	if len(c.Source.Filter) > 0 {
		opts.Filter = source.RecommendationFilter(c.Source.Filter...)
	}
	return opts
}

// RateLimits returns the per-source request rates.
func (c *Config) RateLimits() map[ratelimit.API]float64 {
	return map[ratelimit.API]float64{
		ratelimit.APIMSN:          c.RateLimit.MSN,
		ratelimit.APIAlphaVantage: c.RateLimit.AlphaVantage,
	}
}
