package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockrecs/internal/ratelimit"
	"stockrecs/internal/rules"
	"stockrecs/internal/source"
	"stockrecs/internal/stock"
)

// isolate runs the test in an empty directory with HOME pointing at it, so
// no stray config.yaml or .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./Rekomendacje giełdowe", cfg.Source.Path)
	assert.Equal(t, 2, cfg.Source.HeaderLines)
	assert.Equal(t, 5, cfg.Source.MinFields)
	assert.Equal(t, source.Fields{Name: 0, Recommendation: 1, Extra: 4}, cfg.Source.Fields)
	assert.Empty(t, cfg.Source.Filter)

	assert.Equal(t, "wyniki.json", cfg.Store.Path)
	assert.True(t, cfg.Store.Pretty)
	assert.Equal(t, 20, cfg.MaxResults)
	assert.Equal(t, rules.Default(), cfg.RuleSet())

	assert.Equal(t, FetcherBrowser, cfg.Fetcher)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Browser.SuggestionDelay)
	assert.Equal(t, "/fi-", cfg.Browser.Selectors.QuoteURL)
	assert.Equal(t, "Kup", cfg.AlphaVantage.Labels.Buy)

	assert.Equal(t, "0 2 * * *", cfg.Schedule)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ratelimit.Defaults(), cfg.RateLimits())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolate(t)

	envVars := map[string]string{
		"STOCKRECS_SOURCE_PATH":                "/data/rekomendacje.txt",
		"STOCKRECS_SOURCE_HEADER_LINES":        "1",
		"STOCKRECS_SOURCE_FILTER":              "Kupuj,Akumuluj",
		"STOCKRECS_STORE_PATH":                 "/var/data/wyniki.json",
		"STOCKRECS_STORE_PRETTY":               "false",
		"STOCKRECS_MAX_RESULTS":                "10",
		"STOCKRECS_RULES_COMPACT":              "kup,kupuj:exact:gte:5;trzymaj:exact:gt:20",
		"STOCKRECS_RULES_POLICY":               "first",
		"STOCKRECS_FETCHER":                    "alphavantage",
		"ALPHAVANTAGE_API_KEY":                 "test_alphavantage_key",
		"STOCKRECS_BROWSER_NAVIGATION_TIMEOUT": "90s",
		"STOCKRECS_RATE_LIMIT_MSN":             "0",
		"STOCKRECS_LOG_LEVEL":                  "debug",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"SourcePath", cfg.Source.Path, "/data/rekomendacje.txt"},
		{"HeaderLines", cfg.Source.HeaderLines, 1},
		{"Filter", cfg.Source.Filter, []string{"Kupuj", "Akumuluj"}},
		{"StorePath", cfg.Store.Path, "/var/data/wyniki.json"},
		{"StorePretty", cfg.Store.Pretty, false},
		{"MaxResults", cfg.MaxResults, 10},
		{"Policy", cfg.RuleSet().Policy, rules.PolicyFirst},
		{"RuleCount", len(cfg.Rules.Rules), 2},
		{"Fetcher", cfg.Fetcher, FetcherAlphaVantage},
		{"APIKey", cfg.AlphaVantage.APIKey, "test_alphavantage_key"},
		{"NavigationTimeout", cfg.Browser.NavigationTimeout, 90 * time.Second},
		{"RateLimitMSN", cfg.RateLimit.MSN, 0.0},
		{"LogLevel", cfg.Log.Level, "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}

	set := cfg.RuleSet()
	assert.True(t, set.Accept("Kup", 5))
	assert.False(t, set.Accept("Trzymaj", 20))
	assert.True(t, set.Accept("Trzymaj", 21))

	opts := cfg.SourceOptions()
	require.NotNil(t, opts.Filter)
	assert.True(t, opts.Filter(stock.Candidate{Name: "A", BaseRecommendation: "akumuluj"}))
	assert.False(t, opts.Filter(stock.Candidate{Name: "A", BaseRecommendation: "Sprzedaj"}))
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := isolate(t)

	yaml := `
source:
  path: lista.txt
  fields:
    name: 1
    recommendation: 2
    extra: 5
  min_fields: 6
store:
  path: out/wyniki.json
rules:
  policy: any
  rules:
    - labels: [kupuj, kup]
      match: exact
      op: gte
      threshold: 3
    - labels: [akumuluj]
      match: contains
browser:
  control_url: ws://127.0.0.1:9222/devtools/browser/abc
  selectors:
    quote_url: /quote/
schedule: "@daily"
`
	path := filepath.Join(dir, "stockrecs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lista.txt", cfg.Source.Path)
	assert.Equal(t, source.Fields{Name: 1, Recommendation: 2, Extra: 5}, cfg.Source.Fields)
	assert.Equal(t, 6, cfg.Source.MinFields)
	assert.Equal(t, 2, cfg.Source.HeaderLines, "unset keys keep their defaults")
	assert.Equal(t, "out/wyniki.json", cfg.Store.Path)
	require.Len(t, cfg.Rules.Rules, 2)
	assert.Equal(t, rules.Rule{Labels: []string{"kupuj", "kup"}, Match: rules.MatchExact, Op: rules.OpGTE, Threshold: 3}, cfg.Rules.Rules[0])
	assert.Equal(t, rules.MatchContains, cfg.Rules.Rules[1].Match)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.ControlURL)
	assert.Equal(t, "/quote/", cfg.Browser.Selectors.QuoteURL)
	assert.Equal(t, "[role='option']", cfg.Browser.Selectors.Suggestion)
	assert.Equal(t, "@daily", cfg.Schedule)
}

func TestLoad_ConfigFileSearchPath(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("max_results: 7\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxResults)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STOCKRECS_STORE_PATH=from-dotenv.json\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("STOCKRECS_STORE_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.json", cfg.Store.Path)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_BadCompactRules(t *testing.T) {
	isolate(t)
	t.Setenv("STOCKRECS_RULES_COMPACT", "kup:fuzzy")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules.compact")
}

func TestLoad_MissingAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv("STOCKRECS_FETCHER", "alphavantage")
	t.Setenv("ALPHAVANTAGE_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alphavantage.api_key is required")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Source.Path = ""
	cfg.Store.Path = ""
	cfg.MaxResults = 0
	cfg.Fetcher = "carrier-pigeon"
	cfg.Schedule = "every night"
	cfg.Log.Level = "loud"
	cfg.Rules.Rules = nil

	err = cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"invalid configuration",
		"source.path is required",
		"store.path is required",
		"max_results must be at least 1",
		`unknown fetcher "carrier-pigeon"`,
		`schedule "every night"`,
		`unknown log.level "loud"`,
		"no inclusion rules configured",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_EmptyScheduleDisablesCron(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Schedule = ""
	assert.NoError(t, cfg.Validate())
}
