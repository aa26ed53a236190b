package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"stockrecs/internal/alphavantage"
	"stockrecs/internal/browser"
	"stockrecs/internal/config"
	"stockrecs/internal/coordinator"
	"stockrecs/internal/fetcher"
	"stockrecs/internal/logger"
	"stockrecs/internal/ratelimit"
	"stockrecs/internal/reconcile"
	"stockrecs/internal/store"
)

// app is the wiring shared by the commands.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *store.FileStore
}

func newApp(configPath, logLevel string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		if _, ok := logger.ParseLevel(logLevel); !ok {
			return nil, fmt.Errorf("unknown log level %q", logLevel)
		}
		cfg.Log.Level = logLevel
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Out: logOut})
	logger.SetGlobalLogger(log)

	return &app{
		cfg:   cfg,
		log:   log,
		store: store.New(cfg.Store.Path, cfg.Store.Pretty, log),
	}, nil
}

// newFetcher builds the configured fetch collaborator.
func (a *app) newFetcher() (fetcher.Fetcher, error) {
	limiter := ratelimit.New(a.cfg.RateLimits())

	switch a.cfg.Fetcher {
	case config.FetcherBrowser:
		session := browser.NewSession(a.cfg.Browser, a.log)
		return browser.NewMSNFetcher(session, a.cfg.Browser, limiter, a.log), nil
	case config.FetcherAlphaVantage:
		return alphavantage.New(a.cfg.AlphaVantage, limiter, a.log), nil
	default:
		return nil, fmt.Errorf("unknown fetcher %q", a.cfg.Fetcher)
	}
}

func (a *app) newCoordinator(out io.Writer) (*coordinator.Coordinator, error) {
	f, err := a.newFetcher()
	if err != nil {
		return nil, err
	}

	return coordinator.New(coordinator.Config{
		SourcePath:    a.cfg.Source.Path,
		SourceOptions: a.cfg.SourceOptions(),
		Store:         a.store,
		Reconciler:    reconcile.New(a.cfg.RuleSet(), reconcile.Options{MaxResults: a.cfg.MaxResults}, a.log),
		Fetcher:       f,
		Output:        out,
		Log:           a.log,
	}), nil
}
