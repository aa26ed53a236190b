package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Session owns one Chrome connection and the single page reused for every
// candidate of a run.
type Session struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// NewSession creates a session; Chrome is started on first use.
func NewSession(cfg Config, log zerolog.Logger) *Session {
	return &Session{
		cfg: cfg,
		log: log.With().Str("component", "browser").Logger(),
	}
}

// startLocked connects to ControlURL or launches a local Chromium.
func (s *Session) startLocked(ctx context.Context) error {
	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		s.log.Warn().Msg("Stale browser connection detected, reconnecting")
		s.closeLocked()
	}

	controlURL := s.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(s.cfg.Headless)
		if s.cfg.Bin != "" {
			l = l.Bin(s.cfg.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		s.launcher = l
		controlURL = url
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		s.closeLocked()
		return fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = b

	s.log.Info().Bool("headless", s.cfg.Headless).Bool("attached", s.cfg.ControlURL != "").Msg("Browser started")
	return nil
}

// Page returns the shared page, opening it if needed.
func (s *Session) Page(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startLocked(ctx); err != nil {
		return nil, err
	}
	if s.page != nil {
		return s.page, nil
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if s.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
			s.log.Warn().Err(err).Msg("Failed to set user agent")
		}
	}
	s.page = page
	return page, nil
}

// ResetPage closes the shared page so the next candidate starts fresh.
func (s *Session) ResetPage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
}

// Close shuts the page and the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
		s.page = nil
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
	return errors.Join(errs...)
}
