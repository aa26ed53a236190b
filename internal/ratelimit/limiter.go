package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// API represents the different external sources we pace requests to
type API string

const (
	// APIMSN represents the MSN Finance site driven through the browser
	APIMSN API = "msn"
	// APIAlphaVantage represents the AlphaVantage API
	APIAlphaVantage API = "alphavantage"
)

// Limiter manages rate limits for different APIs
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

// New creates a limiter with the given requests-per-minute for each API.
// A non-positive rate leaves that API unlimited.
func New(perMinute map[API]float64) *Limiter {
	l := &Limiter{limiters: make(map[API]*rate.Limiter)}
	for api, rpm := range perMinute {
		l.Set(api, rpm)
	}
	return l
}

// Defaults returns conservative production limits.
func Defaults() map[API]float64 {
	return map[API]float64{
		// One quote page every four seconds keeps the consent and search
		// widgets from throttling us.
		APIMSN: 15,
		// AlphaVantage free tier: 5 requests per minute, and each
		// candidate costs two requests.
		APIAlphaVantage: 5,
	}
}

// Unlimited returns a limiter that never blocks.
func Unlimited() *Limiter {
	return New(nil)
}

// Set replaces the limit for api.
func (l *Limiter) Set(api API, perMinute float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perMinute <= 0 {
		l.limiters[api] = rate.NewLimiter(rate.Inf, 1)
		return
	}
	l.limiters[api] = rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/perMinute)), 1)
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	if l == nil {
		return nil
	}

	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		// If no limiter exists for this API, allow the request without limiting
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event for the given API may happen now
func (l *Limiter) Allow(api API) bool {
	if l == nil {
		return true
	}

	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return true
	}

	return limiter.Allow()
}
