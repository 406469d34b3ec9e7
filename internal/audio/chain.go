package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"codeberg.org/snonux/wordaudio/internal/logger"
)

// Limiter hands out request permits
type Limiter interface {
	Acquire(ctx context.Context) error
}

// FragmentStore persists fragments between runs
type FragmentStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

// ChainOptions selects the decorators Wrap puts around a backend
type ChainOptions struct {
	Limiter     Limiter       // Required: one permit per backend request
	Breaker     *BreakerSettings
	Store       FragmentStore // Optional fragment cache
	Fingerprint string        // Distinguishes cache entries of different settings
}

// Wrap builds the request chain cache -> limiter -> breaker -> backend.
// Cache hits never consume a permit. The limiter asks the breaker before
// waiting, so requests made while the breaker is open fail without a permit;
// requests already waiting when it opens are refused by the breaker and never
// reach the backend.
func Wrap(p Provider, opts ChainOptions) Provider {
	if opts.Breaker != nil {
		p = NewBreakerProvider(p, *opts.Breaker)
	}
	if opts.Limiter != nil {
		p = NewLimitedProvider(p, opts.Limiter)
	}
	if opts.Store != nil {
		p = NewCachedProvider(p, opts.Store, opts.Fingerprint)
	}
	return p
}

// Gate is implemented by providers that can refuse a request up front
type Gate interface {
	Ready() error
}

// LimitedProvider waits for a permit immediately before each request
type LimitedProvider struct {
	Provider
	limiter Limiter
}

// NewLimitedProvider gates every Synthesize call of p through limiter
func NewLimitedProvider(p Provider, limiter Limiter) *LimitedProvider {
	return &LimitedProvider{Provider: p, limiter: limiter}
}

// Synthesize acquires a permit, then calls the wrapped provider. A wrapped
// Gate that refuses the request is reported before waiting.
func (p *LimitedProvider) Synthesize(ctx context.Context, languageCode, text string) (Fragment, error) {
	if gate, ok := p.Provider.(Gate); ok {
		if err := gate.Ready(); err != nil {
			return nil, err
		}
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	logger.SynthesisRequest(ctx, p.Provider.Name(), languageCode, text)
	return p.Provider.Synthesize(ctx, languageCode, text)
}

// Unwrap returns the wrapped provider
func (p *LimitedProvider) Unwrap() Provider {
	return p.Provider
}

// BreakerSettings configures the circuit breaker
type BreakerSettings struct {
	MaxConsecutiveFailures uint32        // Failures in a row that open the breaker
	OpenTimeout            time.Duration // Time before a half-open probe is allowed
}

// DefaultBreakerSettings returns the settings used by the CLI
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxConsecutiveFailures: 5,
		OpenTimeout:            30 * time.Second,
	}
}

// BreakerProvider stops sending requests to a backend that keeps failing.
// Requests made while the breaker is open fail with gobreaker.ErrOpenState.
// It never repeats a request.
type BreakerProvider struct {
	Provider
	cb *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps p in a circuit breaker
func NewBreakerProvider(p Provider, settings BreakerSettings) *BreakerProvider {
	failures := settings.MaxConsecutiveFailures
	if failures == 0 {
		failures = DefaultBreakerSettings().MaxConsecutiveFailures
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Cancellation says nothing about the backend's health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})

	return &BreakerProvider{Provider: p, cb: cb}
}

// Synthesize calls the wrapped provider unless the breaker is open
func (p *BreakerProvider) Synthesize(ctx context.Context, languageCode, text string) (Fragment, error) {
	out, err := p.cb.Execute(func() (interface{}, error) {
		return p.Provider.Synthesize(ctx, languageCode, text)
	})
	if err != nil {
		return nil, err
	}
	return out.(Fragment), nil
}

// Ready fails with gobreaker.ErrOpenState while the breaker is open
func (p *BreakerProvider) Ready() error {
	if p.cb.State() == gobreaker.StateOpen {
		return gobreaker.ErrOpenState
	}
	return nil
}

// State returns the breaker state
func (p *BreakerProvider) State() gobreaker.State {
	return p.cb.State()
}

// Unwrap returns the wrapped provider
func (p *BreakerProvider) Unwrap() Provider {
	return p.Provider
}

// CachedProvider answers repeated requests from a FragmentStore
type CachedProvider struct {
	Provider
	store       FragmentStore
	fingerprint string
}

// NewCachedProvider wraps p with a fragment cache
func NewCachedProvider(p Provider, store FragmentStore, fingerprint string) *CachedProvider {
	return &CachedProvider{Provider: p, store: store, fingerprint: fingerprint}
}

// Synthesize returns a cached fragment or asks the wrapped provider and
// stores the result. Cache failures are logged and never fail the request.
func (p *CachedProvider) Synthesize(ctx context.Context, languageCode, text string) (Fragment, error) {
	key := CacheKey(p.fingerprint, languageCode, text)

	data, ok, err := p.store.Get(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "Cache lookup failed", "lang", languageCode, "word", text, "error", err)
	}
	if ok {
		logger.DebugContext(ctx, "Cache hit", "lang", languageCode, "word", text)
		return Fragment(data), nil
	}

	fragment, err := p.Provider.Synthesize(ctx, languageCode, text)
	if err != nil {
		return nil, err
	}

	if err := p.store.Put(ctx, key, fragment); err != nil {
		logger.Warn("Cache store failed", "lang", languageCode, "word", text, "error", err)
	}
	return fragment, nil
}

// Unwrap returns the wrapped provider
func (p *CachedProvider) Unwrap() Provider {
	return p.Provider
}

// CacheKey derives the cache key of one request
func CacheKey(fingerprint, languageCode, text string) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(languageCode))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
