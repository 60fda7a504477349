package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liraku/lirabot/core/logger"
	"github.com/liraku/lirabot/internal/cache"
	"github.com/liraku/lirabot/internal/money"
)

// Policy decides what happens when the upstream provider fails.
type Policy string

const (
	// PolicyFailStep surfaces the failure; the user retries the step.
	PolicyFailStep Policy = "fail_step"
	// PolicyLastKnown serves the last good rate, flagged Stale, within MaxAge.
	PolicyLastKnown Policy = "last_known"
)

const DefaultLastKnownMaxAge = time.Hour

// lastKnownLoadTimeout bounds the store read after an upstream failure. The
// read runs on its own deadline because the caller's has usually expired by then.
const lastKnownLoadTimeout = 2 * time.Second

// ParsePolicy maps a config value to a Policy. Empty selects PolicyFailStep.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFailStep:
		return PolicyFailStep, nil
	case PolicyLastKnown:
		return PolicyLastKnown, nil
	}
	return "", fmt.Errorf("rates: unknown unavailable policy %q", s)
}

// LastKnownStore remembers the last good rate per pair.
type LastKnownStore interface {
	Save(ctx context.Context, r Rate) error
	Load(ctx context.Context, from, to money.Currency) (Rate, bool, error)
}

// Fallback wraps a provider with the outage policy.
type Fallback struct {
	next   Provider
	store  LastKnownStore
	policy Policy
	maxAge time.Duration
	now    func() time.Time
}

type FallbackOptions struct {
	Policy Policy
	MaxAge time.Duration
	// Store is required for PolicyLastKnown.
	Store LastKnownStore
}

func NewFallback(next Provider, opts FallbackOptions) (*Fallback, error) {
	if opts.Policy == "" {
		opts.Policy = PolicyFailStep
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultLastKnownMaxAge
	}
	if opts.Policy == PolicyLastKnown && opts.Store == nil {
		return nil, errors.New("rates: last_known policy needs a store")
	}
	return &Fallback{next: next, store: opts.Store, policy: opts.Policy, maxAge: opts.MaxAge, now: time.Now}, nil
}

// Rate implements Provider.
func (f *Fallback) Rate(ctx context.Context, from, to money.Currency) (Rate, error) {
	start := time.Now()
	r, err := f.next.Rate(ctx, from, to)
	if err == nil {
		logger.Debug(ctx, logger.CompFX, "rate.fetch",
			slog.String("status", "ok"),
			slog.String("pair", string(from)+"/"+string(to)),
			slog.String("rate", r.Value.String()),
			slog.Duration("duration", logger.Took(start)),
		)
		if f.store != nil {
			if serr := f.store.Save(ctx, r); serr != nil {
				logger.Warn(ctx, logger.CompFX, "rate.save_last_known", slog.String("status", "fail"), logger.Err(serr))
			}
		}
		return r, nil
	}

	logger.Warn(ctx, logger.CompFX, "rate.fetch",
		slog.String("status", "fail"),
		slog.String("pair", string(from)+"/"+string(to)),
		slog.String("policy", string(f.policy)),
		slog.Duration("duration", logger.Took(start)),
		logger.Err(err),
	)
	if f.policy != PolicyLastKnown {
		return Rate{}, err
	}

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lastKnownLoadTimeout)
	last, ok, lerr := f.store.Load(loadCtx, from, to)
	cancel()
	if lerr != nil {
		return Rate{}, errors.Join(err, lerr)
	}
	if !ok {
		return Rate{}, err
	}
	age := f.now().Sub(last.FetchedAt)
	if age > f.maxAge {
		return Rate{}, fmt.Errorf("last known rate is %s old: %w", age.Round(time.Second), err)
	}
	last.Stale = true
	logger.Info(ctx, logger.CompFX, "rate.last_known_served",
		slog.String("status", "ok"),
		slog.Duration("age", age),
	)
	return last, nil
}

// MemoryLastKnown keeps last-known rates in process.
type MemoryLastKnown struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

func NewMemoryLastKnown() *MemoryLastKnown {
	return &MemoryLastKnown{rates: make(map[string]Rate)}
}

func (m *MemoryLastKnown) Save(_ context.Context, r Rate) error {
	m.mu.Lock()
	m.rates[pairKey(r.From, r.To)] = r
	m.mu.Unlock()
	return nil
}

func (m *MemoryLastKnown) Load(_ context.Context, from, to money.Currency) (Rate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rates[pairKey(from, to)]
	return r, ok, nil
}

// RedisLastKnown shares last-known rates between instances.
type RedisLastKnown struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisLastKnown stores rates in c; entries expire after ttl.
func NewRedisLastKnown(c *cache.Cache, ttl time.Duration) *RedisLastKnown {
	return &RedisLastKnown{cache: c, ttl: ttl}
}

func (s *RedisLastKnown) Save(ctx context.Context, r Rate) error {
	return s.cache.Set(ctx, "rate:"+pairKey(r.From, r.To), r, s.ttl)
}

func (s *RedisLastKnown) Load(ctx context.Context, from, to money.Currency) (Rate, bool, error) {
	var r Rate
	err := s.cache.Get(ctx, "rate:"+pairKey(from, to), &r)
	if errors.Is(err, cache.ErrMiss) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	return r, true, nil
}

func pairKey(from, to money.Currency) string { return string(from) + "_" + string(to) }
