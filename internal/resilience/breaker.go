// Package resilience provides the retry, circuit breaker, rate limiting and
// pacing primitives used around every external lookup and store write.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBreakerOpen is returned without calling the dependency while its
// breaker is open.
var ErrBreakerOpen = eris.New("resilience: breaker open")

// BreakerConfig sets when a breaker opens and how long it stays open.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker.
	Threshold int
	// Cooldown is how long an open breaker refuses calls before letting a
	// single trial call through.
	Cooldown time.Duration
	Clock    Clock
}

// BreakerConfigFrom builds a BreakerConfig from settings. Non-positive
// values fall back to 5 failures and 30 seconds.
func BreakerConfigFrom(threshold, cooldownSecs int) BreakerConfig {
	cfg := BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
	if threshold > 0 {
		cfg.Threshold = threshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerTrial
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	default:
		return "trial"
	}
}

// Breaker stops calling a failing dependency until a cooldown passes. The
// first call after the cooldown is a trial: success closes the breaker and
// failure opens it for another cooldown. Calls made while the trial is in
// flight are refused.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a closed breaker. name appears in state change logs.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := BreakerConfigFrom(0, 0)
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	return &Breaker{name: name, cfg: cfg}
}

// Guard calls fn unless b refuses it. An error caused by ctx ending is not
// held against the dependency.
func Guard[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	if err := b.admit(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	b.settle(ctx, err)
	return v, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.cfg.Clock.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrBreakerOpen
		}
		b.set(breakerTrial)
	case breakerTrial:
		return ErrBreakerOpen
	}
	return nil
}

func (b *Breaker) settle(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.failures = 0
		b.set(breakerClosed)
	case ctx.Err() != nil:
		// Canceled trials leave the cooldown expired so the next call tries again.
		if b.state == breakerTrial {
			b.set(breakerOpen)
		}
	default:
		b.failures++
		if b.state == breakerTrial || b.failures >= b.cfg.Threshold {
			b.openedAt = b.cfg.Clock.Now()
			b.set(breakerOpen)
		}
	}
}

func (b *Breaker) set(to breakerState) {
	if b.state == to {
		return
	}
	zap.L().Info("resilience: breaker state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures),
	)
	b.state = to
}

// HostBreakers hands out one Breaker per host, so a dead logo CDN stops
// being called without affecting other hosts.
type HostBreakers struct {
	cfg BreakerConfig

	mu     sync.Mutex
	byHost map[string]*Breaker
}

// NewHostBreakers creates an empty per-host registry.
func NewHostBreakers(cfg BreakerConfig) *HostBreakers {
	return &HostBreakers{cfg: cfg, byHost: make(map[string]*Breaker)}
}

// For returns the breaker of host, creating it on first use.
func (h *HostBreakers) For(host string) *Breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.byHost[host]
	if !ok {
		b = NewBreaker(host, h.cfg)
		h.byHost[host] = b
	}
	return b
}
