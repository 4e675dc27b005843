package advisors

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"agent-trader/internal/errors"
)

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerCooldown    time.Duration = 60 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Cooldown is how long the circuit stays open before transitioning to half-open.
	Cooldown time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration
}

// BreakerAdvisor wraps an Advisor with circuit breaker protection. When the
// wrapped advisor fails repeatedly, the circuit opens and subsequent calls
// fail fast without reaching the advisor, preventing retry storms against a
// degraded provider.
type BreakerAdvisor struct {
	inner   Advisor
	breaker *gobreaker.CircuitBreaker[*Opinion]
}

// NewBreakerAdvisor wraps inner with a circuit breaker. Zero-valued config
// fields fall back to defaults.
func NewBreakerAdvisor(inner Advisor, cfg BreakerConfig, logger zerolog.Logger) *BreakerAdvisor {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = defaultBreakerCooldown
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	name := inner.Name()
	cb := gobreaker.NewCircuitBreaker[*Opinion](gobreaker.Settings{
		Name:        "advisor:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BreakerAdvisor{
		inner:   inner,
		breaker: cb,
	}
}

// Name implements Advisor.
func (a *BreakerAdvisor) Name() string { return a.inner.Name() }

// Advise implements Advisor. Calls are routed through the circuit breaker.
func (a *BreakerAdvisor) Advise(ctx context.Context, req Request) (*Opinion, error) {
	opinion, err := a.breaker.Execute(func() (*Opinion, error) {
		return a.inner.Advise(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errors.NewAdvisorError(a.inner.Name(), errors.ErrAdvisorUnavailable)
		}
		return nil, err
	}
	return opinion, nil
}

// State returns the current circuit breaker state for monitoring.
func (a *BreakerAdvisor) State() gobreaker.State {
	return a.breaker.State()
}

var _ Advisor = (*BreakerAdvisor)(nil)
