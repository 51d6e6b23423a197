package marketdata

import (
	"context"

	"pattern-scanner/internal/models"
	"pattern-scanner/internal/resilience"
)

// GuardedProvider stops calling a provider that keeps failing. Only
// temporary failures (rate limits, server errors, transport errors) count
// against the circuit; an unknown symbol does not.
type GuardedProvider struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
}

// NewGuardedProvider wraps provider with a circuit breaker named after it.
func NewGuardedProvider(provider Provider, cfg resilience.CircuitBreakerConfig) *GuardedProvider {
	if cfg.IsFailure == nil {
		cfg.IsFailure = isTemporary
	}
	return &GuardedProvider{
		provider: provider,
		breaker:  resilience.NewCircuitBreaker(provider.Name(), cfg),
	}
}

func (p *GuardedProvider) Name() string { return p.provider.Name() }

// Breaker exposes the circuit breaker for health reporting.
func (p *GuardedProvider) Breaker() *resilience.CircuitBreaker { return p.breaker }

// GetHistorical delegates to the wrapped provider unless the circuit is open.
func (p *GuardedProvider) GetHistorical(ctx context.Context, req HistoricalRequest) (models.Series, error) {
	return resilience.Execute(ctx, p.breaker, func(ctx context.Context) (models.Series, error) {
		return p.provider.GetHistorical(ctx, req)
	})
}
