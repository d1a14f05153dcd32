package generate

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/resilience"
)

// ProviderConfig holds the call policy shared by the provider adapters.
type ProviderConfig struct {
	Defaults Options
	// RequestsPerSecond caps outbound calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
	Retry             resilience.RetryConfig
	Breaker           resilience.CircuitBreakerConfig
}

// guard applies the limiter, breaker, and retry policy around provider calls.
type guard struct {
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

func newGuard(name string, cfg ProviderConfig) guard {
	g := guard{
		breaker: resilience.NewCircuitBreaker(cfg.Breaker),
		retry:   cfg.Retry,
	}
	if g.retry.MaxAttempts == 0 {
		g.retry = resilience.ProviderRetryConfig(name, "generate")
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

func (g guard) run(ctx context.Context, call func(ctx context.Context) (*Result, error)) (*Result, error) {
	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*Result, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return resilience.ExecuteVal(ctx, g.breaker, call)
	})
}

// classifyStatus tags provider failures by HTTP status so that retries and
// dead-lettering treat them correctly.
func classifyStatus(err error, status int) error {
	switch {
	case status == 401 || status == 403:
		return model.Wrap(model.ErrConfiguration, err)
	case resilience.IsTransientHTTPStatus(status):
		return resilience.NewTransientError(err, status)
	case status >= 400 && status < 500:
		return model.Wrap(model.ErrInvalidInput, err)
	}
	return err
}
