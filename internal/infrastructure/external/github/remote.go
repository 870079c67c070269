package github

import (
	"context"
	"log/slog"
	"time"

	"github.com/web3-hub/learning-hub/internal/domain/content"
	"github.com/web3-hub/learning-hub/pkg/circuitbreaker"
	"github.com/web3-hub/learning-hub/pkg/retry"
)

// RemoteConfig configures the guarded raw-content origin.
type RemoteConfig struct {
	// MaxAttempts per Fetch, the first one included.
	MaxAttempts int

	BreakerThreshold int
	BreakerCooldown  time.Duration

	Logger *slog.Logger
}

// RemoteSource wraps a Client with retry and a circuit breaker. Only
// transport errors, 429 and 5xx count against the breaker; a missing
// lesson (404) does not.
type RemoteSource struct {
	client  *Client
	breaker *circuitbreaker.CircuitBreaker
	opts    []retry.Option
	logger  *slog.Logger
}

// NewRemoteSource guards client.
func NewRemoteSource(client *Client, cfg RemoteConfig) *RemoteSource {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "content_origin")

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}

	breaker := circuitbreaker.ContentOriginBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown,
		func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		circuitbreaker.WithIsFailure(IsRetryable),
	)

	opts := append(retry.ContentOriginOptions(cfg.MaxAttempts),
		retry.WithRetryIf(IsRetryable),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Debug("retrying content fetch", "attempt", attempt, "delay", delay, "error", err)
		}),
	)

	return &RemoteSource{client: client, breaker: breaker, opts: opts, logger: logger}
}

// Tier implements content.Source.
func (r *RemoteSource) Tier() content.Tier { return content.TierRemote }

// Fetch implements content.Source.
func (r *RemoteSource) Fetch(ctx context.Context, path string) (string, error) {
	var body string
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		body, err = retry.DoWithData(ctx, func(ctx context.Context) (string, error) {
			return r.client.Fetch(ctx, path)
		}, r.opts...)
		return err
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

// BreakerState exposes the breaker for health output.
func (r *RemoteSource) BreakerState() circuitbreaker.State { return r.breaker.State() }

// BreakerCounts returns the breaker's request statistics.
func (r *RemoteSource) BreakerCounts() circuitbreaker.Counts { return r.breaker.Counts() }

// RateLimiterStatus returns the limiter state, or false when none is set.
func (r *RemoteSource) RateLimiterStatus() (RateLimiterStatus, bool) {
	if r.client.config.RateLimiter == nil {
		return RateLimiterStatus{}, false
	}
	return r.client.config.RateLimiter.Status(), true
}
