package pacing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket allowing one request per interval with the given burst
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter; a non-positive interval disables pacing
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until the next request is allowed
func (l *RateLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Policy is the retry policy applied to retryable provider errors
type Policy struct {
	MaxRetries uint64
	Backoff    time.Duration // first delay, doubled on every retry
	MaxBackoff time.Duration // 0 for uncapped
}

// Pacer runs provider calls through the limiter and retries retryable failures
type Pacer struct {
	Limiter domain.Limiter
	Policy  Policy
	Logger  logrus.FieldLogger
}

// NewPacer creates a new Pacer instance
func NewPacer(limiter domain.Limiter, policy Policy, logger logrus.FieldLogger) *Pacer {
	if policy.Backoff <= 0 {
		policy.Backoff = time.Millisecond
	}
	return &Pacer{
		Limiter: limiter,
		Policy:  policy,
		Logger:  logger,
	}
}

func (p *Pacer) backoff() retry.Backoff {
	b := retry.NewExponential(p.Policy.Backoff)
	if p.Policy.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.Policy.MaxBackoff, b)
	}
	return retry.WithMaxRetries(p.Policy.MaxRetries, b)
}

// Do calls fn once the limiter allows it.
// Retryable *domain.ProviderError results are retried with exponential backoff,
// waiting at least the provider's Retry-After. Other errors are returned at once.
func (p *Pacer) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		if err := p.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		err := fn(ctx)
		if err == nil || !domain.IsRetryable(err) {
			return err
		}

		p.Logger.WithFields(logrus.Fields{"request": label, "attempt": attempt}).WithError(err).Warn("retryable provider error")

		var perr *domain.ProviderError
		if errors.As(err, &perr) && perr.RetryAfter > 0 {
			if werr := sleep(ctx, perr.RetryAfter); werr != nil {
				return werr
			}
		}
		return retry.RetryableError(err)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
