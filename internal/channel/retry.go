package channel

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/scambio/internal/channel/domain"
	"github.com/smallbiznis/scambio/internal/config"
)

// RetryPolicy bounds the automatic redelivery of one submission.
type RetryPolicy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// PolicyFromConfig translates the hot-reloadable SDI tuning into a policy.
func PolicyFromConfig(cfg config.SDIConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialDelay:   time.Duration(cfg.Retry.InitialDelaySeconds) * time.Second,
		Multiplier:     cfg.Retry.Multiplier,
		MaxDelay:       time.Duration(cfg.Retry.MaxDelaySeconds) * time.Second,
		AttemptTimeout: time.Duration(cfg.SubmitTimeoutSeconds) * time.Second,
	}
}

// AttemptFunc performs one delivery attempt.
type AttemptFunc func(ctx context.Context, attempt int) (*domain.SubmitResult, error)

// Retrier drives submission attempts with exponential backoff. Structural
// failures stop immediately; only transport failures are retried.
type Retrier struct {
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(log *zap.Logger) *Retrier {
	return &Retrier{
		log:   log.Named("channel.retrier"),
		sleep: sleepContext,
	}
}

// Submit runs fn until it succeeds, fails terminally, or the policy is
// exhausted. It returns the number of attempts made and, on failure, the
// last error observed.
func (r *Retrier) Submit(ctx context.Context, policy RetryPolicy, fn AttemptFunc) (*domain.SubmitResult, int, error) {
	delay := policy.InitialDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := attemptContext(ctx, policy)
		result, err := fn(attemptCtx, attempt)
		cancel()
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			r.log.Warn("channel failed submission terminally",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, attempt, err
		}
		if attempt >= policy.MaxAttempts {
			r.log.Error("channel attempts exhausted",
				zap.Int("attempts", attempt),
				zap.Error(lastErr),
			)
			return nil, attempt, lastErr
		}

		r.log.Warn("channel submission failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, attempt, lastErr
		}
		delay = nextDelay(delay, policy)
	}
}

func attemptContext(ctx context.Context, policy RetryPolicy) (context.Context, context.CancelFunc) {
	if policy.AttemptTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, policy.AttemptTimeout)
}

func nextDelay(current time.Duration, policy RetryPolicy) time.Duration {
	next := time.Duration(float64(current) * policy.Multiplier)
	if policy.MaxDelay > 0 && next > policy.MaxDelay {
		next = policy.MaxDelay
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
