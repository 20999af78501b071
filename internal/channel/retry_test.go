package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/scambio/internal/channel/domain"
	"github.com/smallbiznis/scambio/internal/config"
)

func newTestRetrier(delays *[]time.Duration) *Retrier {
	r := NewRetrier(zap.NewNop())
	r.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return r
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Second,
		Multiplier:   2,
		MaxDelay:     60 * time.Second,
	}
}

func TestRetrier_SucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	result, attempts, err := r.Submit(context.Background(), testPolicy(), func(_ context.Context, _ int) (*domain.SubmitResult, error) {
		return &domain.SubmitResult{Accepted: true, ChannelID: "12345"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, result.Accepted)
	assert.Empty(t, delays)
}

func TestRetrier_RetriesTransportFailures(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	calls := 0
	result, attempts, err := r.Submit(context.Background(), testPolicy(), func(_ context.Context, _ int) (*domain.SubmitResult, error) {
		calls++
		if calls < 3 {
			return nil, &domain.SubmitError{Code: "transport_error", Retryable: true}
		}
		return &domain.SubmitResult{Accepted: true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, result.Accepted)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)
}

func TestRetrier_StopsOnStructuralError(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	structural := &domain.SubmitError{Code: "http_400", Retryable: false}
	_, attempts, err := r.Submit(context.Background(), testPolicy(), func(_ context.Context, _ int) (*domain.SubmitResult, error) {
		return nil, structural
	})
	require.ErrorIs(t, err, structural)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, delays)
}

func TestRetrier_Exhaustion(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	last := &domain.SubmitError{Code: "transport_error", Message: "connection refused", Retryable: true}
	_, attempts, err := r.Submit(context.Background(), testPolicy(), func(_ context.Context, _ int) (*domain.SubmitResult, error) {
		return nil, last
	})
	require.ErrorIs(t, err, last)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)
}

func TestRetrier_DelayCap(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	policy := RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Second,
		Multiplier:   2,
		MaxDelay:     12 * time.Second,
	}
	_, attempts, err := r.Submit(context.Background(), policy, func(_ context.Context, _ int) (*domain.SubmitResult, error) {
		return nil, &domain.SubmitError{Code: "transport_error", Retryable: true}
	})
	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 12 * time.Second, 12 * time.Second}, delays)
}

func TestRetrier_AttemptTimeout(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	policy := RetryPolicy{
		MaxAttempts:    2,
		InitialDelay:   time.Second,
		Multiplier:     2,
		AttemptTimeout: 5 * time.Millisecond,
	}
	_, attempts, err := r.Submit(context.Background(), policy, func(ctx context.Context, _ int) (*domain.SubmitResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, attempts)
}

func TestRetrier_StopsWhenContextCanceled(t *testing.T) {
	r := NewRetrier(zap.NewNop())
	r.sleep = func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	}

	transport := &domain.SubmitError{Code: "transport_error", Retryable: true}
	_, attempts, err := r.Submit(context.Background(), testPolicy(), func(_ context.Context, _ int) (*domain.SubmitResult, error) {
		return nil, transport
	})
	require.ErrorIs(t, err, transport)
	assert.Equal(t, 1, attempts)
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(config.SDIConfig{
		SubmitTimeoutSeconds: 30,
		Retry: config.SDIRetryConfig{
			MaxAttempts:         3,
			InitialDelaySeconds: 5,
			Multiplier:          2,
			MaxDelaySeconds:     60,
		},
	})
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 5*time.Second, policy.InitialDelay)
	assert.Equal(t, float64(2), policy.Multiplier)
	assert.Equal(t, 60*time.Second, policy.MaxDelay)
	assert.Equal(t, 30*time.Second, policy.AttemptTimeout)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(stubFactory{code: "mock"}, nil, stubFactory{code: ""})

	assert.True(t, registry.ChannelExists("mock"))
	assert.True(t, registry.ChannelExists(" MOCK "))
	assert.False(t, registry.ChannelExists("sdicoop"))

	ch, err := registry.NewChannel("mock", domain.ChannelConfig{Code: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", ch.Code())

	_, err = registry.NewChannel("missing", domain.ChannelConfig{})
	require.ErrorIs(t, err, domain.ErrChannelNotFound)
}

type stubFactory struct{ code string }

func (f stubFactory) Code() string { return f.code }

func (f stubFactory) NewChannel(domain.ChannelConfig) (domain.Channel, error) {
	return stubChannel{code: f.code}, nil
}

type stubChannel struct{ code string }

func (c stubChannel) Code() string { return c.code }

func (c stubChannel) Submit(context.Context, domain.SubmitRequest) (*domain.SubmitResult, error) {
	return nil, errors.New("not implemented")
}
