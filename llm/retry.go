package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/hitolab/gdflow/types"
)

// RetryPolicy configures exponential backoff for provider calls.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy suits interactive discussion turns: short initial
// delay, few attempts, because a reply that arrives late is worse than
// a reply that falls back.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

type retryingProvider struct {
	inner  Provider
	policy *RetryPolicy
	logger *zap.Logger
}

// WithRetry wraps a provider with exponential backoff. Only errors
// marked retryable (rate limits, upstream timeouts, 5xx) are retried;
// content filters and malformed requests fail straight through.
func WithRetry(inner Provider, policy *RetryPolicy, logger *zap.Logger) Provider {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingProvider{
		inner:  inner,
		policy: policy,
		logger: logger.With(zap.String("component", "llm_retry"), zap.String("provider", inner.Name())),
	}
}

func (p *retryingProvider) Name() string { return p.inner.Name() }

func (p *retryingProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var resp *GenerateResponse
	err := p.do(ctx, func() error {
		var err error
		resp, err = p.inner.Generate(ctx, req)
		return err
	})
	return resp, err
}

func (p *retryingProvider) GenerateStructured(ctx context.Context, req *GenerateRequest, out any) error {
	return p.do(ctx, func() error {
		return p.inner.GenerateStructured(ctx, req, out)
	})
}

func (p *retryingProvider) do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.delay(attempt)
			p.logger.Debug("retrying provider call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !types.IsRetryable(lastErr) {
			return lastErr
		}
	}
	p.logger.Warn("retries exhausted",
		zap.Int("attempts", p.policy.MaxRetries+1),
		zap.Error(lastErr))
	return lastErr
}

func (p *retryingProvider) delay(attempt int) time.Duration {
	d := float64(p.policy.InitialDelay) * math.Pow(p.policy.Multiplier, float64(attempt-1))
	if d > float64(p.policy.MaxDelay) {
		d = float64(p.policy.MaxDelay)
	}
	if p.policy.Jitter {
		d += (rand.Float64()*2 - 1) * d * 0.25
	}
	if d < float64(p.policy.InitialDelay) {
		d = float64(p.policy.InitialDelay)
	}
	return time.Duration(d)
}
