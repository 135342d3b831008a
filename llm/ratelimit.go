package llm

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps a provider with a token-bucket limiter shared by
// all callers. With several personas reacting in parallel, this keeps
// burst fan-out inside the upstream quota instead of bouncing off 429s.
func WithRateLimit(inner Provider, rps float64, burst int) Provider {
	return &rateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *rateLimitedProvider) Name() string { return p.inner.Name() }

func (p *rateLimitedProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Generate(ctx, req)
}

func (p *rateLimitedProvider) GenerateStructured(ctx context.Context, req *GenerateRequest, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.inner.GenerateStructured(ctx, req, out)
}
