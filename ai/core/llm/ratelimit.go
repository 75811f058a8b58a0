package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// WithRateLimit paces requests to at most rps per second with the given burst.
// A non-positive rps returns svc unchanged.
func WithRateLimit(svc Service, rps float64, burst int) Service {
	if svc == nil || rps <= 0 {
		return svc
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedService{
		next:    svc,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type rateLimitedService struct {
	next    Service
	limiter *rate.Limiter
}

func (r *rateLimitedService) Complete(ctx context.Context, req *Request) (*ChatResponse, *LLMCallStats, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	return r.next.Complete(ctx, req)
}
