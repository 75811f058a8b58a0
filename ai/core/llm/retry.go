package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy controls how transient completion failures are retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the first backoff delay (default 500ms); it doubles per retry.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff delay (default 8s).
	MaxDelay time.Duration
	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the policy used by the CLI.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// Backoff returns the delay before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// WithRetry wraps svc so that *TransientAPIError results are retried with
// exponential backoff. Fatal errors and context cancellation return at once.
func WithRetry(svc Service, policy RetryPolicy) Service {
	if svc == nil {
		return nil
	}
	return &retryService{
		next:   svc,
		policy: policy.normalized(),
		sleep:  sleepContext,
	}
}

type retryService struct {
	next   Service
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

func (r *retryService) Complete(ctx context.Context, req *Request) (*ChatResponse, *LLMCallStats, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}

	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		resp, stats, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, stats, nil
		}
		lastErr = err
		if attempt == r.policy.MaxRetries || !IsTransient(err) || ctx.Err() != nil {
			break
		}

		delay := r.policy.Backoff(attempt + 1)
		if hint := retryAfter(err); hint > delay && hint <= r.policy.MaxDelay {
			delay = hint
		}
		slog.Warn("LLM: transient failure, retrying",
			"attempt", attempt+1,
			"max_retries", r.policy.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt+1, err, delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, lastErr
}

func retryAfter(err error) time.Duration {
	var t *TransientAPIError
	if errors.As(err, &t) {
		return t.RetryAfter
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
