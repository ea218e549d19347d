package llm

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/easygithub/easygithub/pkg/observability"
)

// Middleware decorates a Provider with a cross-cutting concern.
type Middleware func(Provider) Provider

// Wrap applies middlewares in left-to-right order:
// Wrap(inner, A, B) => A(B(inner)).
func Wrap(inner Provider, mws ...Middleware) Provider {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// Close releases resources held by p and any provider it wraps. Providers
// that hold none are left alone.
func Close(p Provider) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// RateLimit throttles calls to rps per second with the given burst.
// rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Provider) Provider {
		rl := newRPSLimiter(rps, burst)
		if rl == nil {
			return next
		}
		return &rateLimited{next: next, rl: rl}
	}
}

type rateLimited struct {
	next Provider
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }

// Close stops the refill goroutine.
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return Close(c.next)
}

func (c *rateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.Complete(ctx, req)
}

// Retry retries failed completions up to maxAttempts with exponential
// backoff starting at baseDelay. [PermanentError]s and context errors are
// returned immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	maxAttempts = max(maxAttempts, 1)
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Provider) Provider {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Provider
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Close() error { return Close(r.next) }

func (r *retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.base
	b.Multiplier = 2

	var permanent error
	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if stderrors.As(err, &pErr) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			permanent = err
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.max)),
		backoff.WithMaxElapsedTime(0),
	)
	if permanent != nil {
		return nil, permanent
	}
	return resp, err
}

// Hooks reports every completion to the registered observability hooks.
func Hooks() Middleware {
	return func(next Provider) Provider {
		return &hooked{next: next}
	}
}

type hooked struct {
	next Provider
}

func (h *hooked) Name() string { return h.next.Name() }

func (h *hooked) Close() error { return Close(h.next) }

func (h *hooked) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := h.next.Complete(ctx, req)

	provider, model, _ := strings.Cut(h.next.Name(), ":")
	var in, out int
	if resp != nil {
		in, out = resp.InputTokens, resp.OutputTokens
		if resp.Model != "" {
			model = resp.Model
		}
	}
	observability.LLM().OnCompletion(ctx, provider, model, in, out, time.Since(start), err)
	return resp, err
}
