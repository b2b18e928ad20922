package gen

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/teranos/refinery/errors"
)

// RateLimited wraps a Client with a token-bucket limiter. Callers block in
// Wait until the limiter admits the call or the context is cancelled, so
// burst traffic from a wide pool degrades to a steady request rate instead
// of overwhelming the backend.
type RateLimited struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimited wraps inner, admitting at most requestsPerMinute calls per
// minute. requestsPerMinute <= 0 returns inner unchanged.
func NewRateLimited(inner Client, requestsPerMinute int) Client {
	if requestsPerMinute <= 0 {
		return inner
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}
}

// Call implements Client.
func (r *RateLimited) Call(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrapf(err, "rate limit wait for %s", req.Task)
	}
	return r.inner.Call(ctx, req)
}
