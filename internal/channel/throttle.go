package channel

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottledSender limits the rate at which the wrapped sender is called.
// Callers block until a token is available or ctx ends.
type ThrottledSender struct {
	sender  Sender
	limiter *rate.Limiter
	name    string
}

// NewThrottledSender allows perSecond sends with the given burst. A
// non-positive rate disables throttling.
func NewThrottledSender(name string, sender Sender, perSecond float64, burst int) *ThrottledSender {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	return &ThrottledSender{
		sender:  sender,
		limiter: rate.NewLimiter(limit, burst),
		name:    name,
	}
}

// Send waits for the limiter, then delegates.
func (t *ThrottledSender) Send(ctx context.Context, address string, content Content) (Result, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Result{}, &DeliveryError{Provider: t.name, Err: err}
	}
	return t.sender.Send(ctx, address, content)
}
