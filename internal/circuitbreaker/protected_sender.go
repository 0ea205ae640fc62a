package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/channel"
)

// ProtectedSender fails fast while its breaker is open instead of waiting on
// a transport that keeps failing. A missing address is the caller's problem,
// not the transport's, so it does not count against the breaker.
type ProtectedSender struct {
	sender  channel.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger

	onReject func(name string)
}

// NewProtectedSender wraps sender with breaker.
func NewProtectedSender(sender channel.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// OnReject registers fn to be called for every call rejected by the breaker.
func (p *ProtectedSender) OnReject(fn func(name string)) *ProtectedSender {
	p.onReject = fn
	return p
}

// Send delegates to the wrapped sender unless the breaker is open.
func (p *ProtectedSender) Send(ctx context.Context, address string, content channel.Content) (channel.Result, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected delivery",
			zap.String("breaker", p.breaker.Name()),
			zap.String("notification_id", content.NotificationID),
			zap.String("state", p.breaker.GetState().String()),
		)
		if p.onReject != nil {
			p.onReject(p.breaker.Name())
		}
		return channel.Result{}, &channel.DeliveryError{
			Provider: p.breaker.Name(),
			Err:      fmt.Errorf("%w: %s transport unavailable", ErrCircuitOpen, p.breaker.Name()),
		}
	}

	res, err := p.sender.Send(ctx, address, content)
	switch {
	case err == nil:
		p.breaker.RecordSuccess()
	case errors.Is(err, channel.ErrMissingAddress):
		p.breaker.Release()
	default:
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.Name()),
			zap.Error(err),
		)
	}

	return res, err
}

// Breaker returns the wrapped breaker.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
