// Package channel delivers rendered notifications over push, email and SMS.
// Each sender wraps one injected transport; the transports talk to AWS SES,
// AWS SNS, Postmark or an HTTP push gateway.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrMissingAddress is returned when a delivery has no token, email or phone to go to.
var ErrMissingAddress = errors.New("missing delivery address")

// DeliveryError wraps a transport failure with the provider that raised it.
type DeliveryError struct {
	Provider string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Provider, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Content is what gets delivered. Data is passed through to transports that
// carry structured data and is never inspected.
type Content struct {
	NotificationID string
	Title          string
	Body           string
	HTML           string // optional alternative to Body, email only
	Data           json.RawMessage
}

// Result identifies a delivery at the provider.
type Result struct {
	ProviderName      string
	ProviderMessageID string
}

// Sender delivers content to one address on one channel.
type Sender interface {
	Send(ctx context.Context, address string, content Content) (Result, error)
}

// Router routes deliveries to the sender registered for their channel.
type Router struct {
	senders map[string]Sender
	logger  *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		senders: make(map[string]Sender),
		logger:  logger,
	}
}

// Handle registers s for ch, replacing any previous sender.
func (r *Router) Handle(ch string, s Sender) *Router {
	r.senders[ch] = s
	return r
}

// Supports reports whether a sender is registered for ch.
func (r *Router) Supports(ch string) bool {
	_, ok := r.senders[ch]
	return ok
}

// Send delivers content through the sender registered for ch.
func (r *Router) Send(ctx context.Context, ch, address string, content Content) (Result, error) {
	s, ok := r.senders[ch]
	if !ok {
		return Result{}, &DeliveryError{Provider: ch, Err: fmt.Errorf("no sender registered for channel %q", ch)}
	}

	r.logger.Debug("routing notification to sender",
		zap.String("channel", ch),
		zap.String("notification_id", content.NotificationID),
	)
	return s.Send(ctx, address, content)
}
