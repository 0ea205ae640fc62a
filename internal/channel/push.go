package channel

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

// PriorityHigh asks the push platform for immediate delivery.
const PriorityHigh = "high"

// PushMessage is the platform-agnostic push payload handed to a transport.
type PushMessage struct {
	Token    string          `json:"token"`
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Data     json.RawMessage `json:"data,omitempty"`
	Priority string          `json:"priority"`
}

// PushTransport hands push messages to a push gateway.
type PushTransport interface {
	Name() string
	Push(ctx context.Context, msg PushMessage) (string, error)
}

var errNoPushTransport = errors.New("no push transport configured")

// PushSender delivers to a device token. Unlike email and SMS it has no local
// fallback: without a transport every send fails.
type PushSender struct {
	transport PushTransport
	logger    *zap.Logger
}

// NewPushSender creates a push sender. transport may be nil.
func NewPushSender(transport PushTransport, logger *zap.Logger) *PushSender {
	return &PushSender{transport: transport, logger: logger}
}

// Send pushes content to the device identified by token.
func (s *PushSender) Send(ctx context.Context, token string, content Content) (Result, error) {
	if token == "" {
		return Result{}, ErrMissingAddress
	}
	if s.transport == nil {
		return Result{}, &DeliveryError{Provider: "push", Err: errNoPushTransport}
	}

	msg := PushMessage{
		Token:    token,
		Title:    content.Title,
		Body:     content.Body,
		Data:     content.Data,
		Priority: PriorityHigh,
	}

	id, err := s.transport.Push(ctx, msg)
	if err != nil {
		return Result{}, &DeliveryError{Provider: s.transport.Name(), Err: err}
	}

	s.logger.Info("push sent",
		zap.String("notification_id", content.NotificationID),
		zap.String("provider", s.transport.Name()),
		zap.String("message_id", id),
	)

	return Result{ProviderName: s.transport.Name(), ProviderMessageID: id}, nil
}
