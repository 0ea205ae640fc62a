package channel

import (
	"context"

	"go.uber.org/zap"
)

// SMSTransport sends text messages through a provider.
type SMSTransport interface {
	Name() string
	SendSMS(ctx context.Context, phone, text string) (string, error)
}

// SMSSender delivers to a phone number. Without a transport it records the
// message locally and reports LocalSMSProvider.
type SMSSender struct {
	transport SMSTransport
	logger    *zap.Logger
}

// NewSMSSender creates an SMS sender. transport may be nil.
func NewSMSSender(transport SMSTransport, logger *zap.Logger) *SMSSender {
	return &SMSSender{transport: transport, logger: logger}
}

// Send texts content.Body to phone. SMS has no title.
func (s *SMSSender) Send(ctx context.Context, phone string, content Content) (Result, error) {
	if phone == "" {
		return Result{}, ErrMissingAddress
	}

	if s.transport == nil {
		id := localMessageID()
		s.logger.Info("sms recorded locally, no transport configured",
			zap.String("notification_id", content.NotificationID),
			zap.String("phone_number", phone),
			zap.String("message_id", id),
		)
		return Result{ProviderName: LocalSMSProvider, ProviderMessageID: id}, nil
	}

	id, err := s.transport.SendSMS(ctx, phone, content.Body)
	if err != nil {
		return Result{}, &DeliveryError{Provider: s.transport.Name(), Err: err}
	}

	s.logger.Info("sms sent",
		zap.String("notification_id", content.NotificationID),
		zap.String("provider", s.transport.Name()),
		zap.String("message_id", id),
	)

	return Result{ProviderName: s.transport.Name(), ProviderMessageID: id}, nil
}
