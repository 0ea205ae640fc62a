package channel

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Provider names reported by the local fallbacks.
const (
	LocalEmailProvider = "local-email"
	LocalSMSProvider   = "local-sms"
)

// EmailMessage is one outgoing email. HTML and Text are sent as alternative
// parts when both are set.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailTransport sends email through a provider.
type EmailTransport interface {
	Name() string
	SendEmail(ctx context.Context, msg EmailMessage) (string, error)
}

// EmailSender delivers to an email address. Without a transport it records
// the message locally and reports LocalEmailProvider.
type EmailSender struct {
	transport EmailTransport
	logger    *zap.Logger
}

// NewEmailSender creates an email sender. transport may be nil.
func NewEmailSender(transport EmailTransport, logger *zap.Logger) *EmailSender {
	return &EmailSender{transport: transport, logger: logger}
}

// Send emails content to address.
func (s *EmailSender) Send(ctx context.Context, address string, content Content) (Result, error) {
	if address == "" {
		return Result{}, ErrMissingAddress
	}

	if s.transport == nil {
		id := localMessageID()
		s.logger.Info("email recorded locally, no transport configured",
			zap.String("notification_id", content.NotificationID),
			zap.String("to", address),
			zap.String("subject", content.Title),
			zap.String("message_id", id),
		)
		return Result{ProviderName: LocalEmailProvider, ProviderMessageID: id}, nil
	}

	msg := EmailMessage{
		To:      address,
		Subject: content.Title,
		HTML:    content.HTML,
		Text:    content.Body,
	}

	id, err := s.transport.SendEmail(ctx, msg)
	if err != nil {
		return Result{}, &DeliveryError{Provider: s.transport.Name(), Err: err}
	}

	s.logger.Info("email sent",
		zap.String("notification_id", content.NotificationID),
		zap.String("provider", s.transport.Name()),
		zap.String("message_id", id),
	)

	return Result{ProviderName: s.transport.Name(), ProviderMessageID: id}, nil
}

func localMessageID() string {
	return "local-" + uuid.NewString()
}
