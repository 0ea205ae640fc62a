package channel

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
)

type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkTransport sends email through Postmark's transactional API.
type PostmarkTransport struct {
	client postmarkAPI
	from   string
	tag    string
}

// NewPostmarkTransport creates a Postmark transport.
func NewPostmarkTransport(serverToken, accountToken, from string) *PostmarkTransport {
	return &PostmarkTransport{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
		tag:    "notification",
	}
}

func (t *PostmarkTransport) Name() string { return "postmark" }

// SendEmail sends msg and returns the Postmark message id. Postmark reports
// some rejections in the response body rather than as transport errors.
func (t *PostmarkTransport) SendEmail(ctx context.Context, msg EmailMessage) (string, error) {
	resp, err := t.client.SendEmail(ctx, postmark.Email{
		From:       t.from,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        t.tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Text,
		TrackOpens: msg.HTML != "",
	})
	if err != nil {
		return "", fmt.Errorf("postmark send failed: %w", err)
	}
	if resp.ErrorCode > 0 {
		return "", fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}

	return resp.MessageID, nil
}
