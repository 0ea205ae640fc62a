package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// LoadAWSConfig loads the shared AWS configuration once for every AWS transport.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SESTransport sends email via AWS SES.
type SESTransport struct {
	client sesAPI
	from   string
}

// NewSESTransport creates an SES transport. A non-empty endpoint overrides the
// service URL (LocalStack).
func NewSESTransport(awsCfg aws.Config, endpoint, from string) *SESTransport {
	client := ses.NewFromConfig(awsCfg, func(o *ses.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &SESTransport{client: client, from: from}
}

func (t *SESTransport) Name() string { return "ses" }

// SendEmail sends msg and returns the SES message id.
func (t *SESTransport) SendEmail(ctx context.Context, msg EmailMessage) (string, error) {
	body := &sestypes.Body{}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	if msg.Text != "" {
		body.Text = utf8Content(msg.Text)
	}

	result, err := t.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(t.from),
		Destination: &sestypes.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &sestypes.Message{
			Subject: utf8Content(msg.Subject),
			Body:    body,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send failed: %w", err)
	}

	return aws.ToString(result.MessageId), nil
}

func utf8Content(s string) *sestypes.Content {
	return &sestypes.Content{
		Data:    aws.String(s),
		Charset: aws.String("UTF-8"),
	}
}

// SNSSMSTransport sends text messages via AWS SNS direct publish.
type SNSSMSTransport struct {
	client   snsAPI
	senderID string
}

// NewSNSSMSTransport creates an SNS SMS transport. senderID is optional.
func NewSNSSMSTransport(awsCfg aws.Config, endpoint, senderID string) *SNSSMSTransport {
	return &SNSSMSTransport{client: newSNSClient(awsCfg, endpoint), senderID: senderID}
}

func (t *SNSSMSTransport) Name() string { return "sns-sms" }

// SendSMS publishes text to phone as a transactional SMS.
func (t *SNSSMSTransport) SendSMS(ctx context.Context, phone, text string) (string, error) {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": stringAttribute("Transactional"),
	}
	if t.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = stringAttribute(t.senderID)
	}

	result, err := t.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("sns publish failed: %w", err)
	}

	return aws.ToString(result.MessageId), nil
}

// SNSPushTransport publishes to SNS mobile platform endpoints. The device
// token of a push delivery is the endpoint ARN.
type SNSPushTransport struct {
	client snsAPI
}

// NewSNSPushTransport creates an SNS mobile push transport.
func NewSNSPushTransport(awsCfg aws.Config, endpoint string) *SNSPushTransport {
	return &SNSPushTransport{client: newSNSClient(awsCfg, endpoint)}
}

func (t *SNSPushTransport) Name() string { return "sns-push" }

// Push publishes msg to the endpoint ARN in msg.Token.
func (t *SNSPushTransport) Push(ctx context.Context, msg PushMessage) (string, error) {
	message, err := platformMessage(msg)
	if err != nil {
		return "", err
	}

	result, err := t.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(msg.Token),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.MOBILE.APNS.PRIORITY": stringAttribute("10"),
		},
	})
	if err != nil {
		return "", fmt.Errorf("sns push publish failed: %w", err)
	}

	return aws.ToString(result.MessageId), nil
}

// platformMessage builds the per-platform JSON document SNS expects when
// MessageStructure is "json". Each platform value is itself a JSON string.
func platformMessage(msg PushMessage) (string, error) {
	data := msg.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": msg.Title, "body": msg.Body},
		"data":         data,
		"priority":     msg.Priority,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal gcm payload: %w", err)
	}

	apns, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert": map[string]string{"title": msg.Title, "body": msg.Body},
			"sound": "default",
		},
		"data": data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal apns payload: %w", err)
	}

	doc, err := json.Marshal(map[string]string{
		"default": msg.Body,
		"GCM":     string(gcm),
		"APNS":    string(apns),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal push message: %w", err)
	}

	return string(doc), nil
}

func newSNSClient(awsCfg aws.Config, endpoint string) *sns.Client {
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func stringAttribute(v string) snstypes.MessageAttributeValue {
	return snstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
