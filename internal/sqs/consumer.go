package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsumerConfig tunes long polling. Zero fields take their defaults.
type ConsumerConfig struct {
	QueueURL          string
	MaxMessages       int32
	WaitSeconds       int32
	VisibilityTimeout int32
}

// Delivery is one received message. NotificationID is uuid.Nil when the
// body could not be decoded; such messages should be deleted.
type Delivery struct {
	NotificationID uuid.UUID
	ReceiptHandle  string
	Err            error
}

// Consumer reads hand-off messages.
type Consumer struct {
	client API
	config ConsumerConfig
	logger *zap.Logger
}

// NewConsumer creates a consumer.
func NewConsumer(client API, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > 10 {
		cfg.MaxMessages = 10
	}
	if cfg.WaitSeconds <= 0 {
		cfg.WaitSeconds = 20
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 60
	}

	logger.Info("sqs consumer initialized", zap.String("queue_url", cfg.QueueURL))
	return &Consumer{client: client, config: cfg, logger: logger}
}

// Receive long-polls for up to MaxMessages messages.
func (c *Consumer) Receive(ctx context.Context) ([]Delivery, error) {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.config.QueueURL),
		MaxNumberOfMessages: c.config.MaxMessages,
		WaitTimeSeconds:     c.config.WaitSeconds,
		VisibilityTimeout:   c.config.VisibilityTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive failed: %w", err)
	}

	out := make([]Delivery, 0, len(result.Messages))
	for _, m := range result.Messages {
		d := Delivery{ReceiptHandle: aws.ToString(m.ReceiptHandle)}

		var msg Message
		if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &msg); err != nil {
			d.Err = fmt.Errorf("invalid message format: %w", err)
		} else if d.NotificationID, err = uuid.Parse(msg.NotificationID); err != nil {
			d.Err = fmt.Errorf("invalid notification id %q: %w", msg.NotificationID, err)
		}
		if d.Err != nil {
			c.logger.Error("undecodable sqs message", zap.Error(d.Err))
		}
		out = append(out, d)
	}
	return out, nil
}

// Delete removes a message after it was handled.
func (c *Consumer) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}
	return nil
}

// ExtendVisibility hides a message for another seconds while it is worked on.
func (c *Consumer) ExtendVisibility(ctx context.Context, receiptHandle string, seconds int32) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.config.QueueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: seconds,
	})
	if err != nil {
		return fmt.Errorf("sqs change visibility failed: %w", err)
	}
	return nil
}
