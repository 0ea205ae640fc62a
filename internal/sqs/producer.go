// Package sqs hands notification ids to out-of-process dispatchers through
// an SQS queue. Only the id travels; the consumer re-reads the record, so a
// stale or duplicate message is harmless.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// API is the subset of the SQS client used here.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// NewClient builds an SQS client. A non-empty endpoint overrides the
// service URL (LocalStack).
func NewClient(awsCfg aws.Config, endpoint string) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// Message is the body of a hand-off message.
type Message struct {
	NotificationID string `json:"notification_id"`
	EnqueuedAt     int64  `json:"enqueued_at"`
}

// Producer publishes notification ids for dispatch.
type Producer struct {
	client   API
	queueURL string
	logger   *zap.Logger
	now      func() time.Time
}

// NewProducer creates a producer for queueURL.
func NewProducer(client API, queueURL string, logger *zap.Logger) *Producer {
	logger.Info("sqs producer initialized", zap.String("queue_url", queueURL))
	return &Producer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish sends id to the queue and returns the SQS message id.
func (p *Producer) Publish(ctx context.Context, id uuid.UUID) (string, error) {
	body, err := json.Marshal(Message{
		NotificationID: id.String(),
		EnqueuedAt:     p.now().UnixNano(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	msgID := aws.ToString(result.MessageId)
	p.logger.Debug("notification handed off to sqs",
		zap.String("notification_id", id.String()),
		zap.String("sqs_message_id", msgID),
	)
	return msgID, nil
}
