package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/sqs"
)

// Receiver yields hand-off messages. *sqs.Consumer implements it.
type Receiver interface {
	Receive(ctx context.Context) ([]sqs.Delivery, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Dispatcher delivers one record. *notify.Processor implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) error
}

// Consumer dispatches ids handed off through SQS. A message is deleted once
// Dispatch returns without a datastore fault; otherwise it becomes visible
// again and is retried. Dispatch is idempotent, so redelivery is safe.
type Consumer struct {
	receiver   Receiver
	dispatcher Dispatcher
	logger     *zap.Logger
	errBackoff time.Duration
}

func NewConsumer(receiver Receiver, dispatcher Dispatcher, logger *zap.Logger) *Consumer {
	return &Consumer{
		receiver:   receiver,
		dispatcher: dispatcher,
		logger:     logger,
		errBackoff: time.Second,
	}
}

// Run polls until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("sqs dispatch consumer started")
	defer c.logger.Info("sqs dispatch consumer stopped")

	for ctx.Err() == nil {
		deliveries, err := c.receiver.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("sqs receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.errBackoff):
			}
			continue
		}
		c.handle(ctx, deliveries)
	}
}

func (c *Consumer) handle(ctx context.Context, deliveries []sqs.Delivery) {
	metrics.SetSQSMessagesInFlight(len(deliveries))
	defer metrics.SetSQSMessagesInFlight(0)

	for _, d := range deliveries {
		if d.Err == nil {
			if err := c.dispatcher.Dispatch(ctx, d.NotificationID); err != nil {
				c.logger.Error("dispatch from sqs failed, leaving message for redelivery",
					zap.String("notification_id", d.NotificationID.String()),
					zap.Error(err),
				)
				continue
			}
		}

		// undecodable messages are dropped, they would never succeed
		if err := c.receiver.Delete(ctx, d.ReceiptHandle); err != nil {
			c.logger.Warn("sqs delete failed", zap.Error(err))
		}
	}
}
