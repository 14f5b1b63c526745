package notifications

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
)

// deliveryQueueName is the topic a queued delivery is published to so a
// consumer can wake the email worker before its next tick. The DB
// polling path in EmailWorker.Index remains correct on its own; this
// queue is a latency optimization, not a dependency.
const deliveryQueueName = "notification_deliveries"

// DeliveryQueued is the event published after a notification insert,
// one per channel the recipient has enabled.
type DeliveryQueued struct {
	NotificationID int64               `json:"notification_id"`
	Channel        db.NotificationChannel `json:"channel"`
}

// Queue publishes DeliveryQueued events; a nil *Queue (no AMQP
// connection configured) makes Publish a no-op so the notification
// fabric degrades to pure DB polling.
type Queue struct {
	channel *amqp.Channel
}

func NewQueue(conn *amqp.Connection) (*Queue, error) {
	if conn == nil {
		return &Queue{}, nil
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(deliveryQueueName, false, false, false, false, nil); err != nil {
		return nil, err
	}
	return &Queue{channel: ch}, nil
}

func (q *Queue) Publish(ctx context.Context, event DeliveryQueued) {
	if q == nil || q.channel == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warn("failed to marshal delivery-queued event", zap.Error(err))
		return
	}
	err = q.channel.PublishWithContext(ctx, "", deliveryQueueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		logger.Warn("failed to publish delivery-queued event", zap.Error(err))
	}
}

// Consume wakes the worker early for every queued delivery; each
// message just triggers an Index pass rather than carrying the payload
// through, since the ledger is the source of truth for what is due.
func (q *Queue) Consume(ctx context.Context, worker *EmailWorker, batchSize int) error {
	if q == nil || q.channel == nil {
		return nil
	}
	msgs, err := q.channel.Consume(deliveryQueueName, "", true, false, false, false, nil)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := worker.Index(ctx, batchSize); err != nil {
				logger.Warn("early-wake email worker pass failed", zap.Error(err))
			}
		}
	}
}
