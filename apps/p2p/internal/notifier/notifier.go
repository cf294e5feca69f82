// Package notifier fans state-change events out to counterparties. Delivery
// is per-wallet KV queues for the web client, plus an optional Kafka
// broadcast topic for open buy/sell intents. Both channels are best-effort:
// a failed dispatch is logged and never fails the primary operation.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/events"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/repository"
)

type Dispatcher struct {
	notifications *repository.NotificationRepository
	logger        *zap.Logger
	kafkaProducer *kafka.Producer
	kafkaTopic    string
	now           func() time.Time
}

// NewDispatcher creates a dispatcher without a broadcast sink.
func NewDispatcher(notifications *repository.NotificationRepository, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// NewDispatcherWithBroadcast additionally wires a Kafka producer for the
// open-intent broadcast queue.
func NewDispatcherWithBroadcast(notifications *repository.NotificationRepository, kafkaBroker, kafkaTopic string, logger *zap.Logger) (*Dispatcher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	d := NewDispatcher(notifications, logger)
	d.kafkaProducer = producer
	d.kafkaTopic = kafkaTopic
	return d, nil
}

// Notify stores one event in the recipient wallet's notification queue.
// Fire-and-forget: failures are logged, not returned.
func (d *Dispatcher) Notify(ctx context.Context, event events.TradeEvent) {
	if event.RecipientWallet == "" {
		return
	}

	n := &model.Notification{
		ID:              uuid.NewString(),
		RecipientWallet: event.RecipientWallet,
		SenderWallet:    event.SenderWallet,
		Type:            event.Type,
		OrderID:         event.OrderID,
		OrderData:       event.OrderData,
		CreatedAt:       d.now(),
	}

	if err := d.notifications.Save(ctx, n); err != nil {
		d.logger.Warn("Failed to deliver notification",
			zap.String("recipient_wallet", event.RecipientWallet),
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}

	d.logger.Info("Dispatched notification",
		zap.String("recipient_wallet", event.RecipientWallet),
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID))
}

// Broadcast publishes an event to the Kafka topic, keyed by the sender
// wallet for partition consistency. No-op without a producer; best-effort
// with one.
func (d *Dispatcher) Broadcast(event events.TradeEvent) {
	if d.kafkaProducer == nil {
		return
	}

	event.Timestamp = d.now()
	msgBytes, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("Failed to marshal broadcast event", zap.Error(err))
		return
	}

	deliveryChan := make(chan kafka.Event)
	defer close(deliveryChan)

	err = d.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &d.kafkaTopic, Partition: kafka.PartitionAny},
		Key:            []byte(event.SenderWallet),
		Value:          msgBytes,
	}, deliveryChan)
	if err != nil {
		d.logger.Error("Failed to publish broadcast event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	e := <-deliveryChan
	if msg, ok := e.(*kafka.Message); ok && msg.TopicPartition.Error != nil {
		d.logger.Error("Broadcast delivery failed",
			zap.String("type", event.Type),
			zap.Error(msg.TopicPartition.Error))
		return
	}

	d.logger.Info("Broadcast event published",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID))
}

func (d *Dispatcher) Close() {
	if d.kafkaProducer != nil {
		d.kafkaProducer.Close()
	}
}
