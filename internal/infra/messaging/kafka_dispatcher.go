package messaging

import (
	"context"
	"fmt"
	"time"

	"celebration_job/internal/domain/notify"

	"github.com/segmentio/kafka-go"
)

// KafkaDispatcher writes notifications to a Kafka topic, keyed by account so a mailer
// consuming the topic sees one account's notifications in order.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, n notify.Notification) error {
	value, err := encodeNotification(n)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(n.AccountID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "idempotency_key", Value: []byte(n.IdempotencyKey)},
			{Key: "content_type", Value: []byte(contentTypeJSON)},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write notification to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
