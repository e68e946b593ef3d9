package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"celebration_job/internal/domain/notify"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const confirmTimeout = 10 * time.Second

// AMQPDispatcher publishes notifications to a RabbitMQ topic exchange with publisher confirms.
type AMQPDispatcher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *logrus.Entry
	mu         sync.Mutex // serialises publish + confirm on the channel
	closeOnce  sync.Once
}

// NewAMQPDispatcher dials the broker, declares the durable exchange and enables confirms.
func NewAMQPDispatcher(url, exchange, routingKey string, logger *logrus.Entry) (*AMQPDispatcher, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate publisher confirms: %w", err)
	}

	logger.WithField("exchange", exchange).Info("Connected to RabbitMQ")
	return &AMQPDispatcher{
		conn:       c,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// Dispatch publishes n and waits for the broker ACK, bounded by ctx.
func (d *AMQPDispatcher) Dispatch(ctx context.Context, n notify.Notification) error {
	body, err := encodeNotification(n)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	deferred, err := d.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		d.exchange,
		d.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:    n.IdempotencyKey,
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         string(n.EventType),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: notification not persisted")
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publisher confirm timeout")
	}
}

// Close shuts down the channel and connection.
func (d *AMQPDispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.logger.Info("Closing RabbitMQ dispatcher")
		if d.channel != nil {
			d.channel.Close()
		}
		if d.conn != nil {
			d.conn.Close()
		}
	})
	return nil
}
