package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"classhub-gateway/internal/domain"
)

// Broker topology.
const (
	SecurityEventsExchange = "security.events"
	WebhooksExchange       = "platform.webhooks"
	AuditQueue             = "security.audit"

	auditBindingKey = "csrf.#"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	// amqp channels must not be used for concurrent publishes.
	pubMu sync.Mutex
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until it succeeds or ctx is done, doubling the
// delay between attempts up to 5 seconds.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	delay := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ after %d attempts: %w", attempt, errors.Join(ctx.Err(), err))
		case <-time.After(delay):
		}

		delay *= 2
		if delay > 5*time.Second {
			delay = 5 * time.Second
		}
	}
}

// Setup declares the exchanges and the audit queue. It is idempotent.
func (r *RabbitMQ) Setup() error {
	for _, name := range []string{SecurityEventsExchange, WebhooksExchange} {
		if err := r.channel.ExchangeDeclare(
			name,    // name
			"topic", // type
			true,    // durable
			false,   // auto-deleted
			false,   // internal
			false,   // no-wait
			nil,     // arguments
		); err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", name, err)
		}
	}

	if _, err := r.channel.QueueDeclare(
		AuditQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", AuditQueue, err)
	}

	if err := r.channel.QueueBind(
		AuditQueue,
		auditBindingKey,
		SecurityEventsExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", AuditQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// SecurityEventRoutingKey is the topic key a security event is published under.
func SecurityEventRoutingKey(event *domain.SecurityEvent) string {
	if event.Reason == "" {
		return event.Kind
	}
	return "csrf." + event.Reason
}

func (r *RabbitMQ) PublishSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal security event: %w", err)
	}

	return r.publish(ctx, SecurityEventsExchange, SecurityEventRoutingKey(event), amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         event.Kind,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
}

// PublishWebhook forwards a raw provider payload. The routing key is the
// provider name so downstream consumers can bind per provider.
func (r *RabbitMQ) PublishWebhook(ctx context.Context, provider string, payload []byte) error {
	err := r.publish(ctx, WebhooksExchange, provider, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return err
	}

	slog.Info("published webhook",
		slog.String("provider", provider),
		slog.Int("body_size", len(payload)))
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if err := r.channel.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", exchange, err)
	}
	return nil
}

// ConsumeAudit starts a manual-ack consumer on the audit queue. prefetch
// bounds the number of unacknowledged deliveries and should be at least the
// consumer's batch size.
func (r *RabbitMQ) ConsumeAudit(prefetch int) (<-chan amqp.Delivery, error) {
	if err := r.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := r.channel.Consume(
		AuditQueue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming security events",
		slog.String("queue", AuditQueue))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
