package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"classhub-gateway/internal/domain"
)

// EventBatchStore persists a batch of security events atomically.
type EventBatchStore interface {
	CreateBatch(ctx context.Context, events []*domain.SecurityEvent) error
}

// AuditConsumer drains security events from the broker into storage in
// batches. A batch is flushed when it reaches BatchSize or FlushInterval
// elapses, whichever comes first.
type AuditConsumer struct {
	deliveries    <-chan amqp.Delivery
	store         EventBatchStore
	batchSize     int
	flushInterval time.Duration

	pending []amqp.Delivery
	events  []*domain.SecurityEvent
}

func NewAuditConsumer(deliveries <-chan amqp.Delivery, store EventBatchStore, batchSize int, flushInterval time.Duration) *AuditConsumer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &AuditConsumer{
		deliveries:    deliveries,
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run consumes until ctx is cancelled or the delivery channel closes. Any
// partial batch is flushed before returning.
func (c *AuditConsumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping audit consumer")
			// ctx is already done; give the final write its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(flushCtx)
			cancel()
			return
		case msg, ok := <-c.deliveries:
			if !ok {
				slog.Warn("audit consumer channel closed")
				c.flush(ctx)
				return
			}
			c.add(msg)
			if len(c.pending) >= c.batchSize {
				c.flush(ctx)
			}
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

func (c *AuditConsumer) add(msg amqp.Delivery) {
	var event domain.SecurityEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil || event.Kind == "" {
		slog.Error("discarding malformed security event",
			slog.String("routing_key", msg.RoutingKey),
			slog.Int("body_size", len(msg.Body)))
		_ = msg.Nack(false, false)
		return
	}

	// Row ids come from storage.
	event.ID = ""
	event.Normalize()
	c.pending = append(c.pending, msg)
	c.events = append(c.events, &event)
}

// flush stores the pending batch. On success the whole batch is acked with a
// single multiple-ack. When storage refuses an event for its content the batch
// is retried one event at a time so only the offending events are dropped;
// any other failure requeues the batch.
func (c *AuditConsumer) flush(ctx context.Context) {
	if len(c.pending) == 0 {
		return
	}

	last := c.pending[len(c.pending)-1]
	err := c.store.CreateBatch(ctx, c.events)
	switch {
	case err == nil:
		slog.Debug("stored security events", slog.Int("count", len(c.events)))
		_ = last.Ack(true)
	case errors.Is(err, domain.ErrInvalidEvent):
		slog.Warn("batch refused, storing security events one by one",
			slog.Int("count", len(c.events)),
			slog.String("error", err.Error()))
		c.storeEach(ctx)
	default:
		slog.Error("failed to store security events, requeueing",
			slog.Int("count", len(c.events)),
			slog.String("error", err.Error()))
		_ = last.Nack(true, true)
	}

	c.pending = nil
	c.events = nil
}

func (c *AuditConsumer) storeEach(ctx context.Context) {
	for i, event := range c.events {
		msg := c.pending[i]
		err := c.store.CreateBatch(ctx, []*domain.SecurityEvent{event})
		switch {
		case err == nil:
			_ = msg.Ack(false)
		case errors.Is(err, domain.ErrInvalidEvent):
			slog.Error("discarding security event refused by storage",
				slog.String("routing_key", msg.RoutingKey),
				slog.String("error", err.Error()))
			_ = msg.Nack(false, false)
		default:
			_ = msg.Nack(false, true)
		}
	}
}
