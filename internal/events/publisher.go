package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bookstore/services/order/internal/db"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeName = "bookstore.events"
	exchangeType = "topic"

	// Event types
	EventTypeOrderCreated   = "order.created"
	EventTypeOrderCancelled = "order.cancelled"

	eventVersion = "1.0.0"

	// Retry configuration
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

// Event represents a domain event
type Event struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	EventVersion  string                 `json:"event_version"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation id that is copied into published events
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID, or ""
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Publisher handles order event publishing to RabbitMQ
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	log      *zap.Logger

	// an amqp channel is not safe for concurrent publish-and-confirm
	mu sync.Mutex
}

// NewPublisher creates a new event publisher
func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Info("Connected to RabbitMQ", zap.String("exchange", exchangeName))

	return &Publisher{
		conn:     conn,
		channel:  channel,
		confirms: channel.NotifyPublish(make(chan amqp.Confirmation, 16)),
		log:      log,
	}, nil
}

// PublishOrderCreated announces a committed checkout
func (p *Publisher) PublishOrderCreated(ctx context.Context, order *db.Order) error {
	return p.publishWithRetry(ctx, EventTypeOrderCreated, NewOrderEvent(ctx, EventTypeOrderCreated, order))
}

// PublishOrderCancelled announces a cancellation whose stock has been released
func (p *Publisher) PublishOrderCancelled(ctx context.Context, order *db.Order) error {
	return p.publishWithRetry(ctx, EventTypeOrderCancelled, NewOrderEvent(ctx, EventTypeOrderCancelled, order))
}

// NewOrderEvent builds the envelope for an order event
func NewOrderEvent(ctx context.Context, eventType string, order *db.Order) Event {
	items := make([]map[string]interface{}, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]interface{}{
			"book_id":  item.BookID,
			"title":    item.Title,
			"quantity": item.Quantity,
			"price":    item.Price,
		})
	}

	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: CorrelationID(ctx),
		Payload: map[string]interface{}{
			"order_id":     order.ID,
			"user_id":      order.UserID,
			"status":       order.Status,
			"total_amount": order.TotalAmount,
			"items":        items,
		},
	}
}

// publishWithRetry publishes event on routingKey until the broker confirms it,
// backing off exponentially between attempts
func (p *Publisher) publishWithRetry(ctx context.Context, routingKey string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.EventType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt, wait := 1, initialBackoff; attempt <= maxRetries; attempt, wait = attempt+1, min(wait*2, maxBackoff) {
		if lastErr = p.publishOnce(ctx, routingKey, event, body); lastErr == nil {
			p.log.Info("Event published",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
				zap.String("correlation_id", event.CorrelationID),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == maxRetries {
			break
		}

		p.log.Warn("Event publish failed, retrying",
			zap.String("event_id", event.EventID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("publish %s after %d attempts: %w", event.EventType, maxRetries, lastErr)
}

func (p *Publisher) publishOnce(ctx context.Context, routingKey string, event Event, body []byte) error {
	seq := p.channel.GetNextPublishSeqNo()
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		MessageId:     event.EventID,
		CorrelationId: event.CorrelationID,
		Type:          event.EventType,
		Body:          body,
		Headers: amqp.Table{
			"event_type":    event.EventType,
			"event_version": event.EventVersion,
		},
	}
	if err := p.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, msg); err != nil {
		return err
	}
	return p.awaitConfirm(ctx, seq)
}

// awaitConfirm waits for the broker confirmation of delivery tag seq, skipping stale
// confirmations left over from attempts that timed out
func (p *Publisher) awaitConfirm(ctx context.Context, seq uint64) error {
	timeout := time.NewTimer(confirmTimeout)
	defer timeout.Stop()

	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return fmt.Errorf("confirmation channel closed")
			}
			if confirm.DeliveryTag < seq {
				continue
			}
			if !confirm.Ack {
				return fmt.Errorf("event not acknowledged")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("confirmation timeout")
		}
	}
}

// IsHealthy checks if the publisher connection is healthy
func (p *Publisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the publisher connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}
