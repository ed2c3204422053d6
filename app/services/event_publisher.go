package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/amirphl/lead-lifecycle/app/dto"
)

// Lead lifecycle exchange and routing keys
const (
	LeadEventsExchange       = "ex.leads"
	RoutingKeyLeadsEscalated = "lead.escalated"
	RoutingKeyLeadsPurged    = "lead.purged"
)

// LeadLifecycleEvent is published once per maintenance run that affected at least one lead
type LeadLifecycleEvent struct {
	Event         string                `json:"event"`
	RunID         string                `json:"run_id"`
	Operator      string                `json:"operator"`
	ReferenceDate string                `json:"reference_date"`
	DaysThreshold float64               `json:"days_threshold"`
	Cutoff        string                `json:"cutoff"`
	Leads         []dto.LeadSnapshotDTO `json:"leads"`
	OccurredAt    string                `json:"occurred_at"`
}

// LeadEventPublisher emits lifecycle events to downstream consumers
type LeadEventPublisher interface {
	PublishLeadEvent(ctx context.Context, routingKey string, event LeadLifecycleEvent) error
	Close() error
}

// ErrPublisherClosed is returned after Close
var ErrPublisherClosed = errors.New("event publisher is closed")

const brokerDialTimeout = 5 * time.Second

// amqpSession is one broker connection with its publishing channel
type amqpSession interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type rabbitSession struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// dialRabbitSession connects, opens a channel and declares the durable topic exchange
func dialRabbitSession(url, exchange string) (amqpSession, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(brokerDialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &rabbitSession{conn: conn, ch: ch}, nil
}

func (s *rabbitSession) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	return s.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

func (s *rabbitSession) IsClosed() bool {
	return s.conn.IsClosed() || s.ch.IsClosed()
}

func (s *rabbitSession) Close() error {
	_ = s.ch.Close()
	return s.conn.Close()
}

// RabbitMQEventPublisher publishes persistent JSON messages on a durable topic exchange.
// A dropped connection is re-dialed on the next publish or Ping.
type RabbitMQEventPublisher struct {
	url      string
	exchange string
	dial     func(url, exchange string) (amqpSession, error)

	mu      sync.Mutex // amqp channels are not safe for concurrent publishing
	session amqpSession
	closed  bool
}

// NewRabbitMQEventPublisher dials the broker and declares the lead events exchange
func NewRabbitMQEventPublisher(url, exchange string) (*RabbitMQEventPublisher, error) {
	return newRabbitMQEventPublisher(url, exchange, dialRabbitSession)
}

func newRabbitMQEventPublisher(url, exchange string, dial func(url, exchange string) (amqpSession, error)) (*RabbitMQEventPublisher, error) {
	if exchange == "" {
		exchange = LeadEventsExchange
	}

	p := &RabbitMQEventPublisher{url: url, exchange: exchange, dial: dial}
	if _, err := p.sessionLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// sessionLocked returns a live session, dialing a new one when the current one closed. p.mu must be held.
func (p *RabbitMQEventPublisher) sessionLocked() (amqpSession, error) {
	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.session != nil && !p.session.IsClosed() {
		return p.session, nil
	}
	if p.session != nil {
		_ = p.session.Close()
		p.session = nil
	}

	s, err := p.dial(p.url, p.exchange)
	if err != nil {
		return nil, err
	}
	p.session = s
	return s, nil
}

// PublishLeadEvent marshals the event and publishes it with persistent delivery.
// A publish that fails on a closed channel is retried once on a fresh connection.
func (p *RabbitMQEventPublisher) PublishLeadEvent(ctx context.Context, routingKey string, event LeadLifecycleEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal lead event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    event.RunID,
		Timestamp:    time.Now().UTC(),
		Type:         event.Event,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 0; ; attempt++ {
		s, err := p.sessionLocked()
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", routingKey, err)
		}

		err = s.Publish(ctx, p.exchange, routingKey, msg)
		if err == nil {
			return nil
		}
		if attempt > 0 || !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to publish %s: %w", routingKey, err)
		}
		_ = s.Close()
		p.session = nil
	}
}

// Ping reports whether the broker is reachable, re-dialing a dropped connection
func (p *RabbitMQEventPublisher) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.sessionLocked()
	return err
}

// Close closes the current session; later publishes fail with ErrPublisherClosed
func (p *RabbitMQEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}

// NoopEventPublisher is used when event publishing is disabled
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishLeadEvent(context.Context, string, LeadLifecycleEvent) error {
	return nil
}

func (NoopEventPublisher) Close() error { return nil }
