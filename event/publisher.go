package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher emits events to the topic exchange on a best-effort basis.
// Delivery is at-most-once: a publish failure tears the connection down,
// logs, and reports the error, but callers treat it as non-fatal. The next
// publish dials a fresh connection.
type Publisher struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger used for connection lifecycle events.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher builds a publisher for the given broker URL. No connection is
// made until the first publish.
func NewPublisher(url string, opts ...PublisherOption) *Publisher {
	p := &Publisher{url: url, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Publish encodes ev and sends it to the exchange with the event kind as
// routing key. Messages are marked persistent so a durable queue retains
// them across broker restarts.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event: encode %s: %w", ev.Kind, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("event: connect for %s: %w", ev.Kind, err)
	}

	err = ch.PublishWithContext(ctx, Exchange, ev.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.Timestamp,
		Body:         body,
	})
	if err != nil {
		p.teardown()
		return fmt.Errorf("event: publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Healthy reports whether the publisher currently holds an open connection.
// False merely means the next publish will have to dial first.
func (p *Publisher) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}

// Close shuts the connection down. The publisher stays usable; a later
// publish reconnects.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardown()
	return nil
}

// channel returns the current channel, dialing and declaring the exchange
// if needed. Callers must hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.teardown()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	p.conn = conn
	p.ch = ch
	p.logger.Info("event publisher connected", "exchange", Exchange)
	return ch, nil
}

func (p *Publisher) teardown() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
