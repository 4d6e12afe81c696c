package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Logger     *slog.Logger
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.Exchange == "" {
		o.Exchange = Exchange
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Consumer binds a durable queue to the topic exchange and feeds each
// delivery to a handler. Delivery is at-least-once: messages are acked only
// after the handler returns, handler failures are nacked back onto the
// queue, and lost connections are redialed with exponential backoff.
// Prefetch is one message at a time, so a redelivered message is retried
// before any newer one is seen.
type Consumer struct {
	opts    ConsumerOptions
	handler Handler
	logger  *slog.Logger

	connected atomic.Bool

	mu sync.Mutex
	ch *amqp.Channel

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer builds a consumer. Start must be called to begin consuming.
func NewConsumer(handler Handler, opts ConsumerOptions) *Consumer {
	cfg := opts.withDefaults()
	return &Consumer{opts: cfg, handler: handler, logger: cfg.Logger}
}

// Start launches the consume loop in a goroutine. It returns immediately;
// connection failures are retried in the background until Stop is called or
// ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.run(runCtx)
	}()
}

// Stop cancels the consume loop and waits for it to exit.
func (c *Consumer) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Connected reports whether the consumer currently holds a live channel.
func (c *Consumer) Connected() bool {
	return c.connected.Load()
}

// QueueDepth returns the number of messages waiting in the bound queue.
func (c *Consumer) QueueDepth() (int, error) {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return 0, errors.New("event: consumer not connected")
	}
	q, err := ch.QueueDeclarePassive(c.opts.Queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("event: inspect queue %s: %w", c.opts.Queue, err)
	}
	return q.Messages, nil
}

func (c *Consumer) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second

	for {
		err := c.consume(ctx, bo)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		c.logger.Error("event consumer disconnected, retrying",
			"queue", c.opts.Queue, "retry_in", wait, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// consume dials the broker, sets the topology up, and processes deliveries
// until the connection drops or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	conn, err := amqp.Dial(c.opts.URL)
	if err != nil {
		return fmt.Errorf("event: dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("event: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("event: declare exchange %s: %w", c.opts.Exchange, err)
	}
	queue, err := ch.QueueDeclare(c.opts.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("event: declare queue %s: %w", c.opts.Queue, err)
	}
	if err := ch.QueueBind(queue.Name, c.opts.RoutingKey, c.opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("event: bind queue %s: %w", queue.Name, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("event: set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("event: consume %s: %w", queue.Name, err)
	}

	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()
	c.connected.Store(true)
	bo.Reset()
	c.logger.Info("event consumer connected",
		"queue", queue.Name, "routing_key", c.opts.RoutingKey)

	defer func() {
		c.mu.Lock()
		c.ch = nil
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("event: delivery channel closed")
			}
			c.process(ctx, &d)
		}
	}
}

// handlerGrace bounds how long an in-flight handler may keep running once
// its delivery has been received.
const handlerGrace = 30 * time.Second

// process applies the ack/nack policy for one delivery. Undecodable
// messages are acked so they cannot wedge the queue; handler errors other
// than ErrDiscard requeue the message. The handler runs on a context
// detached from the consume loop, so shutdown lets the in-flight message
// finish instead of aborting it into a requeue.
func (c *Consumer) process(ctx context.Context, d *amqp.Delivery) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handlerGrace)
	defer cancel()
	var ev Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.logger.Error("dropping malformed message", "queue", c.opts.Queue, "error", err)
		c.ack(d)
		return
	}
	if ev.Kind == "" {
		c.logger.Error("dropping message without event kind", "queue", c.opts.Queue)
		c.ack(d)
		return
	}

	err := c.handler(hctx, ev)
	switch {
	case err == nil:
		c.ack(d)
	case errors.Is(err, ErrDiscard):
		c.logger.Warn("discarding event", "kind", ev.Kind, "error", err)
		c.ack(d)
	default:
		c.logger.Error("event handling failed, requeueing",
			"kind", ev.Kind, "redelivered", d.Redelivered, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("nack failed", "kind", ev.Kind, "error", nackErr)
		}
	}
}

func (c *Consumer) ack(d *amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", "queue", c.opts.Queue, "error", err)
	}
}
