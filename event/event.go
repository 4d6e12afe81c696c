// Package event carries domain events between services over RabbitMQ.
//
// Events travel through a single durable topic exchange. The routing key of
// a published message is the event kind, so consumers bind queues with
// patterns like "product.*" or an exact kind.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Exchange is the topic exchange both services publish to and consume from.
const Exchange = "events"

// Event kinds emitted by the services. The kind doubles as the routing key.
const (
	KindProductCreated  = "product.created"
	KindProductUpdated  = "product.updated"
	KindProductDeleted  = "product.deleted"
	KindInventoryUpdate = "product.inventory.update"
	KindUserCreated     = "user.created"
	KindUserLogin       = "user.login"
	KindUserLogout      = "user.logout"
)

// ErrDiscard tells the consumer the message is understood but not actionable
// (e.g. it references an entity that no longer exists). The consumer acks it
// instead of requeueing.
var ErrDiscard = errors.New("event: discard message")

// Event is the wire envelope. Data holds the kind-specific payload.
type Event struct {
	Kind      string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event of the given kind, stamping it with the current time.
func New(kind string, data any) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("event: encode %s payload: %w", kind, err)
	}
	return Event{Kind: kind, Timestamp: time.Now().UTC(), Data: payload}, nil
}

// DecodeData unmarshals the event payload into out.
func (e Event) DecodeData(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event: %s has no payload", e.Kind)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("event: decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// Handler processes a decoded event. Returning ErrDiscard drops the message;
// any other error requeues it for redelivery.
type Handler func(ctx context.Context, ev Event) error
