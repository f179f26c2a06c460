package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	// Subscribe returns once the subscription is active; the channel closes
	// when ctx is cancelled or the broker is closed.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// MessageBroker is the handler-style view of a Broker used by consumers that
// only care about raw payloads.
type MessageBroker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func([]byte) error) error
	Close() error
}
