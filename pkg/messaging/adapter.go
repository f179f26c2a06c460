package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

type BrokerAdapter struct {
	broker Broker
	logger zerolog.Logger
}

func NewBrokerAdapter(broker Broker, logger zerolog.Logger) MessageBroker {
	return &BrokerAdapter{
		broker: broker,
		logger: logger.With().Str("component", "broker_adapter").Logger(),
	}
}

// Publish forwards payload as-is; it must already be JSON.
func (a *BrokerAdapter) Publish(ctx context.Context, topic string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("payload for %s is not valid JSON", topic)
	}
	return a.broker.Publish(ctx, topic, json.RawMessage(payload))
}

func (a *BrokerAdapter) Close() error {
	return a.broker.Close()
}

// Subscribe runs handler for every message on topic until ctx ends. Handler
// errors are logged and do not stop the subscription.
func (a *BrokerAdapter) Subscribe(ctx context.Context, topic string, handler func([]byte) error) error {
	msgChan, err := a.broker.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgChan {
			if err := handler(msg); err != nil {
				a.logger.Warn().Err(err).Str("topic", topic).Msg("message handler failed")
			}
		}
		a.logger.Debug().Str("topic", topic).Msg("subscription closed")
	}()

	return nil
}
