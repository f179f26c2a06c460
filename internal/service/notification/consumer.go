package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/pkg/messaging"
)

// Consumer turns messages published on a broker channel into notifications,
// so other services (or redis-cli) can raise them.
type Consumer struct {
	svc    Service
	logger zerolog.Logger
}

func NewConsumer(svc Service, logger zerolog.Logger) *Consumer {
	return &Consumer{
		svc:    svc,
		logger: logger.With().Str("component", "notification_consumer").Logger(),
	}
}

// Start subscribes to channel and returns once the subscription is live.
func (c *Consumer) Start(ctx context.Context, broker messaging.MessageBroker, channel string) error {
	if err := broker.Subscribe(ctx, channel, func(payload []byte) error {
		return c.handle(ctx, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	c.logger.Info().Str("channel", channel).Msg("listening for published notifications")
	return nil
}

func (c *Consumer) handle(ctx context.Context, payload []byte) error {
	var req model.CreateNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode published notification: %w", err)
	}
	if _, err := c.svc.Create(ctx, &req); err != nil {
		return err
	}
	return nil
}
