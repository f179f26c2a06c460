package notification

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Reconnect strategies.
const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

const (
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultMaxReconnectDelay    = time.Minute
)

// newBackOff builds the delay schedule between reconnect attempts. The
// attempt limit is enforced by the client, never by the schedule itself.
func newBackOff(strategy string, delay, maxDelay time.Duration) backoff.BackOff {
	if strategy != StrategyExponential {
		return backoff.NewConstantBackOff(delay)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
