package adapter

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Lifecycle defaults.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 5 * time.Second
	DefaultHealthCheckInterval  = 60 * time.Second
)

// Config holds the settings shared by every adapter kind.
type Config struct {
	ID   string
	Kind string

	// MaxReconnectAttempts caps consecutive reconnect attempts.
	MaxReconnectAttempts int

	// ReconnectDelay is the wait before the first attempt; it doubles after
	// each failure.
	ReconnectDelay time.Duration

	// HealthCheckInterval is the health check period. Negative disables the ticker.
	HealthCheckInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	return c
}

// ReconnectBackOff returns a fresh reconnect schedule: ReconnectDelay,
// doubling per attempt, no jitter.
func (c Config) ReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.ReconnectDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.ReconnectDelay << 10
	return b
}
