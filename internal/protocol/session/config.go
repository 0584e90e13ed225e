package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines attach and retry defaults for one endpoint.
type Config struct {
	// AttachTimeout bounds how long an attacher waits for its creator.
	// Zero waits until the context ends.
	AttachTimeout time.Duration
	Backoff       BackoffConfig
}

// DefaultConfig returns the attach defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		AttachTimeout: 30 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued backoff fields from DefaultConfig. An
// entirely unset backoff takes the defaults wholesale, jitter included.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	if c.AttachTimeout < 0 {
		c.AttachTimeout = 0
	}
	return c
}
