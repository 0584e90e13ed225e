package session

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the wait before attach attempt n (1-based). The first
// attempt always waits InitialDelay so a slow creator is not hammered.
// With Jitter the delay is scaled into [0.5, 1.5) of its nominal value.
func (c BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	if n <= 1 {
		return c.InitialDelay
	}
	mult := math.Max(c.Multiplier, 1)
	d := float64(c.InitialDelay) * math.Pow(mult, float64(n-1))
	if c.MaxDelay > 0 {
		d = math.Min(d, float64(c.MaxDelay))
	}
	if c.Jitter && rng != nil {
		d *= 0.5 + rng.Float64()
	}
	return time.Duration(d)
}
