package websocket

import (
	"math"
	"math/rand"
	"time"
)

// reconnectDelay returns the delay before reconnect attempt N (1-based).
// Jitter is applied before the cap, so MaxDelay is never exceeded.
func reconnectDelay(rc *ReconnectOptions, attempt int, rng *rand.Rand) time.Duration {
	if rc.Delay <= 0 {
		return 0
	}
	delay := float64(rc.Delay)
	if attempt > 1 && rc.Backoff.Multiplier > 1.0 {
		delay *= math.Pow(rc.Backoff.Multiplier, float64(attempt-1))
	}
	if rc.Backoff.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	if rc.Backoff.MaxDelay > 0 && delay >= float64(rc.Backoff.MaxDelay) {
		return rc.Backoff.MaxDelay
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit a Duration.
	if delay >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
