// Package retry computes backoff delays for the polling workers.
package retry

import (
	"math/rand"
	"sync"
	"time"
)

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Next doubles current, starting from base and capped at max.
func Next(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// Exponential returns base * 2^(attempt-1), capped at max. Attempt is 1-based.
func Exponential(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 1 {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	return d
}

// WithJitter adds up to window of random delay to d.
func WithJitter(d, window time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if window <= 0 {
		return d
	}
	jitterMu.Lock()
	jitter := time.Duration(jitterSource.Int63n(int64(window)))
	jitterMu.Unlock()
	return d + jitter
}
