// Package ratelimit paces outbound catalog API requests.
//
// The catalog API has no hard published quota, but hammering it earns 429
// responses. The pacer enforces a minimum interval between requests on top
// of the client's reactive Retry-After handling.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum delay between consecutive requests.
// A nil Pacer is valid and performs no pacing.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewPacer creates a pacer allowing at most requestsPerSecond requests.
// Returns nil (no pacing) when requestsPerSecond <= 0.
func NewPacer(requestsPerSecond float64) *Pacer {
	if requestsPerSecond <= 0 {
		return nil
	}
	return &Pacer{
		interval: time.Duration(float64(time.Second) / requestsPerSecond),
	}
}

// Interval returns the enforced minimum interval between requests.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Wait blocks until the pacing interval since the previous request has
// elapsed, or the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	wait := p.interval - now.Sub(p.last)
	if wait < 0 {
		wait = 0
	}
	// Reserve the slot before sleeping so concurrent callers queue up.
	p.last = now.Add(wait)
	p.mu.Unlock()

	if wait == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
