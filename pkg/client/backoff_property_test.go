package client

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_BackoffBounded validates that the backoff sequence never
// exceeds the configured cap, for any starting point and multiplier.
func TestProperty_BackoffBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("backoff never exceeds MaxBackoff", prop.ForAll(
		func(initialMs int64, maxMs int64, multiplier float64, steps int) bool {
			if maxMs < initialMs {
				initialMs, maxMs = maxMs, initialMs
			}
			cfg := RetryConfig{
				InitialBackoff:    time.Duration(initialMs) * time.Millisecond,
				MaxBackoff:        time.Duration(maxMs) * time.Millisecond,
				BackoffMultiplier: multiplier,
			}

			backoff := cfg.InitialBackoff
			for i := 0; i < steps; i++ {
				backoff = nextBackoff(backoff, cfg)
				if backoff > cfg.MaxBackoff {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 10_000),
		gen.Int64Range(1, 120_000),
		gen.Float64Range(1.0, 10.0),
		gen.IntRange(1, 20),
	))

	properties.Property("backoff is non-decreasing for multiplier >= 1", prop.ForAll(
		func(initialMs int64, multiplier float64, steps int) bool {
			cfg := RetryConfig{
				InitialBackoff:    time.Duration(initialMs) * time.Millisecond,
				MaxBackoff:        2 * time.Minute,
				BackoffMultiplier: multiplier,
			}

			prev := cfg.InitialBackoff
			for i := 0; i < steps; i++ {
				next := nextBackoff(prev, cfg)
				if next < prev {
					return false
				}
				prev = next
			}
			return true
		},
		gen.Int64Range(1, 5_000),
		gen.Float64Range(1.0, 5.0),
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}

// TestProperty_JitterRange validates that jitter stays within ±20% of the
// base delay.
func TestProperty_JitterRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("jittered delay stays within ±20%", prop.ForAll(
		func(baseMs int64) bool {
			base := time.Duration(baseMs) * time.Millisecond
			jittered := withJitter(base)

			lower := time.Duration(float64(base) * 0.8)
			upper := time.Duration(float64(base) * 1.2)
			return jittered >= lower && jittered <= upper
		},
		gen.Int64Range(1, 60_000),
	))

	properties.TestingRun(t)
}
