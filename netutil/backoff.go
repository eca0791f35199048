// Package netutil implements the exponential backoff calculator used by
// the HTTP transport's own reachability logic for generic network and
// server errors, as opposed to the engine's fixed-interval retry timer
// for recoverable protocol errors.
package netutil

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

var ErrInvalidBackoffConfig = errors.New("netutil: invalid backoff config")

// BackoffConfig parameterizes the exponential backoff curve.
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxRetries      int
	Jitter          bool
	JitterFactor    float64
}

// DefaultBackoffConfig returns sane defaults for a long-poll transport's
// own reconnect loop.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxRetries:      0, // 0 = retry indefinitely
		Jitter:          true,
		JitterFactor:    0.2,
	}
}

func (bc *BackoffConfig) Validate() error {
	if bc.InitialInterval <= 0 {
		return ErrInvalidBackoffConfig
	}
	if bc.MaxInterval < bc.InitialInterval {
		return ErrInvalidBackoffConfig
	}
	if bc.Multiplier <= 0 {
		return ErrInvalidBackoffConfig
	}
	if bc.JitterFactor < 0 || bc.JitterFactor > 1 {
		return ErrInvalidBackoffConfig
	}
	return nil
}

// Backoff computes successive retry intervals for one reconnect
// sequence. Not safe for concurrent use; callers own one per attempt
// loop.
type Backoff struct {
	config  *BackoffConfig
	attempt int
}

// NewBackoff validates config (or substitutes defaults when nil) and
// returns a Backoff ready to call Next on.
func NewBackoff(config *BackoffConfig) (*Backoff, error) {
	if config == nil {
		config = DefaultBackoffConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Backoff{config: config}, nil
}

// Next returns the interval to wait before the next attempt, or false if
// MaxRetries has been reached.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.config.MaxRetries > 0 && b.attempt >= b.config.MaxRetries {
		return 0, false
	}
	interval := b.calculate()
	b.attempt++
	return interval, true
}

func (b *Backoff) calculate() time.Duration {
	interval := float64(b.config.InitialInterval) * math.Pow(b.config.Multiplier, float64(b.attempt))
	if interval > float64(b.config.MaxInterval) {
		interval = float64(b.config.MaxInterval)
	}
	if b.config.Jitter {
		jitter := interval * b.config.JitterFactor
		interval = interval - jitter + (rand.Float64() * 2 * jitter)
	}
	return time.Duration(interval)
}

// Reset starts a fresh attempt sequence.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt reports how many intervals have been handed out so far.
func (b *Backoff) Attempt() int {
	return b.attempt
}
