package transport

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/danmuck/halostencil/internal/protocol/frame"
)

// BackoffConfig defines dial retry backoff.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config describes one rank's place in a TCP cluster.
type Config struct {
	ListenAddr string
	// Peers maps every rank of the group, including this one, to its
	// listen address.
	Peers map[int]string

	// ConnectTimeout bounds the whole dial retry loop, not one attempt.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for a slab reply; zero waits for the
	// caller's context only.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Backoff      BackoffConfig
	Limits       frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Peers:          map[int]string{},
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    0,
		WriteTimeout:   5 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}

func (c Config) Validate(rank int) error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("transport: rank %d has no listen address", rank)
	}
	if _, ok := c.Peers[rank]; !ok {
		return fmt.Errorf("transport: rank %d missing from peers", rank)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("transport: connect_timeout must be positive")
	}
	if c.Limits.MaxPayloadBytes == 0 {
		return fmt.Errorf("transport: payload limit must be positive")
	}
	return nil
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
