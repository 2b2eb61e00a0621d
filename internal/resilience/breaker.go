package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open.
var ErrOpen = errors.New("resilience: breaker open")

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels log messages.
	Name string

	// Threshold is the number of consecutive failures before the breaker
	// opens. Default: 3.
	Threshold int

	// Cooldown is how long the breaker stays open before allowing a probe
	// call. Default: 30 s.
	Cooldown time.Duration
}

// Breaker trips after consecutive failures and fast-fails callers until a
// cooldown elapses, sparing them the full cost of an external call that is
// known to be failing. After the cooldown one probe call is let through; its
// outcome decides whether the breaker closes again or re-opens.
//
// The pipeline wraps speech synthesis in a Breaker so that a dead synthesis
// server does not make every response cycle pay the recognizer stop/restart
// tax just to fail at the synthesis step.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a Breaker. Zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{name: cfg.Name, threshold: cfg.Threshold, cooldown: cfg.Cooldown}
}

// Do runs fn unless the breaker is open, in which case it returns [ErrOpen]
// without calling fn. The first call after the cooldown is admitted as a
// probe; a probe failure re-opens the breaker immediately.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.failures >= b.threshold {
		if time.Since(b.openedAt) < b.cooldown || b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
		slog.Info("breaker probing after cooldown", "name", b.name)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err != nil {
		b.failures++
		b.openedAt = time.Now()
		if b.failures == b.threshold {
			slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
		}
		return err
	}
	if b.failures >= b.threshold {
		slog.Info("breaker closed after successful probe", "name", b.name)
	}
	b.failures = 0
	return nil
}

// Open reports whether calls would currently be rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.threshold && (time.Since(b.openedAt) < b.cooldown || b.probing)
}

// Reset forces the breaker closed, clearing the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
}
