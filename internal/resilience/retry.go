// Package resilience provides the retry and circuit-breaking primitives the
// pipeline wraps around its external text-generation and synthesis calls.
//
// The retry policy is deliberately narrow: a small fixed number of attempts
// with a fixed backoff, and only for transport-level failures (connection
// refused, reset, broken pipe, timeouts). A malformed response is not a
// reason to hammer the service again — callers degrade to a safe default
// instead.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"
)

// RetryConfig holds the bounded-retry tuning knobs.
type RetryConfig struct {
	// Name labels log messages.
	Name string

	// Attempts is the total number of tries, including the first. Default: 3.
	Attempts int

	// Backoff is the fixed delay between tries. Default: 1 s.
	Backoff time.Duration
}

func (c *RetryConfig) applyDefaults() {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
}

// Retry runs fn up to cfg.Attempts times, sleeping cfg.Backoff between
// tries. Only transport-level errors are retried; any other error — and a
// cancelled context — is returned immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg.applyDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransport(lastErr) {
			return lastErr
		}
		if attempt == cfg.Attempts {
			break
		}
		slog.Warn("transport error, retrying",
			"name", cfg.Name,
			"attempt", attempt,
			"attempts", cfg.Attempts,
			"err", lastErr,
		)
		select {
		case <-time.After(cfg.Backoff):
		case <-ctx.Done():
			return fmt.Errorf("resilience: %s: %w", cfg.Name, ctx.Err())
		}
	}
	return fmt.Errorf("resilience: %s failed after %d attempts: %w", cfg.Name, cfg.Attempts, lastErr)
}

// IsTransport reports whether err is a connection/OS-level failure that a
// retry has a chance of fixing, as opposed to a malformed-response or logic
// error that it does not.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
