package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestRetry_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), RetryConfig{Name: "test"}, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestRetry_RetriesTransportErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), RetryConfig{Name: "test", Attempts: 3, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestRetry_DoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	parseErr := errors.New("malformed response")
	err := Retry(context.Background(), RetryConfig{Name: "test", Attempts: 3, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		return parseErr
	})
	if !errors.Is(err, parseErr) {
		t.Fatalf("Retry returned %v, want %v", err, parseErr)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), RetryConfig{Name: "test", Attempts: 3, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		return fmt.Errorf("dial: %w", syscall.ECONNRESET)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Fatalf("final error %v does not wrap the last failure", err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestRetry_CancelledContextStopsBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{Name: "test", Attempts: 3, Backoff: time.Minute}, func(context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry returned %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestIsTransport(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"conn refused", fmt.Errorf("wrap: %w", syscall.ECONNREFUSED), true},
		{"broken pipe", syscall.EPIPE, true},
		{"net timeout", &net.DNSError{IsTimeout: true}, true},
		{"plain error", errors.New("bad json"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransport(tc.err); got != tc.want {
				t.Fatalf("IsTransport(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
