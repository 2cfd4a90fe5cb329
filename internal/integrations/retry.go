package integrations

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rvergara/docflow/pkg/schema"
)

// RetryPolicy bounds how an integration call is retried.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Backoff is "constant", "linear" or "exponential".
	Backoff  string
	MaxDelay time.Duration
}

// DefaultRetryPolicy retries twice with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
		Backoff:     "exponential",
		MaxDelay:    10 * time.Second,
	}
}

// IsRetryable classifies whether a failed call is worth retrying.
// Timeouts and network errors are; validation errors and shutdown are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var fe *schema.FlowError
	if errors.As(err, &fe) {
		switch fe.Code {
		case schema.ErrCodeValidation, schema.ErrCodeNotFound, schema.ErrCodeConflict:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return true
}

// Backoff computes the delay before retry number attempt (zero-based).
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	var delay time.Duration
	switch p.Backoff {
	case "exponential":
		multiplier := time.Duration(1)
		for i := 0; i < attempt; i++ {
			multiplier *= 2
		}
		delay = p.Delay * multiplier
	case "linear":
		delay = p.Delay * time.Duration(attempt+1)
	default:
		delay = p.Delay
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// waitBackoff sleeps for the delay or bails out when the context is done.
func waitBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
