package ingest

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

const (
	retryAttempts = 2
	retryBaseWait = 100 * time.Millisecond
)

// isTransient reports whether an error is worth retrying. Context
// cancellation and logic errors are permanent; network hiccups are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{"connection reset", "connection refused", "broken pipe", "i/o timeout", "database is locked"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn, retrying transient failures with linear backoff.
// Permanent failures return immediately.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) || attempt == retryAttempts {
			return err
		}

		select {
		case <-time.After(retryBaseWait * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
