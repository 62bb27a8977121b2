package store

import (
	"context"
	"strings"
	"time"
)

// Transient conflicts (serialization failures, deadlocks, sqlite write
// contention) are retried here with bounded exponential backoff so they are
// never surfaced to the HTTP caller. The retried function must be a complete
// transaction: each attempt either commits fully or leaves no trace, which
// keeps retries idempotent from the client's perspective.
const (
	txMaxAttempts = 3
	txBaseDelay   = 25 * time.Millisecond
)

// isTransient reports whether err is a database conflict worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"), // sqlite busy
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "SQLSTATE 40001"), // serialization failure
		strings.Contains(msg, "SQLSTATE 40P01"): // deadlock detected
		return true
	}
	return false
}

// withTxRetry runs fn, retrying transient conflicts with exponential backoff.
func withTxRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := txBaseDelay
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == txMaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
