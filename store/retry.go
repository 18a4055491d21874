package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds the write retry loop: MaxAttempts total attempts with a
// linear backoff of BaseDelay * attempt between them. Reads are never
// retried; they fail fast.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy mirrors the admin UI's tolerance: three attempts,
// one-second base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// linearBackoff yields base, 2*base, 3*base, ...
func linearBackoff(base time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return base * time.Duration(attempt), false
	})
}

// withRetry runs op, retrying only errors classified as transient. Anything
// else (validation, not found, constraint violations, cancelled contexts)
// fails on the first attempt.
func withRetry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) error {
	if policy.MaxAttempts <= 1 {
		return op(ctx)
	}
	backoff := retry.WithMaxRetries(uint64(policy.MaxAttempts-1), linearBackoff(policy.BaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient classifies an error as worth retrying: network failures, dead
// connections and a handful of Postgres conditions that resolve on their own.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions. 40001/40P01: serialization and
		// deadlock, safe to replay. 57P01: server shutting down.
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "57P01":
			return true
		}
		return false
	}

	// sqlite under concurrent writers.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
