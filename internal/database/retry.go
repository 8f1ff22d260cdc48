package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/retry"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func writeBackoff() retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	}
}

// withRetry runs a write, retrying lock contention and serialization
// failures. The final error is wrapped as a database error.
func (d *Database) withRetry(ctx context.Context, operation string, fn func() error) error {
	err := retry.NewBackoff(writeBackoff()).
		OnRetry(func(attempt int, delay time.Duration, err error) {
			d.logger.WithField("operation", operation).
				WithField("attempt", attempt).
				WithError(err).
				Debug("Retrying database write")
		}).
		RetryWithPredicate(ctx, fn, isRetryableDBError)
	if err != nil {
		return apperrors.NewDatabaseError(operation, err)
	}
	return nil
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		return pgErr.Code.Class() == "08" // connection exceptions
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}
