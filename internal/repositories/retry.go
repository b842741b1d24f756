package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	maxWriteAttempts = 3
	retryBackoff     = 100 * time.Millisecond

	// Bounded wait on write-lock acquisition. Contended writes fail with
	// SQLSTATE 55P03 after this long and go through the retry path instead
	// of blocking indefinitely.
	lockTimeout = "5s"
)

// limitLockWait applies the bounded lock wait to the current transaction
func limitLockWait(tx *gorm.DB) error {
	return tx.Exec("SET LOCAL lock_timeout = '" + lockTimeout + "'").Error
}

// SQLSTATE codes that indicate transient contention worth retrying:
// serialization_failure, deadlock_detected, lock_not_available.
var transientSQLStates = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// IsTransient reports whether an error is transient storage contention
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientSQLStates[pgErr.Code]
	}
	return false
}

// WithRetry runs a write operation, retrying on transient contention with a
// bounded number of attempts and linear backoff. A still-failing operation
// is surfaced wrapped in ErrTransient so callers can map it to a 5xx.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == maxWriteAttempts {
			break
		}

		log.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Msg("Transient storage contention, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return errors.Wrapf(ErrTransient, "%s failed after %d attempts: %v", op, maxWriteAttempts, err)
}
