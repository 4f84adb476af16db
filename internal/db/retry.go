package db

import (
	"context" // Cancellation between attempts
	"errors"  // Error inspection
	"time"    // Backoff

	"github.com/go-sql-driver/mysql" // MySQL error numbers
	"github.com/jackc/pgx/v5/pgconn" // PostgreSQL SQLSTATE codes
	"github.com/sirupsen/logrus"     // Structured logging
	"gorm.io/gorm"                   // GORM ORM library
)

// MaxAttempts bounds how often a unit of work is retried after a lock conflict
const MaxAttempts = 3

// IsRetryable reports whether err is a deadlock, lock timeout or serialization
// failure that a fresh attempt of the whole unit of work may resolve.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205 // Deadlock, lock wait timeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01" // Serialization failure, deadlock
	}
	return false
}

// Transaction runs fn inside one database transaction and retries the whole
// unit of work on retryable conflicts. Any other error rolls back and returns.
func Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if !IsRetryable(err) {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"attempt": attempt,     // Attempt that failed
			"error":   err.Error(), // Conflict reported by the database
		}).Warn("Unit of work conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
	return err
}
