package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateQueryCanceled        = "57014"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	if sqlState(err) == sqlStateUniqueViolation {
		return true
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsCheckViolation reports a CHECK constraint failure (e.g. stock >= 0).
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == sqlStateCheckViolation {
		return true
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// IsLockTimeout reports whether the error came from waiting too long on a row
// lock. SQLite surfaces the same condition as a busy database.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	switch sqlState(err) {
	case sqlStateLockNotAvailable, sqlStateQueryCanceled:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock timeout") || strings.Contains(msg, "database is locked")
}

// IsSerializationFailure covers serialization conflicts and detected deadlocks.
func IsSerializationFailure(err error) bool {
	switch sqlState(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	}
	return false
}

func sqlState(err error) string {
	if err == nil {
		return ""
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
