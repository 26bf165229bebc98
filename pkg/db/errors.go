package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation        = "23505"
	pgSerializationFailure   = "40001"
	pgDeadlockDetected       = "40P01"
	sqliteLockedMessage      = "database is locked"
	sqliteTableLockedMessage = "database table is locked"
)

// IsTxConflict reports whether err aborted a transaction that can be rerun
// unchanged: a postgres serialization failure or deadlock, or a busy sqlite file.
func IsTxConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	msg := err.Error()
	return strings.Contains(msg, sqliteLockedMessage) || strings.Contains(msg, sqliteTableLockedMessage)
}

// IsUniqueViolation reports whether err is a unique constraint violation on postgres or sqlite.
// When constraintName is provided the error text must also reference it; sqlite reports
// "table.column" instead of the index name, so callers pass the column-qualified form there.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return constraintName == "" || pgErr.ConstraintName == constraintName || strings.Contains(msg, constraintName)
	}
	unique := errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
	if !unique {
		return false
	}
	if constraintName == "" {
		return true
	}
	return strings.Contains(msg, constraintName)
}
