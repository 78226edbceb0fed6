package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"gorm.io/gorm"
)

// IsUniqueViolation reports a unique-constraint failure. Postgres errors are
// matched on SQLSTATE 23505 and, when constraint is set, on the constraint
// name. sqlite errors fall back to message matching.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		return pg.Code == pkgerrors.SQLStateUniqueViolation && (constraint == "" || pg.Constraint == constraint)
	}
	msg := err.Error()
	if constraint != "" && !strings.Contains(msg, constraint) {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsRetryableTx reports serialization failures and deadlocks, which succeed on retry.
func IsRetryableTx(err error) bool {
	pg, ok := pkgerrors.Postgres(err)
	if !ok {
		return false
	}
	return pg.Code == pkgerrors.SQLStateSerializationFailed || pg.Code == pkgerrors.SQLStateDeadlockDetected
}
