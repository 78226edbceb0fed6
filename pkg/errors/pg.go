package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes the ledger reacts to.
const (
	SQLStateUniqueViolation     = "23505"
	SQLStateSerializationFailed = "40001"
	SQLStateDeadlockDetected    = "40P01"
)

// PGError is the driver-neutral view of a Postgres server error.
type PGError struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Postgres finds a server error from pgx or lib/pq anywhere in err's chain.
func Postgres(err error) (*PGError, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGError{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGError{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return nil, false
}

// ErrorDump flattens an error for structured logs.
type ErrorDump struct {
	Code  Code     `json:"code,omitempty"`
	Chain []string `json:"chain,omitempty"`
	PG    *PGError `json:"pg,omitempty"`
}

// Dump walks err's unwrap chain.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	var d ErrorDump
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG, _ = Postgres(err)
	return d
}
