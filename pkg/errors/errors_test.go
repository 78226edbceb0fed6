package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := map[Code]Metadata{
		CodeValidation:   {http.StatusBadRequest, false, "validation failed", true},
		CodeUnauthorized: {http.StatusUnauthorized, false, "authentication required", false},
		CodeForbidden:    {http.StatusForbidden, false, "access denied", false},
		CodeNotFound:     {http.StatusNotFound, false, "resource not found", false},
		CodeConflict:     {http.StatusConflict, false, "conflict detected", false},
		CodeInternal:     {http.StatusInternalServerError, true, "internal server error", false},
		CodeDependency:   {http.StatusServiceUnavailable, true, "dependency unavailable", true},
		CodeRateLimit:    {http.StatusTooManyRequests, true, "too many requests", false},
		CodeIdempotency:  {http.StatusConflict, false, "idempotency key conflict", false},
	}
	for code, want := range tests {
		assert.Equal(t, want, MetadataFor(code), code)
	}
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestErrorAccessors(t *testing.T) {
	base := New(CodeValidation, "missing email")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing email", base.Message())
	assert.Nil(t, base.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing email", base.Error())

	assert.Same(t, base, base.WithDetails(map[string]any{"field": "email"}))
	assert.Equal(t, map[string]any{"field": "email"}, base.Details())

	cause := stdErrors.New("stripe timeout")
	wrapped := Wrap(CodeDependency, cause, "list charges")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeDependency, wrapped.Code())
	assert.Nil(t, Wrap(CodeInternal, nil, "no cause").Unwrap())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Nil(t, nilErr.WithDetails("ignored"))
}

func TestAsAndCodeOf(t *testing.T) {
	require.NotNil(t, As(New(CodeForbidden, "no entry")))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))

	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
	wrapped := fmt.Errorf("batch: %w", New(CodeRateLimit, "stripe throttled"))
	assert.Equal(t, CodeRateLimit, CodeOf(wrapped))
}

func TestDumpCollectsChain(t *testing.T) {
	root := stdErrors.New("connection refused")
	dump := Dump(fmt.Errorf("upsert transactions: %w", Wrap(CodeDependency, root, "db")))
	assert.Equal(t, CodeDependency, dump.Code)
	assert.Len(t, dump.Chain, 3)
	assert.Nil(t, dump.PG)
}

func TestPostgresReadsBothDrivers(t *testing.T) {
	pg, ok := Postgres(fmt.Errorf("upsert: %w", &pgconn.PgError{
		Code:           SQLStateUniqueViolation,
		ConstraintName: "ux_dst_external_mode",
		TableName:      "donation_stripe_transactions",
	}))
	require.True(t, ok)
	assert.Equal(t, SQLStateUniqueViolation, pg.Code)
	assert.Equal(t, "ux_dst_external_mode", pg.Constraint)

	pqErr := Wrap(CodeInternal, &pq.Error{Code: "40P01", Table: "donation_sync_status"}, "record status")
	pg, ok = Postgres(pqErr)
	require.True(t, ok)
	assert.Equal(t, SQLStateDeadlockDetected, pg.Code)
	assert.Equal(t, "donation_sync_status", pg.Table)
	assert.NotNil(t, Dump(pqErr).PG)

	_, ok = Postgres(stdErrors.New("plain"))
	assert.False(t, ok)
}

func TestDescribeIncludesCause(t *testing.T) {
	err := Wrap(CodeInternal, fmt.Errorf("upsert transactions: %w", stdErrors.New("deadlock detected")), "persist donation history")
	assert.Equal(t, "INTERNAL_ERROR: persist donation history: upsert transactions: deadlock detected", Describe(err))
	assert.Empty(t, Describe(nil))
}
