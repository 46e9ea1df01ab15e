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

func TestMetadataTable(t *testing.T) {
	cases := []struct {
		code      Code
		status    int
		retryable bool
		details   bool
		echo      bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true, true},
		{CodeUnauthorized, http.StatusUnauthorized, false, false, true},
		{CodeForbidden, http.StatusForbidden, false, false, true},
		{CodeNotFound, http.StatusNotFound, false, false, true},
		{CodeConflict, http.StatusConflict, false, false, true},
		{CodeStateConflict, http.StatusUnprocessableEntity, false, true, true},
		{CodeInsufficientCredit, http.StatusUnprocessableEntity, false, true, true},
		{CodeIdempotency, http.StatusConflict, false, true, true},
		{CodeRateLimit, http.StatusTooManyRequests, false, false, true},
		{CodeUntrustedWebhook, http.StatusUnauthorized, false, false, false},
		{CodeInternal, http.StatusInternalServerError, true, false, false},
		{CodeDependency, http.StatusServiceUnavailable, true, true, false},
	}
	for _, tc := range cases {
		meta := MetadataFor(tc.code)
		assert.Equal(t, tc.status, meta.HTTPStatus, tc.code)
		assert.Equal(t, tc.retryable, meta.Retryable, tc.code)
		assert.Equal(t, tc.details, meta.DetailsAllowed, tc.code)
		assert.Equal(t, tc.echo, meta.EchoMessage, tc.code)
		assert.NotEmpty(t, meta.PublicMessage, tc.code)
	}

	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "plan not found", PublicMessage(New(CodeNotFound, "plan not found")))
	assert.Equal(t, "resource not found", PublicMessage(New(CodeNotFound, "")))
	assert.Equal(t, "dependency unavailable", PublicMessage(Wrap(CodeDependency, stdErrors.New("dial"), "square create payment")))
}

func TestConstructorsAndChain(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing foo", base.Message())
	assert.Nil(t, base.Details())
	assert.Same(t, base, base.WithDetails(map[string]any{"field": "foo"}))
	assert.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "CONFLICT: ctx: boom", wrapped.Error())
	assert.Equal(t, `VALIDATION_ERROR: invalid currency "XYZ"`, Newf(CodeValidation, "invalid currency %q", "XYZ").Error())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Error())
}

func TestAsAndIsCodeFollowWrapping(t *testing.T) {
	outer := fmt.Errorf("initiate: %w", New(CodeInsufficientCredit, "balance too low"))

	require.NotNil(t, As(outer))
	assert.True(t, IsCode(outer, CodeInsufficientCredit))
	assert.False(t, IsCode(outer, CodeValidation))
	assert.False(t, IsCode(nil, CodeInternal))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(stdErrors.New("socket closed")))
	assert.True(t, IsRetryable(Wrap(CodeDependency, stdErrors.New("timeout"), "provider")))
	assert.False(t, IsRetryable(fmt.Errorf("renew: %w", New(CodeNotFound, "plan not found"))))
}

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_transactions_external_ref", TableName: "transactions"}
	dump := Dump(Wrap(CodeConflict, fmt.Errorf("attach: %w", pgErr), "conflict"))

	assert.Equal(t, CodeConflict, dump.Code)
	require.NotNil(t, dump.PG)
	assert.Equal(t, "unique_violation", dump.PG.Class())
	assert.GreaterOrEqual(t, len(dump.Chain), 2)
	assert.Equal(t, "ux_transactions_external_ref", dump.Fields()["pg_constraint"])
}

func TestAsPGHandlesBothDrivers(t *testing.T) {
	pg, ok := AsPG(&pq.Error{Code: "23514", Constraint: "chk_credit_balance"})
	require.True(t, ok)
	assert.Equal(t, "check_violation", pg.Class())
	assert.Equal(t, "chk_credit_balance", pg.Constraint)

	pg, ok = AsPG(fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}))
	require.True(t, ok)
	assert.Equal(t, "serialization_failure", pg.Class())

	_, ok = AsPG(fmt.Errorf("plain"))
	assert.False(t, ok)
	assert.Nil(t, Dump(fmt.Errorf("plain")).Fields()["pg_code"])
}
