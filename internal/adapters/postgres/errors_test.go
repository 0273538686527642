package postgres

import (
    "errors"
    "testing"

    "github.com/jackc/pgx/v5/pgconn"
    "github.com/stretchr/testify/require"

    "cakra/internal/domain"
)

func TestWrapNilPassesThrough(t *testing.T) {
    t.Parallel()
    require.NoError(t, wrap("add scan", nil))
}

func TestWrapClassifiesSQLSTATE(t *testing.T) {
    t.Parallel()
    cases := []struct {
        code      string
        retryable bool
    }{
        {"23505", false}, // unique_violation
        {"22P02", false}, // invalid_text_representation
        {"42P01", false}, // undefined_table
        {"40001", true},  // serialization_failure
        {"57P01", true},  // admin_shutdown
        {"08006", true},  // connection_failure
    }
    for _, tc := range cases {
        err := wrap("upsert channel", &pgconn.PgError{Code: tc.code})
        var pe *domain.PersistenceError
        require.ErrorAs(t, err, &pe, tc.code)
        require.Equal(t, tc.retryable, pe.Retryable(), tc.code)
        require.Equal(t, "upsert channel", pe.Op)
    }
}

func TestWrapNonPostgresErrorIsTransient(t *testing.T) {
    t.Parallel()
    cause := errors.New("write: broken pipe")
    err := wrap("get scan", cause)
    var pe *domain.PersistenceError
    require.ErrorAs(t, err, &pe)
    require.True(t, pe.Retryable())
    require.ErrorIs(t, err, cause)
}
