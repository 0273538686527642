package postgres

import (
    "errors"

    "github.com/jackc/pgx/v5/pgconn"

    "cakra/internal/domain"
)

// wrap maps a pgx error onto the domain's persistence taxonomy. Integrity
// and data-shape violations (SQLSTATE classes 22, 23, 42) are constraint
// failures the caller must not retry; everything else is treated as
// transient connectivity trouble.
func wrap(op string, err error) error {
    if err == nil {
        return nil
    }
    kind := domain.Transient
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
        switch pgErr.Code[:2] {
        case "22", "23", "42":
            kind = domain.Constraint
        }
    }
    return &domain.PersistenceError{Kind: kind, Op: op, Cause: err}
}
