package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sailmerge/sailmerge/pkg/core"
)

// uniqueViolation is PostgreSQL's constraint-violation SQLSTATE, the pgx
// equivalent of the teacher's ent.IsConstraintError check.
const uniqueViolation = "23505"

func translateWriteError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, core.ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w", op, core.ErrPersistenceFailure)
}
