package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Stores return these (optionally wrapped) so services can translate them
// into domain errors without inspecting driver messages.
var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violated")
)

const uniqueViolation = "23505"

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Join(ErrConstraintViolation, err)
	}
	return err
}
