package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateEmail is returned when registering an email that is taken.
	ErrDuplicateEmail = errors.New("user with this email already exists")
	// ErrActiveSessionExists is returned when the partial unique index on
	// in-progress exams or simulations rejects a second one for the user.
	ErrActiveSessionExists = errors.New("an active session already exists for this user")
	// ErrAlreadyFinalized is returned when a guarded write finds the exam or
	// simulation already finished.
	ErrAlreadyFinalized = errors.New("session already finalized")
	// ErrConcurrentUpdate is returned when a compare-and-swap update matched no row.
	ErrConcurrentUpdate = errors.New("row was modified concurrently")
	// ErrQuestionInUse is returned when deleting a question referenced by a session.
	ErrQuestionInUse = errors.New("question is referenced by an exam or simulation")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
