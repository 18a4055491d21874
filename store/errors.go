package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for the expected failure modes of the store. Callers test
// with errors.Is; none of these are ever panicked.
var (
	// ErrNotFound is returned when the requested record does not exist.
	// Deleting an already-deleted id reports this too, never silent success.
	ErrNotFound = errors.New("record not found")

	// ErrAuthRequired gates every write. Reads are open.
	ErrAuthRequired = errors.New("authentication required")

	// ErrConflict maps unique-constraint violations.
	ErrConflict = errors.New("unique constraint violation")

	// ErrReferential maps deletes blocked by dependent records.
	ErrReferential = errors.New("delete blocked by dependent records")

	// ErrImmutable is returned for updates against an immutable collection.
	ErrImmutable = errors.New("collection does not allow updates")
)

// ValidationError wraps a pre-flight validation failure. It is raised before
// any backend call is made.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is a pre-flight validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapError translates driver errors into the store's taxonomy. Unknown
// errors pass through wrapped so the raw message stays visible.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Join(ErrConflict, err)
		case pgForeignKeyViolation:
			return errors.Join(ErrReferential, err)
		}
		return err
	}

	// sqlite (tests and the demo fallback) reports constraints as text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return errors.Join(ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return errors.Join(ErrReferential, err)
	}
	return err
}
