package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation = "23505"
	// Class 22 covers values the column cannot hold: too long, bad encoding,
	// malformed uuid.
	pqClassDataException = "22"
)

// Unique constraints the repositories translate into domain errors.
const (
	constraintUsername = "users_username_key"
	constraintEmail    = "users_email_key"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique violation.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}

	return constraint == "" || pqErr.Constraint == constraint
}

// IsDataException reports whether err is a PostgreSQL data exception, i.e. the
// row itself is unacceptable and retrying it unchanged will fail again.
func IsDataException(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code.Class()) == pqClassDataException
}
