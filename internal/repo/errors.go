package repo

import "errors"

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("not found")

	// ErrNoDSN means neither a DSN nor DB_URL was given.
	ErrNoDSN = errors.New("no database url: set --results-db or DB_URL")
)
