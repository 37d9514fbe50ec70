package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is empty")

	// ErrBadMigration is returned when the migration files are inconsistent.
	ErrBadMigration = errors.New("database: bad migration")

	// ErrEmptyKey is returned when a name value has no key.
	ErrEmptyKey = errors.New("database: name value key is empty")
)
