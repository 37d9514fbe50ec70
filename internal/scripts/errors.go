package scripts

import "errors"

// Domain errors for the scripts package.
var (
	// ErrEmptyName is returned when no script or app name is given.
	ErrEmptyName = errors.New("scripts: empty name")

	// ErrInvalidName is returned for names containing path traversal.
	ErrInvalidName = errors.New("scripts: invalid name")

	// ErrScriptNotFound is returned when no directory holds the script.
	ErrScriptNotFound = errors.New("scripts: script not found")

	// ErrAppNotFound is returned when the apps file has no such entry.
	ErrAppNotFound = errors.New("scripts: app not found")

	// ErrAppTargetRequired is returned for an app entry without a target.
	ErrAppTargetRequired = errors.New("scripts: app target is required")
)
