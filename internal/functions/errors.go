package functions

import "errors"

// Domain errors for the functions package.
var (
	// ErrFunctionNotFound is returned when no loaded script defines the function.
	ErrFunctionNotFound = errors.New("functions: function not found")

	// ErrNoFunctionsDir is returned when no script directory is configured.
	ErrNoFunctionsDir = errors.New("functions: no functions directory configured")

	// ErrTimeout interrupts a function that runs past the configured timeout.
	ErrTimeout = errors.New("functions: timeout")
)
