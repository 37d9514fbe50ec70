package automation

import "errors"

// Domain errors for the automation package.
//
// Failures reach callers as result.Result messages; these sentinels are the
// leading text of those messages and are errors.Is-checkable internally.
var (
	// ErrInvalidStep is returned when a step object cannot be decoded.
	ErrInvalidStep = errors.New("action: invalid step")

	// ErrMissingField is returned when a step lacks a required field.
	ErrMissingField = errors.New("action: missing field")

	// ErrScriptLoad is returned when a named script cannot be loaded or parsed.
	ErrScriptLoad = errors.New("action: script load failed")

	// ErrRecursion is returned when a script calls itself directly or indirectly.
	ErrRecursion = errors.New("action: recursive script call")

	// ErrMaxDepth is returned when nested scripts exceed the depth limit.
	ErrMaxDepth = errors.New("action: nesting too deep")

	// ErrInvalidTarget is returned when an http_get target is not a plain file name.
	ErrInvalidTarget = errors.New("action: invalid target")

	// ErrUnavailable is returned when a step needs a collaborator that is not configured.
	ErrUnavailable = errors.New("action: collaborator unavailable")
)
