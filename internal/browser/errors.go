package browser

import "errors"

// Domain errors for the browser package.
var (
	// ErrNoFreePort is returned when every port in the configured range is taken.
	ErrNoFreePort = errors.New("browser: no free debugging port")

	// ErrNotPooled is returned when releasing a handle the pool does not hold.
	ErrNotPooled = errors.New("browser: handle not pooled")

	// ErrNoPage is returned when a step needs a page before any navigate step.
	ErrNoPage = errors.New("browser: no active page")

	// ErrNoSelectorMatch is returned when no candidate selector matches.
	ErrNoSelectorMatch = errors.New("browser: no selector matched")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("browser: pool closed")
)
