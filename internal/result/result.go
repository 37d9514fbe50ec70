// Package result provides the uniform outcome value returned across component
// boundaries in deskpilot.
//
// Components never let an error or panic escape into the caller's goroutine.
// Internally they work with ordinary Go errors; at the boundary every failure
// is folded into a Result carrying a diagnostic message:
//
//	res := pool.Acquire(ctx, key)
//	if !res.OK {
//	    return res
//	}
//	handle := res.Payload.(*browser.Handle)
//
// The wire shape of a Result is {"ok": bool, "message": string}; the payload
// is never serialised.
package result

import (
	"errors"
	"fmt"
)

// Result is a success/failure value with an optional message and payload.
//
// OK=false implies Message is non-empty and Payload is unused.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Payload any    `json:"-"`
}

// Success returns a successful Result with an optional message.
func Success(message string) Result {
	return Result{OK: true, Message: message}
}

// WithPayload returns a successful Result carrying payload.
func WithPayload(payload any) Result {
	return Result{OK: true, Payload: payload}
}

// Failure returns a failed Result with a formatted message.
// An empty message is replaced with "failed" to keep the invariant.
func Failure(format string, args ...any) Result {
	msg := fmt.Sprintf(format, args...)
	if msg == "" {
		msg = "failed"
	}
	return Result{Message: msg}
}

// FromError converts err into a Result. A nil error is a success.
func FromError(err error) Result {
	if err == nil {
		return Success("")
	}
	return Failure("%s", err.Error())
}

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return errors.New(r.Message)
}

// Annotate prefixes the message of a failed Result. Successes are unchanged.
func (r Result) Annotate(format string, args ...any) Result {
	if r.OK {
		return r
	}
	return Result{Message: fmt.Sprintf(format, args...) + ": " + r.Message}
}

// Guard runs fn and converts a panic into a failed Result.
//
// Every call into a third-party layer that may panic (browser driver,
// embedded runtime) goes through Guard so a crash in one run cannot take
// down the dispatch goroutine or strand a pooled resource.
func Guard(what string, fn func() Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure("%s: panic: %v", what, r)
		}
	}()
	return fn()
}
