// Package erruser provides errors whose Error() returns only a user-facing
// message; the cause (often a package sentinel such as session.ErrNotFound)
// stays reachable through Unwrap so callers can still match it with errors.Is.
package erruser

import (
	"errors"
	"fmt"
)

// Err holds a user-facing message and an optional cause for debugging.
// Error() returns only Msg; the CLI prints the cause on a separate
// "Details:" line.
type Err struct {
	Msg string
	Err error
}

// Error returns the user-facing message only.
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

// Unwrap returns the underlying error for Details or logging.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns an error with the given user-facing message. If err is non-nil,
// it is wrapped and available via Unwrap() so callers can print "Details: %v".
// If err is nil, returns a simple error with just msg (no Unwrap).
func New(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return &Err{Msg: msg, Err: err}
}

// Newf is New with a formatted message. The cause comes first so the format
// arguments read naturally at the call site.
func Newf(err error, format string, args ...any) error {
	return New(fmt.Sprintf(format, args...), err)
}

// Details returns the user message and, when present, the unwrapped cause
// text. The cause is empty when err carries no wrapped error or when it would
// only repeat the message.
func Details(err error) (msg, cause string) {
	if err == nil {
		return "", ""
	}
	msg = err.Error()
	if u := errors.Unwrap(err); u != nil && u.Error() != msg {
		cause = u.Error()
	}
	return msg, cause
}
