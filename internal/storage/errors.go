package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key is missing or expired.
var ErrNotFound = errors.New("key not found")

// Error reports a failed store operation. Connection loss, timeouts and
// protocol failures all surface as *Error so callers can tell an unavailable
// store apart from a cache miss.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapErr converts a backend error into *Error. nil and ErrNotFound pass
// through unchanged.
func wrapErr(op, key string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Key: key, Err: err}
}
