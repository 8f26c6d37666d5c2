package common

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying: timeouts, connection
// drops, rate limiting. Wraps the underlying cause.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// RejectedError marks a definitive exchange rejection. Retrying the
// same request will not help.
type RejectedError struct {
	Op     string
	Code   int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: rejected (code %d): %s", e.Op, e.Code, e.Reason)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
