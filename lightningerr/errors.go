// Package lightningerr defines the error taxonomy shared by the codec,
// handshake, consensus pipeline and submission engine: a small closed
// set of codes, each wrapping an underlying cause with a stack trace via
// cockroachdb/errors at the point the invariant was violated.
package lightningerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type Code string

const (
	Io                   Code = "IO"
	CodecViolation       Code = "CODEC_VIOLATION"
	VerificationFailure  Code = "VERIFICATION_FAILURE"
	OutOfLanes           Code = "OUT_OF_LANES"
	Timeout              Code = "TIMEOUT"
	MempoolSubmitFailure Code = "MEMPOOL_SUBMIT_FAILURE"
	ShortRead            Code = "SHORT_READ"
)

// Error is the concrete error value returned across package boundaries.
// Code lets callers branch on failure kind without string matching;
// Cause carries the wrapped, stack-annotated underlying error.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New builds a new taxonomy error, stack-annotating cause (if non-nil)
// via cockroachdb/errors so the original failure site survives wrapping.
func New(code Code, msg string, cause error) *Error {
	if cause != nil {
		cause = errors.Wrap(cause, msg)
	}
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
