// Package fault implements labkit's two error tiers.
//
// Recoverable errors are *Error values with a Kind; callers inspect them with
// errors.Is against the sentinels below or with KindOf. Invariant violations
// never produce an error value: they go through Abortf, Assert or Unreachable,
// which terminate the process (see abort.go).
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a recoverable error.
type Kind int

const (
	KindUnknown Kind = iota
	KindWrongExperimentType
	KindExperimentOpened
	KindExperimentClosed
	KindExperimentExists
	KindExperimentNotFound
	KindElementNotFound
	KindInvalidWire
	KindInvalidArchive
	KindInvalidArgument
	KindResponseFailed
	KindRetryExhausted
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindWrongExperimentType: "wrong-experiment-type",
	KindExperimentOpened:    "experiment-opened",
	KindExperimentClosed:    "experiment-closed",
	KindExperimentExists:    "experiment-exists",
	KindExperimentNotFound:  "experiment-not-found",
	KindElementNotFound:     "element-not-found",
	KindInvalidWire:         "invalid-wire",
	KindInvalidArchive:      "invalid-archive",
	KindInvalidArgument:     "invalid-argument",
	KindResponseFailed:      "response-failed",
	KindRetryExhausted:      "retry-exhausted",
}

// String returns the stable label used in logs and metrics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// defaultMessages mirror the messages the consumer tooling has always shown.
var defaultMessages = map[Kind]string{
	KindWrongExperimentType: "the type of experiment does not match the operation",
	KindExperimentOpened:    "the experiment has been opened",
	KindExperimentClosed:    "the experiment has been closed",
	KindExperimentExists:    "duplicate name archives are forbidden",
	KindExperimentNotFound:  "the experiment does not exist",
	KindElementNotFound:     "can't find element",
	KindInvalidWire:         "invalid wire",
	KindInvalidArchive:      "the archive file is incorrect",
	KindInvalidArgument:     "invalid argument",
	KindResponseFailed:      "the server returned an error",
	KindRetryExhausted:      "maximum number of retries exceeded",
}

// Error is a recoverable domain error.
type Error struct {
	Kind Kind
	Msg  string

	// Code is the server error code for KindResponseFailed.
	Code int
	// Retries is the number of attempts made for KindRetryExhausted.
	Retries int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Kind == KindResponseFailed {
		msg = fmt.Sprintf("server returned error code %d: %s", e.Code, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. This lets the
// sentinels match any error of their kind regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrWrongExperimentType = &Error{Kind: KindWrongExperimentType}
	ErrExperimentOpened    = &Error{Kind: KindExperimentOpened}
	ErrExperimentClosed    = &Error{Kind: KindExperimentClosed}
	ErrExperimentExists    = &Error{Kind: KindExperimentExists}
	ErrExperimentNotFound  = &Error{Kind: KindExperimentNotFound}
	ErrElementNotFound     = &Error{Kind: KindElementNotFound}
	ErrInvalidWire         = &Error{Kind: KindInvalidWire}
	ErrInvalidArchive      = &Error{Kind: KindInvalidArchive}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrResponseFailed      = &Error{Kind: KindResponseFailed}
	ErrRetryExhausted      = &Error{Kind: KindRetryExhausted}
)

// New returns an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// ResponseFailed reports a remote service failure.
func ResponseFailed(code int, msg string) *Error {
	return &Error{Kind: KindResponseFailed, Code: code, Msg: msg}
}

// RetryExhausted reports that a retry budget ran out.
func RetryExhausted(retries int, msg string) *Error {
	return &Error{Kind: KindRetryExhausted, Retries: retries, Msg: msg}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
