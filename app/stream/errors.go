package stream

import (
	"errors"
	"fmt"
)

var (
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrMalformedResponse = errors.New("malformed response")
	ErrLoadSkipped       = errors.New("load skipped")
	ErrSuperseded        = errors.New("operation superseded")
	ErrClosed            = errors.New("stream closed")
	ErrItemNotFound      = errors.New("item not found")
	ErrNotConfirmed      = errors.New("remote did not confirm mutation")
)

// TransportError is a network level failure talking to the backend.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrRemoteUnavailable, e.Err}
}

// DecodeError is a response that arrived but could not be understood.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrMalformedResponse, e.Err}
}

// RejectedError carries a structured error code returned by the backend.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote rejected request with code %s", e.Code)
	}
	return fmt.Sprintf("remote rejected request with code %s: %s", e.Code, e.Message)
}

type Kind int

const (
	// KindFatal blocks pagination until LoadInitial succeeds again.
	KindFatal Kind = iota + 1
	// KindMinor leaves already loaded content usable.
	KindMinor
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindMinor:
		return "minor"
	default:
		return "unknown"
	}
}

type StreamError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func fatal(op string, err error) error {
	return &StreamError{Kind: KindFatal, Op: op, Err: err}
}

func minor(op string, err error) error {
	return &StreamError{Kind: KindMinor, Op: op, Err: err}
}

func IsFatal(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Kind == KindFatal
}

func IsMinor(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Kind == KindMinor
}

func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
