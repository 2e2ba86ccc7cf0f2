package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers
type ErrorKind string

const (
	KindDataNotFound     ErrorKind = "DataNotFound"
	KindModelNotFound    ErrorKind = "ModelNotFound"
	KindInsufficientData ErrorKind = "InsufficientData"
	KindStoreUnavailable ErrorKind = "StoreUnavailable"
	KindInternal         ErrorKind = "Internal"
	// KindInvalidInput marks malformed requests (unknown market, bad symbol)
	KindInvalidInput ErrorKind = "InvalidInput"
)

// Error carries an ErrorKind through wrapped error chains
type Error struct {
	Kind    ErrorKind
	Op      string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare sentinel errors below by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Subject == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks
var (
	ErrDataNotFound     = &Error{Kind: KindDataNotFound}
	ErrModelNotFound    = &Error{Kind: KindModelNotFound}
	ErrInsufficientData = &Error{Kind: KindInsufficientData}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrInternal         = &Error{Kind: KindInternal}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
)

// NewError builds a classified error
func NewError(kind ErrorKind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Unavailable wraps a transport failure of a backing store
func Unavailable(op string, err error) error {
	return NewError(KindStoreUnavailable, op, "", err)
}

// Errorf is shorthand for NewError with a formatted cause
func Errorf(kind ErrorKind, op, subject, format string, args ...interface{}) error {
	return NewError(kind, op, subject, fmt.Errorf(format, args...))
}

// KindOf reports the kind of the first classified error in err's chain.
// Unclassified errors are Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
