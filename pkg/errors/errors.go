// Package errors wraps pkg/errors and adds error codes. Every failure the
// store and the query operators report carries one of the codes below, so
// callers can branch on the kind of failure with Is.
package errors

import (
	"github.com/pkg/errors"
)

// Code is an error code which can be used to check against a given error.
type Code string

const (
	ErrUncoded Code = "Uncoded"

	// ErrMalformedInput: bad value, bad index specification, bad configuration.
	ErrMalformedInput Code = "MalformedInput"
	// ErrEvaluation: a query operator failed to produce results.
	ErrEvaluation Code = "Evaluation"
	// ErrValueExprEvaluation: a value expression has no value for a binding.
	ErrValueExprEvaluation Code = "ValueExprEvaluation"
	// ErrTransaction: an operation is invalid in the current transaction state.
	ErrTransaction Code = "Transaction"
	// ErrConcurrentModification: the write lock could not be acquired.
	ErrConcurrentModification Code = "ConcurrentModification"
	// ErrStoreTransient: persistence failed in a way that may succeed on retry.
	ErrStoreTransient Code = "StoreTransient"
	// ErrDurability: a commit reached storage but flushing it to disk
	// failed. The commit is not undone.
	ErrDurability Code = "Durability"
	// ErrStoreCorruption: persisted data could not be decoded.
	ErrStoreCorruption Code = "StoreCorruption"
	// ErrClosed: the connection, store or cursor was closed.
	ErrClosed Code = "Closed"
	// ErrNoSuchElement: Next was called on an exhausted cursor.
	ErrNoSuchElement Code = "NoSuchElement"
	// ErrPermissionDenied: an access policy rejected the operation.
	ErrPermissionDenied Code = "PermissionDenied"
)

func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, errors.Errorf(format, args...).Error())
}

// WrapCode attaches code to err. The result matches both code and err.
func WrapCode(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&wrappedError{
		code:    code,
		message: message,
		cause:   err,
	})
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is is a fork of the Is() method from `pkg/errors` which takes as its target
// an error Code instead of an error.
func Is(err error, target Code) bool {
	return errors.Is(err, codedError{Code: target})
}

// IsAny reports whether err carries any of the codes.
func IsAny(err error, codes ...Code) bool {
	for _, c := range codes {
		if Is(err, c) {
			return true
		}
	}
	return false
}

// IsTransactionError reports failures after which the whole transaction
// may be retried.
func IsTransactionError(err error) bool {
	return IsAny(err, ErrTransaction, ErrConcurrentModification, ErrStoreTransient)
}

// CodeOf returns the outermost code in err's chain, or ErrUncoded.
func CodeOf(err error) Code {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch ce := e.(type) {
		case codedError:
			return ce.Code
		case *wrappedError:
			return ce.code
		}
	}
	return ErrUncoded
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, fmt string, args ...interface{}) error {
	return errors.Wrapf(err, fmt, args...)
}

// codedError is the fundamental type used by this package to provide coded
// errors.
type codedError struct {
	Code    Code
	Message string
}

func (ce codedError) Error() string {
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}

// wrappedError carries a code on top of an underlying error. It is kept
// behind a pointer so errors.Is never compares arbitrary causes by value.
type wrappedError struct {
	code    Code
	message string
	cause   error
}

func (we *wrappedError) Error() string {
	if we.message == "" {
		return we.cause.Error()
	}
	return we.message + ": " + we.cause.Error()
}

func (we *wrappedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && we.code == e.Code {
		return true
	}
	return false
}

func (we *wrappedError) Unwrap() error {
	return we.cause
}
