package wallet

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures into a closed set of categories.
// Callers dispatch on the kind instead of inspecting error types:
// validation errors are correctable input problems, transaction errors are
// parameter problems (add funds, lower the amount), cryptography errors are
// non-retryable.
type ErrorKind string

const (
	// KindValidation indicates malformed or out-of-range input.
	KindValidation ErrorKind = "validation"

	// KindCryptography indicates a key-derivation or signing failure.
	KindCryptography ErrorKind = "cryptography"

	// KindTransaction indicates a transaction-parameter failure such as
	// insufficient funds or change below the dust threshold.
	KindTransaction ErrorKind = "transaction"
)

// Error is the tagged error type returned by every engine operation.
// Field names the offending input when one can be identified.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Field, e.Message, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is (or wraps) an engine Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

func validationError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func cryptographyError(message string, err error) *Error {
	return &Error{Kind: KindCryptography, Message: message, Err: err}
}

func transactionError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransaction, Message: fmt.Sprintf(format, args...)}
}
