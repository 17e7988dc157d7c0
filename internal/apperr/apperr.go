// Package apperr defines the typed error kinds shared across the engine.
//
// Workflows never swallow write errors: they either succeed wholly, fail
// wholly with one of these kinds, or report an idempotent no-op. Kinds are
// categories, not individual error values — wrap a cause with New or Wrap
// and compare with Is.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Unknown is the zero value; never produced intentionally.
	Unknown Kind = iota
	// InvalidInput marks malformed input: bad date, negative quantity
	// where forbidden, unrecognized enum value.
	InvalidInput
	// NotFound marks an unknown SKU, lot, or order.
	NotFound
	// Conflict marks an overlapping promo window, or a duplicate
	// idempotency key encountered outside the normal skip path.
	Conflict
	// InsufficientLotStock marks a FEFO consumption request that
	// exceeds total lot quantity on hand.
	InsufficientLotStock
	// BackendBusy marks exhausted retry-on-locked attempts against the
	// embedded database backend.
	BackendBusy
	// IntegrityViolation marks a foreign-key, check, or uniqueness
	// failure at the storage layer.
	IntegrityViolation
	// Cancelled marks external cancellation observed before commit.
	Cancelled
	// DataDriftWarning marks a non-fatal divergence (e.g. FEFO lot
	// total vs. ledger on_hand) that degrades to a fallback value.
	DataDriftWarning
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case InsufficientLotStock:
		return "InsufficientLotStock"
	case BackendBusy:
		return "BackendBusy"
	case IntegrityViolation:
		return "IntegrityViolation"
	case Cancelled:
		return "Cancelled"
	case DataDriftWarning:
		return "DataDriftWarning"
	default:
		return "Unknown"
	}
}

// Error is a typed, wrappable application error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries cause as its Unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind, looking through
// any wrapping.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Unknown if err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Unknown
}
