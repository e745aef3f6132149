package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can branch on outcome class
// without string matching: the dispatcher decides ack/nack from the kind,
// the coordinator decides whether an attempt is retryable, and handlers map
// kinds to HTTP status codes.
type ErrorKind string

const (
	// ErrSchema marks payloads that failed validation and must never be
	// redelivered.
	ErrSchema ErrorKind = "schema"
	// ErrMarketClosed marks a trading intent that arrived outside the
	// market session. Coordinators convert these into deferred orders.
	ErrMarketClosed ErrorKind = "market_closed"
	// ErrPriceUnavailable marks a quote lookup that returned no usable
	// price.
	ErrPriceUnavailable ErrorKind = "price_unavailable"
	// ErrBrokerRejected marks an order the brokerage refused. The broker's
	// own code and message are preserved in the wrapped error.
	ErrBrokerRejected ErrorKind = "broker_rejected"
	// ErrTimeout marks an execution attempt that exceeded its deadline.
	ErrTimeout ErrorKind = "timeout"
	// ErrStorage marks local persistence failures. These are transient from
	// the bus's point of view and eligible for redelivery.
	ErrStorage ErrorKind = "storage"
	// ErrShutdown marks work refused because the process is draining.
	ErrShutdown ErrorKind = "shutdown"
)

// Error is the typed error carried across module boundaries. It wraps an
// optional cause so errors.Is / errors.As keep working through it.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed error with no underlying cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds a typed error around an underlying cause.
func WrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, unwrapping as needed. Errors that carry
// no kind report ErrStorage; unclassified failures are treated as transient
// so the bus redelivers rather than drops.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrStorage
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
