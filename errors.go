package cyclebill

import (
	"github.com/cockroachdb/errors"
)

// Error classes. Every specific sentinel below unwraps to exactly one of
// these, so callers can branch on the class with errors.Is.
var (
	ErrNotFound        = errors.New("cyclebill: not found")
	ErrInvalidArgument = errors.New("cyclebill: invalid argument")
	ErrBadState        = errors.New("cyclebill: bad state")
	ErrInternal        = errors.New("cyclebill: internal error")
)

// Sentinel errors for common failure scenarios.
var (
	// Lookup errors
	ErrCycleNotFound        = classed(ErrNotFound, "cyclebill: cycle not found")
	ErrSubscriptionNotFound = classed(ErrNotFound, "cyclebill: subscription not found")
	ErrPlanNotFound         = classed(ErrNotFound, "cyclebill: plan not found")
	ErrPaymentNotFound      = classed(ErrNotFound, "cyclebill: payment not found")

	// Input errors
	ErrInvalidAmount    = classed(ErrInvalidArgument, "cyclebill: amount must be greater than zero")
	ErrInvalidQuantity  = classed(ErrInvalidArgument, "cyclebill: quantity must be greater than zero")
	ErrInvalidProduct   = classed(ErrInvalidArgument, "cyclebill: product id is required")
	ErrCurrencyMismatch = classed(ErrInvalidArgument, "cyclebill: currency does not match cycle")
	ErrCycleMismatch    = classed(ErrInvalidArgument, "cyclebill: cycle does not belong to subscription")
	ErrInvalidPlan      = classed(ErrInvalidArgument, "cyclebill: invalid plan")

	// State errors
	ErrSubscriptionNotActive = classed(ErrBadState, "cyclebill: subscription is not active")
	ErrNoActiveCycle         = classed(ErrBadState, "cyclebill: no active cycle")
	ErrDuplicatePayment      = classed(ErrBadState, "cyclebill: payment reference already recorded")
	ErrAlreadyExists         = classed(ErrBadState, "cyclebill: already exists")

	// Store errors
	ErrTransactionConflict = classed(ErrInternal, "cyclebill: transaction conflict")
	ErrStoreClosed         = classed(ErrInternal, "cyclebill: store is closed")
	ErrMigrationFailed     = classed(ErrInternal, "cyclebill: migration failed")
)

// classError is a sentinel that belongs to an error class. It keeps its own
// identity for errors.Is and unwraps to its class.
type classError struct {
	msg   string
	class error
}

func classed(class error, msg string) error { return &classError{msg: msg, class: class} }

func (e *classError) Error() string { return e.msg }
func (e *classError) Unwrap() error { return e.class }

// Internal wraps an unclassified failure and marks it ErrInternal. Errors that
// already carry a class are wrapped without being re-marked.
func Internal(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.IsAny(err, ErrNotFound, ErrInvalidArgument, ErrBadState, ErrInternal) {
		return errors.Wrap(err, msg)
	}
	return errors.Mark(errors.Wrap(err, msg), ErrInternal)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument returns true if the error was caused by caller input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsBadState returns true if the operation is not allowed in the current state.
func IsBadState(err error) bool {
	return errors.Is(err, ErrBadState)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict)
}
