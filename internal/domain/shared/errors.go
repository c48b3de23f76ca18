// Package shared contains the error taxonomy, side-effect instructions,
// domain events and value objects used by every workflow package.
// It depends only on the standard library and shopspring/decimal.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Business-rule failures are always a *DomainError whose Kind is
// one of these, so callers can branch with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrValidation             = errors.New("validation error")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrIncompleteSubmission   = errors.New("incomplete submission")
	ErrDocumentsIncomplete    = errors.New("documents incomplete")
	ErrEligibilityNotMet      = errors.New("eligibility not met")
	ErrMissingReason          = errors.New("missing reason")
	ErrSchedulingConflict     = errors.New("scheduling conflict")
	ErrInvalidState           = errors.New("invalid state")
	ErrNoApprovedHours        = errors.New("no approved hours")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNoSlotsAvailable       = errors.New("no slots available")
	ErrServiceUnavailable     = errors.New("service unavailable")
)

var kindNames = map[error]string{
	ErrNotFound:               "NotFound",
	ErrAlreadyExists:          "AlreadyExists",
	ErrValidation:             "Validation",
	ErrInvalidTransition:      "InvalidTransition",
	ErrIncompleteSubmission:   "IncompleteSubmission",
	ErrDocumentsIncomplete:    "DocumentsIncomplete",
	ErrEligibilityNotMet:      "EligibilityNotMet",
	ErrMissingReason:          "MissingReason",
	ErrSchedulingConflict:     "SchedulingConflict",
	ErrInvalidState:           "InvalidState",
	ErrNoApprovedHours:        "NoApprovedHours",
	ErrInsufficientFunds:      "InsufficientFunds",
	ErrConcurrentModification: "ConcurrentModification",
	ErrNoSlotsAvailable:       "NoSlotsAvailable",
	ErrServiceUnavailable:     "ServiceUnavailable",
}

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "application", "interview", "payment"
	Op      string // operation that failed, e.g. "Transition"
	Kind    error  // one of the Err* kinds above
	Message string // human-readable message
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against the kind and the wrapped error.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// Errorf creates a domain error with a formatted message.
func Errorf(domain, op string, kind error, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, kind, fmt.Sprintf(format, args...))
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// KindName returns the taxonomy name of err ("InvalidTransition", ...) or
// "Internal" for anything outside the taxonomy.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) && de.Kind != nil {
		if name, ok := kindNames[de.Kind]; ok {
			return name
		}
	}
	for kind, name := range kindNames {
		if errors.Is(err, kind) {
			return name
		}
	}
	return "Internal"
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict checks if the error is an optimistic-lock conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsValidation checks if the error is an input validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrMissingReason)
}

// IsBusinessRule reports whether err is an expected business-rule failure,
// as opposed to an infrastructure fault.
func IsBusinessRule(err error) bool {
	name := KindName(err)
	return name != "" && name != "Internal" && name != "ServiceUnavailable"
}

// IsRetryable checks if the operation can be retried by the host.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrConcurrentModification)
}
