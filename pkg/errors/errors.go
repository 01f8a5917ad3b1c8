package errors

import (
	"errors"
	"fmt"
)

// Generic error types

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden indicates the actor lacks the capability for the action
	ErrForbidden = errors.New("forbidden")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrVersionConflict indicates an optimistic concurrency check failed
	ErrVersionConflict = errors.New("version conflict")

	// ErrLockHeld indicates another process holds the named lock
	ErrLockHeld = errors.New("lock held by another process")
)

// Lookup errors

var (
	ErrPoolNotFound         = errors.New("pool not found")
	ErrHoldingNotFound      = errors.New("holding not found")
	ErrDistributionNotFound = errors.New("distribution not found")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrSettlementNotFound   = errors.New("settlement not found")
)

// Validation errors

var (
	// ErrBelowMinimum indicates an investment below the pool minimum
	ErrBelowMinimum = errors.New("amount below minimum investment")

	// ErrAmountTooSmall indicates the amount buys zero tokens
	ErrAmountTooSmall = errors.New("amount too small to issue a token")

	// ErrSameAddress indicates a transfer to oneself
	ErrSameAddress = errors.New("sender and receiver are the same")
)

// Ledger invariant errors

var (
	// ErrInsufficientBalance indicates not enough available tokens
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyClaimed indicates the dividend was already claimed
	ErrAlreadyClaimed = errors.New("dividend already claimed")

	// ErrNoEligibleHolders indicates an empty record-date snapshot
	ErrNoEligibleHolders = errors.New("no eligible holders at record date")

	// ErrInvalidState indicates the entity is in the wrong lifecycle state
	ErrInvalidState = errors.New("invalid state for requested transition")

	// ErrNotActiveOrNotFound indicates no matching active stake
	ErrNotActiveOrNotFound = errors.New("stake not active or not found")

	// ErrSupplyExceeded indicates issuing would exceed the pool token supply
	ErrSupplyExceeded = errors.New("token supply exceeded")
)

// Settlement errors

var (
	// ErrSettlementFailed indicates the external leg did not confirm
	ErrSettlementFailed = errors.New("settlement failed")
)

// Kind classifies an error for propagation and reporting
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindInvariant  Kind = "invariant"
	KindSettlement Kind = "settlement"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

type classification struct {
	err  error
	kind Kind
	code string
}

// Ordered: more specific sentinels first.
var classifications = []classification{
	{ErrAmountTooSmall, KindValidation, "AMOUNT_TOO_SMALL"},
	{ErrBelowMinimum, KindValidation, "VALIDATION_ERROR"},
	{ErrSameAddress, KindValidation, "SAME_ADDRESS"},
	{ErrInvalidInput, KindValidation, "VALIDATION_ERROR"},
	{ErrPoolNotFound, KindNotFound, "POOL_NOT_FOUND"},
	{ErrHoldingNotFound, KindNotFound, "HOLDING_NOT_FOUND"},
	{ErrDistributionNotFound, KindNotFound, "DISTRIBUTION_NOT_FOUND"},
	{ErrRecipientNotFound, KindNotFound, "RECIPIENT_NOT_FOUND"},
	{ErrSettlementNotFound, KindNotFound, "NOT_FOUND"},
	{ErrNotFound, KindNotFound, "NOT_FOUND"},
	{ErrInsufficientBalance, KindInvariant, "INSUFFICIENT_BALANCE"},
	{ErrAlreadyClaimed, KindInvariant, "ALREADY_CLAIMED"},
	{ErrNoEligibleHolders, KindInvariant, "NO_ELIGIBLE_HOLDERS"},
	{ErrNotActiveOrNotFound, KindInvariant, "NOT_ACTIVE_OR_NOT_FOUND"},
	{ErrSupplyExceeded, KindInvariant, "SUPPLY_EXCEEDED"},
	{ErrInvalidState, KindInvariant, "INVALID_STATE"},
	{ErrAlreadyExists, KindInvariant, "ALREADY_EXISTS"},
	{ErrForbidden, KindForbidden, "FORBIDDEN"},
	{ErrVersionConflict, KindConflict, "VERSION_CONFLICT"},
	{ErrLockHeld, KindConflict, "LOCK_HELD"},
	{ErrSettlementFailed, KindSettlement, "SETTLEMENT_FAILURE"},
}

// KindOf returns the taxonomy kind of err
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	for _, c := range classifications {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return KindInternal
}

// CodeOf returns the stable error code for err
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	for _, c := range classifications {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "VALIDATION_ERROR"
	}
	return "INTERNAL"
}

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
	Err     error
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap exposes the sentinel (defaults to ErrInvalidInput)
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Unwrap lets errors.Is match any collected error
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
