package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Flow lifecycle errors
	ErrGatewayNotConfigured = errors.New("payment gateway is not fully configured")
	ErrAlreadyInProgress    = errors.New("another proceed call is already in flight for this record")
	ErrFlowTerminal         = errors.New("flow already reached a terminal status")
	ErrLockNotAcquired      = errors.New("record lock not acquired")
)

// InitiationError is returned when remote initiation (proceed) fails.
// The record stays at Queued and remains retryable. Ref is a support
// reference id that is also attached to the error log entry; the raw
// adapter error is never part of the user-facing message.
type InitiationError struct {
	Ref string
	err error
}

func NewInitiationError(ref string, err error) *InitiationError {
	return &InitiationError{Ref: ref, err: err}
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("our server had an issue initiating your payment, please contact support mentioning: %s", e.Ref)
}

func (e *InitiationError) Unwrap() error { return e.err }

// PayloadIntegrityError is returned when a gateway response payload fails
// signature validation. Only the reference id is surfaced.
type PayloadIntegrityError struct {
	Ref string
	err error
}

func NewPayloadIntegrityError(ref string, err error) *PayloadIntegrityError {
	return &PayloadIntegrityError{Ref: ref, err: err}
}

func (e *PayloadIntegrityError) Error() string {
	return fmt.Sprintf("there has been an issue with your payment, please contact support mentioning: %s", e.Ref)
}

func (e *PayloadIntegrityError) Unwrap() error { return e.err }

// HookError wraps a reference-document hook failure. The bucket
// classification committed before the hook ran is kept as-is.
type HookError struct {
	Ref string
	err error
}

func NewHookError(ref string, err error) *HookError {
	return &HookError{Ref: ref, err: err}
}

func (e *HookError) Error() string {
	return fmt.Sprintf("our server had an issue finalizing your payment, please contact support mentioning: %s", e.Ref)
}

func (e *HookError) Unwrap() error { return e.err }
