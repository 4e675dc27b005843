// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrAlreadyRunning     = errors.New("agent already has an active session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotRunning  = errors.New("session is not running")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentLocked        = errors.New("agent configuration locked while a session is running")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrAdvisorUnavailable = errors.New("advisor unavailable")
	ErrDecisionTimeout    = errors.New("decision collaborator timed out")
	ErrDecisionError      = errors.New("decision collaborator failed")
	ErrActionNotAllowed   = errors.New("trade action not permitted in this mode")
	ErrCancelled          = errors.New("session cancelled")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrStorage            = errors.New("storage error")
)

// TradeError represents the rejection of a single trade intent by the ledger.
type TradeError struct {
	Ticker   string
	Action   string
	Quantity int64
	Reason   string
	Err      error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trade error %s %dx%s: %s: %v", e.Action, e.Quantity, e.Ticker, e.Reason, e.Err)
	}
	return fmt.Sprintf("trade error %s %dx%s: %s", e.Action, e.Quantity, e.Ticker, e.Reason)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a new TradeError.
func NewTradeError(ticker, action string, quantity int64, reason string, err error) *TradeError {
	return &TradeError{
		Ticker:   ticker,
		Action:   action,
		Quantity: quantity,
		Reason:   reason,
		Err:      err,
	}
}

// AdvisorError represents a failure of a single advisory collaborator. It is
// recovered locally by the fan-out and never surfaced as a run failure.
type AdvisorError struct {
	AdvisorName string
	Err         error
}

func (e *AdvisorError) Error() string {
	return fmt.Sprintf("advisor error [%s]: %v", e.AdvisorName, e.Err)
}

func (e *AdvisorError) Unwrap() error {
	return e.Err
}

// NewAdvisorError creates a new AdvisorError.
func NewAdvisorError(advisorName string, err error) *AdvisorError {
	return &AdvisorError{AdvisorName: advisorName, Err: err}
}

// DecisionError represents a fatal failure of the decision collaborator.
type DecisionError struct {
	Model   string
	Message string
	Err     error
}

func (e *DecisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decision error [%s]: %s: %v", e.Model, e.Message, e.Err)
	}
	return fmt.Sprintf("decision error [%s]: %s", e.Model, e.Message)
}

func (e *DecisionError) Unwrap() error {
	return e.Err
}

// NewDecisionError creates a new DecisionError.
func NewDecisionError(model, message string, err error) *DecisionError {
	return &DecisionError{Model: model, Message: message, Err: err}
}

// StorageError represents a ledger persistence failure. The engine surfaces
// it verbatim and does not retry; retry is a caller-level concern.
type StorageError struct {
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [%s]: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(operation string, err error) *StorageError {
	return &StorageError{Operation: operation, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
