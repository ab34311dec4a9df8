// Package errors provides custom error types for the collector.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoData        = errors.New("no data")
	ErrRateLimited   = errors.New("rate limited")
	ErrFutureStart   = errors.New("start date is in the future")
	ErrCorruptTable  = errors.New("corrupt table")
	ErrNoSymbol      = errors.New("no symbol")
	ErrConfigInvalid = errors.New("invalid configuration")
	ErrTimeout       = errors.New("operation timed out")
	ErrQuotaExceeded = errors.New("api quota exceeded")
	ErrDataDir       = errors.New("data directory unavailable")
)

// FetchError reports a fetch that failed after all attempts.
type FetchError struct {
	Symbol   string
	Window   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s [%s] failed after %d attempts: %v", e.Symbol, e.Window, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(symbol, window string, attempts int, err error) *FetchError {
	return &FetchError{
		Symbol:   symbol,
		Window:   window,
		Attempts: attempts,
		Err:      err,
	}
}

// StoreError represents a failed table store operation.
type StoreError struct {
	Path string
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, path string, err error) *StoreError {
	return &StoreError{
		Path: path,
		Op:   op,
		Err:  err,
	}
}

// ProviderError represents an error returned by an external data provider.
type ProviderError struct {
	Provider string
	Op       string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error [%s] %s: %s: %v", e.Provider, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error [%s] %s: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, op, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Message:  message,
		Err:      err,
	}
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

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
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

// Join combines errors, dropping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
