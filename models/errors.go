package models

import (
	"errors"
	"fmt"
)

var (
	// ErrStepExecution is matched by every StepExecutionError
	ErrStepExecution = errors.New("step execution failed")
	// ErrInvalidState is matched by every InvalidStateError
	ErrInvalidState = errors.New("invalid state")
	// ErrStoreUnavailable is matched by every StoreUnavailableError
	ErrStoreUnavailable = errors.New("store unavailable")
)

type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return "missing required configuration key: " + e.Key
}

func ErrMissingConfig(key string) error {
	return &MissingConfigError{Key: key}
}

type InterpolateError struct {
	Key   string
	Value any
}

func (e *InterpolateError) Error() string {
	return fmt.Sprintf("failed to interpolate value for key '%s': %v", e.Key, e.Value)
}

func ErrInterpolate(key string, value any) error {
	return &InterpolateError{Key: key, Value: value}
}

// StepExecutionError is raised when a step fails while transforming a document
type StepExecutionError struct {
	Label string
	URI   string
	Err   error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step '%s' failed on %s: %v", e.Label, e.URI, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

func (e *StepExecutionError) Is(target error) bool {
	return target == ErrStepExecution
}

// InvalidStateError is returned when a runner is used out of order
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: runner is %s", e.Op, e.State)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// StoreUnavailableError wraps failures of a backing document store
type StoreUnavailableError struct {
	Store string
	Op    string
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	if e.Store == "" {
		return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s store %s failed: %v", e.Store, e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// ErrUnavailable wraps err as a StoreUnavailableError, keeping existing ones as they are
func ErrUnavailable(store, op string, err error) error {
	if err == nil {
		return nil
	}
	var sue *StoreUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return &StoreUnavailableError{Store: store, Op: op, Err: err}
}
