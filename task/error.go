package task

import (
	"errors"
)

var ErrNilContext = errors.New("unexpected nil task context")

// FatalError fails the task. The host must not restart it without operator
// intervention.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string {
	return e.Cause.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

func NewFatalError(cause error) error {
	return &FatalError{Cause: cause}
}

func AsFatalError(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func IsFatal(err error) bool {
	_, ok := AsFatalError(err)
	return ok
}

// RetriableError marks a transient failure. A task that sees one from its
// connector stops and restarts itself after the restart backoff.
type RetriableError struct {
	Cause error
}

func (e *RetriableError) Error() string {
	return e.Cause.Error()
}

func (e *RetriableError) Unwrap() error {
	return e.Cause
}

func NewRetriableError(cause error) error {
	return &RetriableError{Cause: cause}
}

func AsRetriableError(err error) (*RetriableError, bool) {
	var re *RetriableError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func IsRetriable(err error) bool {
	_, ok := AsRetriableError(err)
	return ok
}
