package service

import (
	"errors"
	"fmt"
)

// ErrInternal marks failures that are the service's fault. Its message is the
// only text clients see for them.
var ErrInternal = errors.New("internal server error")

// BadRequestError reports input rejected before any curve operation ran.
type BadRequestError struct {
	Reason string
	Err    error
}

func (e *BadRequestError) Error() string {
	return "bad request: " + e.Reason
}

func (e *BadRequestError) Unwrap() error {
	return e.Err
}

// BadRequest builds a BadRequestError with a free-form reason.
func BadRequest(reason string) error {
	return &BadRequestError{Reason: reason}
}

func fieldError(field string, err error) error {
	return &BadRequestError{Reason: field + ": " + err.Error(), Err: err}
}

func internalError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
