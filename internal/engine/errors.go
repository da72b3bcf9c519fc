package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotFound classifies a missing or misconfigured engine.
	ErrEngineNotFound = errors.New("tide engine not found")
	// ErrNoOutput classifies an engine run that produced no usable series.
	ErrNoOutput = errors.New("tide engine produced no usable output")
)

// Error is returned by every engine operation. Kind is ErrEngineNotFound or
// ErrNoOutput and can be tested with errors.Is.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v (%s)", e.Kind, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
