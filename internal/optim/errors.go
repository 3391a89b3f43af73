package optim

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingArgument is returned when a step is called without a
	// required auxiliary input.
	ErrMissingArgument = errors.New("optim: required argument missing")

	// ErrLengthMismatch is returned when a counterpart sequence does not
	// have one tensor per parameter.
	ErrLengthMismatch = errors.New("optim: counterpart length mismatch")

	// ErrShapeMismatch is returned when a gradient or counterpart tensor
	// does not match its parameter's shape or data type.
	ErrShapeMismatch = errors.New("optim: shape mismatch")
)

// InvalidArgumentError reports a hyperparameter outside its allowed range.
type InvalidArgumentError struct {
	Name    string
	Value   any
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("optim: invalid argument %s=%v: %s", e.Name, e.Value, e.Message)
}

func invalidArgument(name string, value any, message string) error {
	return errors.WithStack(&InvalidArgumentError{
		Name:    name,
		Value:   value,
		Message: message,
	})
}

func checkNonNegative(name string, value float32) error {
	if value < 0 {
		return invalidArgument(name, value, "outside allowed range [0, Inf)")
	}
	return nil
}

func checkBetas(betas [2]float32) error {
	for i, b := range betas {
		if b < 0 || b >= 1 {
			return invalidArgument(fmt.Sprintf("betas[%d]", i), b, "outside allowed range [0, 1)")
		}
	}
	return nil
}

func checkPositive(name string, value float32) error {
	if value <= 0 {
		return invalidArgument(name, value, "outside allowed range (0, Inf)")
	}
	return nil
}
