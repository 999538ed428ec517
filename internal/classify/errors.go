package classify

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by Normalize when no scaler parameters are available
	ErrNotLoaded = errors.New("normalization parameters not loaded")

	// ErrModelUnavailable matches every *ModelUnavailableError
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInvalidInput matches every *InvalidInputError
	ErrInvalidInput = errors.New("invalid input")
)

// InvalidInputError reports a feature vector of the wrong length.
// It means the extractor and the model disagree and is never recovered by padding or truncation.
type InvalidInputError struct {
	Got  int
	Want int
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: vector length %d, want %d", e.Got, e.Want)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ModelUnavailableError reports that inference cannot run in the current load state
type ModelUnavailableError struct {
	State LoadState
	Err   error // load failure cause, nil when simply not loaded yet
}

func (e *ModelUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model unavailable (%s): %v", e.State, e.Err)
	}
	return fmt.Sprintf("model unavailable (%s)", e.State)
}

func (e *ModelUnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

func checkLength(v []float64, want int) error {
	if len(v) != want {
		return &InvalidInputError{Got: len(v), Want: want}
	}
	return nil
}
