package classify

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDescriptions is returned when there is no text to classify.
	ErrNoDescriptions = errors.New("no descriptions to classify")
	// ErrModelFailed is returned once loading has failed; the dispatcher will never become ready.
	ErrModelFailed = errors.New("classification model failed to load")
)

// ModelError represents an error building or running the classifier model.
type ModelError struct {
	Message string
	Cause   error
}

func (e *ModelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("model error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("model error: %s", e.Message)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}
