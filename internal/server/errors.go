package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrGeneration indicates the language model failed to produce a message
type ErrGeneration struct {
	Cause error
}

func (e *ErrGeneration) Error() string {
	return fmt.Sprintf("message generation failed: %v", e.Cause)
}

func (e *ErrGeneration) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validation *ErrValidation
	var generation *ErrGeneration
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &generation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// validationError converts the first validator failure to an ErrValidation.
func validationError(err error) *ErrValidation {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return &ErrValidation{Field: fe.Field(), Message: fe.Tag()}
	}
	return &ErrValidation{Field: "body", Message: "invalid request"}
}
