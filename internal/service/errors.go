// Package service provides business logic for the application.
package service

import "fmt"

// ValidationError is a field-level input rejection. The field name maps to
// the errorCode clients use to highlight the offending form input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
