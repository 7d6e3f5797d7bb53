package app

import (
	"errors"
	"strings"
)

var (
	// ErrListingNotFound indicates the referenced listing id does not exist.
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingAlreadySold indicates a mark-sold on an already sold listing.
	ErrListingAlreadySold = errors.New("listing already sold")
)

// FieldError names one offending input field and the violated constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every field constraint an input violated.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
