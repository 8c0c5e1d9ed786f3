package customer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("customer: not found")
	ErrEmailTaken   = errors.New("customer: email already registered")
	ErrInvalidID    = errors.New("customer: invalid id")
	ErrUnauthorized = errors.New("customer: not authorized")
	ErrTokenExpired = errors.New("customer: token expired")
	ErrTokenRevoked = errors.New("customer: token revoked")

	ErrBadCredentials = errors.New("customer: incorrect username or password")
	ErrInactive       = errors.New("customer: account not active")
)

// FieldError is one failed validation rule
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every failed rule, in field order
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// First is the failure reported to API clients
func (e *ValidationError) First() FieldError {
	if len(e.Fields) == 0 {
		return FieldError{Message: "Invalid request body"}
	}
	return e.Fields[0]
}
