package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glimte/bridgekit-go/contracts"
)

var (
	ErrUnknownEvent     = errors.New("messaging: unknown event")
	ErrDuplicateHandler = errors.New("messaging: handler already registered")
	ErrRegistrySealed   = errors.New("messaging: registry is sealed")
	ErrHandlerPanic     = errors.New("messaging: handler panicked")
	ErrMissingHandlers  = errors.New("messaging: required handlers missing")
)

// HandlerError wraps a failure returned by a registered handler
type HandlerError struct {
	Event     contracts.EventName
	Err       error
	Timestamp time.Time
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed: %v", e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// RegistryError reports events referenced at startup that have no handler
type RegistryError struct {
	Op        string
	Missing   []contracts.EventName
	Timestamp time.Time
}

func (e *RegistryError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = string(m)
	}
	return fmt.Sprintf("registry %s failed: no handler for %s", e.Op, strings.Join(names, ", "))
}

func (e *RegistryError) Unwrap() error {
	return ErrMissingHandlers
}
