package httpx

import (
	"errors"
	"fmt"
	"time"

	"github.com/glimte/bridgekit-go/contracts"
)

var (
	ErrUnknownService = errors.New("httpx: unknown service")
	ErrInvalidToken   = errors.New("httpx: invalid token")
	ErrBadStatus      = errors.New("httpx: unexpected status")
)

// InvokeError describes why a synchronous call produced the error result
type InvokeError struct {
	Service   string
	Event     contracts.EventName
	Status    int
	Err       error
	Timestamp time.Time
}

func (e *InvokeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("invoke %s/%s failed with status %d: %v", e.Service, e.Event, e.Status, e.Err)
	}
	return fmt.Sprintf("invoke %s/%s failed: %v", e.Service, e.Event, e.Err)
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}
