package rabbitmq

import (
	"errors"
	"fmt"
	"time"

	"github.com/glimte/bridgekit-go/contracts"
)

var (
	ErrNotConnected = errors.New("rabbitmq bridge: not connected")
	ErrBridgeClosed = errors.New("rabbitmq bridge: closed")
)

// PublishError represents a failed publish
type PublishError struct {
	Exchange   string
	RoutingKey string
	Event      contracts.EventName
	Err        error
	Timestamp  time.Time
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq bridge: publish %s to %s/%s: %v", e.Event, e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// ConsumeError represents a delivery that could not be processed
type ConsumeError struct {
	Op        string
	Event     contracts.EventName
	Err       error
	Timestamp time.Time
}

func (e *ConsumeError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("rabbitmq bridge: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("rabbitmq bridge: %s %s: %v", e.Op, e.Event, e.Err)
}

func (e *ConsumeError) Unwrap() error {
	return e.Err
}
