package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/glimte/bridgekit-go/contracts"
)

var (
	ErrProducerNotConnected = errors.New("kafka bridge: producer not connected")
	ErrNoCorrelator         = errors.New("kafka bridge: no correlation store configured")
	ErrAlreadyConsuming     = errors.New("kafka bridge: already consuming")
	ErrBridgeClosed         = errors.New("kafka bridge: closed")
	ErrInvalidSetting       = errors.New("kafka bridge: invalid setting")
)

// ProduceError represents a record the broker did not accept
type ProduceError struct {
	Topic     string
	Event     contracts.EventName
	Err       error
	Timestamp time.Time
}

func (e *ProduceError) Error() string {
	return fmt.Sprintf("kafka bridge: produce %s to %s: %v", e.Event, e.Topic, e.Err)
}

func (e *ProduceError) Unwrap() error {
	return e.Err
}

// ConsumeError represents a record that could not be processed
type ConsumeError struct {
	Op        string
	Topic     string
	Partition int32
	Offset    int64
	Event     contracts.EventName
	Err       error
	Timestamp time.Time
}

func (e *ConsumeError) Error() string {
	return fmt.Sprintf("kafka bridge: %s %s[%d]@%d %s: %v", e.Op, e.Topic, e.Partition, e.Offset, e.Event, e.Err)
}

func (e *ConsumeError) Unwrap() error {
	return e.Err
}
