package config

import (
	"errors"
	"fmt"
)

var (
	ErrMissingService = errors.New("config: RUNNING_SERVICE is required")
	ErrMissingToken   = errors.New("config: INTERNAL_TOKEN is required")
	ErrUnknownBroker  = errors.New("config: unknown broker")
	ErrMissingBrokers = errors.New("config: KAFKA_BROKERS is required for the kafka broker")
	ErrInvalidValue   = errors.New("config: invalid value")
)

// ValidationError names the key that failed validation
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
