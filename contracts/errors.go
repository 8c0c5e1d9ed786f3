package contracts

import "errors"

var (
	ErrInvalidEventName = errors.New("contracts: invalid event name")
	ErrEmptyEnvelope    = errors.New("contracts: envelope has no event")
	ErrNotSuccess       = errors.New("contracts: result is not a success")
)
