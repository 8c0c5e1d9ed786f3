package bridge

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrReplyTimeout      = errors.New("bridge: timed out waiting for reply")
	ErrStoreClosed       = errors.New("bridge: correlation store is closed")
	ErrTooManyPending    = errors.New("bridge: too many pending replies")
	ErrEmptyCorrelation  = errors.New("bridge: correlation id is empty")
	ErrWaiterClosed      = errors.New("bridge: waiter is closed")
	ErrSubscriptionEnded = errors.New("bridge: subscription channel closed")
)

// CorrelationError describes a failed store operation for one correlation id
type CorrelationError struct {
	Op            string
	CorrelationID string
	Err           error
	Timestamp     time.Time
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("correlation %s failed for %s: %v", e.Op, e.CorrelationID, e.Err)
}

func (e *CorrelationError) Unwrap() error {
	return e.Err
}
