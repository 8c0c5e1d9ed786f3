package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/glimte/bridgekit-go/contracts"
)

// DispatchObserver receives the outcome of every dispatch
type DispatchObserver interface {
	ObserveDispatch(event string, outcome string, elapsed time.Duration)
}

// LoggingMiddleware logs each dispatch at debug level and failures at error level
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(event contracts.EventName, next Handler) Handler {
		return func(ctx context.Context, payload json.RawMessage) (any, error) {
			start := time.Now()
			result, err := next(ctx, payload)
			if err != nil {
				logger.Error("event handler failed",
					"event", event,
					"duration", time.Since(start),
					"error", err,
				)
				return result, err
			}
			logger.Debug("event handled", "event", event, "duration", time.Since(start))
			return result, nil
		}
	}
}

// ObserverMiddleware reports each dispatch to observer
func ObserverMiddleware(observer DispatchObserver) Middleware {
	return func(event contracts.EventName, next Handler) Handler {
		return func(ctx context.Context, payload json.RawMessage) (any, error) {
			start := time.Now()
			result, err := next(ctx, payload)
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			observer.ObserveDispatch(string(event), outcome, time.Since(start))
			return result, err
		}
	}
}

// Decode adapts a typed function to a Handler
func Decode[T any](fn func(ctx context.Context, in T) (any, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var in T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &in); err != nil {
				return nil, &DecodeError{Err: err}
			}
		}
		return fn(ctx, in)
	}
}

// DecodeError is returned when a payload does not match the handler's input type
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode payload: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
