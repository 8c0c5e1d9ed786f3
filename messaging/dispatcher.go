package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/glimte/bridgekit-go/contracts"
)

// Handler serves one event. The returned value is what the caller receives:
// the sync bridge writes it as the response body and the log bridge publishes
// it back to a correlation waiter.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Middleware wraps a handler with cross-cutting behaviour
type Middleware func(event contracts.EventName, next Handler) Handler

// Registry maps event names to handlers. It is built during startup, sealed,
// and read concurrently afterwards.
type Registry struct {
	handlers   map[contracts.EventName]Handler
	mu         sync.RWMutex
	sealed     bool
	logger     *slog.Logger
	middleware []Middleware
}

// RegistryOption configures the Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMiddleware adds middleware applied to every dispatch, outermost first
func WithMiddleware(middleware ...Middleware) RegistryOption {
	return func(r *Registry) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// NewRegistry creates an empty registry
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		handlers: make(map[contracts.EventName]Handler),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Register binds a handler to an event name
func (r *Registry) Register(event contracts.EventName, handler Handler) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("handler for %s cannot be nil", event)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, event)
	}
	if _, exists := r.handlers[event]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, event)
	}

	r.handlers[event] = handler
	r.logger.Debug("registered event handler", "event", event)

	return nil
}

// MustRegister is Register for static wiring in main packages
func (r *Registry) MustRegister(event contracts.EventName, handler Handler) {
	if err := r.Register(event, handler); err != nil {
		panic(err)
	}
}

// Use appends middleware. It must be called before Seal.
func (r *Registry) Use(middleware ...Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}
	r.middleware = append(r.middleware, middleware...)
	return nil
}

// Seal freezes the registry. Later registrations fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Validate checks that every required event has a handler
func (r *Registry) Validate(required ...contracts.EventName) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []contracts.EventName
	for _, event := range required {
		if _, ok := r.handlers[event]; !ok {
			missing = append(missing, event)
		}
	}

	if len(missing) > 0 {
		return &RegistryError{Op: "validate", Missing: missing, Timestamp: time.Now()}
	}
	return nil
}

// Lookup returns the handler for event, wrapped in the middleware chain
func (r *Registry) Lookup(event contracts.EventName) (Handler, bool) {
	r.mu.RLock()
	handler, ok := r.handlers[event]
	middleware := r.middleware
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}

	return chain(event, handler, middleware), true
}

// Has reports whether event is registered
func (r *Registry) Has(event contracts.EventName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[event]
	return ok
}

// Dispatch runs the handler registered for event.
// Unknown events return ErrUnknownEvent; panics are returned as a HandlerError.
func (r *Registry) Dispatch(ctx context.Context, event contracts.EventName, payload json.RawMessage) (result any, err error) {
	handler, ok := r.Lookup(event)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked", "event", event, "panic", p)
			result = nil
			err = &HandlerError{Event: event, Err: fmt.Errorf("%w: %v", ErrHandlerPanic, p), Timestamp: time.Now()}
		}
	}()

	result, err = handler(ctx, payload)
	if err != nil {
		return nil, &HandlerError{Event: event, Err: err, Timestamp: time.Now()}
	}
	return result, nil
}

// Events returns the registered event names in sorted order
func (r *Registry) Events() []contracts.EventName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]contracts.EventName, 0, len(r.handlers))
	for event := range r.handlers {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}

func chain(event contracts.EventName, handler Handler, middleware []Middleware) Handler {
	result := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		result = middleware[i](event, result)
	}
	return result
}
