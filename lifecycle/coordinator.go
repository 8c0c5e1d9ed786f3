package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State of the coordinator
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ShutdownFunc releases one resource. It should return promptly once ctx is done.
type ShutdownFunc func(ctx context.Context) error

type shutdownHandler struct {
	name string
	fn   ShutdownFunc
}

// Coordinator owns the shutdown handler registry and the exit path
type Coordinator struct {
	mu       sync.Mutex
	handlers []shutdownHandler

	logger      *slog.Logger
	timeout     time.Duration
	settleDelay time.Duration
	exit        func(code int)
	signals     []os.Signal

	once     sync.Once
	state    atomic.Int32
	exitCode int
	cause    error
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	sigCh   chan os.Signal
	started atomic.Bool
}

// Option configures the Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithTimeout bounds the whole shutdown sequence
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithSettleDelay sets the pause between the last handler and exit
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Coordinator) {
		c.settleDelay = delay
	}
}

// WithExitFunc replaces os.Exit
func WithExitFunc(exit func(code int)) Option {
	return func(c *Coordinator) {
		c.exit = exit
	}
}

// WithSignals replaces the default SIGINT and SIGTERM
func WithSignals(signals ...os.Signal) Option {
	return func(c *Coordinator) {
		c.signals = signals
	}
}

// New creates a coordinator in the running state
func New(options ...Option) *Coordinator {
	c := &Coordinator{
		logger:      slog.Default(),
		timeout:     20 * time.Second,
		settleDelay: 2 * time.Second,
		exit:        os.Exit,
		signals:     []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		done:        make(chan struct{}),
	}

	for _, opt := range options {
		opt(c)
	}

	c.logger = c.logger.With("component", "lifecycle")
	c.ctx, c.cancel = context.WithCancel(context.Background())

	return c
}

// AddShutdownHandler appends fn to the registry. Handlers added after
// shutdown started are ignored.
func (c *Coordinator) AddShutdownHandler(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateRunning {
		c.logger.Warn("shutdown handler registered too late", "handler", name)
		return
	}
	c.handlers = append(c.handlers, shutdownHandler{name: name, fn: fn})
}

// Init installs the termination signal observers. When server is not nil it
// is shut down before any other handler.
func (c *Coordinator) Init(server *http.Server) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}

	if server != nil {
		c.mu.Lock()
		c.handlers = append([]shutdownHandler{{
			name: "http server",
			fn: func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
		}}, c.handlers...)
		c.mu.Unlock()
	}

	c.sigCh = make(chan os.Signal, 1)
	signal.Notify(c.sigCh, c.signals...)

	go func() {
		defer signal.Stop(c.sigCh)

		select {
		case sig := <-c.sigCh:
			c.logger.Info("received termination signal", "signal", sig.String())
			c.Shutdown(fmt.Sprintf("signal %s", sig), 0)
		case <-c.done:
		}
	}()
}

// Context is cancelled as soon as shutdown begins. Long-running loops should
// derive from it.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Fail reports an unrecoverable error and starts shutdown with exit code 1.
// It does not block, so it is safe to call from a goroutine that a shutdown
// handler will wait on.
func (c *Coordinator) Fail(err error) {
	if err == nil {
		return
	}
	if c.State() != StateRunning {
		c.logger.Debug("failure reported during shutdown", "error", err)
		return
	}

	c.logger.Error("fatal error, shutting down", "error", err)
	c.mu.Lock()
	if c.cause == nil {
		c.cause = err
	}
	c.mu.Unlock()
	go c.Shutdown(err.Error(), 1)
}

// Recover converts a panic in the calling goroutine into Fail. Use as
// `defer coordinator.Recover()`.
func (c *Coordinator) Recover() {
	if r := recover(); r != nil {
		c.Fail(fmt.Errorf("%w: %v", ErrPanic, r))
	}
}

// Go runs fn on its own goroutine. A panic or a non-nil error other than
// context cancellation is reported through Fail.
func (c *Coordinator) Go(name string, fn func(ctx context.Context) error) {
	go func() {
		defer c.Recover()

		if err := fn(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.Fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Shutdown runs the handlers once and exits with code. Later calls return
// immediately.
func (c *Coordinator) Shutdown(reason string, code int) {
	c.once.Do(func() {
		c.run(reason, code)
	})
}

// Done is closed once shutdown has finished, just before exit is called.
// ExitCode and Err are final by then.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// ExitCode is the code passed to exit. It is 0 until Done is closed.
func (c *Coordinator) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// Err is nil for a clean shutdown. For a non-zero exit it returns the error
// given to Fail, ErrShutdownTimeout, or ErrAbnormalExit.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exitCode == 0 {
		return nil
	}
	return c.cause
}

// State returns the current state
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) run(reason string, code int) {
	c.mu.Lock()
	c.state.Store(int32(StateShuttingDown))
	handlers := make([]shutdownHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	c.logger.Info("shutting down", "reason", reason, "handlers", len(handlers), "timeout", c.timeout)
	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)

		for _, h := range handlers {
			c.runHandler(ctx, h)
		}

		if c.settleDelay > 0 {
			timer := time.NewTimer(c.settleDelay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
		}
	}()

	select {
	case <-finished:
		c.logger.Info("shutdown complete", "code", code)
	case <-ctx.Done():
		c.logger.Error("shutdown timed out, forcing exit", "timeout", c.timeout)
		code = 1
		c.mu.Lock()
		if c.cause == nil {
			c.cause = ErrShutdownTimeout
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.exitCode = code
	if code != 0 && c.cause == nil {
		c.cause = ErrAbnormalExit
	}
	c.mu.Unlock()

	c.state.Store(int32(StateTerminated))
	close(c.done)
	c.exit(code)
}

func (c *Coordinator) runHandler(ctx context.Context, h shutdownHandler) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("shutdown handler panicked", "handler", h.name, "panic", r)
		}
	}()

	if err := h.fn(ctx); err != nil {
		c.logger.Error("shutdown handler failed", "handler", h.name, "error", err, "duration", time.Since(start))
		return
	}
	c.logger.Debug("shutdown handler finished", "handler", h.name, "duration", time.Since(start))
}
