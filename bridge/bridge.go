package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/bridgekit-go/contracts"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// WaitObserver receives the outcome of every wait
type WaitObserver interface {
	ObserveWait(outcome string, elapsed time.Duration)
}

// StoreConfig holds configuration for the correlation store
type StoreConfig struct {
	DefaultTimeout     time.Duration
	MaxPendingRequests int
	Logger             *slog.Logger
	Observer           WaitObserver
}

// StoreOption configures the correlation store
type StoreOption func(*StoreConfig)

// WithDefaultTimeout bounds waits whose context has no deadline. Zero disables it.
func WithDefaultTimeout(timeout time.Duration) StoreOption {
	return func(c *StoreConfig) {
		c.DefaultTimeout = timeout
	}
}

// WithMaxPendingRequests caps concurrent waiters. Zero means unlimited.
func WithMaxPendingRequests(max int) StoreOption {
	return func(c *StoreConfig) {
		c.MaxPendingRequests = max
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *StoreConfig) {
		c.Logger = logger
	}
}

// WithObserver reports wait outcomes, typically to metrics
func WithObserver(observer WaitObserver) StoreOption {
	return func(c *StoreConfig) {
		c.Observer = observer
	}
}

// CorrelationStore maps correlation ids to one-shot replies over Redis pub/sub
type CorrelationStore struct {
	client         redis.UniversalClient
	pending        map[string]*Waiter
	reserved       int
	mu             sync.Mutex
	closed         bool
	defaultTimeout time.Duration
	maxPending     int
	logger         *slog.Logger
	observer       WaitObserver
}

// NewCorrelationStore creates a store on top of an existing Redis client.
// The store does not own the client; Close only releases waiters.
func NewCorrelationStore(client redis.UniversalClient, opts ...StoreOption) *CorrelationStore {
	config := &StoreConfig{
		DefaultTimeout:     30 * time.Second,
		MaxPendingRequests: 1000,
		Logger:             slog.Default(),
	}

	for _, opt := range opts {
		opt(config)
	}

	return &CorrelationStore{
		client:         client,
		pending:        make(map[string]*Waiter),
		defaultTimeout: config.DefaultTimeout,
		maxPending:     config.MaxPendingRequests,
		logger:         config.Logger.With("component", "correlation"),
		observer:       config.Observer,
	}
}

// IssueID returns a fresh correlation id
func (s *CorrelationStore) IssueID() string {
	return uuid.New().String()
}

// Subscribe opens a dedicated subscription on the channel named id and returns
// once Redis has confirmed it. The pending slot is reserved before the round
// trip, so concurrent callers cannot exceed the cap.
func (s *CorrelationStore) Subscribe(ctx context.Context, id string) (*Waiter, error) {
	if id == "" {
		return nil, ErrEmptyCorrelation
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	if s.maxPending > 0 && len(s.pending)+s.reserved >= s.maxPending {
		s.mu.Unlock()
		return nil, ErrTooManyPending
	}
	s.reserved++
	s.mu.Unlock()

	pubsub := s.client.Subscribe(ctx, id)
	if _, err := pubsub.Receive(ctx); err != nil {
		s.release()
		_ = pubsub.Close()
		return nil, &CorrelationError{Op: "subscribe", CorrelationID: id, Err: err, Timestamp: time.Now()}
	}

	w := &Waiter{
		id:       id,
		store:    s,
		pubsub:   pubsub,
		messages: pubsub.Channel(),
		done:     make(chan struct{}),
		started:  time.Now(),
	}

	s.mu.Lock()
	s.reserved--
	if s.closed {
		s.mu.Unlock()
		_ = pubsub.Close()
		return nil, ErrStoreClosed
	}
	s.pending[id] = w
	s.mu.Unlock()

	s.logger.Debug("awaiting reply", "correlationId", id)
	return w, nil
}

// AwaitReply subscribes and waits in one step. Prefer Subscribe followed by
// Wait when the request is sent after subscribing.
func (s *CorrelationStore) AwaitReply(ctx context.Context, id string) (contracts.Reply, error) {
	w, err := s.Subscribe(ctx, id)
	if err != nil {
		return contracts.Reply{}, err
	}
	return w.Wait(ctx)
}

// PublishReply serializes payload and publishes it on the channel named id.
// A reply nobody is waiting for is dropped.
func (s *CorrelationStore) PublishReply(ctx context.Context, id string, payload any) error {
	if id == "" {
		return ErrEmptyCorrelation
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &CorrelationError{Op: "publish", CorrelationID: id, Err: err, Timestamp: time.Now()}
	}

	receivers, err := s.client.Publish(ctx, id, body).Result()
	if err != nil {
		return &CorrelationError{Op: "publish", CorrelationID: id, Err: err, Timestamp: time.Now()}
	}

	if receivers == 0 {
		s.logger.Debug("reply dropped, no waiter", "correlationId", id)
	}
	return nil
}

// Pending returns the number of open waiters
func (s *CorrelationStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Ping checks the Redis connection
func (s *CorrelationStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStoreClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close releases every pending waiter. Their Wait calls return ErrStoreClosed.
func (s *CorrelationStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	waiters := make([]*Waiter, 0, len(s.pending))
	for _, w := range s.pending {
		waiters = append(waiters, w)
	}
	s.mu.Unlock()

	var errs []error
	for _, w := range waiters {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *CorrelationStore) release() {
	s.mu.Lock()
	s.reserved--
	s.mu.Unlock()
}

func (s *CorrelationStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *CorrelationStore) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *CorrelationStore) observe(outcome string, elapsed time.Duration) {
	if s.observer != nil {
		s.observer.ObserveWait(outcome, elapsed)
	}
}

// Waiter is a single subscription waiting for one reply
type Waiter struct {
	id       string
	store    *CorrelationStore
	pubsub   *redis.PubSub
	messages <-chan *redis.Message
	done     chan struct{}
	once     sync.Once
	closeErr error
	started  time.Time
}

// ID returns the correlation id the waiter listens on
func (w *Waiter) ID() string {
	return w.id
}

// Wait blocks until the first reply, the context ends, the default timeout
// expires, or the waiter is closed. The subscription is always released.
// A waiter is single use: Wait after Close returns ErrWaiterClosed.
func (w *Waiter) Wait(ctx context.Context) (contracts.Reply, error) {
	select {
	case <-w.done:
		return contracts.Reply{}, w.closedError()
	default:
	}
	defer w.Close()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && w.store.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.store.defaultTimeout)
		defer cancel()
	}

	select {
	case msg, ok := <-w.messages:
		if !ok {
			w.store.observe("closed", time.Since(w.started))
			return contracts.Reply{}, &CorrelationError{Op: "wait", CorrelationID: w.id, Err: ErrSubscriptionEnded, Timestamp: time.Now()}
		}
		w.store.observe("reply", time.Since(w.started))
		return contracts.Reply{Message: replyPayload(msg.Payload)}, nil

	case <-ctx.Done():
		w.store.observe("timeout", time.Since(w.started))
		w.store.logger.Warn("gave up waiting for reply", "correlationId", w.id, "error", ctx.Err())
		return contracts.Reply{}, &CorrelationError{
			Op:            "wait",
			CorrelationID: w.id,
			Err:           fmt.Errorf("%w: %w", ErrReplyTimeout, ctx.Err()),
			Timestamp:     time.Now(),
		}

	case <-w.done:
		w.store.observe("closed", time.Since(w.started))
		return contracts.Reply{}, w.closedError()
	}
}

func (w *Waiter) closedError() error {
	err := ErrWaiterClosed
	if w.store.isClosed() {
		err = ErrStoreClosed
	}
	return &CorrelationError{Op: "wait", CorrelationID: w.id, Err: err, Timestamp: time.Now()}
}

// Close unsubscribes and releases the connection. Safe to call more than once.
func (w *Waiter) Close() error {
	w.once.Do(func() {
		close(w.done)
		w.store.forget(w.id)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := w.pubsub.Unsubscribe(ctx, w.id); err != nil {
			w.store.logger.Debug("unsubscribe failed", "correlationId", w.id, "error", err)
		}
		w.closeErr = w.pubsub.Close()
	})
	return w.closeErr
}

// replyPayload keeps JSON payloads as-is and quotes anything else
func replyPayload(payload string) json.RawMessage {
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(payload)
	return quoted
}
