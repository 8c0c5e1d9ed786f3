package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/internal/rabbitmq"
	"github.com/glimte/bridgekit-go/lifecycle"
	"github.com/glimte/bridgekit-go/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

const transportName = "rabbitmq"

// Connector is satisfied by *rabbitmq.ConnectionManager
type Connector interface {
	Connect(ctx context.Context) error
	OpenChannel() (rabbitmq.Channel, error)
	AddStateListener(listener rabbitmq.ConnectionStateListener)
	IsConnected() bool
	Close() error
}

// Supervisor is satisfied by *lifecycle.Coordinator
type Supervisor interface {
	AddShutdownHandler(name string, fn lifecycle.ShutdownFunc)
	Fail(err error)
}

// Observer receives publish and consume outcomes
type Observer interface {
	ObservePublish(transport, destination, outcome string)
	ObserveConsume(transport, event, outcome string)
}

// State of the bridge
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateConsuming
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateConsuming:
		return "consuming"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds the bridge settings
type Config struct {
	URL            string
	Exchange       string
	Service        string
	ReconnectDelay time.Duration
	MaxRetries     int
}

// Option configures the Bridge
type Option func(*Bridge)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithObserver reports publish and consume outcomes
func WithObserver(observer Observer) Option {
	return func(b *Bridge) {
		b.observer = observer
	}
}

// WithConnector replaces the default connection manager
func WithConnector(conn Connector) Option {
	return func(b *Bridge) {
		b.conn = conn
	}
}

// Bridge publishes to and consumes from the shared direct exchange
type Bridge struct {
	cfg        Config
	registry   *messaging.Registry
	supervisor Supervisor
	conn       Connector
	logger     *slog.Logger
	observer   Observer

	mu          sync.RWMutex
	state       State
	ch          rabbitmq.Channel
	consumer    *rabbitmq.Consumer
	consumeCtx  context.Context
	wantConsume bool

	listenOnce   sync.Once
	shutdownOnce sync.Once
}

// NewBridge creates a bridge. Nothing is dialed until Connect.
func NewBridge(cfg Config, registry *messaging.Registry, supervisor Supervisor, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:        cfg,
		registry:   registry,
		supervisor: supervisor,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.conn == nil {
		b.conn = rabbitmq.NewConnectionManager(cfg.URL,
			rabbitmq.WithReconnectDelay(cfg.ReconnectDelay),
			rabbitmq.WithMaxRetries(cfg.MaxRetries),
			rabbitmq.WithLogger(b.logger),
		)
	}

	return b
}

// Connect dials the broker, opens the channel and declares the exchange
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return ErrBridgeClosed
	case StateConnected, StateConsuming:
		return nil
	}

	if err := b.conn.Connect(ctx); err != nil {
		return err
	}
	if err := b.openChannel(); err != nil {
		return err
	}

	b.state = StateConnected
	b.listenOnce.Do(func() { b.conn.AddStateListener(b) })
	b.shutdownOnce.Do(func() { b.supervisor.AddShutdownHandler("rabbitmq", b.Close) })

	b.logger.Info("rabbitmq bridge connected", "exchange", b.cfg.Exchange)
	return nil
}

// openChannel must be called with mu held
func (b *Bridge) openChannel() error {
	ch, err := b.conn.OpenChannel()
	if err != nil {
		return err
	}

	if err := rabbitmq.DeclareExchange(ch, rabbitmq.DirectExchange(b.cfg.Exchange)); err != nil {
		_ = ch.Close()
		return err
	}

	b.ch = ch
	notify := ch.NotifyClose(make(chan *amqp.Error, 1))
	go b.watchChannel(ch, notify)
	return nil
}

func (b *Bridge) watchChannel(ch rabbitmq.Channel, notify chan *amqp.Error) {
	err, ok := <-notify
	if ok && err != nil {
		b.logger.Error("rabbitmq channel closed", "error", err)
	}

	b.mu.Lock()
	if b.ch == ch {
		b.ch = nil
	}
	b.mu.Unlock()
}

// Publish sends event to service. It returns once the frame is written;
// there is no broker confirmation.
func (b *Bridge) Publish(ctx context.Context, service string, event contracts.EventName, payload any) error {
	err := b.publish(ctx, service, event, payload)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if b.observer != nil {
		b.observer.ObservePublish(transportName, service, outcome)
	}
	return err
}

func (b *Bridge) publish(ctx context.Context, service string, event contracts.EventName, payload any) error {
	publishErr := func(err error) error {
		return &PublishError{
			Exchange:   b.cfg.Exchange,
			RoutingKey: service,
			Event:      event,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	env, err := contracts.NewQueueEnvelope(event, payload)
	if err != nil {
		return publishErr(err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return publishErr(err)
	}

	b.mu.RLock()
	ch := b.ch
	closed := b.state == StateClosed
	b.mu.RUnlock()

	if closed {
		return publishErr(ErrBridgeClosed)
	}
	if ch == nil {
		return publishErr(ErrNotConnected)
	}

	err = ch.PublishWithContext(ctx, b.cfg.Exchange, service, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		return publishErr(err)
	}

	b.logger.Debug("published", "service", service, "event", event)
	return nil
}

// Consume binds this service's queue and starts dispatching deliveries.
// It returns once the consumer is registered. Consumption resumes
// automatically after a reconnect.
func (b *Bridge) Consume(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return ErrBridgeClosed
	}
	if b.ch == nil {
		return &ConsumeError{Op: "consume", Err: ErrNotConnected, Timestamp: time.Now()}
	}
	if b.wantConsume {
		return nil
	}

	b.consumeCtx = ctx
	b.wantConsume = true
	if err := b.startConsuming(); err != nil {
		b.wantConsume = false
		return err
	}
	return nil
}

// startConsuming must be called with mu held
func (b *Bridge) startConsuming() error {
	queue, err := rabbitmq.DeclareServiceQueue(b.ch, b.cfg.Exchange, b.cfg.Service)
	if err != nil {
		return err
	}

	consumer := rabbitmq.NewConsumer(b.ch,
		rabbitmq.WithAutoAck(true),
		rabbitmq.WithExclusive(true),
		rabbitmq.WithConsumerLogger(b.logger),
		rabbitmq.WithErrorHandler(b.escalate),
	)
	if err := consumer.Subscribe(b.consumeCtx, queue, b.handleDelivery); err != nil {
		return err
	}

	b.consumer = consumer
	b.state = StateConsuming
	b.logger.Info("waiting for messages", "queue", queue, "routingKey", b.cfg.Service)
	return nil
}

func (b *Bridge) handleDelivery(ctx context.Context, delivery amqp.Delivery) error {
	env, err := contracts.DecodeQueueEnvelope(delivery.Body)
	if err != nil {
		b.observeConsume("", "error")
		return &ConsumeError{Op: "decode", Err: err, Timestamp: time.Now()}
	}

	if !b.registry.Has(env.Event) {
		b.logger.Warn("no handler for event, dropping message", "event", env.Event)
		b.observeConsume(env.Event, "dropped")
		return nil
	}

	if _, err := b.registry.Dispatch(ctx, env.Event, env.Data); err != nil {
		b.observeConsume(env.Event, "error")
		return &ConsumeError{Op: "dispatch", Event: env.Event, Err: err, Timestamp: time.Now()}
	}

	b.observeConsume(env.Event, "success")
	return nil
}

func (b *Bridge) observeConsume(event contracts.EventName, outcome string) {
	if b.observer != nil {
		b.observer.ObserveConsume(transportName, string(event), outcome)
	}
}

// escalate hands a failed delivery to the supervisor, which shuts the process down
func (b *Bridge) escalate(_ amqp.Delivery, err error) {
	b.supervisor.Fail(err)
}

// OnConnected reopens the channel after a reconnect and resumes consuming
func (b *Bridge) OnConnected() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed || b.state == StateFailed {
		return
	}
	if b.ch != nil && !b.ch.IsClosed() {
		return
	}

	if err := b.openChannel(); err != nil {
		b.logger.Error("failed to reopen channel after reconnect", "error", err)
		b.supervisor.Fail(err)
		return
	}
	b.state = StateConnected

	if b.wantConsume {
		if b.consumer != nil {
			b.consumer.UnsubscribeAll()
		}
		if err := b.startConsuming(); err != nil {
			b.logger.Error("failed to resume consuming after reconnect", "error", err)
			b.supervisor.Fail(err)
			return
		}
	}

	b.logger.Info("rabbitmq bridge restored", "state", b.state.String())
}

// OnDisconnected escalates once the reconnect budget is spent
func (b *Bridge) OnDisconnected(err error) {
	if errors.Is(err, rabbitmq.ErrMaxRetriesExceeded) {
		b.mu.Lock()
		if b.state != StateClosed {
			b.state = StateFailed
		}
		b.mu.Unlock()

		b.logger.Error("rabbitmq reconnect budget exhausted", "error", err)
		b.supervisor.Fail(err)
		return
	}

	b.mu.Lock()
	if b.ch != nil && b.ch.IsClosed() {
		b.ch = nil
	}
	if b.state != StateClosed && b.ch == nil {
		b.state = StateDisconnected
	}
	b.mu.Unlock()

	b.logger.Warn("rabbitmq connection lost", "error", err)
}

// OnReconnecting logs reconnect attempts
func (b *Bridge) OnReconnecting(attempt int) {
	b.logger.Info("reconnecting to rabbitmq", "attempt", attempt, "maxRetries", b.cfg.MaxRetries)
}

// Close closes the channel, then the connection. A failure to close the
// channel does not prevent closing the connection.
func (b *Bridge) Close(context.Context) error {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return nil
	}
	b.state = StateClosed
	ch, consumer := b.ch, b.consumer
	b.ch, b.consumer = nil, nil
	b.mu.Unlock()

	if consumer != nil {
		consumer.UnsubscribeAll()
	}

	var errs []error
	if ch != nil {
		if err := ch.Close(); err != nil {
			b.logger.Error("failed to close rabbitmq channel", "error", err)
			errs = append(errs, err)
		}
	}
	if err := b.conn.Close(); err != nil {
		b.logger.Error("failed to close rabbitmq connection", "error", err)
		errs = append(errs, err)
	}

	b.logger.Info("rabbitmq bridge closed")
	return errors.Join(errs...)
}

// State returns the current bridge state
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Connector exposes the connection, e.g. for health checks
func (b *Bridge) Connector() Connector {
	return b.conn
}

// Ping reports whether a usable channel is open
func (b *Bridge) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ch == nil || b.ch.IsClosed() {
		return ErrNotConnected
	}
	return nil
}
