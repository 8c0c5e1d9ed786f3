// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridgekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/glimte/bridgekit-go/bridge"
	"github.com/glimte/bridgekit-go/config"
	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/health"
	"github.com/glimte/bridgekit-go/internal/reliability"
	"github.com/glimte/bridgekit-go/lifecycle"
	"github.com/glimte/bridgekit-go/logging"
	"github.com/glimte/bridgekit-go/messaging"
	"github.com/glimte/bridgekit-go/metrics"
	"github.com/glimte/bridgekit-go/transports/httpx"
	"github.com/glimte/bridgekit-go/transports/kafka"
	"github.com/glimte/bridgekit-go/transports/rabbitmq"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyStarted = errors.New("bridgekit: client already started")
	ErrNoBroker       = errors.New("bridgekit: no asynchronous broker configured")
)

// Client owns every bridge of one service process. Components are built by
// New in dependency order and connected by Start.
type Client struct {
	cfg    config.Config
	logger *slog.Logger

	coordinator *lifecycle.Coordinator
	registry    *messaging.Registry
	metrics     *metrics.Recorder
	health      *health.Registry

	redis     redis.UniversalClient
	ownsRedis bool
	store     *bridge.CorrelationStore

	server *httpx.Server
	sync   *httpx.Client
	queue  *rabbitmq.Bridge
	log    *kafka.Bridge

	mu      sync.Mutex
	started bool
}

// New builds the coordinator, the registry, the correlation store, the sync
// bridge and, depending on cfg.Broker, the queue or log bridge. Nothing is
// dialed.
func New(cfg config.Config, options ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &clientConfig{logger: slog.Default()}
	for _, opt := range options {
		opt(opts)
	}

	c := &Client{
		cfg:     cfg,
		logger:  logging.Component(opts.logger, "bridgekit"),
		metrics: opts.metrics,
		health:  health.NewRegistry(),
	}

	coordinatorOpts := []lifecycle.Option{
		lifecycle.WithLogger(opts.logger),
		lifecycle.WithTimeout(cfg.Shutdown.Timeout),
		lifecycle.WithSettleDelay(cfg.Shutdown.SettleDelay),
	}
	if opts.exit != nil {
		coordinatorOpts = append(coordinatorOpts, lifecycle.WithExitFunc(opts.exit))
	}
	c.coordinator = lifecycle.New(coordinatorOpts...)

	if err := c.buildRegistry(opts); err != nil {
		return nil, err
	}
	if err := c.buildStore(opts); err != nil {
		return nil, err
	}
	c.buildSync(opts)

	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		c.buildQueue(opts)
	case config.BrokerKafka:
		c.buildLog(opts)
	}

	c.health.SetMetadata("service", cfg.Service)
	c.health.SetMetadata("broker", string(cfg.Broker))
	c.health.Register(health.NewGoroutineChecker(500, 1000))
	return c, nil
}

func (c *Client) buildRegistry(opts *clientConfig) error {
	middleware := []messaging.Middleware{messaging.LoggingMiddleware(logging.Component(opts.logger, "registry"))}
	if c.metrics != nil {
		middleware = append(middleware, messaging.ObserverMiddleware(c.metrics))
	}

	if opts.registry != nil {
		c.registry = opts.registry
		return c.registry.Use(middleware...)
	}

	c.registry = messaging.NewRegistry(
		messaging.WithRegistryLogger(logging.Component(opts.logger, "registry")),
		messaging.WithMiddleware(middleware...),
	)
	return nil
}

func (c *Client) buildStore(opts *clientConfig) error {
	c.redis = opts.redis
	if c.redis == nil {
		client, err := bridge.NewRedisClient(c.redisConfig())
		if err != nil {
			return err
		}
		c.redis = client
		c.ownsRedis = true
	}

	storeOpts := []bridge.StoreOption{
		bridge.WithDefaultTimeout(c.cfg.Correlation.Timeout),
		bridge.WithMaxPendingRequests(c.cfg.Correlation.MaxPending),
		bridge.WithLogger(logging.Component(opts.logger, "correlation")),
	}
	if c.metrics != nil {
		storeOpts = append(storeOpts, bridge.WithObserver(c.metrics))
	}

	c.store = bridge.NewCorrelationStore(c.redis, storeOpts...)
	c.health.Register(health.NewPingChecker("redis", c.store))
	return nil
}

func (c *Client) buildSync(opts *clientConfig) {
	c.server = httpx.NewServer(c.registry, c.cfg.InternalToken,
		httpx.WithServerLogger(logging.Component(opts.logger, "sync-server")))

	clientOpts := []httpx.ClientOption{httpx.WithClientLogger(logging.Component(opts.logger, "sync-request"))}
	if c.metrics != nil {
		clientOpts = append(clientOpts, httpx.WithInvokeObserver(c.metrics), httpx.WithBreakerObserver(c.metrics))
	}
	breaker := c.cfg.SyncBreaker
	if opts.breaker != nil {
		breaker = *opts.breaker
	}
	clientOpts = append(clientOpts, httpx.WithCircuitBreaker(breaker))
	c.sync = httpx.NewClient(c.cfg.Hosts, c.cfg.InternalToken, clientOpts...)
}

func (c *Client) buildQueue(opts *clientConfig) {
	rc := c.cfg.RabbitMQ
	queueOpts := []rabbitmq.Option{rabbitmq.WithLogger(logging.Component(opts.logger, "rabbitmq"))}
	if c.metrics != nil {
		queueOpts = append(queueOpts, rabbitmq.WithObserver(c.metrics))
	}
	queueOpts = append(queueOpts, opts.rabbitmq...)

	c.queue = rabbitmq.NewBridge(rabbitmq.Config{
		URL:            rc.URL,
		Exchange:       rc.Exchange,
		Service:        c.cfg.Service,
		ReconnectDelay: rc.ReconnectDelay,
		MaxRetries:     rc.MaxRetries,
	}, c.registry, c.coordinator, queueOpts...)

	c.health.Register(health.NewRabbitMQChecker(c.queue.Connector(), c.queue))
}

func (c *Client) buildLog(opts *clientConfig) {
	kc := c.cfg.Kafka
	logOpts := []kafka.Option{
		kafka.WithLogger(logging.Component(opts.logger, "kafka")),
		kafka.WithCorrelator(c.store),
	}
	if c.metrics != nil {
		logOpts = append(logOpts, kafka.WithObserver(c.metrics))
	}
	logOpts = append(logOpts, opts.kafka...)

	c.log = kafka.NewBridge(kafka.Config{
		Brokers:           kc.Brokers,
		ClientID:          kc.ClientID,
		GroupID:           kc.GroupID,
		Service:           c.cfg.Service,
		Version:           kc.Version,
		Partitions:        kc.Partitions,
		Replication:       kc.Replication,
		RetentionMs:       kc.RetentionMs,
		CleanupPolicy:     kc.CleanupPolicy,
		SettleDelay:       kc.SettleDelay,
		SessionTimeout:    kc.SessionTimeout,
		HeartbeatInterval: kc.HeartbeatInterval,
		RebalanceTimeout:  kc.RebalanceTimeout,
		Compression:       kc.Compression,
		ReconnectDelay:    kc.ReconnectDelay,
		MaxRetries:        kc.MaxRetries,
	}, c.registry, c.coordinator, logOpts...)

	c.health.Register(health.NewPingChecker("kafka", c.log))
}

func (c *Client) redisConfig() bridge.RedisConfig {
	return bridge.RedisConfig{
		URI:            c.cfg.Redis.URI,
		ReconnectDelay: c.cfg.Redis.ReconnectDelay,
		MaxRetries:     c.cfg.Redis.MaxRetries,
	}
}

// Start fails fast when a required event has no handler, seals the
// registry, waits for Redis, connects the broker and starts consuming the
// service's own queue or topic. Events listed in RequiredEvents are checked
// together with required.
func (c *Client) Start(ctx context.Context, required ...contracts.EventName) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	for _, name := range c.cfg.RequiredEvents {
		required = append(required, contracts.EventName(name))
	}
	if err := c.registry.Validate(required...); err != nil {
		return err
	}
	c.registry.Seal()

	if err := bridge.WaitForRedis(ctx, c.redis, c.redisConfig(), c.logger); err != nil {
		return err
	}

	switch {
	case c.queue != nil:
		if err := c.connectQueue(ctx); err != nil {
			return err
		}
	case c.log != nil:
		if err := c.log.ConnectProducer(ctx); err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		if err := c.log.Consume(c.coordinator.Context()); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
	}

	// consumers may still publish replies while they drain
	c.coordinator.AddShutdownHandler("correlation store", func(context.Context) error {
		err := c.store.Close()
		if c.ownsRedis {
			err = errors.Join(err, c.redis.Close())
		}
		return err
	})

	c.started = true
	c.logger.Info("bridges started",
		"service", c.cfg.Service,
		"broker", c.cfg.Broker,
		"events", c.registry.Events())
	return nil
}

func (c *Client) connectQueue(ctx context.Context) error {
	rc := c.cfg.RabbitMQ
	policy := reliability.NewExponentialBackoff(rc.ReconnectDelay, time.Minute, 2, rc.MaxRetries)

	err := reliability.RetryNotify(ctx, policy, func() error {
		return c.queue.Connect(ctx)
	}, func(attempt int, err error, next time.Duration) {
		c.logger.Warn("rabbitmq not ready", "attempt", attempt, "error", err, "nextRetryIn", next)
	})
	if err != nil {
		return fmt.Errorf("rabbitmq connect: %w", err)
	}

	return c.queue.Consume(c.coordinator.Context())
}

// Routes mounts the sync bridge endpoint and the operational endpoints
// (/metrics, /live, /ready, /health) on r.
func (c *Client) Routes(r chi.Router) {
	c.server.Routes(r)

	var endpoints interface {
		LiveEndpoint(http.ResponseWriter, *http.Request)
		ReadyEndpoint(http.ResponseWriter, *http.Request)
	}
	if c.metrics != nil {
		r.Handle("/metrics", c.metrics.Handler())
		endpoints = health.Endpoints(c.health, c.metrics.Registry(), c.cfg.Metrics.Namespace, 5*time.Second)
	} else {
		endpoints = health.Endpoints(c.health, nil, "", 5*time.Second)
	}

	r.Get("/live", endpoints.LiveEndpoint)
	r.Get("/ready", endpoints.ReadyEndpoint)
	r.Handle("/health", health.NewHandler(c.health, 5*time.Second))
}

// Serve runs handler on the configured port until shutdown. The server is
// the first thing the coordinator stops. Serve returns once shutdown has
// completed: nil for a clean exit, otherwise the listen error, the error
// given to Fail, or lifecycle.ErrShutdownTimeout.
func (c *Client) Serve(handler http.Handler) error {
	srv := &http.Server{
		Addr:              c.cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	c.coordinator.Init(srv)

	c.logger.Info("listening", "addr", srv.Addr, "service", c.cfg.Service)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.coordinator.Fail(err)
		<-c.coordinator.Done()
		return err
	}

	<-c.coordinator.Done()
	return c.coordinator.Err()
}

// Publish sends event to service over the configured broker
func (c *Client) Publish(ctx context.Context, service string, event contracts.EventName, payload any) error {
	switch {
	case c.queue != nil:
		return c.queue.Publish(ctx, service, event, payload)
	case c.log != nil:
		return c.log.Produce(ctx, service, event, payload)
	default:
		return ErrNoBroker
	}
}

// Invoke calls event on service over the sync bridge
func (c *Client) Invoke(ctx context.Context, service string, event contracts.EventName, payload any) httpx.Result {
	return c.sync.Invoke(ctx, service, event, payload)
}

// Config returns the configuration the client was built with
func (c *Client) Config() config.Config {
	return c.cfg
}

// Logger returns the root logger
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Coordinator returns the lifecycle coordinator
func (c *Client) Coordinator() *lifecycle.Coordinator {
	return c.coordinator
}

// Registry returns the event handler registry
func (c *Client) Registry() *messaging.Registry {
	return c.registry
}

// Store returns the correlation store
func (c *Client) Store() *bridge.CorrelationStore {
	return c.store
}

// Redis returns the Redis client shared with the correlation store
func (c *Client) Redis() redis.UniversalClient {
	return c.redis
}

// SyncServer returns the sync bridge server
func (c *Client) SyncServer() *httpx.Server {
	return c.server
}

// SyncClient returns the sync bridge client
func (c *Client) SyncClient() *httpx.Client {
	return c.sync
}

// Queue returns the RabbitMQ bridge, nil unless BROKER=rabbitmq
func (c *Client) Queue() *rabbitmq.Bridge {
	return c.queue
}

// Log returns the Kafka bridge, nil unless BROKER=kafka
func (c *Client) Log() *kafka.Bridge {
	return c.log
}

// Metrics returns the metrics recorder, nil when metrics are disabled
func (c *Client) Metrics() *metrics.Recorder {
	return c.metrics
}

// Health returns the readiness check registry
func (c *Client) Health() *health.Registry {
	return c.health
}

// Shutdown triggers the coordinator and waits for it to finish
func (c *Client) Shutdown(reason string) {
	go c.coordinator.Shutdown(reason, 0)
	<-c.coordinator.Done()
}

// clientConfig holds client configuration
type clientConfig struct {
	logger   *slog.Logger
	registry *messaging.Registry
	metrics  *metrics.Recorder
	exit     func(code int)
	redis    redis.UniversalClient
	breaker  *config.BreakerConfig
	rabbitmq []rabbitmq.Option
	kafka    []kafka.Option
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithRegistry uses a registry the caller already populated
func WithRegistry(registry *messaging.Registry) ClientOption {
	return func(cfg *clientConfig) {
		cfg.registry = registry
	}
}

// WithMetrics records bridge metrics on recorder
func WithMetrics(recorder *metrics.Recorder) ClientOption {
	return func(cfg *clientConfig) {
		cfg.metrics = recorder
	}
}

// WithExitFunc replaces os.Exit at the end of shutdown
func WithExitFunc(exit func(code int)) ClientOption {
	return func(cfg *clientConfig) {
		cfg.exit = exit
	}
}

// WithRedis shares an existing Redis client instead of dialing REDIS_URI.
// The caller keeps ownership.
func WithRedis(client redis.UniversalClient) ClientOption {
	return func(cfg *clientConfig) {
		cfg.redis = client
	}
}

// WithSyncCircuitBreaker overrides the SYNC_BREAKER_* settings. Zero
// Failures turns the breakers off.
func WithSyncCircuitBreaker(breaker config.BreakerConfig) ClientOption {
	return func(cfg *clientConfig) {
		cfg.breaker = &breaker
	}
}

// WithRabbitMQOptions passes options to the queue bridge
func WithRabbitMQOptions(opts ...rabbitmq.Option) ClientOption {
	return func(cfg *clientConfig) {
		cfg.rabbitmq = append(cfg.rabbitmq, opts...)
	}
}

// WithKafkaOptions passes options to the log bridge
func WithKafkaOptions(opts ...kafka.Option) ClientOption {
	return func(cfg *clientConfig) {
		cfg.kafka = append(cfg.kafka, opts...)
	}
}
