package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/glimte/bridgekit-go/bridge"
	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/internal/reliability"
	"github.com/glimte/bridgekit-go/lifecycle"
	"github.com/glimte/bridgekit-go/messaging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const transportName = "kafka"

// TopicAdmin is the subset of sarama.ClusterAdmin the bridge needs
type TopicAdmin interface {
	DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
	DescribeCluster() (brokers []*sarama.Broker, controllerID int32, err error)
	Close() error
}

// Correlator is satisfied by *bridge.CorrelationStore
type Correlator interface {
	IssueID() string
	Subscribe(ctx context.Context, id string) (*bridge.Waiter, error)
	PublishReply(ctx context.Context, id string, payload any) error
}

// Supervisor is satisfied by *lifecycle.Coordinator
type Supervisor interface {
	AddShutdownHandler(name string, fn lifecycle.ShutdownFunc)
	Fail(err error)
	Recover()
}

// Observer receives produce and consume outcomes
type Observer interface {
	ObservePublish(transport, destination, outcome string)
	ObserveConsume(transport, event, outcome string)
}

// Option configures the Bridge
type Option func(*Bridge)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithObserver reports produce and consume outcomes
func WithObserver(observer Observer) Option {
	return func(b *Bridge) {
		b.observer = observer
	}
}

// WithCorrelator enables ProduceAndWait and replies to tagged records
func WithCorrelator(store Correlator) Option {
	return func(b *Bridge) {
		b.store = store
	}
}

// WithAdmin replaces the sarama cluster admin
func WithAdmin(admin TopicAdmin) Option {
	return func(b *Bridge) {
		b.admin = admin
	}
}

// WithProducer replaces the sarama sync producer
func WithProducer(producer sarama.SyncProducer) Option {
	return func(b *Bridge) {
		b.producer = producer
	}
}

// WithConsumerGroup replaces the sarama consumer group
func WithConsumerGroup(group sarama.ConsumerGroup) Option {
	return func(b *Bridge) {
		b.group = group
	}
}

// Bridge produces envelopes to service topics and consumes its own topic
type Bridge struct {
	cfg        Config
	registry   *messaging.Registry
	supervisor Supervisor
	store      Correlator
	logger     *slog.Logger
	observer   Observer

	mu        sync.Mutex
	admin     TopicAdmin
	producer  sarama.SyncProducer
	group     sarama.ConsumerGroup
	consuming bool
	closed    bool

	adminOnce    sync.Once
	producerOnce sync.Once
	groupOnce    sync.Once
}

// NewBridge creates a bridge. Nothing is dialed until it is first needed.
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

	return b
}

func (b *Bridge) getAdmin() (TopicAdmin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBridgeClosed
	}
	if b.admin == nil {
		sc, err := b.cfg.AdminConfig()
		if err != nil {
			return nil, err
		}
		admin, err := sarama.NewClusterAdmin(b.cfg.Brokers, sc)
		if err != nil {
			return nil, err
		}
		b.admin = admin
	}

	b.adminOnce.Do(func() {
		b.supervisor.AddShutdownHandler("kafka admin", func(context.Context) error {
			b.mu.Lock()
			admin := b.admin
			b.admin = nil
			b.mu.Unlock()
			if admin == nil {
				return nil
			}
			return admin.Close()
		})
	})
	return b.admin, nil
}

// EnsureTopic creates topic when the broker does not know it, then waits
// the settle delay so metadata can propagate. It reports whether the topic
// is usable. Failures are logged, not returned.
func (b *Bridge) EnsureTopic(ctx context.Context, topic string) bool {
	admin, err := b.getAdmin()
	if err != nil {
		b.logger.Error("kafka admin unavailable", "topic", topic, "error", err)
		return false
	}

	metadata, err := admin.DescribeTopics([]string{topic})
	missing := errors.Is(err, sarama.ErrUnknownTopicOrPartition)
	if err != nil && !missing {
		b.logger.Error("failed to describe topic", "topic", topic, "error", err)
		return false
	}

	for _, meta := range metadata {
		if meta == nil || meta.Name != topic {
			continue
		}
		switch meta.Err {
		case sarama.ErrNoError:
		case sarama.ErrUnknownTopicOrPartition:
			missing = true
		default:
			b.logger.Error("topic metadata error", "topic", topic, "error", meta.Err)
			return false
		}
	}

	if !missing {
		b.logger.Debug("topic exists", "topic", topic)
		return true
	}

	if err := admin.CreateTopic(topic, b.cfg.TopicDetail(), false); err != nil {
		var topicErr *sarama.TopicError
		if errors.Is(err, sarama.ErrTopicAlreadyExists) ||
			(errors.As(err, &topicErr) && topicErr.Err == sarama.ErrTopicAlreadyExists) {
			return true
		}
		b.logger.Error("failed to create topic", "topic", topic, "error", err)
		return false
	}

	b.logger.Info("topic created",
		"topic", topic,
		"partitions", b.cfg.Partitions,
		"replication", b.cfg.Replication,
		"settleDelay", b.cfg.SettleDelay)

	if b.cfg.SettleDelay > 0 {
		timer := time.NewTimer(b.cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return true
}

// ConnectProducer opens the sync producer
func (b *Bridge) ConnectProducer(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBridgeClosed
	}
	if b.producer == nil {
		sc, err := b.cfg.ProducerConfig()
		if err != nil {
			return err
		}
		producer, err := sarama.NewSyncProducer(b.cfg.Brokers, sc)
		if err != nil {
			return err
		}
		b.producer = producer
	}

	b.producerOnce.Do(func() {
		b.supervisor.AddShutdownHandler("kafka producer", b.closeProducer)
	})
	b.logger.Info("kafka producer connected", "brokers", b.cfg.Brokers)
	return nil
}

func (b *Bridge) closeProducer(context.Context) error {
	b.mu.Lock()
	producer := b.producer
	b.producer = nil
	b.mu.Unlock()

	if producer == nil {
		return nil
	}
	return producer.Close()
}

// Produce sends event to topic. Every record is stamped with a fresh
// uniqueId; nobody waits for the reply.
func (b *Bridge) Produce(ctx context.Context, topic string, event contracts.EventName, payload any, key ...string) error {
	return b.send(ctx, topic, uuid.NewString(), event, payload, key)
}

// ProduceAndWait sends event to topic and waits for the consumer's reply.
// The reply subscription is confirmed before the record is sent. The wait
// ends at the ctx deadline or the store's default timeout.
func (b *Bridge) ProduceAndWait(ctx context.Context, topic string, event contracts.EventName, payload any, key ...string) (contracts.Reply, error) {
	if b.store == nil {
		return contracts.Reply{}, ErrNoCorrelator
	}

	id := b.store.IssueID()
	waiter, err := b.store.Subscribe(ctx, id)
	if err != nil {
		return contracts.Reply{}, err
	}
	defer waiter.Close()

	var reply contracts.Reply
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := waiter.Wait(gctx)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	g.Go(func() error {
		return b.send(gctx, topic, id, event, payload, key)
	})

	if err := g.Wait(); err != nil {
		return contracts.Reply{}, err
	}
	return reply, nil
}

func (b *Bridge) send(ctx context.Context, topic, id string, event contracts.EventName, payload any, key []string) error {
	err := b.sendRecord(ctx, topic, id, event, payload, key)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if b.observer != nil {
		b.observer.ObservePublish(transportName, topic, outcome)
	}
	return err
}

func (b *Bridge) sendRecord(ctx context.Context, topic, id string, event contracts.EventName, payload any, key []string) error {
	produceErr := func(err error) error {
		return &ProduceError{Topic: topic, Event: event, Err: err, Timestamp: time.Now()}
	}

	if err := ctx.Err(); err != nil {
		return produceErr(err)
	}

	env, err := contracts.NewLogEnvelope(id, event, payload)
	if err != nil {
		return produceErr(err)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return produceErr(err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if len(key) > 0 && key[0] != "" {
		msg.Key = sarama.StringEncoder(key[0])
	}

	b.mu.Lock()
	producer := b.producer
	b.mu.Unlock()
	if producer == nil {
		return produceErr(ErrProducerNotConnected)
	}

	partition, offset, err := producer.SendMessage(msg)
	if err != nil {
		return produceErr(err)
	}

	b.logger.Debug("produced", "topic", topic, "event", event, "uniqueId", id, "partition", partition, "offset", offset)
	return nil
}

// Consume ensures the service topic exists and starts the consumer group
// loop in the background. Session errors are retried with backoff; when
// the retry budget is spent, or a record cannot be processed, the failure
// is escalated to the supervisor.
func (b *Bridge) Consume(ctx context.Context) error {
	b.EnsureTopic(ctx, b.cfg.Service)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	if b.consuming {
		b.mu.Unlock()
		return ErrAlreadyConsuming
	}
	if b.group == nil {
		sc, err := b.cfg.ConsumerConfig()
		if err != nil {
			b.mu.Unlock()
			return err
		}
		group, err := sarama.NewConsumerGroup(b.cfg.Brokers, b.cfg.GroupName(), sc)
		if err != nil {
			b.mu.Unlock()
			return err
		}
		b.group = group
	}
	group := b.group
	b.consuming = true
	b.mu.Unlock()

	b.groupOnce.Do(func() {
		b.supervisor.AddShutdownHandler("kafka consumer", b.closeGroup)
	})

	if errs := group.Errors(); errs != nil {
		go func() {
			for err := range errs {
				b.logger.Error("kafka consumer group error", "error", err)
			}
		}()
	}

	go func() {
		defer b.supervisor.Recover()
		if err := b.consumeLoop(ctx, group); err != nil {
			b.supervisor.Fail(err)
		}
	}()

	b.logger.Info("kafka consumer started", "topic", b.cfg.Service, "group", b.cfg.GroupName())
	return nil
}

func (b *Bridge) consumeLoop(ctx context.Context, group sarama.ConsumerGroup) error {
	backoff := reliability.NewExponentialBackoff(b.cfg.ReconnectDelay, time.Minute, 2, b.cfg.MaxRetries)
	handler := &groupHandler{bridge: b}
	start := time.Now()
	failures := 0

	for {
		err := group.Consume(ctx, []string{b.cfg.Service}, handler)

		switch {
		case ctx.Err() != nil, errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case err == nil:
			// session ended for a rebalance
			failures = 0
			continue
		}

		failures++
		if b.cfg.MaxRetries >= 0 && failures > b.cfg.MaxRetries {
			return &reliability.RetryError{
				Op:          "kafka consume",
				Attempts:    failures,
				MaxAttempts: b.cfg.MaxRetries,
				LastError:   err,
				Duration:    time.Since(start),
			}
		}

		delay := backoff.NextDelay(failures - 1)
		b.logger.Warn("kafka consumer session failed, retrying",
			"error", err,
			"attempt", failures,
			"nextRetryIn", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func (b *Bridge) closeGroup(context.Context) error {
	b.mu.Lock()
	group := b.group
	b.group = nil
	b.consuming = false
	b.mu.Unlock()

	if group == nil {
		return nil
	}
	return group.Close()
}

// handleRecord processes one record: decode, dispatch, reply when tagged
func (b *Bridge) handleRecord(ctx context.Context, msg *sarama.ConsumerMessage) error {
	consumeErr := func(op string, event contracts.EventName, err error) error {
		return &ConsumeError{
			Op:        op,
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Event:     event,
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	env, err := contracts.DecodeLogEnvelope(msg.Value)
	if err != nil {
		b.observeConsume("", "error")
		return consumeErr("decode", "", err)
	}

	if !b.registry.Has(env.Event) {
		b.logger.Warn("no handler for event", "event", env.Event, "topic", msg.Topic, "offset", msg.Offset)
		b.observeConsume(env.Event, "dropped")
		return nil
	}

	result, err := b.registry.Dispatch(ctx, env.Event, env.Data)
	if err != nil {
		b.observeConsume(env.Event, "error")
		return consumeErr("dispatch", env.Event, err)
	}

	if env.UniqueID != "" {
		if b.store == nil {
			b.logger.Warn("record expects a reply but no correlation store is configured", "uniqueId", env.UniqueID)
		} else if err := b.store.PublishReply(ctx, env.UniqueID, result); err != nil {
			b.logger.Error("failed to publish reply", "uniqueId", env.UniqueID, "error", err)
		}
	}

	b.observeConsume(env.Event, "success")
	return nil
}

func (b *Bridge) observeConsume(event contracts.EventName, outcome string) {
	if b.observer != nil {
		b.observer.ObserveConsume(transportName, string(event), outcome)
	}
}

// Ping asks the cluster for its brokers
func (b *Bridge) Ping(context.Context) error {
	admin, err := b.getAdmin()
	if err != nil {
		return err
	}
	_, _, err = admin.DescribeCluster()
	return err
}

// Close releases the consumer group, producer and admin client
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	admin := b.admin
	b.admin = nil
	b.mu.Unlock()

	var errs []error
	if err := b.closeGroup(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := b.closeProducer(ctx); err != nil {
		errs = append(errs, err)
	}
	if admin != nil {
		if err := admin.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// groupHandler processes claims one record at a time, in offset order
type groupHandler struct {
	bridge *Bridge
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.bridge.logger.Info("kafka session started", "memberId", sess.MemberID(), "claims", sess.Claims())
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.bridge.handleRecord(sess.Context(), msg); err != nil {
				h.bridge.logger.Error("failed to process record", "error", err)
				h.bridge.supervisor.Fail(err)
				return err
			}
			sess.MarkMessage(msg, "")

		case <-sess.Context().Done():
			return nil
		}
	}
}
