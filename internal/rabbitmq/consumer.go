package rabbitmq

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler processes incoming messages
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// ErrorHandler is told about every delivery whose handler failed
type ErrorHandler func(delivery amqp.Delivery, err error)

// Consumer manages message consumption from one channel
type Consumer struct {
	ch             Channel
	autoAck        bool
	exclusive      bool
	consumerTag    string
	handlerTimeout time.Duration
	logger         *slog.Logger
	onError        ErrorHandler

	mu     sync.Mutex
	active map[string]*consumerInfo
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithAutoAck enables automatic acknowledgment
func WithAutoAck(autoAck bool) ConsumerOption {
	return func(c *Consumer) {
		c.autoAck = autoAck
	}
}

// WithExclusive sets exclusive consumer mode
func WithExclusive(exclusive bool) ConsumerOption {
	return func(c *Consumer) {
		c.exclusive = exclusive
	}
}

// WithConsumerTag sets the consumer tag
func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.consumerTag = tag
	}
}

// WithHandlerTimeout bounds each handler call. Zero means no bound.
func WithHandlerTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.handlerTimeout = timeout
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithErrorHandler receives handler failures
func WithErrorHandler(fn ErrorHandler) ConsumerOption {
	return func(c *Consumer) {
		c.onError = fn
	}
}

// NewConsumer creates a consumer on ch. Deliveries are auto-acked by default.
func NewConsumer(ch Channel, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		ch:      ch,
		autoAck: true,
		logger:  slog.Default(),
		active:  make(map[string]*consumerInfo),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

type consumerInfo struct {
	queue  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe starts consuming messages from a queue. Deliveries are handled
// one at a time in arrival order.
func (c *Consumer) Subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[queue]; ok {
		return &ConsumerError{Queue: queue, Op: "subscribe", Err: ErrAlreadySubscribed, Timestamp: time.Now()}
	}

	deliveries, err := c.ch.Consume(
		queue,
		c.consumerTag,
		c.autoAck,
		c.exclusive,
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return &ConsumerError{Queue: queue, Op: "subscribe", Err: err, Timestamp: time.Now()}
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	info := &consumerInfo{
		queue:  queue,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.active[queue] = info

	go c.processMessages(consumerCtx, info, deliveries, handler)

	c.logger.Info("subscribed to queue", "queue", queue, "autoAck", c.autoAck)
	return nil
}

func (c *Consumer) processMessages(ctx context.Context, info *consumerInfo, deliveries <-chan amqp.Delivery, handler MessageHandler) {
	defer func() {
		info.cancel()
		close(info.done)
		c.mu.Lock()
		if c.active[info.queue] == info {
			delete(c.active, info.queue)
		}
		c.mu.Unlock()
		c.logger.Info("consumer stopped", "queue", info.queue)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", info.queue)
				return
			}

			if err := c.handleMessage(ctx, delivery, handler); err != nil {
				c.logger.Error("failed to handle message",
					"error", err,
					"queue", info.queue,
					"messageId", delivery.MessageId,
				)
				if c.onError != nil {
					c.onError(delivery, err)
				}
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, delivery amqp.Delivery, handler MessageHandler) error {
	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.handlerTimeout)
		defer cancel()
	}

	err := handler(ctx, delivery)

	if !c.autoAck {
		if err != nil {
			if nackErr := delivery.Nack(false, false); nackErr != nil {
				c.logger.Error("failed to nack message", "error", nackErr, "originalError", err)
			}
		} else if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
	}

	return err
}

// Unsubscribe stops consuming from a queue and waits for the loop to exit
func (c *Consumer) Unsubscribe(queue string) error {
	c.mu.Lock()
	info, ok := c.active[queue]
	c.mu.Unlock()
	if !ok {
		return &ConsumerError{Queue: queue, Op: "unsubscribe", Err: ErrConsumerClosed, Timestamp: time.Now()}
	}

	info.cancel()
	<-info.done
	return nil
}

// UnsubscribeAll stops all active consumers
func (c *Consumer) UnsubscribeAll() {
	for _, queue := range c.GetActiveConsumers() {
		if err := c.Unsubscribe(queue); err != nil {
			c.logger.Debug("consumer already stopped", "queue", queue)
		}
	}
}

// GetActiveConsumers returns the queues currently consumed, sorted
func (c *Consumer) GetActiveConsumers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	queues := make([]string, 0, len(c.active))
	for queue := range c.active {
		queues = append(queues, queue)
	}
	sort.Strings(queues)
	return queues
}
