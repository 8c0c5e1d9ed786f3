package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/glimte/bridgekit-go/internal/rabbitmq"
	"github.com/glimte/bridgekit-go/lifecycle"
	amqp "github.com/rabbitmq/amqp091-go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type publishedMessage struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

// fakeChannel records topology and publishes and feeds deliveries
type fakeChannel struct {
	mu         sync.Mutex
	exchanges  []string
	bindings   []string
	published  []publishedMessage
	deliveries chan amqp.Delivery
	notify     chan *amqp.Error
	closed     bool
	closeErr   error
	publishErr error
	queueName  string
}

func newFakeChannel(queue string) *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8), queueName: queue}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, name+":"+kind)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if !exclusive || name != "" {
		return amqp.Queue{}, errors.New("expected an exclusive anonymous queue")
	}
	return amqp.Queue{Name: f.queueName}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, name+"|"+key+"|"+exchange)
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if !autoAck {
		return nil, errors.New("expected auto-ack")
	}
	return f.deliveries, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify = c
	return c
}

func (f *fakeChannel) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.deliveries)
		if f.notify != nil {
			close(f.notify)
			f.notify = nil
		}
	}
	return f.closeErr
}

// kill simulates the broker dropping the channel without a graceful close
func (f *fakeChannel) kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	close(f.deliveries)
	if f.notify != nil {
		f.notify <- &amqp.Error{Code: amqp.ChannelError, Reason: "channel lost"}
		close(f.notify)
		f.notify = nil
	}
}

func (f *fakeChannel) snapshot() (exchanges, bindings []string, published []publishedMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.exchanges...), append([]string(nil), f.bindings...), append([]publishedMessage(nil), f.published...)
}

// fakeConnector hands out channels in order
type fakeConnector struct {
	mu         sync.Mutex
	connectErr error
	closeErr   error
	channels   []*fakeChannel
	opened     int
	listeners  []rabbitmq.ConnectionStateListener
	connected  bool
	closed     bool
}

func (f *fakeConnector) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeConnector) OpenChannel() (rabbitmq.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opened >= len(f.channels) {
		return nil, errors.New("no more channels")
	}
	ch := f.channels[f.opened]
	f.opened++
	return ch, nil
}

func (f *fakeConnector) AddStateListener(listener rabbitmq.ConnectionStateListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, listener)
}

func (f *fakeConnector) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConnector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return f.closeErr
}

func (f *fakeConnector) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeSupervisor records shutdown handlers and failures
type fakeSupervisor struct {
	mu       sync.Mutex
	names    []string
	handlers []lifecycle.ShutdownFunc
	failures chan error
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{failures: make(chan error, 8)}
}

func (f *fakeSupervisor) AddShutdownHandler(name string, fn lifecycle.ShutdownFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	f.handlers = append(f.handlers, fn)
}

func (f *fakeSupervisor) Fail(err error) {
	f.failures <- err
}

func (f *fakeSupervisor) handlerNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}
