package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockChannel implements Channel
type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete, internal, noWait, args).Error(0)
}

func (m *mockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	mockArgs := m.Called(name, durable, autoDelete, exclusive, noWait, args)
	return mockArgs.Get(0).(amqp.Queue), mockArgs.Error(1)
}

func (m *mockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return m.Called(name, key, exchange, noWait, args).Error(0)
}

func (m *mockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	mockArgs := m.Called(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
	if mockArgs.Get(0) == nil {
		return nil, mockArgs.Error(1)
	}
	return mockArgs.Get(0).(<-chan amqp.Delivery), mockArgs.Error(1)
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, mandatory, immediate, msg).Error(0)
}

func (m *mockChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	return c
}

func (m *mockChannel) IsClosed() bool {
	return m.Called().Bool(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

// fakeConnection implements Connection and lets tests drop it
type fakeConnection struct {
	mu     sync.Mutex
	notify chan *amqp.Error
	closed bool
}

func (f *fakeConnection) Channel() (*amqp.Channel, error) {
	return nil, errors.New("fake connection has no channels")
}

func (f *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify = receiver
	return receiver
}

func (f *fakeConnection) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// drop simulates a broker-side close
func (f *fakeConnection) drop(reason string) {
	f.mu.Lock()
	notify := f.notify
	f.closed = true
	f.mu.Unlock()
	notify <- &amqp.Error{Code: amqp.ConnectionForced, Reason: reason}
}

// scriptedDialer hands out results in order and repeats the last one
type scriptedDialer struct {
	mu      sync.Mutex
	results []dialResult
	calls   int
}

type dialResult struct {
	conn Connection
	err  error
}

func (d *scriptedDialer) dial(string) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.results[min(d.calls, len(d.results)-1)]
	d.calls++
	return r.conn, r.err
}

func (d *scriptedDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingListener struct {
	connected    chan struct{}
	disconnected chan error
	reconnecting chan int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		connected:    make(chan struct{}, 16),
		disconnected: make(chan error, 16),
		reconnecting: make(chan int, 16),
	}
}

func (l *recordingListener) OnConnected()               { l.connected <- struct{}{} }
func (l *recordingListener) OnDisconnected(err error)   { l.disconnected <- err }
func (l *recordingListener) OnReconnecting(attempt int) { l.reconnecting <- attempt }
