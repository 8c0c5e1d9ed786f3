package kafka

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
	"github.com/glimte/bridgekit-go/lifecycle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAdmin answers topic metadata from a fixed set
type fakeAdmin struct {
	mu          sync.Mutex
	topics      map[string]bool
	describeErr error
	createErr   error
	created     map[string]*sarama.TopicDetail
	closed      bool
}

func newFakeAdmin(topics ...string) *fakeAdmin {
	a := &fakeAdmin{topics: make(map[string]bool), created: make(map[string]*sarama.TopicDetail)}
	for _, t := range topics {
		a.topics[t] = true
	}
	return a
}

func (a *fakeAdmin) DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.describeErr != nil {
		return nil, a.describeErr
	}

	out := make([]*sarama.TopicMetadata, 0, len(topics))
	for _, t := range topics {
		meta := &sarama.TopicMetadata{Name: t, Err: sarama.ErrNoError}
		if !a.topics[t] {
			meta.Err = sarama.ErrUnknownTopicOrPartition
		}
		out = append(out, meta)
	}
	return out, nil
}

func (a *fakeAdmin) CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return a.createErr
	}
	a.topics[topic] = true
	a.created[topic] = detail
	return nil
}

func (a *fakeAdmin) DescribeCluster() ([]*sarama.Broker, int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.describeErr != nil {
		return nil, -1, a.describeErr
	}
	return []*sarama.Broker{sarama.NewBroker("localhost:9092")}, 1, nil
}

func (a *fakeAdmin) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAdmin) createdTopics() map[string]*sarama.TopicDetail {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]*sarama.TopicDetail, len(a.created))
	for k, v := range a.created {
		out[k] = v
	}
	return out
}

// fakeGroup plays scripted session results, then feeds records to the
// handler until closed
type fakeGroup struct {
	sarama.ConsumerGroup

	mu       sync.Mutex
	results  []error
	topics   []string
	calls    int
	records  chan *sarama.ConsumerMessage
	closed   chan struct{}
	once     sync.Once
	sessions []*fakeSession
}

func newFakeGroup(results ...error) *fakeGroup {
	return &fakeGroup{
		results: results,
		records: make(chan *sarama.ConsumerMessage, 8),
		closed:  make(chan struct{}),
	}
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.calls++
	g.topics = topics
	if len(g.results) > 0 {
		err := g.results[0]
		g.results = g.results[1:]
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	select {
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	default:
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.closed:
			cancel()
		case <-sessCtx.Done():
		}
	}()

	sess := &fakeSession{ctx: sessCtx}
	g.mu.Lock()
	g.sessions = append(g.sessions, sess)
	g.mu.Unlock()

	if err := handler.Setup(sess); err != nil {
		return err
	}
	err := handler.ConsumeClaim(sess, &fakeClaim{records: g.records})
	_ = handler.Cleanup(sess)

	select {
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	default:
	}
	if err != nil {
		// a failed claim ends the session and waits for shutdown
		<-sessCtx.Done()
		return sarama.ErrClosedConsumerGroup
	}
	return nil
}

func (g *fakeGroup) Errors() <-chan error {
	return nil
}

func (g *fakeGroup) Close() error {
	g.once.Do(func() { close(g.closed) })
	return nil
}

func (g *fakeGroup) consumeCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGroup) marked() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []int64
	for _, s := range g.sessions {
		out = append(out, s.markedOffsets()...)
	}
	return out
}

type fakeSession struct {
	sarama.ConsumerGroupSession

	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MemberID() string         { return "member-1" }
func (s *fakeSession) Claims() map[string][]int32 {
	return map[string][]int32{"customer_service": {0}}
}

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) markedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	records chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.records }

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

func (f *fakeSupervisor) Recover() {
	if r := recover(); r != nil {
		panic(r)
	}
}

func (f *fakeSupervisor) handlerNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

// recordingObserver collects outcome labels
type recordingObserver struct {
	mu       sync.Mutex
	publish  []string
	consumed []string
}

func (o *recordingObserver) ObservePublish(transport, destination, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publish = append(o.publish, transport+"|"+destination+"|"+outcome)
}

func (o *recordingObserver) ObserveConsume(transport, event, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.consumed = append(o.consumed, transport+"|"+event+"|"+outcome)
}

func (o *recordingObserver) consumes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.consumed...)
}
