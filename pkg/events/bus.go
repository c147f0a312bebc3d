package events

import (
	"errors"
	"fmt"
	"sync"

	"dealerchat/pkg/logger"
)

// DefaultBufferSize is the per-subscription queue length.
const DefaultBufferSize = 64

// ErrClosed is returned by Subscribe after the bus has been closed.
var ErrClosed = errors.New("events: bus closed")

// Bus delivers typed events to filtered subscribers. Publishing never
// blocks on consumers: a full subscriber buffer evicts its oldest entry.
type Bus struct {
	mu      sync.RWMutex
	topics  map[string]*topicState
	closed  bool
	bufSize int
	metrics *Metrics
	nextID  uint64
}

type topicState struct {
	name string
	// mu serializes dispatch so every subscriber sees publish order.
	mu   sync.Mutex
	subs []sink
}

type sink interface {
	id() uint64
	predicate() Predicate
	offer(Event) (queued, dropped bool)
	cancel()
	droppedCount() uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscription buffer. Values below 1 are ignored.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// NewBus returns an open bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{topics: make(map[string]*topicState), bufSize: DefaultBufferSize}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish queues ev for every current subscriber of topic whose predicate
// matches and returns how many subscribers received it. Publishing on a
// closed bus is a no-op.
func Publish[T Event](b *Bus, topic Topic[T], ev T) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	ts := b.topics[topic.name]
	b.mu.RUnlock()
	b.metrics.incPublished(topic.name)
	if ts == nil {
		return 0
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, s := range ts.subs {
		if !b.match(topic.name, s.predicate(), ev) {
			continue
		}
		queued, dropped := s.offer(ev)
		if dropped {
			b.metrics.incDropped(topic.name)
			logger.Debug("bus_subscriber_overflow", "topic", topic.name, "subscription", s.id())
		}
		if queued {
			n++
		}
	}
	b.metrics.addDelivered(topic.name, n)
	return n
}

func (b *Bus) match(topic string, p Predicate, ev Event) (ok bool) {
	if p == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			b.metrics.incFault(topic)
			logger.Error("bus_predicate_panic", "topic", topic, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return p.Match(ev)
}

// Subscribe registers a new subscription on topic. A nil predicate
// receives every event of the topic.
func Subscribe[T Event](b *Bus, topic Topic[T], pred Predicate) (*Subscription[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	ts := b.topics[topic.name]
	if ts == nil {
		ts = &topicState{name: topic.name}
		b.topics[topic.name] = ts
	}
	b.nextID++
	sub := &Subscription[T]{
		bus:   b,
		topic: ts,
		sid:   b.nextID,
		pred:  pred,
		ch:    make(chan T, b.bufSize),
		done:  make(chan struct{}),
	}
	ts.mu.Lock()
	ts.subs = append(ts.subs, sub)
	count := len(ts.subs)
	ts.mu.Unlock()
	b.metrics.setSubscribers(topic.name, count)
	logger.Debug("bus_subscribed", "topic", topic.name, "subscription", sub.sid)
	return sub, nil
}

// Unsubscribe cancels s. It is safe to call more than once.
func Unsubscribe[T Event](s *Subscription[T]) {
	if s != nil {
		s.Cancel()
	}
}

func (b *Bus) remove(ts *topicState, id uint64) {
	ts.mu.Lock()
	for i, s := range ts.subs {
		if s.id() == id {
			ts.subs = append(ts.subs[:i:i], ts.subs[i+1:]...)
			break
		}
	}
	count := len(ts.subs)
	ts.mu.Unlock()
	b.metrics.setSubscribers(ts.name, count)
}

// Close cancels every subscription. Later publishes are dropped and later
// subscribes fail with ErrClosed. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []sink
	for _, ts := range b.topics {
		ts.mu.Lock()
		all = append(all, ts.subs...)
		ts.mu.Unlock()
	}
	b.mu.Unlock()

	for _, s := range all {
		s.cancel()
	}
	logger.Info("bus_closed", "subscriptions", len(all))
}

// TopicStats is a point-in-time view of one topic.
type TopicStats struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
}

// Stats reports live subscribers and their accumulated drops for topic.
func (b *Bus) Stats(topic string) TopicStats {
	st := TopicStats{Topic: topic}
	b.mu.RLock()
	ts := b.topics[topic]
	b.mu.RUnlock()
	if ts == nil {
		return st
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	st.Subscribers = len(ts.subs)
	for _, s := range ts.subs {
		st.Dropped += s.droppedCount()
	}
	return st
}
