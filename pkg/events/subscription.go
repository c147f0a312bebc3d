package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"dealerchat/pkg/logger"
)

// ErrCancelled is returned by Next once the subscription has been cancelled.
var ErrCancelled = errors.New("events: subscription cancelled")

// Subscription is one subscriber's handle on a topic.
type Subscription[T Event] struct {
	bus   *Bus
	topic *topicState
	sid   uint64
	pred  Predicate

	mu      sync.Mutex
	closed  bool
	ch      chan T
	done    chan struct{}
	dropped atomic.Uint64
}

func (s *Subscription[T]) id() uint64           { return s.sid }
func (s *Subscription[T]) predicate() Predicate { return s.pred }
func (s *Subscription[T]) droppedCount() uint64 { return s.dropped.Load() }
func (s *Subscription[T]) cancel()              { s.Cancel() }

// offer queues ev, evicting the oldest buffered event when full.
func (s *Subscription[T]) offer(ev Event) (queued, dropped bool) {
	v, ok := ev.(T)
	if !ok {
		return false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.ch <- v:
		return true, false
	default:
	}
	select {
	case <-s.ch:
		dropped = true
		s.dropped.Add(1)
	default:
	}
	// Only offer sends and it holds mu, so there is room now.
	select {
	case s.ch <- v:
		queued = true
	default:
	}
	return queued, dropped
}

// Events returns the delivery channel. It is closed on Cancel.
func (s *Subscription[T]) Events() <-chan T { return s.ch }

// Done is closed when the subscription is cancelled.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Topic returns the topic name.
func (s *Subscription[T]) Topic() string { return s.topic.name }

// Dropped returns how many events were evicted from this subscriber's buffer.
func (s *Subscription[T]) Dropped() uint64 { return s.dropped.Load() }

// Next blocks until an event arrives, ctx is done or the subscription is
// cancelled.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-s.ch:
		if !ok {
			return zero, ErrCancelled
		}
		return v, nil
	}
}

// Each calls fn for every delivered event until ctx is done or the
// subscription is cancelled. A panicking fn loses only that delivery.
func (s *Subscription[T]) Each(ctx context.Context, fn func(T)) error {
	for {
		v, err := s.Next(ctx)
		if errors.Is(err, ErrCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		s.consume(fn, v)
	}
}

func (s *Subscription[T]) consume(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.metrics.incFault(s.topic.name)
			logger.Error("bus_consumer_panic", "topic", s.topic.name, "subscription", s.sid, "panic", fmt.Sprint(r))
		}
	}()
	fn(v)
}

// Cancel stops delivery, discards anything still buffered and releases
// blocked readers. It is idempotent.
func (s *Subscription[T]) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for drained := false; !drained; {
		select {
		case <-s.ch:
		default:
			drained = true
		}
	}
	close(s.ch)
	close(s.done)
	s.mu.Unlock()

	s.bus.remove(s.topic, s.sid)
	logger.Debug("bus_unsubscribed", "topic", s.topic.name, "subscription", s.sid)
}
