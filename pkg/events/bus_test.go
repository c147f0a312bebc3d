package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerchat/pkg/models"
)

func msg(chatID, text string) MessageAdded {
	return MessageAdded{Message: models.Message{ChatID: chatID, Text: text, Kind: models.KindText}}
}

func expectNext[T Event](t *testing.T, s *Subscription[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Next(ctx)
	require.NoError(t, err)
	return v
}

func expectNone[T Event](t *testing.T, s *Subscription[T]) {
	t.Helper()
	select {
	case v, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected delivery: %+v", v)
		}
	default:
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := NewBus()
	defer b.Close()
	sub, err := Subscribe(b, TopicMessageAdded, Filter{ChatID: "c1"})
	require.NoError(t, err)

	for _, text := range []string{"a", "b", "c"} {
		require.Equal(t, 1, Publish(b, TopicMessageAdded, msg("c1", text)))
	}
	assert.Equal(t, "a", expectNext(t, sub).Message.Text)
	assert.Equal(t, "b", expectNext(t, sub).Message.Text)
	assert.Equal(t, "c", expectNext(t, sub).Message.Text)
}

func TestFilterScopesDelivery(t *testing.T) {
	b := NewBus()
	defer b.Close()
	mine, err := Subscribe(b, TopicMessageAdded, Filter{ChatID: "c1"})
	require.NoError(t, err)
	all, err := Subscribe(b, TopicMessageAdded, nil)
	require.NoError(t, err)

	require.Equal(t, 1, Publish(b, TopicMessageAdded, msg("c2", "other")))
	expectNone(t, mine)
	assert.Equal(t, "c2", expectNext(t, all).Message.ChatID)

	lead, err := Subscribe(b, TopicLeadUpdated, Filter{CustomerID: "u1"})
	require.NoError(t, err)
	Publish(b, TopicLeadUpdated, LeadUpdated{Lead: models.Lead{ID: "l1", CustomerID: "u2"}})
	Publish(b, TopicLeadUpdated, LeadUpdated{Lead: models.Lead{ID: "l2", CustomerID: "u1"}})
	assert.Equal(t, "l2", expectNext(t, lead).Lead.ID)
}

func TestTopicsAreIndependent(t *testing.T) {
	b := NewBus()
	defer b.Close()
	notes, err := Subscribe(b, TopicNotification, Filter{UserID: "u1"})
	require.NoError(t, err)
	Publish(b, TopicMessageAdded, msg("c1", "hi"))
	expectNone(t, notes)
	Publish(b, TopicNotification, NotificationReceived{Notification: models.Notification{RecipientID: "u1", Title: "t"}})
	assert.Equal(t, "t", expectNext(t, notes).Notification.Title)
}

func TestOverflowDropsOldest(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBus(WithBufferSize(2), WithMetrics(NewMetrics(reg)))
	defer b.Close()
	slow, err := Subscribe(b, TopicMessageAdded, nil)
	require.NoError(t, err)
	fast, err := Subscribe(b, TopicMessageAdded, nil)
	require.NoError(t, err)

	Publish(b, TopicMessageAdded, msg("c1", "1"))
	assert.Equal(t, "1", expectNext(t, fast).Message.Text)
	Publish(b, TopicMessageAdded, msg("c1", "2"))
	assert.Equal(t, "2", expectNext(t, fast).Message.Text)
	Publish(b, TopicMessageAdded, msg("c1", "3"))
	assert.Equal(t, "3", expectNext(t, fast).Message.Text)

	assert.Equal(t, "2", expectNext(t, slow).Message.Text)
	assert.Equal(t, "3", expectNext(t, slow).Message.Text)
	assert.Equal(t, uint64(1), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())

	st := b.Stats(TopicMessageAdded.Name())
	assert.Equal(t, 2, st.Subscribers)
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Equal(t, 1.0, testutil.ToFloat64(NewMetrics(reg).dropped.WithLabelValues("message-added")))
	assert.Equal(t, 3.0, testutil.ToFloat64(NewMetrics(reg).published.WithLabelValues("message-added")))
}

func TestCancelIsIdempotentAndStopsDelivery(t *testing.T) {
	b := NewBus()
	defer b.Close()
	sub, err := Subscribe(b, TopicMessageAdded, nil)
	require.NoError(t, err)
	Publish(b, TopicMessageAdded, msg("c1", "buffered"))

	sub.Cancel()
	sub.Cancel()
	Unsubscribe(sub)

	assert.Equal(t, 0, Publish(b, TopicMessageAdded, msg("c1", "late")))
	_, ok := <-sub.Events()
	assert.False(t, ok, "buffered event must be discarded on cancel")
	assert.Equal(t, 0, b.Stats(TopicMessageAdded.Name()).Subscribers)
}

func TestCancelReleasesBlockedReader(t *testing.T) {
	b := NewBus()
	defer b.Close()
	sub, err := Subscribe(b, TopicNotification, Filter{UserID: "u1"})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	sub.Cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("reader not released by cancel")
	}
}

func TestNextHonoursContext(t *testing.T) {
	b := NewBus()
	defer b.Close()
	sub, err := Subscribe(b, TopicPromotion, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPredicatePanicIsIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	b := NewBus(WithMetrics(m))
	defer b.Close()
	bad, err := Subscribe(b, TopicMessageAdded, PredicateFunc(func(Event) bool { panic("boom") }))
	require.NoError(t, err)
	good, err := Subscribe(b, TopicMessageAdded, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, Publish(b, TopicMessageAdded, msg("c1", "x")))
	assert.Equal(t, "x", expectNext(t, good).Message.Text)
	expectNone(t, bad)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("message-added")))
}

func TestEachRecoversConsumerPanic(t *testing.T) {
	b := NewBus()
	sub, err := Subscribe(b, TopicMessageAdded, nil)
	require.NoError(t, err)
	Publish(b, TopicMessageAdded, msg("c1", "panic"))
	Publish(b, TopicMessageAdded, msg("c1", "ok"))

	var mu sync.Mutex
	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- sub.Each(context.Background(), func(ev MessageAdded) {
			if ev.Message.Text == "panic" {
				panic("consumer")
			}
			mu.Lock()
			seen = append(seen, ev.Message.Text)
			mu.Unlock()
			sub.Cancel()
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Each did not return after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ok"}, seen)
	b.Close()
}

func TestCloseCancelsAndRejects(t *testing.T) {
	b := NewBus()
	sub, err := Subscribe(b, TopicLeadUpdated, nil)
	require.NoError(t, err)
	b.Close()
	b.Close()

	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription not cancelled by Close")
	}
	_, err = Subscribe(b, TopicLeadUpdated, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, Publish(b, TopicLeadUpdated, LeadUpdated{}))
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	b := NewBus(WithBufferSize(4))
	defer b.Close()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := Subscribe(b, TopicMessageAdded, Filter{ChatID: "c1"})
			if err != nil {
				return
			}
			for j := 0; j < 20; j++ {
				select {
				case <-sub.Events():
				default:
				}
			}
			sub.Cancel()
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Publish(b, TopicMessageAdded, msg("c1", "x"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Stats(TopicMessageAdded.Name()).Subscribers)
}

func TestPerSubscriberFIFOUnderConcurrentPublishers(t *testing.T) {
	b := NewBus(WithBufferSize(1000))
	defer b.Close()
	sub, err := Subscribe(b, TopicMessageAdded, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		chatID := []string{"a", "b"}[p]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ev := msg(chatID, "")
				ev.Message.TS = int64(i)
				Publish(b, TopicMessageAdded, ev)
			}
		}()
	}
	wg.Wait()

	last := map[string]int64{"a": -1, "b": -1}
	for i := 0; i < 200; i++ {
		ev := expectNext(t, sub)
		require.Greater(t, ev.Message.TS, last[ev.Message.ChatID])
		last[ev.Message.ChatID] = ev.Message.TS
	}
}
