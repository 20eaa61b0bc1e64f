package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type ackResult struct {
	acked   bool
	requeue bool
}

type fakeAcker struct {
	mu      sync.Mutex
	results map[uint64]ackResult
}

func (f *fakeAcker) set(tag uint64, r ackResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = map[uint64]ackResult{}
	}
	f.results[tag] = r
	return nil
}

func (f *fakeAcker) Ack(tag uint64, _ bool) error { return f.set(tag, ackResult{acked: true}) }
func (f *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	return f.set(tag, ackResult{requeue: requeue})
}
func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	return f.set(tag, ackResult{requeue: requeue})
}

func (f *fakeAcker) get(tag uint64) (ackResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[tag]
	return r, ok
}

// syncChannel is a goroutine-safe fakeChannel.
type syncChannel struct {
	mu   sync.Mutex
	pubs []amqp.Publishing
	keys []string
}

func (s *syncChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	s.pubs = append(s.pubs, msg)
	return nil
}

func (s *syncChannel) Close() error { return nil }

func runConsumer(t *testing.T, h Handler, opts ConsumerOptions, msgs ...amqp.Delivery) *syncChannel {
	t.Helper()
	ch := &syncChannel{}
	deliveries := make(chan amqp.Delivery, len(msgs))
	for _, m := range msgs {
		deliveries <- m
	}
	close(deliveries)

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewConsumer(ch, "chat_errors", h, opts, nil).Run(context.Background(), deliveries)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	return ch
}

func TestConsumer_AckRetryAndDeadLetter(t *testing.T) {
	acker := &fakeAcker{}
	transient := errors.New("sink unavailable")

	h := func(_ context.Context, body []byte) error {
		switch string(body) {
		case "ok":
			return nil
		case "bad":
			return ErrMalformed
		default:
			return transient
		}
	}

	ch := runConsumer(t, h, ConsumerOptions{Concurrency: 3, MaxRetries: 2, RetryDelay: time.Second},
		amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("ok")},
		amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("bad")},
		amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte("flaky")},
		amqp.Delivery{Acknowledger: acker, DeliveryTag: 4, Body: []byte("flaky"), Headers: amqp.Table{retryHeader: int32(2)}},
	)

	r, ok := acker.get(1)
	require.True(t, ok)
	require.True(t, r.acked)

	r, _ = acker.get(2)
	require.False(t, r.acked)
	require.False(t, r.requeue)

	// first failure goes to the retry queue and the original is acked
	r, _ = acker.get(3)
	require.True(t, r.acked)
	require.Equal(t, []string{"chat_errors.retry"}, ch.keys)
	require.Equal(t, int32(1), ch.pubs[0].Headers[retryHeader])
	require.Equal(t, "1000", ch.pubs[0].Expiration)

	// retries exhausted
	r, _ = acker.get(4)
	require.False(t, r.acked)
	require.False(t, r.requeue)
}

func TestConsumer_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	deliveries := make(chan amqp.Delivery)

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewConsumer(&syncChannel{}, "q", func(context.Context, []byte) error { return nil }, ConsumerOptions{}, nil).
			Run(ctx, deliveries)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer ignored cancellation")
	}
}

func TestRetryCount(t *testing.T) {
	require.Equal(t, 0, retryCount(nil))
	require.Equal(t, 3, retryCount(amqp.Table{retryHeader: int64(3)}))
	require.Equal(t, 0, retryCount(amqp.Table{retryHeader: "3"}))
}
