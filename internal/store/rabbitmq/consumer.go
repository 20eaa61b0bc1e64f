package rabbitmq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrMalformed marks a message that can never be handled. It is dead-lettered
// without retries.
var ErrMalformed = errors.New("rabbitmq: malformed message")

const retryHeader = "x-retry-count"

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) error

type ConsumerOptions struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
}

// Consumer runs a fixed pool of workers over a delivery channel. Failed
// messages are re-published to the retry queue until MaxRetries, then
// dead-lettered.
type Consumer struct {
	ch     channel
	queue  string
	handle Handler
	opts   ConsumerOptions
	log    *zap.Logger
}

func NewConsumer(ch channel, queue string, handle Handler, opts ConsumerOptions, log *zap.Logger) *Consumer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{ch: ch, queue: queue, handle: handle, opts: opts, log: log}
}

// Run dispatches deliveries until ctx is done or deliveries is closed, then
// waits for the workers to drain.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	jobs := make(chan amqp.Delivery, c.opts.Concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.opts.Concurrency)
	for i := 0; i < c.opts.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.process(ctx, workerID, d)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				c.log.Warn("delivery channel closed")
				return
			}
			jobs <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, d amqp.Delivery) {
	start := time.Now()
	err := c.handle(ctx, d.Body)
	if err == nil {
		if err := d.Ack(false); err != nil {
			c.log.Warn("ack failed", zap.Int("worker", workerID), zap.Error(err))
		}
		return
	}

	retries := retryCount(d.Headers)
	fields := []zap.Field{
		zap.Int("worker", workerID),
		zap.Int("retries", retries),
		zap.Duration("cost", time.Since(start)),
		zap.Error(err),
	}

	if errors.Is(err, ErrMalformed) || retries >= c.opts.MaxRetries {
		c.log.Warn("message dead-lettered", fields...)
		_ = d.Nack(false, false)
		return
	}

	if err := c.retry(ctx, d, retries+1); err != nil {
		c.log.Error("retry publish failed", append(fields, zap.NamedError("publish_error", err))...)
		_ = d.Nack(false, false)
		return
	}
	c.log.Info("message scheduled for retry", fields...)
	_ = d.Ack(false)
}

// retry parks the message on the retry queue; its TTL dead-letters it back
// to the main queue.
func (c *Consumer) retry(ctx context.Context, d amqp.Delivery, attempt int) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(attempt)

	return c.ch.PublishWithContext(cctx, "", c.queue+".retry", false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         d.Body,
		Expiration:   strconv.FormatInt(c.opts.RetryDelay.Milliseconds(), 10),
		Timestamp:    time.Now(),
	})
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
