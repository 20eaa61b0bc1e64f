// Command worker drains error records published by the chat service and
// writes them to the structured log.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/suPer8Hu/research-chat/internal/bootstrap"
	"github.com/suPer8Hu/research-chat/internal/config"
	"github.com/suPer8Hu/research-chat/internal/observe"
	"github.com/suPer8Hu/research-chat/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	log, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required")
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare", zap.Error(err))
	}

	// strict concurrency control
	if err := ch.Qos(cfg.WorkerConcurrency, 0, false); err != nil {
		log.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", cfg.WorkerConcurrency),
	)

	consumer := rabbitmq.NewConsumer(ch, cfg.RabbitQueue, recordHandler(observe.NewLogReporter(log)), rabbitmq.ConsumerOptions{
		Concurrency: cfg.WorkerConcurrency,
		MaxRetries:  cfg.WorkerMaxRetries,
		RetryDelay:  cfg.WorkerRetryDelay,
	}, log)
	consumer.Run(ctx, msgs)
}

// recordHandler decodes one observe.Record and forwards it to sink. A record
// that arrives during shutdown is returned as a transient failure so the
// consumer parks it on the retry queue instead of dropping it.
func recordHandler(sink observe.Reporter) rabbitmq.Handler {
	return func(ctx context.Context, body []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec observe.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return fmt.Errorf("%w: %v", rabbitmq.ErrMalformed, err)
		}
		if rec.Kind == "" {
			return fmt.Errorf("%w: record kind is empty", rabbitmq.ErrMalformed)
		}
		sink.Report(ctx, rec)
		return nil
	}
}
