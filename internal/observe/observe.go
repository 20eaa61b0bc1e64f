// Package observe is the fire-and-forget error sink of the chat core.
package observe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one free-form error report.
type Record struct {
	Time      time.Time         `json:"time"`
	Kind      string            `json:"kind"`
	Reason    string            `json:"reason,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Reporter accepts records. Implementations must never block for long and
// must never panic or fail the caller.
type Reporter interface {
	Report(ctx context.Context, rec Record)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, Record) {}

// Nop discards every record.
func Nop() Reporter { return nopReporter{} }

// LogReporter writes records to a zap logger.
type LogReporter struct {
	log *zap.Logger
}

func NewLogReporter(log *zap.Logger) *LogReporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogReporter{log: log}
}

func (r *LogReporter) Report(_ context.Context, rec Record) {
	fields := []zap.Field{
		zap.String("kind", rec.Kind),
		zap.Time("at", rec.Time),
	}
	if rec.Reason != "" {
		fields = append(fields, zap.String("reason", rec.Reason))
	}
	if rec.SessionID != "" {
		fields = append(fields, zap.String("session_id", rec.SessionID))
	}
	if rec.Error != "" {
		fields = append(fields, zap.String("error", rec.Error))
	}
	for k, v := range rec.Fields {
		fields = append(fields, zap.String(k, v))
	}
	r.log.Error("error reported", fields...)
}

// Publisher ships a record to a message broker.
type Publisher interface {
	PublishRecord(ctx context.Context, v any) error
}

// QueueReporter publishes records asynchronously. Publish failures are logged.
type QueueReporter struct {
	pub Publisher
	log *zap.Logger
	wg  sync.WaitGroup
}

func NewQueueReporter(pub Publisher, log *zap.Logger) *QueueReporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueueReporter{pub: pub, log: log}
}

func (r *QueueReporter) Report(ctx context.Context, rec Record) {
	// detach from the caller's cancellation; the record outlives the request
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.pub.PublishRecord(ctx, rec); err != nil {
			r.log.Warn("publish error record failed", zap.String("kind", rec.Kind), zap.Error(err))
		}
	}()
}

// Flush waits for in-flight publishes.
func (r *QueueReporter) Flush() {
	r.wg.Wait()
}

// Multi fans a record out to every reporter.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, rec Record) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, rec)
		}
	}
}
