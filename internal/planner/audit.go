package planner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/cogito/internal/model"
)

// AuditSink stores planner audit events
type AuditSink interface {
	RecordAudit(ctx context.Context, ev model.AuditEvent) error
}

// NopAuditSink discards every event
type NopAuditSink struct{}

// RecordAudit does nothing
func (NopAuditSink) RecordAudit(context.Context, model.AuditEvent) error {
	return nil
}

// MemoryAuditSink keeps events in memory
type MemoryAuditSink struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

// RecordAudit appends ev
func (s *MemoryAuditSink) RecordAudit(_ context.Context, ev model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the recorded events
func (s *MemoryAuditSink) Events() []model.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditEvent(nil), s.events...)
}

// AuditQueue delivers audit events to a sink on a background goroutine.
// Emit never blocks: when the buffer is full the event is dropped and
// counted.
type AuditQueue struct {
	events  chan model.AuditEvent
	sink    AuditSink
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	done    chan struct{}
}

// NewAuditQueue starts a queue of the given size in front of sink
func NewAuditQueue(sink AuditSink, size int, logger *slog.Logger) *AuditQueue {
	if sink == nil {
		sink = NopAuditSink{}
	}
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &AuditQueue{
		events:  make(chan model.AuditEvent, size),
		sink:    sink,
		timeout: 5 * time.Second,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Emit queues ev. It is safe on a nil or closed queue.
func (q *AuditQueue) Emit(ev model.AuditEvent) {
	if q == nil {
		return
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.drop(ev, "queue closed")
		return
	}

	select {
	case q.events <- ev:
	default:
		q.drop(ev, "queue full")
	}
}

func (q *AuditQueue) drop(ev model.AuditEvent, reason string) {
	q.dropped.Add(1)
	auditDropped.Inc()
	q.logger.Warn("audit event dropped", "reason", reason, "type", ev.Type, "rule", ev.Rule, "action", ev.Action)
}

// Dropped returns how many events never reached the sink queue
func (q *AuditQueue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}

// Close stops accepting events and waits until the queued ones are written
func (q *AuditQueue) Close() {
	if q == nil {
		return
	}

	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	<-q.done
}

func (q *AuditQueue) run() {
	defer close(q.done)
	for ev := range q.events {
		q.deliver(ev)
	}
}

func (q *AuditQueue) deliver(ev model.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			auditFailures.Inc()
			q.logger.Error("audit sink panicked", "panic", r, "type", ev.Type)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.sink.RecordAudit(ctx, ev); err != nil {
		auditFailures.Inc()
		q.logger.Warn("audit sink failed", "error", err, "type", ev.Type, "rule", ev.Rule)
	}
}
