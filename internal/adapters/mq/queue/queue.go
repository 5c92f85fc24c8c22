// Package queue buffers audit records between the request path and the
// audit writers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Record is the payload type flowing through the queue.
type Record = model.PredictionRecord

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a record without blocking. It returns ErrFull or
	// ErrClosed when the record was not accepted.
	Enqueue(ctx context.Context, r Record) error

	// Dequeue returns the channel consumers read from. It is closed once
	// the queue is closed and drained.
	Dequeue() <-chan Record

	// Len returns the current number of queued records.
	Len() int

	// Close stops accepting records. Records already queued remain readable.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records  chan Record
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.records = make(chan Record, q.capacity)

	metrics.UpdateAuditQueueCapacity(q.capacity)
	metrics.UpdateAuditQueueSize(0)
	return q
}

// Enqueue adds a record to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Record) error { //nolint:gocritic // hugeParam: Record is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordAuditDropped()
		metrics.RecordErrorByComponent("audit_queue", "closed")
		return ErrClosed
	}

	select {
	case q.records <- r:
		metrics.UpdateAuditQueueSize(len(q.records))
		return nil
	case <-ctx.Done():
		metrics.RecordAuditDropped()
		metrics.RecordErrorByComponent("audit_queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordAuditDropped()
		metrics.RecordErrorByComponent("audit_queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan Record {
	return q.records
}

// Len returns the current number of queued records.
func (q *InMemoryQueue) Len() int {
	size := len(q.records)
	metrics.UpdateAuditQueueSize(size)
	return size
}

// Close stops accepting records. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.records)
	q.closed = true
	return nil
}
