// Package worker drains queued audit records into the audit store.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/dropout/internal/adapters/mq/queue"
	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/pkg/logger"
	"github.com/okian/dropout/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 1
	defaultWriteTimeout = 5 * time.Second
)

// Store persists audit records.
type Store interface {
	Record(ctx context.Context, rec model.PredictionRecord) error
}

// Source is where workers read records from.
type Source interface {
	Dequeue() <-chan queue.Record
}

// Worker processes queued records.
type Worker interface {
	// Run consumes records until the source is closed and drained.
	Run(ctx context.Context)
}

// AuditWorker writes queued records to a Store.
type AuditWorker struct {
	source       Source
	store        Store
	name         string
	writeTimeout time.Duration

	done   chan struct{}
	logger logger.Logger
}

// NewAuditWorker creates a new worker with configuration options.
func NewAuditWorker(source Source, store Store, opts ...Option) *AuditWorker {
	w := &AuditWorker{
		source:       source,
		store:        store,
		name:         "audit-worker",
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run drains the source. It ignores ctx cancellation so records accepted
// before shutdown are still written; ctx only carries values to the store.
func (w *AuditWorker) Run(ctx context.Context) {
	defer close(w.done)
	ctx = context.WithoutCancel(ctx)

	for rec := range w.source.Dequeue() {
		if err := w.process(ctx, rec); err != nil {
			w.logger.Error(ctx, "error writing audit record", logger.Error(err))
		}
	}
}

// Done is closed once Run returns.
func (w *AuditWorker) Done() <-chan struct{} { return w.done }

// process writes a single record.
func (w *AuditWorker) process(ctx context.Context, rec queue.Record) error { //nolint:gocritic // hugeParam: Record is passed by value for channel semantics
	writeCtx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()

	if err := w.store.Record(writeCtx, rec); err != nil {
		metrics.RecordErrorByComponent("audit_worker", "write_error")
		return fmt.Errorf("failed to audit prediction %s: %w", rec.ID, err)
	}
	return nil
}

// Pool runs several AuditWorkers over one queue and owns its shutdown.
type Pool struct {
	queue   queue.Queue
	workers []*AuditWorker

	mu      sync.Mutex
	started bool
	stopped bool

	logger logger.Logger
}

// NewPool creates a pool of workerCount writers over q. log may be nil.
func NewPool(workerCount int, q queue.Queue, store Store, log logger.Logger, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	if log == nil {
		log = logger.Nop()
	}
	p := &Pool{
		queue:   q,
		workers: make([]*AuditWorker, workerCount),
		logger:  log.Named("audit-pool"),
	}
	for i := range p.workers {
		workerOpts := append([]Option{
			WithName("audit-worker-" + strconv.Itoa(i)),
			WithLogger(log),
		}, opts...)
		p.workers[i] = NewAuditWorker(q, store, workerOpts...)
	}
	return p
}

// Start launches all workers. Calling it twice has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateAuditWorkers(len(p.workers))
	p.logger.Info(ctx, "audit workers started", logger.Int("workers", len(p.workers)))
}

// Enqueue hands a record to the workers without blocking.
func (p *Pool) Enqueue(ctx context.Context, rec model.PredictionRecord) error {
	return p.queue.Enqueue(ctx, rec)
}

// Shutdown closes the queue and waits for the workers to drain it or for
// ctx to end, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing audit queue", logger.Error(err))
	}
	if !started {
		return nil
	}
	defer metrics.UpdateAuditWorkers(0)

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			pending := p.queue.Len()
			p.logger.Warn(ctx, "audit worker shutdown timed out",
				logger.Int("worker_id", i),
				logger.Int("pending", pending),
			)
			return fmt.Errorf("audit shutdown timed out with %d pending: %w", pending, ctx.Err())
		}
	}
	p.logger.Info(ctx, "audit workers stopped")
	return nil
}
