// Package worker runs the bounded background dispatch pool. The
// submission boundary enqueues accepted jobs and returns immediately;
// a fixed set of workers drains the queue. When the queue is full,
// Submit rejects instead of growing without bound.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dukerupert/muninn/internal/email"
	"github.com/dukerupert/muninn/internal/telemetry"
)

// ErrQueueFull is returned by Submit when the dispatch queue is
// saturated. The submission boundary surfaces this as a 503.
var ErrQueueFull = errors.New("dispatch queue is full")

// Dispatcher processes one job to a terminal state.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *email.Job)
}

// Config holds pool configuration.
type Config struct {
	// PoolID identifies this pool instance in logs.
	PoolID string

	// Workers is the number of concurrent dispatch goroutines.
	Workers int

	// QueueSize is the capacity of the in-memory job queue.
	QueueSize int
}

// Pool is a bounded worker pool fed by an in-memory channel.
type Pool struct {
	config     Config
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *telemetry.Metrics

	queue chan *email.Job
	wg    sync.WaitGroup
}

// NewPool creates a dispatch pool. metrics may be nil.
func NewPool(dispatcher Dispatcher, config Config, logger *slog.Logger, metrics *telemetry.Metrics) *Pool {
	// Set defaults
	if config.PoolID == "" {
		config.PoolID = fmt.Sprintf("pool-%s", uuid.New().String()[:8])
	}
	if config.Workers == 0 {
		config.Workers = 4
	}
	if config.QueueSize == 0 {
		config.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		config:     config,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		queue:      make(chan *email.Job, config.QueueSize),
	}
}

// Start launches the worker goroutines. ctx bounds the lifetime of
// in-flight dispatches; draining the queue is controlled by Stop.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("dispatch pool starting",
		"pool_id", p.config.PoolID,
		"workers", p.config.Workers,
		"queue_size", p.config.QueueSize,
	)

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Submit enqueues a job for background dispatch. It never blocks the
// caller: when the queue is full it returns ErrQueueFull and the job is
// not accepted.
func (p *Pool) Submit(job *email.Job) error {
	select {
	case p.queue <- job:
		if p.metrics != nil {
			p.metrics.QueueDepth.Inc()
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for the workers to drain it. Submit
// must not be called after Stop; shut the HTTP server down first.
func (p *Pool) Stop() {
	close(p.queue)
	p.wg.Wait()
	p.logger.Info("dispatch pool stopped", "pool_id", p.config.PoolID)
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.queue {
		if p.metrics != nil {
			p.metrics.QueueDepth.Dec()
		}
		p.logger.Debug("worker picked up job",
			"pool_id", p.config.PoolID,
			"worker", id,
			"email_id", job.ID,
		)
		p.dispatcher.Dispatch(ctx, job)
	}
}
