package publish

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"listingsync/internal/clock"
)

const (
	DefaultWorkers    = 4
	DefaultQueueSize  = 64
	DefaultJobTimeout = 2 * time.Minute
)

// ErrPoolClosed is returned when work is submitted after Shutdown
var ErrPoolClosed = errors.New("publish pool is shut down")

// Task is one unit of deferred platform work
type Task func(ctx context.Context)

// PoolConfig configures a Pool
type PoolConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Pool runs tasks on a fixed set of workers fed by a buffered queue.
// Tasks never see the submitter's context; each gets a fresh one bounded
// by JobTimeout.
type Pool struct {
	tasks   chan Task
	stopCh  chan struct{}
	baseCtx context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool and starts its workers
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan Task, cfg.QueueSize),
		stopCh:  make(chan struct{}),
		baseCtx: ctx,
		cancel:  cancel,
		timeout: cfg.JobTimeout,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("component", "publish_pool"),
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a task, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAt queues a task once at has passed. A task still waiting when the
// pool shuts down is dropped.
func (p *Pool) SubmitAt(at time.Time, task Task) error {
	delay := at.Sub(p.clock.Now())
	if delay <= 0 {
		return p.Submit(context.Background(), task)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.clock.Sleep(p.baseCtx, delay); err != nil {
			p.logger.Warn("Scheduled task dropped at shutdown", "scheduled_for", at)
			return
		}
		if err := p.Submit(p.baseCtx, task); err != nil {
			p.logger.Warn("Scheduled task could not be queued", "scheduled_for", at, "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting work, runs what is already queued and waits for
// the workers to exit or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	// Abandon tasks still waiting for their scheduled time
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.run(task)
		case <-p.stopCh:
			for {
				select {
				case task := <-p.tasks:
					p.run(task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Publish task panicked", "panic", r)
		}
	}()
	task(ctx)
}
