package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler executes one job. A non-nil error triggers the lane's retry
// policy; a handler must be safe to call concurrently up to the lane's
// concurrency.
type Handler func(ctx context.Context, job *Job) error

// LaneConfig describes one queue lane.
type LaneConfig struct {
	// Name is the lane identifier
	Name string
	// Concurrency is the number of workers consuming the lane
	Concurrency int
	// MaxAttempts bounds executions per job; 1 means no retry
	MaxAttempts int
	// RetryDelay is the wait before a failed job is re-enqueued
	RetryDelay time.Duration
}

// DefaultLanes returns the pipeline's lane configuration. Order
// materialization is attempted exactly once: a partially completed
// materialization risks duplicate sales orders or double stock reduction
// when replayed. The stock mutator's keyed SKU mutex carries the
// same-SKU serialization invariant, so the lane itself may run more than
// one worker.
func DefaultLanes() []LaneConfig {
	return []LaneConfig{
		{Name: LaneProcessOrder, Concurrency: 1, MaxAttempts: 1},
		{Name: LaneSyncStock, Concurrency: 2, MaxAttempts: 3, RetryDelay: 5 * time.Second},
		{Name: LaneUpdateMarketplace, Concurrency: 2, MaxAttempts: 3, RetryDelay: 5 * time.Second},
	}
}

// Dispatcher consumes lanes from a broker and routes jobs to registered
// handlers by kind.
type Dispatcher struct {
	broker   Broker
	lanes    []LaneConfig
	logger   *zap.Logger
	handlers map[string]Handler
	mu       sync.RWMutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewDispatcher creates a dispatcher over the given broker and lanes.
func NewDispatcher(broker Broker, lanes []LaneConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		broker:   broker,
		lanes:    lanes,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (d *Dispatcher) Register(kind string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = handler
}

// Enqueue adds a job to its lane.
func (d *Dispatcher) Enqueue(ctx context.Context, job *Job) error {
	return d.broker.Enqueue(ctx, job)
}

// Start launches the lane workers. It returns immediately; workers run
// until Stop is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for _, lane := range d.lanes {
		concurrency := lane.Concurrency
		if concurrency < 1 {
			concurrency = 1
		}
		for i := 0; i < concurrency; i++ {
			d.wg.Add(1)
			go d.consume(runCtx, lane)
		}
		d.logger.Info("queue lane started",
			zap.String("lane", lane.Name),
			zap.Int("concurrency", concurrency),
			zap.Int("max_attempts", lane.MaxAttempts),
		)
	}
}

// Stop halts the workers and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Depth returns the number of waiting jobs in a lane.
func (d *Dispatcher) Depth(ctx context.Context, lane string) (int64, error) {
	return d.broker.Depth(ctx, lane)
}

// DeadLetterDepth returns the number of parked jobs in a lane.
func (d *Dispatcher) DeadLetterDepth(ctx context.Context, lane string) (int64, error) {
	return d.broker.DeadLetterDepth(ctx, lane)
}

// DeadLetters lists parked jobs for a lane.
func (d *Dispatcher) DeadLetters(ctx context.Context, lane string, limit int64) ([]*Job, error) {
	return d.broker.ListDeadLetters(ctx, lane, limit)
}

// RequeueDeadLetter moves a parked job back onto its lane for manual
// reprocessing.
func (d *Dispatcher) RequeueDeadLetter(ctx context.Context, lane, jobID string) error {
	return d.broker.RequeueDeadLetter(ctx, lane, jobID)
}

func (d *Dispatcher) consume(ctx context.Context, lane LaneConfig) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := d.broker.Dequeue(ctx, lane.Name)
		if err != nil {
			if errors.Is(err, ErrEmpty) || errors.Is(err, context.Canceled) {
				continue
			}
			d.logger.Error("queue dequeue failed",
				zap.String("lane", lane.Name),
				zap.Error(err),
			)
			time.Sleep(time.Second)
			continue
		}

		d.handle(ctx, lane, job)
	}
}

func (d *Dispatcher) handle(ctx context.Context, lane LaneConfig, job *Job) {
	d.mu.RLock()
	handler, ok := d.handlers[job.Kind]
	d.mu.RUnlock()
	if !ok {
		d.logger.Error("no handler registered for job kind, parking job",
			zap.String("lane", lane.Name),
			zap.String("kind", job.Kind),
			zap.String("job_id", job.ID.String()),
		)
		job.LastError = fmt.Sprintf("no handler for kind %q", job.Kind)
		d.park(ctx, job)
		return
	}

	start := time.Now()
	err := handler(ctx, job)
	if err == nil {
		d.logger.Debug("job completed",
			zap.String("lane", lane.Name),
			zap.String("kind", job.Kind),
			zap.String("job_id", job.ID.String()),
			zap.Duration("took", time.Since(start)),
		)
		return
	}

	job.Attempt++
	job.LastError = err.Error()

	maxAttempts := lane.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if job.Attempt >= maxAttempts {
		d.logger.Error("job exhausted attempts, parking for manual reprocessing",
			zap.String("lane", lane.Name),
			zap.String("kind", job.Kind),
			zap.String("job_id", job.ID.String()),
			zap.Int("attempts", job.Attempt),
			zap.Error(err),
		)
		d.park(ctx, job)
		return
	}

	d.logger.Warn("job failed, will retry",
		zap.String("lane", lane.Name),
		zap.String("kind", job.Kind),
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	)
	if lane.RetryDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(lane.RetryDelay):
		}
	}
	if err := d.broker.Enqueue(ctx, job); err != nil {
		d.logger.Error("failed to re-enqueue job, parking instead",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		d.park(ctx, job)
	}
}

func (d *Dispatcher) park(ctx context.Context, job *Job) {
	if err := d.broker.DeadLetter(ctx, job); err != nil {
		d.logger.Error("failed to park job on dead letter list",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}
