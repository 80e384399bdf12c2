package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmpty is returned by Dequeue when no job became available within the
// poll window.
var ErrEmpty = errors.New("queue: no job available")

// Broker is the storage substrate for the queue. Implementations must
// keep jobs durable between Enqueue and the completion of handling.
type Broker interface {
	// Enqueue appends a job to its lane.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue pops the oldest job from the lane, blocking up to the poll
	// window. Returns ErrEmpty when nothing arrived.
	Dequeue(ctx context.Context, lane string) (*Job, error)

	// DeadLetter parks a job that exhausted its attempts for manual
	// reprocessing.
	DeadLetter(ctx context.Context, job *Job) error

	// ListDeadLetters returns up to limit parked jobs for a lane without
	// removing them.
	ListDeadLetters(ctx context.Context, lane string, limit int64) ([]*Job, error)

	// RequeueDeadLetter moves one parked job back onto its lane. Returns
	// ErrEmpty when the job is not parked.
	RequeueDeadLetter(ctx context.Context, lane string, jobID string) error

	// Depth returns the number of jobs waiting in a lane.
	Depth(ctx context.Context, lane string) (int64, error)

	// DeadLetterDepth returns the number of parked jobs in a lane.
	DeadLetterDepth(ctx context.Context, lane string) (int64, error)
}

// ---------------------------------------------------------------------------
// In-memory broker
// ---------------------------------------------------------------------------

// MemoryBroker is a process-local Broker used in tests and single-node
// development runs. FIFO per lane, no durability.
type MemoryBroker struct {
	mu     sync.Mutex
	lanes  map[string][]*Job
	dead   map[string][]*Job
	wakeup chan struct{}
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		lanes:  make(map[string][]*Job),
		dead:   make(map[string][]*Job),
		wakeup: make(chan struct{}, 1),
	}
}

// Enqueue implements Broker.
func (b *MemoryBroker) Enqueue(_ context.Context, job *Job) error {
	b.mu.Lock()
	b.lanes[job.Lane] = append(b.lanes[job.Lane], job)
	b.mu.Unlock()
	select {
	case b.wakeup <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue implements Broker.
func (b *MemoryBroker) Dequeue(ctx context.Context, lane string) (*Job, error) {
	deadline := time.NewTimer(time.Second)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		jobs := b.lanes[lane]
		if len(jobs) > 0 {
			job := jobs[0]
			b.lanes[lane] = jobs[1:]
			b.mu.Unlock()
			return job, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrEmpty
		case <-b.wakeup:
		}
	}
}

// DeadLetter implements Broker.
func (b *MemoryBroker) DeadLetter(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead[job.Lane] = append(b.dead[job.Lane], job)
	return nil
}

// ListDeadLetters implements Broker.
func (b *MemoryBroker) ListDeadLetters(_ context.Context, lane string, limit int64) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	jobs := b.dead[lane]
	if int64(len(jobs)) > limit {
		jobs = jobs[:limit]
	}
	out := make([]*Job, len(jobs))
	copy(out, jobs)
	return out, nil
}

// RequeueDeadLetter implements Broker.
func (b *MemoryBroker) RequeueDeadLetter(ctx context.Context, lane string, jobID string) error {
	b.mu.Lock()
	for i, job := range b.dead[lane] {
		if job.ID.String() == jobID {
			b.dead[lane] = append(b.dead[lane][:i], b.dead[lane][i+1:]...)
			b.mu.Unlock()
			return b.Enqueue(ctx, job)
		}
	}
	b.mu.Unlock()
	return ErrEmpty
}

// Depth implements Broker.
func (b *MemoryBroker) Depth(_ context.Context, lane string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.lanes[lane])), nil
}

// DeadLetterDepth implements Broker.
func (b *MemoryBroker) DeadLetterDepth(_ context.Context, lane string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.dead[lane])), nil
}
