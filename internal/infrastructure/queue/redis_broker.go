package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker is a Broker backed by Redis lists, suitable for deployments
// where workers and webhook handlers run in separate processes. Jobs are
// serialized as JSON; each lane is one list, dead letters another.
type RedisBroker struct {
	client    *redis.Client
	keyPrefix string
	pollWait  time.Duration
}

// RedisBrokerConfig holds Redis connection settings for the broker.
type RedisBrokerConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(cfg RedisBrokerConfig) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: failed to connect to Redis: %w", err)
	}

	return NewRedisBrokerWithClient(client, ""), nil
}

// NewRedisBrokerWithClient wraps an existing Redis client. Useful for
// sharing one client across components.
func NewRedisBrokerWithClient(client *redis.Client, keyPrefix string) *RedisBroker {
	if keyPrefix == "" {
		keyPrefix = "queue:"
	}
	return &RedisBroker{
		client:    client,
		keyPrefix: keyPrefix,
		pollWait:  time.Second,
	}
}

func (b *RedisBroker) laneKey(lane string) string {
	return b.keyPrefix + lane
}

func (b *RedisBroker) deadKey(lane string) string {
	return b.keyPrefix + lane + ":dead"
}

// Enqueue implements Broker.
func (b *RedisBroker) Enqueue(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.ID, err)
	}
	if err := b.client.LPush(ctx, b.laneKey(job.Lane), body).Err(); err != nil {
		return fmt.Errorf("queue: enqueue to lane %s: %w", job.Lane, err)
	}
	return nil
}

// Dequeue implements Broker using BRPOP with a bounded poll window.
func (b *RedisBroker) Dequeue(ctx context.Context, lane string) (*Job, error) {
	res, err := b.client.BRPop(ctx, b.pollWait, b.laneKey(lane)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: dequeue from lane %s: %w", lane, err)
	}
	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("queue: unexpected BRPOP reply of length %d", len(res))
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: decode job from lane %s: %w", lane, err)
	}
	return &job, nil
}

// DeadLetter implements Broker.
func (b *RedisBroker) DeadLetter(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal dead letter %s: %w", job.ID, err)
	}
	return b.client.LPush(ctx, b.deadKey(job.Lane), body).Err()
}

// ListDeadLetters implements Broker.
func (b *RedisBroker) ListDeadLetters(ctx context.Context, lane string, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := b.client.LRange(ctx, b.deadKey(lane), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list dead letters for lane %s: %w", lane, err)
	}
	jobs := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		var job Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			return nil, fmt.Errorf("queue: decode dead letter: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// RequeueDeadLetter implements Broker.
func (b *RedisBroker) RequeueDeadLetter(ctx context.Context, lane string, jobID string) error {
	entries, err := b.client.LRange(ctx, b.deadKey(lane), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("queue: read dead letters for lane %s: %w", lane, err)
	}
	for _, entry := range entries {
		var job Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			continue
		}
		if job.ID.String() != jobID {
			continue
		}
		if err := b.client.LRem(ctx, b.deadKey(lane), 1, entry).Err(); err != nil {
			return fmt.Errorf("queue: remove dead letter %s: %w", jobID, err)
		}
		return b.Enqueue(ctx, &job)
	}
	return ErrEmpty
}

// Depth implements Broker.
func (b *RedisBroker) Depth(ctx context.Context, lane string) (int64, error) {
	return b.client.LLen(ctx, b.laneKey(lane)).Result()
}

// DeadLetterDepth implements Broker.
func (b *RedisBroker) DeadLetterDepth(ctx context.Context, lane string) (int64, error) {
	return b.client.LLen(ctx, b.deadKey(lane)).Result()
}

// Close closes the underlying Redis client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Ensure RedisBroker implements Broker
var _ Broker = (*RedisBroker)(nil)
