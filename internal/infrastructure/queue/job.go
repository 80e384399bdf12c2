// Package queue provides a durable, lane-based work queue. Each lane has
// its own bounded worker concurrency and retry policy; jobs within a lane
// are consumed in FIFO order.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lane names used by the reconciliation pipeline.
const (
	// LaneProcessOrder runs order materialization. Attempts are never
	// retried automatically: a partially completed materialization must
	// not be replayed.
	LaneProcessOrder = "process-order"
	// LaneSyncStock runs the fan-out of one SKU to all other marketplaces.
	LaneSyncStock = "sync-stock"
	// LaneUpdateMarketplace runs single-target retry/backfill updates.
	LaneUpdateMarketplace = "update-marketplace"
)

// Job is one unit of queued work.
type Job struct {
	// ID identifies the job across attempts
	ID uuid.UUID `json:"id"`
	// Lane is the queue lane the job belongs to
	Lane string `json:"lane"`
	// Kind selects the registered handler
	Kind string `json:"kind"`
	// Payload is the handler-specific body
	Payload json.RawMessage `json:"payload"`
	// Attempt counts executions of this job, starting at 0
	Attempt int `json:"attempt"`
	// EnqueuedAt is when the job was first enqueued
	EnqueuedAt time.Time `json:"enqueued_at"`
	// LastError is the failure message of the previous attempt
	LastError string `json:"last_error,omitempty"`
}

// NewJob builds a job with a fresh ID, marshaling payload as JSON.
func NewJob(lane, kind string, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:         uuid.New(),
		Lane:       lane,
		Kind:       kind,
		Payload:    body,
		EnqueuedAt: time.Now(),
	}, nil
}

// Decode unmarshals the job payload into out.
func (j *Job) Decode(out any) error {
	return json.Unmarshal(j.Payload, out)
}
