package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome recorded for an audited operation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusPartial Status = "PARTIAL"
)

// Record is one structured audit entry. Every core operation emits exactly
// one record; delivery is best-effort and never blocks or fails the
// operation being logged.
type Record struct {
	// ID identifies the record
	ID uuid.UUID
	// Component is the emitting component, e.g. "materializer"
	Component string
	// Action is the operation, e.g. "process_order"
	Action string
	// Status is the operation outcome
	Status Status
	// Duration is how long the operation took
	Duration time.Duration
	// IDs carries the relevant identifiers (order refs, SKUs, job IDs)
	IDs map[string]string
	// Error is the failure message, empty on success
	Error string
	// OccurredAt is when the operation completed
	OccurredAt time.Time
}

// NewRecord builds a record with a fresh ID and the current time.
func NewRecord(component, action string, status Status, duration time.Duration) Record {
	return Record{
		ID:         uuid.New(),
		Component:  component,
		Action:     action,
		Status:     status,
		Duration:   duration,
		IDs:        make(map[string]string),
		OccurredAt: time.Now(),
	}
}

// WithID attaches a relevant identifier to the record.
func (r Record) WithID(key, value string) Record {
	r.IDs[key] = value
	return r
}

// WithError marks the record as carrying a failure message.
func (r Record) WithError(err error) Record {
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Sink is the write-only audit log port. Emit must not block the caller
// beyond enqueueing and must never return an error to it.
type Sink interface {
	Emit(ctx context.Context, record Record)
}

// NopSink discards every record. Used in tests and when auditing is
// disabled.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(context.Context, Record) {}
