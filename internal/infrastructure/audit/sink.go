// Package audit delivers audit records to their persistent destinations.
// Delivery is asynchronous and best-effort: a slow or broken destination
// never blocks or fails the operation being audited.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/audit"
)

// writeTimeout bounds a single destination write so one stuck writer
// cannot stall the delivery loop indefinitely.
const writeTimeout = 10 * time.Second

// Writer persists a single audit record to one destination.
type Writer interface {
	Write(ctx context.Context, record audit.Record) error
}

// AsyncSink implements audit.Sink over a buffered channel. Records are
// fanned out to all writers from a single background goroutine; when the
// buffer is full the record is dropped and counted.
type AsyncSink struct {
	writers   []Writer
	records   chan audit.Record
	logger    *zap.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewAsyncSink creates a sink with the given buffer size and destinations.
// The delivery goroutine starts immediately.
func NewAsyncSink(logger *zap.Logger, bufferSize int, writers ...Writer) *AsyncSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	s := &AsyncSink{
		writers: writers,
		records: make(chan audit.Record, bufferSize),
		logger:  logger,
	}

	s.wg.Add(1)
	go s.deliverLoop()

	return s
}

// Emit enqueues a record for delivery. Never blocks: if the buffer is
// full the record is dropped with a warning.
func (s *AsyncSink) Emit(_ context.Context, record audit.Record) {
	select {
	case s.records <- record:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("audit buffer full, dropping record",
			zap.String("component", record.Component),
			zap.String("action", record.Action),
			zap.Int64("total_dropped", n),
		)
	}
}

// Close stops accepting records, drains the buffer, and waits for the
// delivery goroutine to finish. Safe to call multiple times.
func (s *AsyncSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.records)
		s.wg.Wait()
	})
	return nil
}

// Dropped returns the number of records dropped due to a full buffer.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *AsyncSink) deliverLoop() {
	defer s.wg.Done()

	for record := range s.records {
		for _, w := range s.writers {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := w.Write(ctx, record); err != nil {
				s.logger.Warn("audit write failed",
					zap.String("component", record.Component),
					zap.String("action", record.Action),
					zap.String("record_id", record.ID.String()),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

// Ensure AsyncSink implements the audit port
var _ audit.Sink = (*AsyncSink)(nil)
