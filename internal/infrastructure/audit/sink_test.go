package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/audit"
)

// captureWriter records every write it receives.
type captureWriter struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
	gate    chan struct{} // when set, Write blocks until the gate closes
}

func (w *captureWriter) Write(ctx context.Context, record audit.Record) error {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, record)
	return w.err
}

func (w *captureWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

func (w *captureWriter) last() audit.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records[len(w.records)-1]
}

func TestAsyncSink_DeliversToAllWriters(t *testing.T) {
	first := &captureWriter{}
	second := &captureWriter{}
	sink := NewAsyncSink(zap.NewNop(), 16, first, second)

	record := audit.NewRecord("materializer", "process_order", audit.StatusSuccess, 120*time.Millisecond).
		WithID("order_ref", "SHOPEE-2403129")
	sink.Emit(context.Background(), record)

	require.NoError(t, sink.Close())

	require.Equal(t, 1, first.count())
	require.Equal(t, 1, second.count())
	assert.Equal(t, record.ID, first.last().ID)
	assert.Equal(t, "SHOPEE-2403129", second.last().IDs["order_ref"])
}

func TestAsyncSink_WriterFailureDoesNotStopOthers(t *testing.T) {
	broken := &captureWriter{err: errors.New("connection refused")}
	healthy := &captureWriter{}
	sink := NewAsyncSink(zap.NewNop(), 16, broken, healthy)

	sink.Emit(context.Background(), audit.NewRecord("sync_engine", "sync_stock", audit.StatusPartial, time.Second))
	sink.Emit(context.Background(), audit.NewRecord("sync_engine", "sync_stock", audit.StatusSuccess, time.Second))

	require.NoError(t, sink.Close())

	assert.Equal(t, 2, broken.count())
	assert.Equal(t, 2, healthy.count())
}

func TestAsyncSink_DropsWhenBufferFull(t *testing.T) {
	gate := make(chan struct{})
	slow := &captureWriter{gate: gate}
	sink := NewAsyncSink(zap.NewNop(), 1, slow)

	ctx := context.Background()

	// The delivery loop blocks on the gate after taking at most one
	// record, so with a buffer of one the third emit must be dropped.
	sink.Emit(ctx, audit.NewRecord("mutator", "adjust_stock", audit.StatusSuccess, time.Millisecond))
	sink.Emit(ctx, audit.NewRecord("mutator", "adjust_stock", audit.StatusSuccess, time.Millisecond))
	sink.Emit(ctx, audit.NewRecord("mutator", "adjust_stock", audit.StatusFailure, time.Millisecond))

	assert.GreaterOrEqual(t, sink.Dropped(), int64(1), "sink should drop once the buffer is full")

	close(gate)
	require.NoError(t, sink.Close())
}

func TestAsyncSink_CloseDrainsBuffer(t *testing.T) {
	w := &captureWriter{}
	sink := NewAsyncSink(zap.NewNop(), 16, w)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		sink.Emit(ctx, audit.NewRecord("webhook", "ingest", audit.StatusSuccess, time.Millisecond))
	}

	require.NoError(t, sink.Close())
	assert.Equal(t, 5, w.count())

	// Multiple closes are safe.
	require.NoError(t, sink.Close())
}
