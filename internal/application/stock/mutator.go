package stock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/audit"
	"github.com/channelsync/backend/internal/domain/erp"
)

// Mutator moves a SKU's authoritative ERP quantity between values using
// the two-phase stock protocol: stage a pending target quantity, then
// apply it as the new on-hand quantity. Both phases are distinct remote
// calls; neither is assumed idempotent.
//
// Same-SKU mutations are serialized through a keyed mutex so that the
// read-validate-write sequence for one SKU never races with itself,
// while unrelated SKUs proceed concurrently.
type Mutator struct {
	client     erp.Client
	locks      *KeyedMutex
	locationID int64
	logger     *zap.Logger
	sink       audit.Sink
}

// NewMutator creates a stock mutator operating on the given warehouse
// location.
func NewMutator(client erp.Client, locationID int64, logger *zap.Logger, sink audit.Sink) *Mutator {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Mutator{
		client:     client,
		locks:      NewKeyedMutex(),
		locationID: locationID,
		logger:     logger,
		sink:       sink,
	}
}

// Reduce decrements a SKU's on-hand quantity by qty. The reduction is
// validated before any write: if the target would be negative the call
// fails with erp.ErrInsufficientStock and the record is untouched.
func (m *Mutator) Reduce(ctx context.Context, sku string, qty int64, orderRef string) (*erp.StockMovement, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("stock: reduce quantity must be positive, got %d", qty)
	}
	return m.mutate(ctx, sku, -qty, orderRef)
}

// Increase increments a SKU's on-hand quantity by qty. There is no upper
// bound check.
func (m *Mutator) Increase(ctx context.Context, sku string, qty int64, orderRef string) (*erp.StockMovement, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("stock: increase quantity must be positive, got %d", qty)
	}
	return m.mutate(ctx, sku, qty, orderRef)
}

// GetQuantity reads the current authoritative quantity for a SKU.
func (m *Mutator) GetQuantity(ctx context.Context, sku string) (int64, error) {
	product, err := m.client.ResolveProductBySKU(ctx, sku)
	if err != nil {
		return 0, err
	}
	record, err := m.client.ResolveStockRecord(ctx, product.ID, m.locationID)
	if err != nil {
		return 0, err
	}
	return record.Quantity, nil
}

func (m *Mutator) mutate(ctx context.Context, sku string, delta int64, orderRef string) (*erp.StockMovement, error) {
	m.locks.Lock(sku)
	defer m.locks.Unlock(sku)

	start := time.Now()
	movement, err := m.run(ctx, sku, delta)
	m.emit(ctx, sku, orderRef, movement, start, err)
	return movement, err
}

func (m *Mutator) run(ctx context.Context, sku string, delta int64) (*erp.StockMovement, error) {
	product, err := m.client.ResolveProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	record, err := m.client.ResolveStockRecord(ctx, product.ID, m.locationID)
	if err != nil {
		return nil, err
	}

	target := record.Quantity + delta
	if target < 0 {
		return nil, fmt.Errorf("%w: SKU %s has %d on hand, cannot remove %d",
			erp.ErrInsufficientStock, sku, record.Quantity, -delta)
	}

	if err := m.client.WritePendingQuantity(ctx, record.ID, target); err != nil {
		return nil, fmt.Errorf("stock: write pending quantity for SKU %s: %w", sku, err)
	}

	if err := m.client.ApplyPendingQuantity(ctx, record.ID); err != nil {
		// The pending write already landed. The record now disagrees with
		// its on-hand quantity and there is no compensation the protocol
		// can safely perform, so surface the full state for manual
		// recovery instead of retrying a call of unknown idempotency.
		m.logger.Error("stock apply failed after pending write, manual recovery required",
			zap.String("sku", sku),
			zap.Int64("record_id", record.ID),
			zap.Int64("previous_quantity", record.Quantity),
			zap.Int64("pending_quantity", target),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: SKU %s record %d pending=%d previous=%d: %v",
			erp.ErrPendingApplyFailed, sku, record.ID, target, record.Quantity, err)
	}

	return &erp.StockMovement{
		SKU:           sku,
		PreviousStock: record.Quantity,
		NewStock:      target,
	}, nil
}

func (m *Mutator) emit(ctx context.Context, sku, orderRef string, movement *erp.StockMovement, start time.Time, err error) {
	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusFailure
	}
	rec := audit.NewRecord("stock", "mutate", status, time.Since(start)).
		WithID("sku", sku).
		WithError(err)
	if orderRef != "" {
		rec = rec.WithID("order_ref", orderRef)
	}
	if movement != nil {
		rec = rec.WithID("previous", fmt.Sprintf("%d", movement.PreviousStock)).
			WithID("new", fmt.Sprintf("%d", movement.NewStock))
	}
	m.sink.Emit(ctx, rec)
}
