// Package jobs binds the reconciliation pipeline to the work queue:
// payload shapes, job kinds, the enqueuer used by webhook handlers, and
// the handlers run by queue workers.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/application/materialize"
	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/order"
	"github.com/channelsync/backend/internal/infrastructure/queue"
)

// Job kinds.
const (
	KindProcessOrder      = "process_order"
	KindSyncStock         = "sync_stock"
	KindUpdateMarketplace = "update_marketplace"
)

// ProcessOrderPayload is the body of a process-order job.
type ProcessOrderPayload struct {
	Order order.Order `json:"order"`
}

// SyncStockPayload is the body of a sync-stock fan-out job.
type SyncStockPayload struct {
	Task marketplace.SyncTask `json:"task"`
}

// UpdateMarketplacePayload is the body of a single-target backfill job.
type UpdateMarketplacePayload struct {
	Marketplace string `json:"marketplace"`
	SKU         string `json:"sku"`
	Quantity    int64  `json:"quantity"`
}

// ---------------------------------------------------------------------------
// Enqueuer
// ---------------------------------------------------------------------------

// Enqueuer places pipeline work onto the queue. It is the TaskScheduler
// handed to the materializer and the entry point for webhook handlers.
type Enqueuer struct {
	broker queue.Broker
}

// NewEnqueuer creates an enqueuer over the given broker.
func NewEnqueuer(broker queue.Broker) *Enqueuer {
	return &Enqueuer{broker: broker}
}

// EnqueueProcessOrder schedules materialization of one canonical order.
func (e *Enqueuer) EnqueueProcessOrder(ctx context.Context, o *order.Order) (*queue.Job, error) {
	job, err := queue.NewJob(queue.LaneProcessOrder, KindProcessOrder, ProcessOrderPayload{Order: *o})
	if err != nil {
		return nil, fmt.Errorf("jobs: build process-order job: %w", err)
	}
	if err := e.broker.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ScheduleSync implements materialize.TaskScheduler.
func (e *Enqueuer) ScheduleSync(ctx context.Context, task marketplace.SyncTask) error {
	job, err := queue.NewJob(queue.LaneSyncStock, KindSyncStock, SyncStockPayload{Task: task})
	if err != nil {
		return fmt.Errorf("jobs: build sync-stock job: %w", err)
	}
	return e.broker.Enqueue(ctx, job)
}

// EnqueueMarketplaceUpdate schedules a single-target stock backfill.
func (e *Enqueuer) EnqueueMarketplaceUpdate(ctx context.Context, name, sku string, quantity int64) (*queue.Job, error) {
	job, err := queue.NewJob(queue.LaneUpdateMarketplace, KindUpdateMarketplace, UpdateMarketplacePayload{
		Marketplace: name,
		SKU:         sku,
		Quantity:    quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: build update-marketplace job: %w", err)
	}
	if err := e.broker.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Ensure Enqueuer satisfies the materializer's scheduler port
var _ materialize.TaskScheduler = (*Enqueuer)(nil)

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// OrderProcessor materializes canonical orders.
type OrderProcessor interface {
	Process(ctx context.Context, o *order.Order) (*materialize.Result, error)
}

// StockSyncer fans stock updates out to marketplaces.
type StockSyncer interface {
	SyncStock(ctx context.Context, task marketplace.SyncTask) *marketplace.SyncReport
}

// Handlers routes queue jobs into the pipeline services.
type Handlers struct {
	processor OrderProcessor
	syncer    StockSyncer
	registry  marketplace.Registry
	logger    *zap.Logger
}

// NewHandlers creates the pipeline job handlers.
func NewHandlers(processor OrderProcessor, syncer StockSyncer, registry marketplace.Registry, logger *zap.Logger) *Handlers {
	return &Handlers{
		processor: processor,
		syncer:    syncer,
		registry:  registry,
		logger:    logger,
	}
}

// RegisterAll binds every job kind on the dispatcher.
func (h *Handlers) RegisterAll(d *queue.Dispatcher) {
	d.Register(KindProcessOrder, h.HandleProcessOrder)
	d.Register(KindSyncStock, h.HandleSyncStock)
	d.Register(KindUpdateMarketplace, h.HandleUpdateMarketplace)
}

// HandleProcessOrder runs order materialization. A redelivered order is
// treated as handled, not failed.
func (h *Handlers) HandleProcessOrder(ctx context.Context, job *queue.Job) error {
	var payload ProcessOrderPayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("jobs: decode process-order payload: %w", err)
	}

	_, err := h.processor.Process(ctx, &payload.Order)
	if errors.Is(err, materialize.ErrDuplicateOrder) {
		h.logger.Info("duplicate order delivery ignored",
			zap.String("marketplace", payload.Order.MarketplaceName),
			zap.String("external_order_id", payload.Order.ExternalOrderID),
		)
		return nil
	}
	return err
}

// HandleSyncStock runs the fan-out for one SKU. Per-target failures live
// in the report; the job itself only fails on programming errors.
func (h *Handlers) HandleSyncStock(ctx context.Context, job *queue.Job) error {
	var payload SyncStockPayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("jobs: decode sync-stock payload: %w", err)
	}
	h.syncer.SyncStock(ctx, payload.Task)
	return nil
}

// HandleUpdateMarketplace pushes one SKU to one marketplace.
func (h *Handlers) HandleUpdateMarketplace(ctx context.Context, job *queue.Job) error {
	var payload UpdateMarketplacePayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("jobs: decode update-marketplace payload: %w", err)
	}

	adapter, err := h.registry.Get(payload.Marketplace)
	if err != nil {
		return err
	}
	return adapter.UpdateStock(ctx, []marketplace.StockItem{{SKU: payload.SKU, Quantity: payload.Quantity}})
}
