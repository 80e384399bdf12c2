package stocksync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/audit"
	"github.com/channelsync/backend/internal/domain/marketplace"
)

// DefaultTargetTimeout bounds each per-marketplace update call.
const DefaultTargetTimeout = 15 * time.Second

// StockReader reads the authoritative ERP quantity for a SKU. Used by the
// standalone full-resync operation.
type StockReader interface {
	GetQuantity(ctx context.Context, sku string) (int64, error)
}

// ReportStore persists completed sync reports. Persistence is best-effort;
// a store failure never fails the sync itself.
type ReportStore interface {
	Save(ctx context.Context, report *marketplace.SyncReport) error
}

// Engine propagates one SKU's authoritative quantity to every marketplace
// except the order's origin. Targets are attempted independently and
// concurrently; one target's failure never cancels, delays or fails
// another's attempt, and the engine itself never returns an error for
// target failures, only the per-target breakdown.
type Engine struct {
	registry      marketplace.Registry
	targets       []string
	stocks        StockReader
	store         ReportStore
	logger        *zap.Logger
	sink          audit.Sink
	targetTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTargetTimeout overrides the per-target update timeout.
func WithTargetTimeout(d time.Duration) Option {
	return func(e *Engine) { e.targetTimeout = d }
}

// WithReportStore attaches a report store.
func WithReportStore(store ReportStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithAuditSink attaches an audit sink.
func WithAuditSink(sink audit.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// NewEngine creates a synchronization engine. targets is the full set of
// marketplace names the system mirrors stock to; a name without a
// configured adapter is reported as AdapterNotConfigured rather than
// attempted.
func NewEngine(registry marketplace.Registry, targets []string, stocks StockReader, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry:      registry,
		targets:       targets,
		stocks:        stocks,
		logger:        logger,
		sink:          audit.NopSink{},
		targetTimeout: DefaultTargetTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncStock fans task.NewQuantity out to every target marketplace except
// task.OriginMarketplace (case-insensitive). It returns once all targets
// have completed, with one report entry per target.
func (e *Engine) SyncStock(ctx context.Context, task marketplace.SyncTask) *marketplace.SyncReport {
	start := time.Now()
	report := &marketplace.SyncReport{
		ID:       uuid.New(),
		SKU:      task.SKU,
		Quantity: task.NewQuantity,
		Origin:   task.OriginMarketplace,
		Targets:  make(map[string]marketplace.TargetResult),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, name := range e.targets {
		if task.OriginMarketplace != "" && strings.EqualFold(name, task.OriginMarketplace) {
			continue
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result := e.updateTarget(ctx, name, task)
			mu.Lock()
			report.Targets[name] = result
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	report.CompletedAt = time.Now()

	e.persist(ctx, report)
	e.emit(ctx, task, report, start)

	if failed := report.FailedTargets(); len(failed) > 0 {
		e.logger.Warn("stock sync completed with target failures",
			zap.String("sku", task.SKU),
			zap.Int64("quantity", task.NewQuantity),
			zap.Strings("failed_targets", failed),
		)
	} else {
		e.logger.Info("stock sync completed",
			zap.String("sku", task.SKU),
			zap.Int64("quantity", task.NewQuantity),
			zap.Int("targets", len(report.Targets)),
		)
	}

	return report
}

// Resync reads the current authoritative ERP quantity for a SKU and fans
// it out to all marketplaces. It fails only when the ERP read itself
// fails; target failures are reported per-target as usual.
func (e *Engine) Resync(ctx context.Context, sku string) (*marketplace.SyncReport, error) {
	qty, err := e.stocks.GetQuantity(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("stocksync: read authoritative quantity for %s: %w", sku, err)
	}
	return e.SyncStock(ctx, marketplace.SyncTask{SKU: sku, NewQuantity: qty}), nil
}

func (e *Engine) updateTarget(ctx context.Context, name string, task marketplace.SyncTask) marketplace.TargetResult {
	adapter, err := e.registry.Get(name)
	if err != nil {
		return marketplace.TargetResult{Success: false, Error: err.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.targetTimeout)
	defer cancel()

	items := []marketplace.StockItem{{SKU: task.SKU, Quantity: task.NewQuantity}}
	if err := adapter.UpdateStock(callCtx, items); err != nil {
		e.logger.Warn("marketplace stock update failed",
			zap.String("marketplace", name),
			zap.String("sku", task.SKU),
			zap.Error(err),
		)
		return marketplace.TargetResult{Success: false, Error: err.Error()}
	}
	return marketplace.TargetResult{Success: true}
}

func (e *Engine) persist(ctx context.Context, report *marketplace.SyncReport) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, report); err != nil {
		e.logger.Warn("failed to persist sync report",
			zap.String("report_id", report.ID.String()),
			zap.Error(err),
		)
	}
}

func (e *Engine) emit(ctx context.Context, task marketplace.SyncTask, report *marketplace.SyncReport, start time.Time) {
	status := audit.StatusSuccess
	if !report.AllSucceeded() {
		status = audit.StatusPartial
		if len(report.FailedTargets()) == len(report.Targets) {
			status = audit.StatusFailure
		}
	}
	rec := audit.NewRecord("stocksync", "fan_out", status, time.Since(start)).
		WithID("sku", task.SKU).
		WithID("report_id", report.ID.String()).
		WithID("quantity", fmt.Sprintf("%d", task.NewQuantity))
	if task.OriginMarketplace != "" {
		rec = rec.WithID("origin", task.OriginMarketplace)
	}
	e.sink.Emit(ctx, rec)
}
