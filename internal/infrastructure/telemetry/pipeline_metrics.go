// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PipelineMetrics tracks the order-to-stock reconciliation pipeline:
// webhook intake, order materialization, ERP stock mutations, marketplace
// fan-out, and queue health.
type PipelineMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	webhooksReceivedTotal   *Counter
	ordersProcessedTotal    *Counter
	stockMutationsTotal     *Counter
	marketplaceUpdatesTotal *Counter

	// Distribution metrics
	orderProcessingDuration *Histogram

	// Gauge metrics (point-in-time values)
	queueDepth      *Gauge
	deadLetterDepth *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	queueProvider QueueMetricsProvider
}

// QueueMetricsProvider provides queue depth data for periodic metrics
// collection. This interface allows the telemetry layer to observe queue
// state without depending on the queue package directly.
type QueueMetricsProvider interface {
	// Depths returns the number of waiting jobs per lane
	Depths(ctx context.Context) (map[string]int64, error)

	// DeadLetterDepths returns the number of parked jobs per lane
	DeadLetterDepths(ctx context.Context) (map[string]int64, error)
}

// PipelineMetricsConfig holds configuration for pipeline metrics.
type PipelineMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	QueueProvider   QueueMetricsProvider
}

// NewPipelineMetrics creates a new PipelineMetrics instance.
func NewPipelineMetrics(cfg PipelineMetricsConfig) (*PipelineMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PipelineMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		queueProvider: cfg.QueueProvider,
	}

	var err error

	pm.webhooksReceivedTotal, err = NewCounter(
		cfg.Meter,
		"channelsync_webhooks_received_total",
		"Total number of webhook deliveries received",
		"{deliveries}",
	)
	if err != nil {
		return nil, err
	}

	pm.ordersProcessedTotal, err = NewCounter(
		cfg.Meter,
		"channelsync_orders_processed_total",
		"Total number of marketplace orders materialized in the ERP",
		"{orders}",
	)
	if err != nil {
		return nil, err
	}

	pm.stockMutationsTotal, err = NewCounter(
		cfg.Meter,
		"channelsync_stock_mutations_total",
		"Total number of ERP stock mutations applied",
		"{mutations}",
	)
	if err != nil {
		return nil, err
	}

	pm.marketplaceUpdatesTotal, err = NewCounter(
		cfg.Meter,
		"channelsync_marketplace_updates_total",
		"Total number of per-target marketplace stock pushes",
		"{updates}",
	)
	if err != nil {
		return nil, err
	}

	pm.orderProcessingDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "channelsync_order_processing_duration_seconds",
		Description: "Order materialization duration",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	pm.queueDepth, err = NewGauge(
		cfg.Meter,
		"channelsync_queue_depth",
		"Current number of jobs waiting per lane",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	pm.deadLetterDepth, err = NewGauge(
		cfg.Meter,
		"channelsync_dead_letter_depth",
		"Current number of parked jobs per lane",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// =============================================================================
// Webhook Metrics
// =============================================================================

// WebhookOutcome labels the intake result of a webhook delivery.
type WebhookOutcome string

const (
	WebhookOutcomeAccepted         WebhookOutcome = "accepted"
	WebhookOutcomeDuplicate        WebhookOutcome = "duplicate"
	WebhookOutcomeInvalidSignature WebhookOutcome = "invalid_signature"
	WebhookOutcomeInvalidPayload   WebhookOutcome = "invalid_payload"
)

// RecordWebhookReceived records one webhook delivery and its intake outcome.
func (pm *PipelineMetrics) RecordWebhookReceived(ctx context.Context, marketplace string, outcome WebhookOutcome) {
	pm.webhooksReceivedTotal.Inc(ctx,
		AttrMarketplace.String(marketplace),
		AttrOutcome.String(string(outcome)),
	)
}

// =============================================================================
// Order Metrics
// =============================================================================

// OrderOutcome labels the result of an order materialization run.
type OrderOutcome string

const (
	OrderOutcomeSuccess   OrderOutcome = "success"
	OrderOutcomeDuplicate OrderOutcome = "duplicate"
	OrderOutcomeFailed    OrderOutcome = "failed"
)

// RecordOrderProcessed records one materialization run with its duration.
func (pm *PipelineMetrics) RecordOrderProcessed(ctx context.Context, marketplace string, outcome OrderOutcome, duration time.Duration) {
	pm.ordersProcessedTotal.Inc(ctx,
		AttrMarketplace.String(marketplace),
		AttrOutcome.String(string(outcome)),
	)
	pm.orderProcessingDuration.RecordDuration(ctx, duration,
		AttrMarketplace.String(marketplace),
		AttrOutcome.String(string(outcome)),
	)
}

// =============================================================================
// Stock Metrics
// =============================================================================

// RecordStockMutation records one ERP stock mutation attempt.
func (pm *PipelineMetrics) RecordStockMutation(ctx context.Context, sku string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failed"
	}
	pm.stockMutationsTotal.Inc(ctx,
		AttrSKU.String(sku),
		AttrOutcome.String(outcome),
	)
}

// RecordMarketplaceUpdate records one per-target stock push during fan-out.
func (pm *PipelineMetrics) RecordMarketplaceUpdate(ctx context.Context, marketplace string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failed"
	}
	pm.marketplaceUpdatesTotal.Inc(ctx,
		AttrMarketplace.String(marketplace),
		AttrOutcome.String(outcome),
	)
}

// =============================================================================
// Queue Metrics
// =============================================================================

// RecordQueueDepth records the current depth of one lane.
func (pm *PipelineMetrics) RecordQueueDepth(ctx context.Context, lane string, depth int64) {
	pm.queueDepth.Record(ctx, depth, AttrLane.String(lane))
}

// RecordDeadLetterDepth records the current dead-letter depth of one lane.
func (pm *PipelineMetrics) RecordDeadLetterDepth(ctx context.Context, lane string, depth int64) {
	pm.deadLetterDepth.Record(ctx, depth, AttrLane.String(lane))
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of queue gauges.
// This is non-blocking - use Stop() to stop collection.
func (pm *PipelineMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}

		go pm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (pm *PipelineMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	pm.collectQueueMetrics(ctx)

	for {
		select {
		case <-pm.stopChan:
			pm.logger.Info("stopping periodic pipeline metrics collection")
			return
		case <-ctx.Done():
			pm.logger.Info("context cancelled, stopping periodic pipeline metrics collection")
			return
		case <-ticker.C:
			pm.collectQueueMetrics(ctx)
		}
	}
}

// collectQueueMetrics records queue gauges for every lane.
func (pm *PipelineMetrics) collectQueueMetrics(ctx context.Context) {
	if pm.queueProvider == nil {
		pm.logger.Debug("no queue provider configured, skipping queue metrics collection")
		return
	}

	depths, err := pm.queueProvider.Depths(ctx)
	if err != nil {
		pm.logger.Warn("failed to collect queue depths", zap.Error(err))
	} else {
		for lane, depth := range depths {
			pm.RecordQueueDepth(ctx, lane, depth)
		}
	}

	deadDepths, err := pm.queueProvider.DeadLetterDepths(ctx)
	if err != nil {
		pm.logger.Warn("failed to collect dead letter depths", zap.Error(err))
	} else {
		for lane, depth := range deadDepths {
			pm.RecordDeadLetterDepth(ctx, lane, depth)
		}
	}
}

// Stop stops the periodic collection.
func (pm *PipelineMetrics) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPipelineMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
