package materialize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/audit"
	"github.com/channelsync/backend/internal/domain/erp"
	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/order"
)

// ErrDuplicateOrder indicates the marketplace order was already
// materialized. Re-delivered webhooks must not create a second sales
// order or double-reduce stock.
var ErrDuplicateOrder = errors.New("materialize: order already materialized")

// PipelineError reports which step of the materialization pipeline failed.
// Steps already completed are NOT rolled back; the error carries enough
// context for manual reconciliation.
type PipelineError struct {
	// Step is the pipeline step that failed
	Step string
	// ExternalRef identifies the order being materialized
	ExternalRef string
	// SalesOrderID is set when the failure happened after order creation
	SalesOrderID int64
	// Err is the underlying failure
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.SalesOrderID != 0 {
		return fmt.Sprintf("materialize: step %q failed for %s (sales order %d already created): %v",
			e.Step, e.ExternalRef, e.SalesOrderID, e.Err)
	}
	return fmt.Sprintf("materialize: step %q failed for %s: %v", e.Step, e.ExternalRef, e.Err)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error { return e.Err }

// TaskScheduler hands completed stock movements to the synchronization
// engine, one task per SKU.
type TaskScheduler interface {
	ScheduleSync(ctx context.Context, task marketplace.SyncTask) error
}

// StockReducer runs the two-phase ERP stock reduction protocol.
type StockReducer interface {
	Reduce(ctx context.Context, sku string, qty int64, orderRef string) (*erp.StockMovement, error)
}

// Result is the outcome of materializing one canonical order.
type Result struct {
	// SalesOrderID is the created ERP sales order
	SalesOrderID int64
	// OrderNumber is the ERP-assigned order number
	OrderNumber string
	// ExternalRef is the idempotent external reference
	ExternalRef string
	// Movements are the per-line stock reductions, shipping excluded
	Movements []erp.StockMovement
	// Warnings are non-fatal issues (e.g. unresolvable shipping product)
	Warnings []string
}

// Config holds materializer settings.
type Config struct {
	// TaxRate is the fixed gross-to-net multiplier: net = gross / (1+TaxRate)
	TaxRate decimal.Decimal
	// RefPrefixes maps lowercase marketplace name to its external
	// reference prefix; missing entries fall back to the uppercased name
	RefPrefixes map[string]string
	// ShippingSKUs maps lowercase marketplace name to the synthetic
	// shipping product SKU
	ShippingSKUs map[string]string
}

// ExternalRef derives the idempotent sales order reference for an order.
func (c Config) ExternalRef(o *order.Order) string {
	name := strings.ToLower(o.MarketplaceName)
	prefix, ok := c.RefPrefixes[name]
	if !ok {
		prefix = strings.ToUpper(o.MarketplaceName)
	}
	return prefix + "-" + o.ExternalOrderID
}

// Materializer turns one canonical order into ERP state end-to-end:
// customer, optional billing contact, sales order, confirmation, stock
// reduction per line, and one sync task per reduced SKU. It fails fast:
// any step failing aborts the remaining steps without rolling back
// completed ERP writes.
type Materializer struct {
	client    erp.Client
	stocks    StockReducer
	scheduler TaskScheduler
	cfg       Config
	logger    *zap.Logger
	sink      audit.Sink
}

// NewMaterializer creates an order materializer.
func NewMaterializer(client erp.Client, stocks StockReducer, scheduler TaskScheduler, cfg Config, logger *zap.Logger, sink audit.Sink) *Materializer {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Materializer{
		client:    client,
		stocks:    stocks,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
		sink:      sink,
	}
}

// Process materializes one canonical order. It is the unit of work run by
// the process-order queue lane.
func (m *Materializer) Process(ctx context.Context, o *order.Order) (*Result, error) {
	start := time.Now()
	result, err := m.run(ctx, o)

	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusFailure
		var pipeErr *PipelineError
		if errors.As(err, &pipeErr) && pipeErr.SalesOrderID != 0 {
			status = audit.StatusPartial
		}
	}
	rec := audit.NewRecord("materializer", "process_order", status, time.Since(start)).
		WithID("marketplace", o.MarketplaceName).
		WithID("external_order_id", o.ExternalOrderID).
		WithError(err)
	if result != nil {
		rec = rec.WithID("sales_order_id", fmt.Sprintf("%d", result.SalesOrderID))
	}
	m.sink.Emit(ctx, rec)

	return result, err
}

func (m *Materializer) run(ctx context.Context, o *order.Order) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, &PipelineError{Step: "validate", ExternalRef: o.DedupKey(), Err: err}
	}

	ref := m.cfg.ExternalRef(o)
	fail := func(step string, salesOrderID int64, err error) error {
		return &PipelineError{Step: step, ExternalRef: ref, SalesOrderID: salesOrderID, Err: err}
	}

	// Re-delivered webhooks must not materialize twice.
	if existing, err := m.client.FindSalesOrderByRef(ctx, ref); err == nil && existing != nil {
		m.logger.Info("skipping already materialized order",
			zap.String("external_ref", ref),
			zap.Int64("sales_order_id", existing.ID),
		)
		return nil, fmt.Errorf("%w: %s is sales order %d", ErrDuplicateOrder, ref, existing.ID)
	} else if err != nil && !errors.Is(err, erp.ErrSalesOrderNotFound) {
		return nil, fail("dedup_check", 0, err)
	}

	customerID, err := m.client.FindOrCreateCustomer(ctx, erp.CustomerInput{
		Name:  o.Customer.Name,
		Email: o.Customer.Email,
		Phone: o.Customer.Phone,
		TaxID: o.Customer.TaxID,
	})
	if err != nil {
		return nil, fail("resolve_customer", 0, err)
	}

	var billingContactID int64
	if o.Customer.HasBillingIdentity() {
		billingContactID, err = m.client.FindOrCreateBillingContact(ctx, erp.BillingContactInput{
			ParentID: customerID,
			Name:     o.Customer.BillingName,
			TaxID:    o.Customer.BillingTaxID,
		})
		if err != nil {
			return nil, fail("resolve_billing_contact", 0, err)
		}
	}

	lines, warnings, err := m.resolveLines(ctx, o)
	if err != nil {
		return nil, fail("resolve_lines", 0, err)
	}

	salesOrder, err := m.client.CreateSalesOrder(ctx, erp.SalesOrderInput{
		CustomerID:       customerID,
		BillingContactID: billingContactID,
		ExternalRef:      ref,
		Lines:            lines,
	})
	if err != nil {
		return nil, fail("create_sales_order", 0, err)
	}

	if err := m.client.ConfirmSalesOrder(ctx, salesOrder.ID); err != nil {
		return nil, fail("confirm_sales_order", salesOrder.ID, err)
	}

	// Reduce stock per ordered line, shipping excluded. A failure here
	// leaves a confirmed order with only some lines reduced; that partial
	// state is surfaced, not rolled back.
	movements := make([]erp.StockMovement, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		movement, err := m.stocks.Reduce(ctx, li.SKU, li.Quantity, ref)
		if err != nil {
			m.logger.Error("stock reduction failed mid-order, manual reconciliation required",
				zap.String("external_ref", ref),
				zap.Int64("sales_order_id", salesOrder.ID),
				zap.String("sku", li.SKU),
				zap.Int("lines_reduced", len(movements)),
				zap.Int("lines_total", len(o.LineItems)),
				zap.Error(err),
			)
			return nil, fail("reduce_stock", salesOrder.ID, err)
		}
		movements = append(movements, *movement)
	}

	for _, movement := range movements {
		task := marketplace.SyncTask{
			SKU:               movement.SKU,
			NewQuantity:       movement.NewStock,
			OriginMarketplace: o.MarketplaceName,
			RelatedOrderID:    &salesOrder.ID,
		}
		if err := m.scheduler.ScheduleSync(ctx, task); err != nil {
			return nil, fail("schedule_sync", salesOrder.ID, err)
		}
	}

	m.logger.Info("order materialized",
		zap.String("external_ref", ref),
		zap.Int64("sales_order_id", salesOrder.ID),
		zap.Int("lines", len(movements)),
		zap.Strings("warnings", warnings),
	)

	return &Result{
		SalesOrderID: salesOrder.ID,
		OrderNumber:  salesOrder.Number,
		ExternalRef:  ref,
		Movements:    movements,
		Warnings:     warnings,
	}, nil
}

// resolveLines resolves every ordered SKU to an ERP product and converts
// gross marketplace prices to the ERP's net convention. A missing product
// aborts the whole order; an unresolvable shipping product only drops the
// shipping line with a warning.
func (m *Materializer) resolveLines(ctx context.Context, o *order.Order) ([]erp.SalesOrderLine, []string, error) {
	divisor := decimal.NewFromInt(1).Add(m.cfg.TaxRate)

	lines := make([]erp.SalesOrderLine, 0, len(o.LineItems)+1)
	for _, li := range o.LineItems {
		product, err := m.client.ResolveProductBySKU(ctx, li.SKU)
		if err != nil {
			return nil, nil, fmt.Errorf("line %s: %w", li.SKU, err)
		}
		lines = append(lines, erp.SalesOrderLine{
			ProductID: product.ID,
			Name:      li.DisplayName,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice.Div(divisor).Round(2),
		})
	}

	var warnings []string
	if o.HasShipping() {
		shippingSKU, ok := m.cfg.ShippingSKUs[strings.ToLower(o.MarketplaceName)]
		if !ok {
			shippingSKU = ""
		}
		product, err := m.resolveShipping(ctx, shippingSKU)
		if err != nil {
			warning := fmt.Sprintf("shipping product unresolved for %s, shipping line dropped: %v", o.MarketplaceName, err)
			m.logger.Warn("dropping shipping line",
				zap.String("marketplace", o.MarketplaceName),
				zap.String("shipping_sku", shippingSKU),
				zap.Error(err),
			)
			warnings = append(warnings, warning)
		} else {
			lines = append(lines, erp.SalesOrderLine{
				ProductID: product.ID,
				Name:      "Shipping",
				Quantity:  1,
				UnitPrice: o.ShippingFee.Div(divisor).Round(2),
			})
		}
	}

	return lines, warnings, nil
}

func (m *Materializer) resolveShipping(ctx context.Context, shippingSKU string) (*erp.ProductRef, error) {
	if shippingSKU == "" {
		return nil, fmt.Errorf("no shipping SKU configured")
	}
	return m.client.ResolveProductBySKU(ctx, shippingSKU)
}
