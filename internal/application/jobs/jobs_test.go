package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/application/materialize"
	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/order"
	"github.com/channelsync/backend/internal/infrastructure/queue"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeProcessor struct {
	mu     sync.Mutex
	orders []order.Order
	err    error
}

func (p *fakeProcessor) Process(_ context.Context, o *order.Order) (*materialize.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, *o)
	if p.err != nil {
		return nil, p.err
	}
	return &materialize.Result{SalesOrderID: 1}, nil
}

type fakeSyncer struct {
	mu    sync.Mutex
	tasks []marketplace.SyncTask
}

func (s *fakeSyncer) SyncStock(_ context.Context, task marketplace.SyncTask) *marketplace.SyncReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return &marketplace.SyncReport{SKU: task.SKU}
}

type fakeAdapter struct {
	mu    sync.Mutex
	code  marketplace.Code
	items []marketplace.StockItem
}

func (a *fakeAdapter) Code() marketplace.Code { return a.code }

func (a *fakeAdapter) UpdateStock(_ context.Context, items []marketplace.StockItem) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, items...)
	return nil
}

func (a *fakeAdapter) ParseOrderWebhook([]byte, string) (*order.Order, error) {
	return nil, marketplace.ErrInvalidPayload
}

type singleRegistry struct {
	adapter *fakeAdapter
}

func (r *singleRegistry) Get(name string) (marketplace.Marketplace, error) {
	if r.adapter.code.Equals(name) {
		return r.adapter, nil
	}
	return nil, marketplace.ErrAdapterNotConfigured
}

func (r *singleRegistry) All() []marketplace.Marketplace {
	return []marketplace.Marketplace{r.adapter}
}

func (r *singleRegistry) Names() []string {
	return []string{r.adapter.code.String()}
}

func testOrder() order.Order {
	return order.Order{
		MarketplaceName: "shopee",
		ExternalOrderID: "SO-100",
		Customer:        order.Customer{Name: "Ana", Email: "ana@example.com"},
		LineItems: []order.LineItem{
			{SKU: "A1", Quantity: 2, UnitPrice: decimal.RequireFromString("11.90")},
		},
	}
}

// ---------------------------------------------------------------------------
// Enqueuer
// ---------------------------------------------------------------------------

func TestEnqueuerProcessOrderJobShape(t *testing.T) {
	broker := queue.NewMemoryBroker()
	enq := NewEnqueuer(broker)

	o := testOrder()
	job, err := enq.EnqueueProcessOrder(context.Background(), &o)
	require.NoError(t, err)
	assert.Equal(t, queue.LaneProcessOrder, job.Lane)
	assert.Equal(t, KindProcessOrder, job.Kind)

	queued, err := broker.Dequeue(context.Background(), queue.LaneProcessOrder)
	require.NoError(t, err)

	var payload ProcessOrderPayload
	require.NoError(t, queued.Decode(&payload))
	assert.Equal(t, "SO-100", payload.Order.ExternalOrderID)
	assert.Equal(t, "shopee", payload.Order.MarketplaceName)
}

func TestEnqueuerScheduleSyncUsesSyncLane(t *testing.T) {
	broker := queue.NewMemoryBroker()
	enq := NewEnqueuer(broker)

	orderID := int64(900)
	err := enq.ScheduleSync(context.Background(), marketplace.SyncTask{
		SKU:               "A1",
		NewQuantity:       8,
		OriginMarketplace: "shopee",
		RelatedOrderID:    &orderID,
	})
	require.NoError(t, err)

	queued, err := broker.Dequeue(context.Background(), queue.LaneSyncStock)
	require.NoError(t, err)
	assert.Equal(t, KindSyncStock, queued.Kind)

	var payload SyncStockPayload
	require.NoError(t, queued.Decode(&payload))
	assert.Equal(t, "A1", payload.Task.SKU)
	assert.Equal(t, int64(8), payload.Task.NewQuantity)
	require.NotNil(t, payload.Task.RelatedOrderID)
	assert.Equal(t, int64(900), *payload.Task.RelatedOrderID)
}

func TestEnqueuerMarketplaceUpdateUsesUpdateLane(t *testing.T) {
	broker := queue.NewMemoryBroker()
	enq := NewEnqueuer(broker)

	job, err := enq.EnqueueMarketplaceUpdate(context.Background(), "lazada", "B2", 5)
	require.NoError(t, err)
	assert.Equal(t, queue.LaneUpdateMarketplace, job.Lane)

	queued, err := broker.Dequeue(context.Background(), queue.LaneUpdateMarketplace)
	require.NoError(t, err)
	assert.Equal(t, KindUpdateMarketplace, queued.Kind)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func TestHandleProcessOrderRunsMaterializer(t *testing.T) {
	processor := &fakeProcessor{}
	h := NewHandlers(processor, &fakeSyncer{}, &singleRegistry{adapter: &fakeAdapter{code: marketplace.CodeShopee}}, zap.NewNop())

	o := testOrder()
	job, err := queue.NewJob(queue.LaneProcessOrder, KindProcessOrder, ProcessOrderPayload{Order: o})
	require.NoError(t, err)

	require.NoError(t, h.HandleProcessOrder(context.Background(), job))
	require.Len(t, processor.orders, 1)
	assert.Equal(t, "SO-100", processor.orders[0].ExternalOrderID)
}

func TestHandleProcessOrderTreatsDuplicateAsHandled(t *testing.T) {
	processor := &fakeProcessor{err: materialize.ErrDuplicateOrder}
	h := NewHandlers(processor, &fakeSyncer{}, &singleRegistry{adapter: &fakeAdapter{code: marketplace.CodeShopee}}, zap.NewNop())

	o := testOrder()
	job, err := queue.NewJob(queue.LaneProcessOrder, KindProcessOrder, ProcessOrderPayload{Order: o})
	require.NoError(t, err)

	assert.NoError(t, h.HandleProcessOrder(context.Background(), job))
}

func TestHandleProcessOrderPropagatesFailure(t *testing.T) {
	wantErr := errors.New("erp unreachable")
	processor := &fakeProcessor{err: wantErr}
	h := NewHandlers(processor, &fakeSyncer{}, &singleRegistry{adapter: &fakeAdapter{code: marketplace.CodeShopee}}, zap.NewNop())

	o := testOrder()
	job, err := queue.NewJob(queue.LaneProcessOrder, KindProcessOrder, ProcessOrderPayload{Order: o})
	require.NoError(t, err)

	assert.ErrorIs(t, h.HandleProcessOrder(context.Background(), job), wantErr)
}

func TestHandleSyncStockInvokesEngine(t *testing.T) {
	syncer := &fakeSyncer{}
	h := NewHandlers(&fakeProcessor{}, syncer, &singleRegistry{adapter: &fakeAdapter{code: marketplace.CodeShopee}}, zap.NewNop())

	job, err := queue.NewJob(queue.LaneSyncStock, KindSyncStock, SyncStockPayload{
		Task: marketplace.SyncTask{SKU: "A1", NewQuantity: 3, OriginMarketplace: "shopee"},
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleSyncStock(context.Background(), job))
	require.Len(t, syncer.tasks, 1)
	assert.Equal(t, "A1", syncer.tasks[0].SKU)
}

func TestHandleUpdateMarketplacePushesSingleTarget(t *testing.T) {
	adapter := &fakeAdapter{code: marketplace.CodeLazada}
	h := NewHandlers(&fakeProcessor{}, &fakeSyncer{}, &singleRegistry{adapter: adapter}, zap.NewNop())

	job, err := queue.NewJob(queue.LaneUpdateMarketplace, KindUpdateMarketplace, UpdateMarketplacePayload{
		Marketplace: "lazada",
		SKU:         "B2",
		Quantity:    5,
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleUpdateMarketplace(context.Background(), job))
	require.Len(t, adapter.items, 1)
	assert.Equal(t, marketplace.StockItem{SKU: "B2", Quantity: 5}, adapter.items[0])
}

func TestHandleUpdateMarketplaceUnknownTarget(t *testing.T) {
	h := NewHandlers(&fakeProcessor{}, &fakeSyncer{}, &singleRegistry{adapter: &fakeAdapter{code: marketplace.CodeLazada}}, zap.NewNop())

	job, err := queue.NewJob(queue.LaneUpdateMarketplace, KindUpdateMarketplace, UpdateMarketplacePayload{
		Marketplace: "tiktok",
		SKU:         "B2",
		Quantity:    5,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, h.HandleUpdateMarketplace(context.Background(), job), marketplace.ErrAdapterNotConfigured)
}

func TestHandlersEndToEndThroughDispatcher(t *testing.T) {
	broker := queue.NewMemoryBroker()
	d := queue.NewDispatcher(broker, queue.DefaultLanes(), zap.NewNop())

	processor := &fakeProcessor{}
	syncer := &fakeSyncer{}
	h := NewHandlers(processor, syncer, &singleRegistry{adapter: &fakeAdapter{code: marketplace.CodeShopee}}, zap.NewNop())
	h.RegisterAll(d)

	d.Start(context.Background())
	defer d.Stop()

	enq := NewEnqueuer(broker)
	o := testOrder()
	_, err := enq.EnqueueProcessOrder(context.Background(), &o)
	require.NoError(t, err)
	require.NoError(t, enq.ScheduleSync(context.Background(), marketplace.SyncTask{SKU: "A1", NewQuantity: 8, OriginMarketplace: "shopee"}))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		processor.mu.Lock()
		gotOrder := len(processor.orders) == 1
		processor.mu.Unlock()
		syncer.mu.Lock()
		gotTask := len(syncer.tasks) == 1
		syncer.mu.Unlock()
		if gotOrder && gotTask {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("jobs were not consumed in time")
}
