package stocksync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/channels"
	"github.com/shopflow/backend/internal/infrastructure/event"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/retry"
)

// stockCall records one UpdateStock invocation
type stockCall struct {
	RemoteItemID string
	Quantity     int
}

// stubChannel records stock pushes and fails scripted items
type stubChannel struct {
	mu    sync.Mutex
	code  channel.Code
	errs  map[string][]error
	calls []stockCall
}

func newStubChannel(code channel.Code) *stubChannel {
	return &stubChannel{code: code, errs: make(map[string][]error)}
}

func (c *stubChannel) Code() channel.Code { return c.code }

func (c *stubChannel) ListNewOrders(ctx context.Context, cursor string) ([]channel.Order, string, error) {
	return nil, cursor, nil
}

func (c *stubChannel) GetOrder(ctx context.Context, channelOrderID string) (*channel.Order, error) {
	return nil, shared.ErrNotFound
}

func (c *stubChannel) ConfirmOrder(ctx context.Context, channelOrderID string) error { return nil }

func (c *stubChannel) RegisterTracking(ctx context.Context, channelOrderID, carrierCode, trackingNumber string) error {
	return nil
}

func (c *stubChannel) UpdateStock(ctx context.Context, remoteItemID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.errs[remoteItemID]
	if len(queue) > 0 {
		c.errs[remoteItemID] = queue[1:]
		return queue[0]
	}
	c.calls = append(c.calls, stockCall{RemoteItemID: remoteItemID, Quantity: quantity})
	return nil
}

func (c *stubChannel) ListClaims(ctx context.Context, since time.Time) ([]channel.Claim, error) {
	return nil, nil
}

// fakeProductRepo is a minimal in-memory catalog.Repository
type fakeProductRepo struct {
	mu        sync.Mutex
	products  map[uuid.UUID]*catalog.Product
	movements []*catalog.StockMovement
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[uuid.UUID]*catalog.Product)}
}

func (r *fakeProductRepo) Save(ctx context.Context, product *catalog.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *product
	r.products[product.ID] = &clone
	return nil
}

func (r *fakeProductRepo) Update(ctx context.Context, product *catalog.Product) error {
	return r.Save(ctx, product)
}

func (r *fakeProductRepo) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *product
	return &clone, nil
}

func (r *fakeProductRepo) FindBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeProductRepo) FindByChannelLink(ctx context.Context, code channel.Code, remoteItemID string) (*catalog.Product, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeProductRepo) List(ctx context.Context, filter shared.Filter) (shared.Page[*catalog.Product], error) {
	return shared.Page[*catalog.Product]{}, nil
}

func (r *fakeProductRepo) ListLinked(ctx context.Context, code channel.Code) ([]*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*catalog.Product
	for _, product := range r.products {
		if _, ok := product.RemoteItemID(code); ok {
			clone := *product
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeProductRepo) SaveMovement(ctx context.Context, movement *catalog.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements = append(r.movements, movement)
	return nil
}

func (r *fakeProductRepo) ListMovements(ctx context.Context, productID uuid.UUID, filter shared.Filter) (shared.Page[*catalog.StockMovement], error) {
	return shared.Page[*catalog.StockMovement]{}, nil
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []shared.DomainEvent
}

func (h *recordingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev)
	return nil
}

func (h *recordingHandler) EventTypes() []string { return nil }

func retryable(err error) bool { return channel.IsRetryable(err) }

func newTestService(registry channel.Registry, products catalog.Repository, bus shared.EventBus) *Service {
	return NewService(registry, products, retry.NewPolicy(2, 0, 0, 0, retryable), keymutex.New(), bus, 4, zap.NewNop())
}

func addProduct(t *testing.T, repo *fakeProductRepo, sku string, stock, threshold int, links map[channel.Code]string) *catalog.Product {
	t.Helper()
	product, err := catalog.NewProduct(sku, sku+" 상품", decimal.NewFromInt(10000), stock, threshold)
	require.NoError(t, err)
	for code, remoteID := range links {
		require.NoError(t, product.LinkChannel(code, remoteID))
	}
	require.NoError(t, repo.Save(context.Background(), product))
	return product
}

func TestSyncAllPushesEveryLink(t *testing.T) {
	naver := newStubChannel(channel.CodeNaver)
	coupang := newStubChannel(channel.CodeCoupang)
	repo := newFakeProductRepo()
	addProduct(t, repo, "SKU-1", 10, 0, map[channel.Code]string{
		channel.CodeNaver: "N-R1", channel.CodeCoupang: "C-R1",
	})
	addProduct(t, repo, "SKU-2", 5, 0, map[channel.Code]string{
		channel.CodeNaver: "N-R2",
	})

	svc := newTestService(channels.NewRegistryWith(naver, coupang), repo, nil)
	summary, err := svc.SyncAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Pushed)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, naver.calls, 2)
	assert.Len(t, coupang.calls, 1)
	assert.Equal(t, stockCall{RemoteItemID: "C-R1", Quantity: 10}, coupang.calls[0])
}

func TestSyncAllPartialFailureIsIsolated(t *testing.T) {
	naver := newStubChannel(channel.CodeNaver)
	coupang := newStubChannel(channel.CodeCoupang)
	// Exhaust the 2-attempt policy on naver only.
	naver.errs["N-R1"] = []error{channel.ErrTransient, channel.ErrTransient}

	repo := newFakeProductRepo()
	addProduct(t, repo, "P-1", 10, 0, map[channel.Code]string{
		channel.CodeNaver: "N-R1", channel.CodeCoupang: "C-R1",
	})

	svc := newTestService(channels.NewRegistryWith(naver, coupang), repo, nil)
	summary, err := svc.SyncAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pushed)
	assert.Equal(t, 1, summary.Failed)
	// The successful coupang push is not repeated for the failure.
	assert.Len(t, coupang.calls, 1)
}

func TestSyncAllIsIdempotent(t *testing.T) {
	naver := newStubChannel(channel.CodeNaver)
	repo := newFakeProductRepo()
	addProduct(t, repo, "SKU-1", 7, 0, map[channel.Code]string{channel.CodeNaver: "N-R1"})

	svc := newTestService(channels.NewRegistryWith(naver), repo, nil)
	_, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	_, err = svc.SyncAll(context.Background())
	require.NoError(t, err)

	require.Len(t, naver.calls, 2)
	assert.Equal(t, naver.calls[0], naver.calls[1])
}

func TestSyncAllFlagsLowStockOncePerProduct(t *testing.T) {
	naver := newStubChannel(channel.CodeNaver)
	coupang := newStubChannel(channel.CodeCoupang)
	repo := newFakeProductRepo()
	addProduct(t, repo, "SKU-1", 2, 3, map[channel.Code]string{
		channel.CodeNaver: "N-R1", channel.CodeCoupang: "C-R1",
	})

	bus := event.NewInMemoryBus(zap.NewNop())
	alerts := &recordingHandler{}
	bus.Subscribe(alerts, event.TypeLowStockDetected)

	svc := newTestService(channels.NewRegistryWith(naver, coupang), repo, bus)
	summary, err := svc.SyncAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.LowStock)
	assert.Len(t, alerts.seen, 1)
	// Low stock still syncs normally.
	assert.Equal(t, 2, summary.Pushed)
}

func TestAdjustStock(t *testing.T) {
	naver := newStubChannel(channel.CodeNaver)
	repo := newFakeProductRepo()
	product := addProduct(t, repo, "SKU-1", 10, 0, map[channel.Code]string{channel.CodeNaver: "N-R1"})

	svc := newTestService(channels.NewRegistryWith(naver), repo, nil)
	adjusted, err := svc.AdjustStock(context.Background(), product.ID, -4, "실사 보정")

	require.NoError(t, err)
	assert.Equal(t, 6, adjusted.StockQuantity)
	require.Len(t, repo.movements, 1)
	assert.Equal(t, catalog.ReasonAdjustment, repo.movements[0].Reason)
	assert.Equal(t, 10, repo.movements[0].QuantityBefore)
	assert.Equal(t, 6, repo.movements[0].QuantityAfter)

	// The correction is pushed out immediately.
	require.Len(t, naver.calls, 1)
	assert.Equal(t, stockCall{RemoteItemID: "N-R1", Quantity: 6}, naver.calls[0])
}

func TestAdjustStockRejectsNegativeResult(t *testing.T) {
	repo := newFakeProductRepo()
	product := addProduct(t, repo, "SKU-1", 3, 0, map[channel.Code]string{channel.CodeNaver: "N-R1"})

	svc := newTestService(channels.NewRegistryWith(newStubChannel(channel.CodeNaver)), repo, nil)
	_, err := svc.AdjustStock(context.Background(), product.ID, -5, "oops")

	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Empty(t, repo.movements)
}
