package invoicing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/carriers"
	"github.com/shopflow/backend/internal/infrastructure/channels"
	"github.com/shopflow/backend/internal/infrastructure/config"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/retry"
	"github.com/shopflow/backend/internal/infrastructure/runlock"
)

// fakeOrderRepo is an in-memory OrderRepository that mimics the store's
// uniqueness and claim-exclusion semantics
type fakeOrderRepo struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*fulfillment.Order
	openClaims map[uuid.UUID]bool
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:     make(map[uuid.UUID]*fulfillment.Order),
		openClaims: make(map[uuid.UUID]bool),
	}
}

func (r *fakeOrderRepo) Save(ctx context.Context, order *fulfillment.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.Channel == order.Channel && existing.ChannelOrderID == order.ChannelOrderID {
			return shared.ErrAlreadyExists
		}
	}
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *fakeOrderRepo) Update(ctx context.Context, order *fulfillment.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (r *fakeOrderRepo) FindByChannelOrderID(ctx context.Context, code channel.Code, channelOrderID string) (*fulfillment.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.Channel == code && order.ChannelOrderID == channelOrderID {
			clone := *order
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeOrderRepo) List(ctx context.Context, filter fulfillment.OrderFilter) (shared.Page[*fulfillment.Order], error) {
	return shared.Page[*fulfillment.Order]{}, nil
}

func (r *fakeOrderRepo) ListBatchable(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fulfillment.Order
	for _, order := range r.orders {
		if order.Status == status && !r.openClaims[order.ID] {
			clone := *order
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*fulfillment.BatchRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[uuid.UUID]*fulfillment.BatchRun)}
}

func (r *fakeRunRepo) Save(ctx context.Context, run *fulfillment.BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *fakeRunRepo) Update(ctx context.Context, run *fulfillment.BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *fakeRunRepo) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *run
	return &clone, nil
}

func (r *fakeRunRepo) FindByBatch(ctx context.Context, batchDate string, batchNumber int) (*fulfillment.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *fulfillment.BatchRun
	for _, run := range r.runs {
		if run.BatchDate != batchDate || run.BatchNumber != batchNumber {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, shared.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (r *fakeRunRepo) List(ctx context.Context, filter shared.Filter) (shared.Page[*fulfillment.BatchRun], error) {
	return shared.Page[*fulfillment.BatchRun]{}, nil
}

// fakeProductRepo holds products keyed by channel link
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
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, product := range r.products {
		if product.SKU == sku {
			clone := *product
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeProductRepo) FindByChannelLink(ctx context.Context, code channel.Code, remoteItemID string) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, product := range r.products {
		if id, ok := product.RemoteItemID(code); ok && id == remoteItemID {
			clone := *product
			return &clone, nil
		}
	}
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

// stubCarrier scripts per-reference failures; an empty queue succeeds
type stubCarrier struct {
	mu        sync.Mutex
	code      carrier.Code
	errs      map[string][]error
	callErrs  []error
	bulkCalls int
}

func newStubCarrier() *stubCarrier {
	return &stubCarrier{code: carrier.CodeCJ, errs: make(map[string][]error)}
}

func (c *stubCarrier) Code() carrier.Code { return c.code }

func (c *stubCarrier) pop(reference string) error {
	queue := c.errs[reference]
	if len(queue) == 0 {
		return nil
	}
	c.errs[reference] = queue[1:]
	return queue[0]
}

func (c *stubCarrier) IssueInvoice(ctx context.Context, req carrier.InvoiceRequest) (*carrier.InvoiceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pop(req.Reference); err != nil {
		return nil, err
	}
	return &carrier.InvoiceResult{Reference: req.Reference, TrackingNumber: "T-" + req.Reference, IssuedAt: time.Now()}, nil
}

func (c *stubCarrier) IssueInvoices(ctx context.Context, reqs []carrier.InvoiceRequest) ([]carrier.InvoiceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bulkCalls++
	if len(c.callErrs) > 0 {
		err := c.callErrs[0]
		c.callErrs = c.callErrs[1:]
		return nil, err
	}
	results := make([]carrier.InvoiceResult, 0, len(reqs))
	for _, req := range reqs {
		result := carrier.InvoiceResult{Reference: req.Reference, IssuedAt: time.Now()}
		if err := c.pop(req.Reference); err != nil {
			result.Err = err
		} else {
			result.TrackingNumber = "T-" + req.Reference
		}
		results = append(results, result)
	}
	return results, nil
}

func (c *stubCarrier) TrackShipment(ctx context.Context, trackingNumber string) ([]carrier.TrackingEvent, error) {
	return nil, nil
}

// stubChannel scripts confirm and register failures per channel order id
type stubChannel struct {
	mu           sync.Mutex
	code         channel.Code
	confirmErrs  map[string][]error
	registerErrs map[string][]error
	registered   map[string]string
	confirmed    map[string]int
}

func newStubChannel(code channel.Code) *stubChannel {
	return &stubChannel{
		code:         code,
		confirmErrs:  make(map[string][]error),
		registerErrs: make(map[string][]error),
		registered:   make(map[string]string),
		confirmed:    make(map[string]int),
	}
}

func (c *stubChannel) Code() channel.Code { return c.code }

func (c *stubChannel) ListNewOrders(ctx context.Context, cursor string) ([]channel.Order, string, error) {
	return nil, cursor, nil
}

func (c *stubChannel) GetOrder(ctx context.Context, channelOrderID string) (*channel.Order, error) {
	return nil, shared.ErrNotFound
}

func (c *stubChannel) ConfirmOrder(ctx context.Context, channelOrderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.confirmErrs[channelOrderID]
	if len(queue) > 0 {
		c.confirmErrs[channelOrderID] = queue[1:]
		return queue[0]
	}
	c.confirmed[channelOrderID]++
	return nil
}

func (c *stubChannel) RegisterTracking(ctx context.Context, channelOrderID, carrierCode, trackingNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.registerErrs[channelOrderID]
	if len(queue) > 0 {
		c.registerErrs[channelOrderID] = queue[1:]
		return queue[0]
	}
	c.registered[channelOrderID] = trackingNumber
	return nil
}

func (c *stubChannel) UpdateStock(ctx context.Context, remoteItemID string, quantity int) error {
	return nil
}

func (c *stubChannel) ListClaims(ctx context.Context, since time.Time) ([]channel.Claim, error) {
	return nil, nil
}

type fixture struct {
	processor *BatchProcessor
	orders    *fakeOrderRepo
	runs      *fakeRunRepo
	products  *fakeProductRepo
	naver     *stubChannel
	cj        *stubCarrier
	locker    runlock.Locker
}

func retryable(err error) bool {
	return channel.IsRetryable(err) || carrier.IsRetryable(err)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders:   newFakeOrderRepo(),
		runs:     newFakeRunRepo(),
		products: newFakeProductRepo(),
		naver:    newStubChannel(channel.CodeNaver),
		cj:       newStubCarrier(),
		locker:   runlock.NewInMemoryLocker(),
	}
	f.processor = NewBatchProcessor(
		channels.NewRegistryWith(f.naver),
		carriers.NewRegistryWith(f.cj),
		f.orders,
		f.runs,
		f.products,
		f.locker,
		keymutex.New(),
		retry.NewPolicy(3, 0, 0, 0, retryable),
		nil,
		config.SenderConfig{Name: "샵플로우", Phone: "02-1234-5678", Zip: "06236", Address: "서울 강남구"},
		zap.NewNop(),
	)
	return f
}

func (f *fixture) addCollected(t *testing.T, channelOrderID string) *fulfillment.Order {
	t.Helper()
	order, err := fulfillment.CollectOrder(channel.CodeNaver, channel.Order{
		ChannelOrderID: channelOrderID,
		OrderedAt:      time.Now(),
		BuyerName:      "김철수",
		Recipient:      channel.Recipient{Name: "김철수", Phone: "010-1234-5678", Zip: "04524", Address1: "서울 중구"},
		Items:          []channel.OrderItem{{RemoteItemID: "R-1", ProductName: "텀블러", Quantity: 2, UnitPrice: decimal.NewFromInt(15000)}},
	})
	require.NoError(t, err)
	require.NoError(t, f.orders.Save(context.Background(), order))
	return order
}

func (f *fixture) findOrder(t *testing.T, id uuid.UUID) *fulfillment.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func TestBatchRunHappyPath(t *testing.T) {
	f := newFixture(t)
	o1 := f.addCollected(t, "N-1")
	o2 := f.addCollected(t, "N-2")

	product, err := catalog.NewProduct("SKU-1", "텀블러", decimal.NewFromInt(15000), 10, 3)
	require.NoError(t, err)
	require.NoError(t, product.LinkChannel(channel.CodeNaver, "R-1"))
	require.NoError(t, f.products.Save(context.Background(), product))

	run, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, fulfillment.BatchCompleted, run.Status)
	assert.Equal(t, 2, run.TotalOrders)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 0, run.Failed)
	assert.Equal(t, 1, f.cj.bulkCalls)

	for _, o := range []*fulfillment.Order{o1, o2} {
		stored := f.findOrder(t, o.ID)
		assert.Equal(t, fulfillment.StatusInvoiceRegistered, stored.Status)
		require.NotNil(t, stored.Invoice)
		assert.Equal(t, "T-"+stored.Ref(), stored.Invoice.TrackingNumber)
		assert.NotNil(t, stored.Invoice.RegisteredAt)
		assert.Equal(t, 1, stored.BatchNumber)
		assert.NotNil(t, stored.ConfirmedAt)
	}
	assert.Equal(t, "T-NAVER-N-1", f.naver.registered["N-1"])

	// Two orders of quantity 2 each against starting stock of 10.
	updated, err := f.products.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, updated.StockQuantity)
	assert.Len(t, f.products.movements, 2)
}

func TestBatchRunRejectedWhileLockHeld(t *testing.T) {
	f := newFixture(t)
	handle, err := f.locker.Acquire(context.Background(), lockName)
	require.NoError(t, err)
	defer handle.Release(context.Background())

	_, err = f.processor.Run(context.Background(), 1)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestBatchRunSameSlotReRunSelectsNothing(t *testing.T) {
	f := newFixture(t)
	order := f.addCollected(t, "N-1")

	first, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)

	// Re-running the same slot is accepted: everything is already
	// processed, so the run selects nothing and issues no invoices.
	second, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.BatchCompleted, second.Status)
	assert.Equal(t, 0, second.TotalOrders)
	assert.Equal(t, 1, f.cj.bulkCalls)

	stored := f.findOrder(t, order.ID)
	assert.Equal(t, fulfillment.StatusInvoiceRegistered, stored.Status)
	assert.Equal(t, 1, stored.BatchNumber)
}

func TestBatchRunRejectsInvalidBatchNumber(t *testing.T) {
	f := newFixture(t)
	_, err := f.processor.Run(context.Background(), 3)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestBatchRunRateLimitedIssueEventuallySucceeds(t *testing.T) {
	f := newFixture(t)
	order := f.addCollected(t, "N-1")
	// Bulk entry fails once, the individual retry fails once more, then
	// the second individual attempt succeeds.
	f.cj.errs["NAVER-N-1"] = []error{carrier.ErrRateLimited, carrier.ErrRateLimited}

	run, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, fulfillment.BatchCompleted, run.Status)
	assert.Equal(t, fulfillment.StatusInvoiceRegistered, f.findOrder(t, order.ID).Status)
}

func TestBatchRunIssueExhaustionFailsOrderOnly(t *testing.T) {
	f := newFixture(t)
	bad := f.addCollected(t, "N-1")
	good := f.addCollected(t, "N-2")
	f.cj.errs["NAVER-N-1"] = []error{
		carrier.ErrTransient, carrier.ErrTransient, carrier.ErrTransient, carrier.ErrTransient,
	}

	run, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, fulfillment.BatchCompletedWithErrors, run.Status)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, stageIssue, run.Failures[0].Stage)
	assert.Contains(t, run.Failures[0].Reason, "retryable-exhausted")

	failed := f.findOrder(t, bad.ID)
	assert.Equal(t, fulfillment.StatusFailed, failed.Status)
	assert.Equal(t, fulfillment.StatusCollected, failed.PriorStatus)
	assert.Contains(t, failed.FailureReason, "retryable-exhausted")

	assert.Equal(t, fulfillment.StatusInvoiceRegistered, f.findOrder(t, good.ID).Status)
}

func TestBatchRunValidationFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	order := f.addCollected(t, "N-1")
	f.cj.errs["NAVER-N-1"] = []error{fmt.Errorf("%w: bad zipcode", carrier.ErrValidation)}

	run, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Failed)
	failed := f.findOrder(t, order.ID)
	assert.Equal(t, fulfillment.StatusFailed, failed.Status)
	assert.NotContains(t, failed.FailureReason, "retryable-exhausted")
}

func TestBatchRunRegistrationExhaustionKeepsInvoiceIssued(t *testing.T) {
	f := newFixture(t)
	order := f.addCollected(t, "N-1")
	f.naver.registerErrs["N-1"] = []error{
		channel.ErrTransient, channel.ErrTransient, channel.ErrTransient,
	}

	run, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, fulfillment.BatchCompletedWithErrors, run.Status)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, stageRegister, run.Failures[0].Stage)

	stored := f.findOrder(t, order.ID)
	assert.Equal(t, fulfillment.StatusInvoiceIssued, stored.Status)
	require.NotNil(t, stored.Invoice)
	firstTracking := stored.Invoice.TrackingNumber

	// Re-running the same slot must not re-invoice: only the
	// registration step is repeated.
	time.Sleep(time.Millisecond)
	_, err = f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	stored = f.findOrder(t, order.ID)
	assert.Equal(t, fulfillment.StatusInvoiceRegistered, stored.Status)
	assert.Equal(t, firstTracking, stored.Invoice.TrackingNumber)
	assert.Equal(t, firstTracking, f.naver.registered["N-1"])
	assert.Equal(t, 1, f.cj.bulkCalls)
}

func TestBatchRunConfirmFailureLeavesOrderCollected(t *testing.T) {
	f := newFixture(t)
	order := f.addCollected(t, "N-1")
	f.naver.confirmErrs["N-1"] = []error{
		channel.ErrTransient, channel.ErrTransient, channel.ErrTransient,
	}

	run, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, run.Failures, 1)
	assert.Equal(t, stageConfirm, run.Failures[0].Stage)
	assert.Equal(t, fulfillment.StatusCollected, f.findOrder(t, order.ID).Status)
	assert.Equal(t, 0, f.cj.bulkCalls)
}

func TestBatchRunSkipsClaimedOrders(t *testing.T) {
	f := newFixture(t)
	claimed := f.addCollected(t, "N-1")
	f.orders.openClaims[claimed.ID] = true
	clean := f.addCollected(t, "N-2")

	run, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, run.TotalOrders)
	assert.Equal(t, fulfillment.StatusCollected, f.findOrder(t, claimed.ID).Status)
	assert.Equal(t, fulfillment.StatusInvoiceRegistered, f.findOrder(t, clean.ID).Status)
}

func TestBatchRunWholeCarrierOutageFailsAllOrders(t *testing.T) {
	f := newFixture(t)
	o1 := f.addCollected(t, "N-1")
	o2 := f.addCollected(t, "N-2")
	f.cj.callErrs = []error{carrier.ErrAuthFailed}

	run, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Failed)
	assert.Equal(t, fulfillment.StatusFailed, f.findOrder(t, o1.ID).Status)
	assert.Equal(t, fulfillment.StatusFailed, f.findOrder(t, o2.ID).Status)
	// Fatal errors stop immediately, no retry of the bulk call.
	assert.Equal(t, 1, f.cj.bulkCalls)
}

func TestRetryOrder(t *testing.T) {
	f := newFixture(t)
	order := f.addCollected(t, "N-1")
	f.cj.errs["NAVER-N-1"] = []error{fmt.Errorf("%w: rejected", carrier.ErrValidation)}

	_, err := f.processor.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusFailed, f.findOrder(t, order.ID).Status)

	retried, err := f.processor.RetryOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusCollected, retried.Status)
	assert.Empty(t, retried.FailureReason)

	_, err = f.processor.RetryOrder(context.Background(), order.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
