package tracking

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

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/carriers"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/retry"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*fulfillment.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*fulfillment.Order)}
}

func (r *fakeOrderRepo) Save(ctx context.Context, order *fulfillment.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *fakeOrderRepo) Update(ctx context.Context, order *fulfillment.Order) error {
	return r.Save(ctx, order)
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
		if order.Status == status {
			clone := *order
			out = append(out, &clone)
		}
	}
	return out, nil
}

// stubCarrier serves scripted tracking events per tracking number
type stubCarrier struct {
	code   carrier.Code
	events map[string][]carrier.TrackingEvent
}

func (c *stubCarrier) Code() carrier.Code { return c.code }

func (c *stubCarrier) IssueInvoice(ctx context.Context, req carrier.InvoiceRequest) (*carrier.InvoiceResult, error) {
	return nil, nil
}

func (c *stubCarrier) IssueInvoices(ctx context.Context, reqs []carrier.InvoiceRequest) ([]carrier.InvoiceResult, error) {
	return nil, nil
}

func (c *stubCarrier) TrackShipment(ctx context.Context, trackingNumber string) ([]carrier.TrackingEvent, error) {
	return c.events[trackingNumber], nil
}

func newRegisteredOrder(t *testing.T, repo *fakeOrderRepo, channelOrderID, trackingNumber string) *fulfillment.Order {
	t.Helper()
	order, err := fulfillment.CollectOrder(channel.CodeNaver, channel.Order{
		ChannelOrderID: channelOrderID,
		OrderedAt:      time.Now(),
		Recipient:      channel.Recipient{Name: "김철수"},
		Items:          []channel.OrderItem{{RemoteItemID: "R-1", ProductName: "텀블러", Quantity: 1, UnitPrice: decimal.NewFromInt(15000)}},
	})
	require.NoError(t, err)
	require.NoError(t, order.AttachInvoice(carrier.CodeCJ, trackingNumber, time.Now()))
	require.NoError(t, order.MarkRegistered(time.Now()))
	require.NoError(t, repo.Save(context.Background(), order))
	return order
}

func newTestService(repo *fakeOrderRepo, cj *stubCarrier) *Service {
	return NewService(
		carriers.NewRegistryWith(cj),
		repo,
		retry.NewPolicy(2, 0, 0, 0, carrier.IsRetryable),
		keymutex.New(),
		nil,
		zap.NewNop(),
	)
}

func TestMarkShipped(t *testing.T) {
	repo := newFakeOrderRepo()
	order := newRegisteredOrder(t, repo, "N-1", "T-1")
	svc := newTestService(repo, &stubCarrier{code: carrier.CodeCJ})

	shipped, err := svc.MarkShipped(context.Background(), "NAVER-N-1", carrier.TrackingEvent{
		Status:     carrier.StatusPickedUp,
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusShipped, shipped.Status)
	assert.NotNil(t, shipped.ShippedAt)

	stored, _ := repo.FindByID(context.Background(), order.ID)
	assert.Equal(t, fulfillment.StatusShipped, stored.Status)

	// Marking an already shipped order again is a no-op.
	again, err := svc.MarkShipped(context.Background(), "NAVER-N-1", carrier.TrackingEvent{Status: carrier.StatusInTransit})
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusShipped, again.Status)
}

func TestMarkShippedRejectsNonMovement(t *testing.T) {
	repo := newFakeOrderRepo()
	newRegisteredOrder(t, repo, "N-1", "T-1")
	svc := newTestService(repo, &stubCarrier{code: carrier.CodeCJ})

	_, err := svc.MarkShipped(context.Background(), "NAVER-N-1", carrier.TrackingEvent{Status: carrier.StatusReady})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestMarkShippedRejectsMalformedRef(t *testing.T) {
	svc := newTestService(newFakeOrderRepo(), &stubCarrier{code: carrier.CodeCJ})

	_, err := svc.MarkShipped(context.Background(), "bogus", carrier.TrackingEvent{Status: carrier.StatusPickedUp})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.MarkShipped(context.Background(), "EBAY-1", carrier.TrackingEvent{Status: carrier.StatusPickedUp})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRefreshTracking(t *testing.T) {
	repo := newFakeOrderRepo()
	moving := newRegisteredOrder(t, repo, "N-1", "T-1")
	waiting := newRegisteredOrder(t, repo, "N-2", "T-2")

	cj := &stubCarrier{code: carrier.CodeCJ, events: map[string][]carrier.TrackingEvent{
		"T-1": {
			{Status: carrier.StatusReady, OccurredAt: time.Now().Add(-2 * time.Hour)},
			{Status: carrier.StatusPickedUp, OccurredAt: time.Now().Add(-time.Hour)},
		},
		"T-2": {
			{Status: carrier.StatusReady, OccurredAt: time.Now().Add(-time.Hour)},
		},
	}}

	svc := newTestService(repo, cj)
	shipped, err := svc.RefreshTracking(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, shipped)

	stored, _ := repo.FindByID(context.Background(), moving.ID)
	assert.Equal(t, fulfillment.StatusShipped, stored.Status)
	stored, _ = repo.FindByID(context.Background(), waiting.ID)
	assert.Equal(t, fulfillment.StatusInvoiceRegistered, stored.Status)
}
