package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
)

type fakeOrderRepo struct {
	orders map[uuid.UUID]*fulfillment.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*fulfillment.Order)}
}

func (r *fakeOrderRepo) Save(ctx context.Context, order *fulfillment.Order) error {
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *fakeOrderRepo) Update(ctx context.Context, order *fulfillment.Order) error {
	return r.Save(ctx, order)
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (r *fakeOrderRepo) FindByChannelOrderID(ctx context.Context, code channel.Code, channelOrderID string) (*fulfillment.Order, error) {
	for _, order := range r.orders {
		if order.Channel == code && order.ChannelOrderID == channelOrderID {
			clone := *order
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeOrderRepo) List(ctx context.Context, filter fulfillment.OrderFilter) (shared.Page[*fulfillment.Order], error) {
	var out []*fulfillment.Order
	for _, order := range r.orders {
		if filter.Channel != "" && order.Channel != filter.Channel {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		clone := *order
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelOrderID < out[j].ChannelOrderID })
	return shared.Page[*fulfillment.Order]{Items: out, Total: int64(len(out))}, nil
}

func (r *fakeOrderRepo) ListBatchable(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	return nil, nil
}

func addOrder(t *testing.T, repo *fakeOrderRepo, code channel.Code, channelOrderID string) *fulfillment.Order {
	t.Helper()
	order, err := fulfillment.CollectOrder(code, channel.Order{
		ChannelOrderID: channelOrderID,
		OrderedAt:      time.Now(),
		Recipient:      channel.Recipient{Name: "김철수"},
		Items:          []channel.OrderItem{{RemoteItemID: "R-1", ProductName: "텀블러", Quantity: 1, UnitPrice: decimal.NewFromInt(15000)}},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), order))
	return order
}

func getRequest(t *testing.T, target string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, target, nil)
	return w, c
}

func TestOrderHandlerList(t *testing.T) {
	repo := newFakeOrderRepo()
	addOrder(t, repo, channel.CodeNaver, "N-1")
	addOrder(t, repo, channel.CodeCoupang, "C-1")
	h := NewOrderHandler(repo, nil, nil, nil, nil)

	w, c := getRequest(t, "/orders?channel=naver")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
	items := resp.Data.([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "NAVER-N-1", items[0].(map[string]interface{})["ref"])
}

func TestOrderHandlerListRejectsUnknownFilters(t *testing.T) {
	h := NewOrderHandler(newFakeOrderRepo(), nil, nil, nil, nil)

	w, c := getRequest(t, "/orders?channel=ebay")
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, c = getRequest(t, "/orders?status=TELEPORTED")
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderHandlerGet(t *testing.T) {
	repo := newFakeOrderRepo()
	order := addOrder(t, repo, channel.CodeNaver, "N-1")
	h := NewOrderHandler(repo, nil, nil, nil, nil)

	w, c := getRequest(t, "/orders/"+order.ID.String())
	c.Params = gin.Params{{Key: "id", Value: order.ID.String()}}
	h.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "COLLECTED", data["status"])
	assert.Equal(t, "N-1", data["channel_order_id"])

	w, c = getRequest(t, "/orders/"+uuid.NewString())
	c.Params = gin.Params{{Key: "id", Value: uuid.NewString()}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, c = getRequest(t, "/orders/not-a-uuid")
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
