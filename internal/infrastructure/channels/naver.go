package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/infrastructure/config"
)

const naverDefaultBaseURL = "https://api.commerce.naver.com/external"

// naverLookback bounds the first pull when no cursor exists yet
const naverLookback = 7 * 24 * time.Hour

// NaverAdapter implements the channel port for Naver Smart Store
type NaverAdapter struct {
	cfg        config.NaverConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	pageSize   int

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
	now            func() time.Time
}

var _ channel.Adapter = (*NaverAdapter)(nil)

// NewNaverAdapter creates a Naver adapter
func NewNaverAdapter(cfg config.NaverConfig, pageSize int, logger *zap.Logger) *NaverAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = naverDefaultBaseURL
	}
	return &NaverAdapter{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Named("naver"),
		pageSize:   pageSize,
		now:        time.Now,
	}
}

// Code implements channel.Adapter
func (a *NaverAdapter) Code() channel.Code {
	return channel.CodeNaver
}

// signature signs "{client_id}_{timestamp}" with the client secret
func (a *NaverAdapter) signature(timestamp string) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.ClientSecret))
	mac.Write([]byte(a.cfg.ClientID + "_" + timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type naverTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// authenticate fetches an OAuth token, reusing the cached one until it
// is close to expiring
func (a *NaverAdapter) authenticate(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && a.now().Before(a.tokenExpiresAt.Add(-5*time.Minute)) {
		return a.accessToken, nil
	}

	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)
	form := url.Values{
		"client_id":          {a.cfg.ClientID},
		"timestamp":          {timestamp},
		"client_secret_sign": {a.signature(timestamp)},
		"grant_type":         {"client_credentials"},
		"type":               {"SELF"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("naver: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", transportError(channel.CodeNaver, "authenticate", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return "", transportError(channel.CodeNaver, "authenticate", err)
	}
	if resp.StatusCode != http.StatusOK {
		// A rejected credential set is fatal regardless of status class
		if resp.StatusCode < 500 {
			return "", apiError(channel.CodeNaver, "authenticate", http.StatusUnauthorized, "", string(body))
		}
		return "", apiError(channel.CodeNaver, "authenticate", resp.StatusCode, "", string(body))
	}

	var token naverTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("naver: failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("naver authenticate: %w: empty access token", channel.ErrAuthFailed)
	}

	expiresIn := token.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	a.accessToken = token.AccessToken
	a.tokenExpiresAt = a.now().Add(time.Duration(expiresIn) * time.Second)
	return a.accessToken, nil
}

// get performs an authenticated GET request
func (a *NaverAdapter) get(ctx context.Context, operation, path string, query url.Values) ([]byte, error) {
	token, err := a.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("naver: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return doJSON(ctx, a.httpClient, channel.CodeNaver, operation, req)
}

// post performs an authenticated POST request with a JSON payload
func (a *NaverAdapter) post(ctx context.Context, operation, path string, payload any) ([]byte, error) {
	token, err := a.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, fmt.Errorf("naver: failed to encode payload: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, &body)
	if err != nil {
		return nil, fmt.Errorf("naver: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return doJSON(ctx, a.httpClient, channel.CodeNaver, operation, req)
}

type naverOrdersResponse struct {
	Data []naverOrder `json:"data"`
}

type naverOrder struct {
	OrderID            string                  `json:"orderId"`
	OrderStatus        string                  `json:"orderStatus"`
	OrderDate          string                  `json:"orderDate"`
	GeneralPaymentInfo naverPaymentInfo        `json:"generalPaymentInfo"`
	DeliveryInfo       naverDeliveryInfo       `json:"deliveryInfo"`
	ProductOrderInfos  []naverProductOrderInfo `json:"productOrderInfos"`
}

type naverPaymentInfo struct {
	OrdererName        string          `json:"ordererName"`
	TotalPaymentAmount decimal.Decimal `json:"totalPaymentAmount"`
}

type naverDeliveryInfo struct {
	Name           string `json:"name"`
	Tel1           string `json:"tel1"`
	ZipCode        string `json:"zipCode"`
	BaseAddress    string `json:"baseAddress"`
	DetailAddress  string `json:"detailAddress"`
	DeliveryMemo   string `json:"deliveryMemo"`
	TrackingNumber string `json:"trackingNumber"`
}

type naverProductOrderInfo struct {
	ProductID     json.Number     `json:"productId"`
	ProductName   string          `json:"productName"`
	OptionContent string          `json:"optionContent"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
}

func (o *naverOrder) toDomain() channel.Order {
	orderedAt, err := time.Parse(time.RFC3339, o.OrderDate)
	if err != nil {
		orderedAt = time.Now()
	}
	items := make([]channel.OrderItem, 0, len(o.ProductOrderInfos))
	for _, p := range o.ProductOrderInfos {
		qty := p.Quantity
		if qty == 0 {
			qty = 1
		}
		items = append(items, channel.OrderItem{
			RemoteItemID: p.ProductID.String(),
			ProductName:  p.ProductName,
			Option:       p.OptionContent,
			Quantity:     qty,
			UnitPrice:    p.UnitPrice,
		})
	}
	return channel.Order{
		ChannelOrderID: o.OrderID,
		OrderedAt:      orderedAt,
		BuyerName:      o.GeneralPaymentInfo.OrdererName,
		Recipient: channel.Recipient{
			Name:     o.DeliveryInfo.Name,
			Phone:    o.DeliveryInfo.Tel1,
			Zip:      o.DeliveryInfo.ZipCode,
			Address1: o.DeliveryInfo.BaseAddress,
			Address2: o.DeliveryInfo.DetailAddress,
			Message:  o.DeliveryInfo.DeliveryMemo,
		},
		Items:       items,
		TotalAmount: o.GeneralPaymentInfo.TotalPaymentAmount,
	}
}

// ListNewOrders implements channel.Adapter. The cursor is the RFC3339
// time up to which orders were already pulled.
func (a *NaverAdapter) ListNewOrders(ctx context.Context, cursor string) ([]channel.Order, string, error) {
	to := a.now()
	from := to.Add(-naverLookback)
	if cursor != "" {
		if t, err := time.Parse(time.RFC3339, cursor); err == nil {
			from = t
		}
	}

	query := url.Values{
		"orderStatus": {"PAYED"},
		"from":        {from.Format(time.RFC3339)},
		"to":          {to.Format(time.RFC3339)},
		"limitCount":  {strconv.Itoa(a.pageSize)},
	}
	body, err := a.get(ctx, "list_orders", "/v1/pay-order/seller/orders", query)
	if err != nil {
		return nil, cursor, err
	}

	var resp naverOrdersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, cursor, fmt.Errorf("naver: failed to parse orders response: %w", err)
	}

	orders := make([]channel.Order, 0, len(resp.Data))
	for i := range resp.Data {
		orders = append(orders, resp.Data[i].toDomain())
	}
	a.logger.Info("pulled orders", zap.Int("count", len(orders)))
	return orders, to.Format(time.RFC3339), nil
}

// GetOrder implements channel.Adapter
func (a *NaverAdapter) GetOrder(ctx context.Context, channelOrderID string) (*channel.Order, error) {
	body, err := a.get(ctx, "get_order", "/v1/pay-order/seller/orders/"+url.PathEscape(channelOrderID), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data naverOrder `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("naver: failed to parse order response: %w", err)
	}
	order := resp.Data.toDomain()
	return &order, nil
}

// ConfirmOrder implements channel.Adapter
func (a *NaverAdapter) ConfirmOrder(ctx context.Context, channelOrderID string) error {
	_, err := a.post(ctx, "confirm_order", "/v1/pay-order/seller/orders/"+url.PathEscape(channelOrderID)+"/confirm", nil)
	return err
}

// trackingOf fetches the tracking number currently registered on the
// channel, if any
func (a *NaverAdapter) trackingOf(ctx context.Context, channelOrderID string) (string, error) {
	body, err := a.get(ctx, "get_order", "/v1/pay-order/seller/orders/"+url.PathEscape(channelOrderID), nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Data naverOrder `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("naver: failed to parse order response: %w", err)
	}
	return resp.Data.DeliveryInfo.TrackingNumber, nil
}

// RegisterTracking implements channel.Adapter. Registering a tracking
// number that is already on the order succeeds without side effects.
func (a *NaverAdapter) RegisterTracking(ctx context.Context, channelOrderID, carrierCode, trackingNumber string) error {
	if current, err := a.trackingOf(ctx, channelOrderID); err == nil && current == trackingNumber {
		a.logger.Debug("tracking already registered", zap.String("order_id", channelOrderID))
		return nil
	}

	_, err := a.post(ctx, "register_tracking",
		"/v1/pay-order/seller/orders/"+url.PathEscape(channelOrderID)+"/ship",
		map[string]string{
			"deliveryCompanyCode": carrierCode,
			"trackingNumber":      trackingNumber,
		})
	return err
}

// UpdateStock implements channel.Adapter
func (a *NaverAdapter) UpdateStock(ctx context.Context, remoteItemID string, quantity int) error {
	_, err := a.post(ctx, "update_stock",
		"/v1/products/"+url.PathEscape(remoteItemID)+"/stock",
		map[string]int{"stockQuantity": quantity})
	return err
}

type naverClaimsResponse struct {
	Data []naverClaim `json:"data"`
}

type naverClaim struct {
	ClaimID     string `json:"claimId"`
	OrderID     string `json:"orderId"`
	ClaimType   string `json:"claimType"`
	ClaimStatus string `json:"claimStatus"`
	Reason      string `json:"claimRequestReason"`
	RequestedAt string `json:"claimRequestDate"`
}

// ListClaims implements channel.Adapter
func (a *NaverAdapter) ListClaims(ctx context.Context, since time.Time) ([]channel.Claim, error) {
	query := url.Values{
		"from": {since.Format(time.RFC3339)},
		"to":   {a.now().Format(time.RFC3339)},
	}
	body, err := a.get(ctx, "list_claims", "/v1/pay-order/seller/claims", query)
	if err != nil {
		return nil, err
	}

	var resp naverClaimsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("naver: failed to parse claims response: %w", err)
	}

	claims := make([]channel.Claim, 0, len(resp.Data))
	for _, c := range resp.Data {
		requestedAt, err := time.Parse(time.RFC3339, c.RequestedAt)
		if err != nil {
			requestedAt = a.now()
		}
		claims = append(claims, channel.Claim{
			ChannelClaimID: c.ClaimID,
			ChannelOrderID: c.OrderID,
			Type:           mapNaverClaimType(c.ClaimType),
			Status:         c.ClaimStatus,
			Reason:         c.Reason,
			RequestedAt:    requestedAt,
		})
	}
	return claims, nil
}

func mapNaverClaimType(t string) channel.ClaimType {
	switch strings.ToUpper(t) {
	case "RETURN":
		return channel.ClaimReturn
	case "EXCHANGE":
		return channel.ClaimExchange
	case "CANCEL":
		return channel.ClaimCancel
	default:
		return channel.ClaimType(strings.ToLower(t))
	}
}
