package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/infrastructure/config"
)

const hanjinDefaultBaseURL = "https://api.hanjin.co.kr"

// HanjinAdapter implements the carrier port for Hanjin Express. Hanjin
// has no bulk endpoint, so IssueInvoices issues one at a time.
type HanjinAdapter struct {
	cfg        config.CarrierAPIConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

var _ carrier.Adapter = (*HanjinAdapter)(nil)

// NewHanjinAdapter creates a Hanjin Express adapter
func NewHanjinAdapter(cfg config.CarrierAPIConfig, logger *zap.Logger) *HanjinAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = hanjinDefaultBaseURL
	}
	return &HanjinAdapter{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Named("hanjin"),
		now:        time.Now,
	}
}

// Code implements carrier.Adapter
func (a *HanjinAdapter) Code() carrier.Code {
	return carrier.CodeHanjin
}

// newRequest builds an authenticated request. Hanjin uses static API
// key headers rather than request signing.
func (a *HanjinAdapter) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("hanjin: failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("hanjin: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", a.cfg.APISecret)
	req.Header.Set("X-Customer-Id", a.cfg.APIKey)
	return req, nil
}

type hanjinInvoiceRequest struct {
	OrderID         string `json:"orderId"`
	SenderName      string `json:"senderName"`
	SenderPhone     string `json:"senderPhone"`
	SenderZipcode   string `json:"senderZipcode"`
	SenderAddress   string `json:"senderAddress"`
	ReceiverName    string `json:"receiverName"`
	ReceiverPhone   string `json:"receiverPhone"`
	ReceiverZipcode string `json:"receiverZipcode"`
	ReceiverAddress string `json:"receiverAddress"`
	ProductName     string `json:"productName"`
	Quantity        int    `json:"quantity"`
	Memo            string `json:"memo"`
}

// IssueInvoice implements carrier.Adapter
func (a *HanjinAdapter) IssueInvoice(ctx context.Context, req carrier.InvoiceRequest) (*carrier.InvoiceResult, error) {
	if a.cfg.TestMode {
		return a.testInvoice(req), nil
	}

	payload := hanjinInvoiceRequest{
		OrderID:         req.Reference,
		SenderName:      req.SenderName,
		SenderPhone:     req.SenderPhone,
		SenderZipcode:   req.SenderZip,
		SenderAddress:   req.SenderAddress,
		ReceiverName:    req.RecipientName,
		ReceiverPhone:   req.Phone,
		ReceiverZipcode: req.Zip,
		ReceiverAddress: strings.TrimSpace(req.Address1 + " " + req.Address2),
		ProductName:     req.ItemSummary,
		Quantity:        req.BoxCount,
		Memo:            req.Message,
	}

	httpReq, err := a.newRequest(ctx, http.MethodPost, "/v1/invoice/create", payload)
	if err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, a.httpClient, carrier.CodeHanjin, "issue_invoice", httpReq)
	if err != nil {
		return nil, err
	}

	var result struct {
		TrackingNumber string `json:"trackingNumber"`
		Message        string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("hanjin issue_invoice: failed to decode response: %w", err)
	}
	if result.TrackingNumber == "" {
		return nil, fmt.Errorf("hanjin issue_invoice: %w: no tracking number in response (%s)", carrier.ErrValidation, result.Message)
	}

	a.logger.Info("invoice issued",
		zap.String("reference", req.Reference),
		zap.String("tracking_number", result.TrackingNumber))

	return &carrier.InvoiceResult{
		Reference:      req.Reference,
		TrackingNumber: result.TrackingNumber,
		IssuedAt:       a.now(),
	}, nil
}

// IssueInvoices implements carrier.Adapter by issuing sequentially.
// A failed entry is recorded and the rest of the batch continues.
func (a *HanjinAdapter) IssueInvoices(ctx context.Context, reqs []carrier.InvoiceRequest) ([]carrier.InvoiceResult, error) {
	results := make([]carrier.InvoiceResult, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := a.IssueInvoice(ctx, req)
		if err != nil {
			results = append(results, carrier.InvoiceResult{Reference: req.Reference, Err: err})
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// hanjinStatusMap normalizes Hanjin tracking status strings
var hanjinStatusMap = map[string]carrier.DeliveryStatus{
	"접수":   carrier.StatusReady,
	"집화":   carrier.StatusPickedUp,
	"이동중":  carrier.StatusInTransit,
	"배송출발": carrier.StatusOutForDelivery,
	"배송완료": carrier.StatusDelivered,
	"배송실패": carrier.StatusFailed,
}

// TrackShipment implements carrier.Adapter
func (a *HanjinAdapter) TrackShipment(ctx context.Context, trackingNumber string) ([]carrier.TrackingEvent, error) {
	if a.cfg.TestMode {
		return []carrier.TrackingEvent{{Status: carrier.StatusReady, Note: "test mode", OccurredAt: a.now()}}, nil
	}

	httpReq, err := a.newRequest(ctx, http.MethodGet, "/v1/tracking/"+trackingNumber, nil)
	if err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, a.httpClient, carrier.CodeHanjin, "track_shipment", httpReq)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Events []struct {
			Status     string `json:"status"`
			Location   string `json:"location"`
			Message    string `json:"message"`
			OccurredAt string `json:"occurredAt"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("hanjin track_shipment: failed to decode response: %w", err)
	}

	events := make([]carrier.TrackingEvent, 0, len(resp.Events))
	for _, e := range resp.Events {
		status, ok := hanjinStatusMap[e.Status]
		if !ok {
			status = carrier.StatusInTransit
		}
		occurredAt, _ := time.Parse("2006-01-02 15:04:05", e.OccurredAt)
		events = append(events, carrier.TrackingEvent{
			Status:     status,
			Location:   e.Location,
			Note:       e.Message,
			OccurredAt: occurredAt,
		})
	}
	return events, nil
}

func (a *HanjinAdapter) testInvoice(req carrier.InvoiceRequest) *carrier.InvoiceResult {
	tracking := testTrackingNumber("HJ", req.Reference)
	a.logger.Info("test mode invoice issued",
		zap.String("reference", req.Reference),
		zap.String("tracking_number", tracking))
	return &carrier.InvoiceResult{
		Reference:      req.Reference,
		TrackingNumber: tracking,
		IssuedAt:       a.now(),
	}
}
