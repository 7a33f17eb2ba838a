package carriers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/infrastructure/config"
)

const cjDefaultBaseURL = "https://api.cjlogistics.com"

// CJAdapter implements the carrier port for CJ Logistics. The API
// accepts whole batches in one call, so IssueInvoices posts a single
// bulk request instead of looping.
type CJAdapter struct {
	cfg          config.CarrierAPIConfig
	baseURL      string
	contractCode string
	httpClient   *http.Client
	logger       *zap.Logger
	now          func() time.Time
}

var _ carrier.Adapter = (*CJAdapter)(nil)

// NewCJAdapter creates a CJ Logistics adapter
func NewCJAdapter(cfg config.CarrierAPIConfig, logger *zap.Logger) *CJAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cjDefaultBaseURL
	}
	contractCode := cfg.ContractCode
	if contractCode == "" {
		contractCode = cfg.APIKey
	}
	return &CJAdapter{
		cfg:          cfg,
		baseURL:      strings.TrimRight(baseURL, "/"),
		contractCode: contractCode,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       logger.Named("cj"),
		now:          time.Now,
	}
}

// Code implements carrier.Adapter
func (a *CJAdapter) Code() carrier.Code {
	return carrier.CodeCJ
}

// signature signs "{customer_id}{timestamp}{body}" with the API secret
func (a *CJAdapter) signature(timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.APISecret))
	mac.Write([]byte(a.cfg.APIKey + timestamp + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// newRequest builds a signed POST request
func (a *CJAdapter) newRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cj: failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cj: failed to create request: %w", err)
	}
	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Customer-Id", a.cfg.APIKey)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", a.signature(timestamp, string(body)))
	req.Header.Set("X-Contract-Code", a.contractCode)
	return req, nil
}

type cjInvoiceEntry struct {
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

type cjInvoiceResult struct {
	OrderID        string `json:"orderId"`
	TrackingNumber string `json:"trackingNumber"`
	InvoiceNo      string `json:"invoiceNo"`
	ResultCode     string `json:"resultCode"`
	Message        string `json:"message"`
}

func cjEntry(req carrier.InvoiceRequest) cjInvoiceEntry {
	return cjInvoiceEntry{
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
}

func (r cjInvoiceResult) tracking() string {
	if r.TrackingNumber != "" {
		return r.TrackingNumber
	}
	return r.InvoiceNo
}

// IssueInvoice implements carrier.Adapter
func (a *CJAdapter) IssueInvoice(ctx context.Context, req carrier.InvoiceRequest) (*carrier.InvoiceResult, error) {
	if a.cfg.TestMode {
		return a.testInvoice(req), nil
	}

	httpReq, err := a.newRequest(ctx, "/v1/invoice/create", cjEntry(req))
	if err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, a.httpClient, carrier.CodeCJ, "issue_invoice", httpReq)
	if err != nil {
		return nil, err
	}

	var result cjInvoiceResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("cj issue_invoice: failed to decode response: %w", err)
	}
	if result.tracking() == "" {
		return nil, fmt.Errorf("cj issue_invoice: %w: no tracking number in response (%s)", carrier.ErrValidation, result.Message)
	}

	a.logger.Info("invoice issued",
		zap.String("reference", req.Reference),
		zap.String("tracking_number", result.tracking()))

	return &carrier.InvoiceResult{
		Reference:      req.Reference,
		TrackingNumber: result.tracking(),
		IssuedAt:       a.now(),
	}, nil
}

// IssueInvoices implements carrier.Adapter with a single bulk call
func (a *CJAdapter) IssueInvoices(ctx context.Context, reqs []carrier.InvoiceRequest) ([]carrier.InvoiceResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if a.cfg.TestMode {
		results := make([]carrier.InvoiceResult, 0, len(reqs))
		for _, req := range reqs {
			results = append(results, *a.testInvoice(req))
		}
		return results, nil
	}

	entries := make([]cjInvoiceEntry, 0, len(reqs))
	for _, req := range reqs {
		entries = append(entries, cjEntry(req))
	}

	httpReq, err := a.newRequest(ctx, "/v1/invoice/bulk-create", map[string]any{"invoices": entries})
	if err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, a.httpClient, carrier.CodeCJ, "issue_invoices", httpReq)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []cjInvoiceResult `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("cj issue_invoices: failed to decode response: %w", err)
	}

	byReference := make(map[string]cjInvoiceResult, len(resp.Results))
	for _, r := range resp.Results {
		byReference[r.OrderID] = r
	}

	issuedAt := a.now()
	results := make([]carrier.InvoiceResult, 0, len(reqs))
	for _, req := range reqs {
		out := carrier.InvoiceResult{Reference: req.Reference, IssuedAt: issuedAt}
		r, ok := byReference[req.Reference]
		switch {
		case !ok:
			out.Err = fmt.Errorf("cj issue_invoices: %w: no result for %s", carrier.ErrTransient, req.Reference)
		case r.ResultCode != "" && r.ResultCode != "00":
			out.Err = fmt.Errorf("cj issue_invoices: %w: %s (%s)", carrier.ErrValidation, r.Message, r.ResultCode)
		case r.tracking() == "":
			out.Err = fmt.Errorf("cj issue_invoices: %w: no tracking number for %s", carrier.ErrValidation, req.Reference)
		default:
			out.TrackingNumber = r.tracking()
		}
		results = append(results, out)
	}

	a.logger.Info("bulk invoices issued",
		zap.Int("requested", len(reqs)),
		zap.Int("issued", countIssued(results)))
	return results, nil
}

type cjTrackingEvent struct {
	Status     string `json:"status"`
	Location   string `json:"location"`
	Message    string `json:"message"`
	OccurredAt string `json:"occurredAt"`
}

// cjStatusMap normalizes CJ tracking status codes
var cjStatusMap = map[string]carrier.DeliveryStatus{
	"11": carrier.StatusReady,
	"21": carrier.StatusPickedUp,
	"41": carrier.StatusInTransit,
	"82": carrier.StatusOutForDelivery,
	"91": carrier.StatusDelivered,
	"99": carrier.StatusFailed,
}

// TrackShipment implements carrier.Adapter
func (a *CJAdapter) TrackShipment(ctx context.Context, trackingNumber string) ([]carrier.TrackingEvent, error) {
	if a.cfg.TestMode {
		return []carrier.TrackingEvent{{Status: carrier.StatusReady, Note: "test mode", OccurredAt: a.now()}}, nil
	}

	httpReq, err := a.newRequest(ctx, "/v1/tracking", map[string]string{"invoiceNo": trackingNumber})
	if err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, a.httpClient, carrier.CodeCJ, "track_shipment", httpReq)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Events []cjTrackingEvent `json:"events"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("cj track_shipment: failed to decode response: %w", err)
	}

	events := make([]carrier.TrackingEvent, 0, len(resp.Events))
	for _, e := range resp.Events {
		status, ok := cjStatusMap[e.Status]
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

func (a *CJAdapter) testInvoice(req carrier.InvoiceRequest) *carrier.InvoiceResult {
	tracking := testTrackingNumber("CJ", req.Reference)
	a.logger.Info("test mode invoice issued",
		zap.String("reference", req.Reference),
		zap.String("tracking_number", tracking))
	return &carrier.InvoiceResult{
		Reference:      req.Reference,
		TrackingNumber: tracking,
		IssuedAt:       a.now(),
	}
}

func countIssued(results []carrier.InvoiceResult) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}
