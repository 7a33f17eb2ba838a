// Package carriers implements the shipping carrier adapters for
// CJ Logistics and Hanjin Express.
package carriers

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"time"

	"github.com/shopflow/backend/internal/domain/carrier"
)

// maxResponseSize is the maximum allowed response size from carrier APIs (10MB)
const maxResponseSize = 10 * 1024 * 1024

const defaultTimeout = 30 * time.Second

// classifyStatus maps an HTTP status code to the carrier failure taxonomy
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return carrier.ErrAuthFailed
	case status == http.StatusTooManyRequests:
		return carrier.ErrRateLimited
	case status >= 500:
		return carrier.ErrTransient
	default:
		return carrier.ErrValidation
	}
}

// apiError builds a classified error from a carrier response
func apiError(code carrier.Code, operation string, status int, message string) error {
	return fmt.Errorf("%s %s: status %d: %w: %s", code, operation, status, classifyStatus(status), message)
}

// transportError wraps a network-level failure as transient
func transportError(code carrier.Code, operation string, err error) error {
	return fmt.Errorf("%s %s: %w: %v", code, operation, carrier.ErrTransient, err)
}

// readBody drains a response body with the size cap applied
func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

// doJSON sends the request and returns the body, classifying non-2xx
// responses with the carrier taxonomy
func doJSON(ctx context.Context, client *http.Client, code carrier.Code, operation string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, transportError(code, operation, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, transportError(code, operation, err)
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(code, operation, resp.StatusCode, string(body))
	}
	return body, nil
}

// testTrackingNumber derives a stable local tracking number from the
// request reference. Test mode must hand out the same number for the
// same order so a retried batch stays idempotent.
func testTrackingNumber(prefix, reference string) string {
	h := fnv.New32a()
	h.Write([]byte(reference))
	return fmt.Sprintf("%s%010d", prefix, h.Sum32())
}
