// Package channels implements the marketplace adapters for Naver Smart
// Store and Coupang WING.
package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopflow/backend/internal/domain/channel"
)

// maxResponseSize is the maximum allowed response size from channel APIs (10MB)
const maxResponseSize = 10 * 1024 * 1024

const defaultTimeout = 30 * time.Second

// classifyStatus maps an HTTP status code to the channel failure taxonomy
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return channel.ErrAuthFailed
	case status == http.StatusTooManyRequests:
		return channel.ErrRateLimited
	case status >= 500:
		return channel.ErrTransient
	default:
		return channel.ErrValidation
	}
}

// apiError builds a classified APIError from a response
func apiError(code channel.Code, operation string, status int, remoteCode, message string) error {
	return &channel.APIError{
		Channel:    code,
		Operation:  operation,
		StatusCode: status,
		RemoteCode: remoteCode,
		Message:    message,
		Class:      classifyStatus(status),
	}
}

// transportError wraps a network-level failure as transient
func transportError(code channel.Code, operation string, err error) error {
	return fmt.Errorf("%s %s: %w: %v", code, operation, channel.ErrTransient, err)
}

// readBody drains a response body with the size cap applied
func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

// doJSON sends the request and returns the body, classifying non-2xx
// responses with the channel taxonomy
func doJSON(ctx context.Context, client *http.Client, code channel.Code, operation string, req *http.Request) ([]byte, error) {
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
		return nil, apiError(code, operation, resp.StatusCode, "", string(body))
	}
	return body, nil
}
