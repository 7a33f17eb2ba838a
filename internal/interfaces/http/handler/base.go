// Package handler contains the gin HTTP handlers for the admin and
// trigger API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/interfaces/http/dto"
)

// BaseHandler provides common response utilities
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a 200 response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, limit, offset int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, limit, offset))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work that continues in the
// background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with an explicit status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message, getRequestID(c)))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// HandleError maps domain errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code := errorCode(err)
	h.Error(c, dto.GetHTTPStatus(code), code, err.Error())
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return dto.ErrCodeNotFound
	case errors.Is(err, shared.ErrAlreadyExists):
		return dto.ErrCodeAlreadyExists
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrConcurrencyConflict):
		return dto.ErrCodeConflict
	case errors.Is(err, shared.ErrInvalidInput):
		return dto.ErrCodeInvalidInput
	case errors.Is(err, shared.ErrInvalidState):
		return dto.ErrCodeInvalidState
	case errors.Is(err, catalog.ErrInsufficientStock):
		return dto.ErrCodeInsufficientStock
	case channelFailure(err), carrierFailure(err):
		return dto.ErrCodeUpstream
	}
	return dto.ErrCodeInternal
}

func channelFailure(err error) bool {
	return errors.Is(err, channel.ErrAuthFailed) ||
		errors.Is(err, channel.ErrValidation) ||
		channel.IsRetryable(err)
}

func carrierFailure(err error) bool {
	return errors.Is(err, carrier.ErrAuthFailed) ||
		errors.Is(err, carrier.ErrValidation) ||
		carrier.IsRetryable(err)
}
