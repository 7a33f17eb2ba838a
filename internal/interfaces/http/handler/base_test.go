package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/interfaces/http/dto"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"not found", shared.ErrNotFound, dto.ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("order: %w", shared.ErrNotFound), dto.ErrCodeNotFound},
		{"already exists", shared.ErrAlreadyExists, dto.ErrCodeAlreadyExists},
		{"conflict", shared.ErrConflict, dto.ErrCodeConflict},
		{"invalid input", shared.ErrInvalidInput, dto.ErrCodeInvalidInput},
		{"invalid state", shared.ErrInvalidState, dto.ErrCodeInvalidState},
		{"insufficient stock", catalog.ErrInsufficientStock, dto.ErrCodeInsufficientStock},
		{"channel auth", channel.ErrAuthFailed, dto.ErrCodeUpstream},
		{"channel transient", channel.ErrTransient, dto.ErrCodeUpstream},
		{"carrier validation", carrier.ErrValidation, dto.ErrCodeUpstream},
		{"unknown", fmt.Errorf("boom"), dto.ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, errorCode(tc.err))
		})
	}
}

func TestHandleErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &BaseHandler{}

	cases := []struct {
		err    error
		status int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrInvalidInput, http.StatusBadRequest},
		{shared.ErrInvalidState, http.StatusUnprocessableEntity},
		{catalog.ErrInsufficientStock, http.StatusUnprocessableEntity},
		{carrier.ErrTransient, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)

		h.HandleError(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
	}
}

func TestSystemHandlerHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSystemHandler("shopflow-backend", "test")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/health", nil)

	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "shopflow-backend", data["name"])
}
