package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
)

func TestNewProduct(t *testing.T) {
	t.Run("creates valid product", func(t *testing.T) {
		p, err := NewProduct("TMB-001", "텀블러", decimal.NewFromInt(15000), 100, 10)
		require.NoError(t, err)
		assert.Equal(t, 100, p.StockQuantity)
		assert.False(t, p.IsLowStock())
	})

	t.Run("rejects empty sku", func(t *testing.T) {
		_, err := NewProduct("", "텀블러", decimal.NewFromInt(15000), 100, 10)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("rejects negative stock", func(t *testing.T) {
		_, err := NewProduct("TMB-001", "텀블러", decimal.NewFromInt(15000), -1, 10)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestLinkChannel(t *testing.T) {
	p, err := NewProduct("TMB-001", "텀블러", decimal.NewFromInt(15000), 100, 10)
	require.NoError(t, err)

	require.NoError(t, p.LinkChannel(channel.CodeNaver, "naver-item-1"))
	id, ok := p.RemoteItemID(channel.CodeNaver)
	assert.True(t, ok)
	assert.Equal(t, "naver-item-1", id)

	t.Run("rejects duplicate link for same channel", func(t *testing.T) {
		assert.ErrorIs(t, p.LinkChannel(channel.CodeNaver, "naver-item-2"), ErrDuplicateLink)
	})

	t.Run("allows links on other channels", func(t *testing.T) {
		assert.NoError(t, p.LinkChannel(channel.CodeCoupang, "coupang-item-1"))
	})

	t.Run("unlinked channel reports not found", func(t *testing.T) {
		p2, err := NewProduct("MUG-001", "머그컵", decimal.NewFromInt(8000), 10, 0)
		require.NoError(t, err)
		_, ok := p2.RemoteItemID(channel.CodeNaver)
		assert.False(t, ok)
	})
}

func TestApplyMovement(t *testing.T) {
	t.Run("records before and after quantities", func(t *testing.T) {
		p, err := NewProduct("TMB-001", "텀블러", decimal.NewFromInt(15000), 100, 10)
		require.NoError(t, err)

		mv, err := p.ApplyMovement(-3, ReasonOrder, "NAVER-2026010112345")
		require.NoError(t, err)
		assert.Equal(t, 100, mv.QuantityBefore)
		assert.Equal(t, -3, mv.QuantityChange)
		assert.Equal(t, 97, mv.QuantityAfter)
		assert.Equal(t, 97, p.StockQuantity)
	})

	t.Run("stock never goes negative", func(t *testing.T) {
		p, err := NewProduct("TMB-001", "텀블러", decimal.NewFromInt(15000), 2, 0)
		require.NoError(t, err)

		_, err = p.ApplyMovement(-5, ReasonOrder, "")
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.Equal(t, 2, p.StockQuantity)
	})

	t.Run("rejects unknown reason", func(t *testing.T) {
		p, err := NewProduct("TMB-001", "텀블러", decimal.NewFromInt(15000), 2, 0)
		require.NoError(t, err)
		_, err = p.ApplyMovement(1, "theft", "")
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("low stock detected at threshold", func(t *testing.T) {
		p, err := NewProduct("TMB-001", "텀블러", decimal.NewFromInt(15000), 11, 10)
		require.NoError(t, err)
		assert.False(t, p.IsLowStock())
		_, err = p.ApplyMovement(-1, ReasonOrder, "")
		require.NoError(t, err)
		assert.True(t, p.IsLowStock())
	})
}
