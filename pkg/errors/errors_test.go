package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	t.Run("without detail", func(t *testing.T) {
		err := New(ErrCodeInvalidAmount, "Amount is empty")
		assert.Equal(t, "invalid_amount: Amount is empty", err.Error())
	})

	t.Run("with detail", func(t *testing.T) {
		err := NewWithDetail(ErrCodeInvalidAmount, "Amount is empty", "got nothing")
		assert.Equal(t, "invalid_amount: Amount is empty (got nothing)", err.Error())
	})
}

func TestIsAppError(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		appErr, ok := IsAppError(ErrWalletNotFound)
		require.True(t, ok)
		assert.Equal(t, ErrCodeWalletNotFound, appErr.Code)
	})

	t.Run("wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("handling command: %w", ErrAuthFailure)
		appErr, ok := IsAppError(wrapped)
		require.True(t, ok)
		assert.Equal(t, ErrCodeAuthFailure, appErr.Code)
	})

	t.Run("plain error", func(t *testing.T) {
		_, ok := IsAppError(fmt.Errorf("boom"))
		assert.False(t, ok)
	})
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(ErrWalletExists, ErrCodeWalletExists))
	assert.False(t, HasCode(ErrWalletExists, ErrCodeWalletNotFound))
	assert.False(t, HasCode(fmt.Errorf("boom"), ErrCodeWalletExists))
	assert.False(t, HasCode(nil, ErrCodeWalletExists))
}

func TestConstructors(t *testing.T) {
	t.Run("insufficient balance carries both amounts", func(t *testing.T) {
		err := InsufficientBalance("USDC", "1.5", "25")
		assert.Equal(t, ErrCodeInsufficientBalance, err.Code)
		assert.Contains(t, err.Detail, "have 1.5")
		assert.Contains(t, err.Detail, "need 25")
	})

	t.Run("invalid token lists supported symbols", func(t *testing.T) {
		err := InvalidToken("DOGE", []string{"ETH", "USDC"})
		assert.Equal(t, ErrCodeInvalidToken, err.Code)
		assert.Contains(t, err.Detail, "USDC")
	})

	t.Run("timeout names the operation", func(t *testing.T) {
		err := Timeout("supply confirmation")
		assert.Equal(t, ErrCodeTimeout, err.Code)
		assert.Equal(t, "supply confirmation", err.Detail)
	})
}
