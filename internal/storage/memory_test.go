package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendchat/lendchat/pkg/types"
)

func testRecord(accountID string) *types.WalletRecord {
	return &types.WalletRecord{
		AccountID:  accountID,
		Address:    "0x1111111111111111111111111111111111111111",
		Ciphertext: "aabb",
		Salt:       "ccdd",
		IV:         "eeff",
		AuthTag:    "0011",
		CreatedAt:  time.Now(),
	}
}

func TestMemoryWalletStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryWalletStore()

	t.Run("absent record is nil, nil", func(t *testing.T) {
		record, err := store.GetWallet(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("save and get", func(t *testing.T) {
		require.NoError(t, store.SaveWallet(ctx, testRecord("acct")))

		record, err := store.GetWallet(ctx, "acct")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "aabb", record.Ciphertext)
	})

	t.Run("records are write-once", func(t *testing.T) {
		err := store.SaveWallet(ctx, testRecord("acct"))
		assert.ErrorIs(t, err, ErrWalletExists)
	})

	t.Run("callers get a copy", func(t *testing.T) {
		record, err := store.GetWallet(ctx, "acct")
		require.NoError(t, err)
		record.Ciphertext = "mutated"

		again, err := store.GetWallet(ctx, "acct")
		require.NoError(t, err)
		assert.Equal(t, "aabb", again.Ciphertext)
	})

}
