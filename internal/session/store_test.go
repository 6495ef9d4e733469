package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendchat/lendchat/pkg/types"
)

func TestStoreSetGet(t *testing.T) {
	s := NewStore()

	s.Set("acct", types.SessionSend, "10", "USDC")

	sess := s.Get("acct")
	require.NotNil(t, sess)
	assert.Equal(t, types.SessionSend, sess.Kind)
	assert.Equal(t, "10", sess.Amount)
	assert.Equal(t, "USDC", sess.Token)

	assert.Nil(t, s.Get("other"))
}

func TestStoreSupersede(t *testing.T) {
	s := NewStore()

	s.Set("acct", types.SessionSend, "10", "USDC")
	s.Set("acct", types.SessionWithdraw, "5", "WETH")

	sess := s.Get("acct")
	require.NotNil(t, sess)
	assert.Equal(t, types.SessionWithdraw, sess.Kind)
	assert.Equal(t, "5", sess.Amount)
	assert.Equal(t, 1, s.Len())
}

func TestStoreExpiry(t *testing.T) {
	now := time.Now()
	s := NewStore()
	s.now = func() time.Time { return now }

	s.Set("acct", types.SessionSend, "10", "USDC")

	t.Run("visible just inside the TTL", func(t *testing.T) {
		now = now.Add(DefaultTTL - time.Second)
		assert.NotNil(t, s.Get("acct"))
	})

	t.Run("reads do not refresh the TTL", func(t *testing.T) {
		now = now.Add(2 * time.Second)
		assert.Nil(t, s.Get("acct"))
	})

	t.Run("expired entry is deleted by the read", func(t *testing.T) {
		assert.Equal(t, 0, s.Len())
	})
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Set("acct", types.SessionSend, "10", "USDC")
	s.Clear("acct")
	assert.Nil(t, s.Get("acct"))

	// Clearing an absent session is a no-op.
	s.Clear("acct")
}

func TestStoreSweep(t *testing.T) {
	now := time.Now()
	s := NewStore()
	s.now = func() time.Time { return now }

	s.Set("old", types.SessionSend, "1", "ETH")
	now = now.Add(DefaultTTL + time.Second)
	s.Set("fresh", types.SessionSend, "2", "ETH")

	s.sweep()

	assert.Equal(t, 1, s.Len())
	assert.NotNil(t, s.Get("fresh"))
}
