package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lendchat/lendchat/pkg/errors"
)

// Well-known development mnemonic with a published first account.
const testMnemonic = "test test test test test test test test test test test junk"
const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestDeriveNewWallet(t *testing.T) {
	wallet, err := DeriveNewWallet()
	require.NoError(t, err)

	assert.Len(t, strings.Fields(wallet.Mnemonic), 24)
	assert.Len(t, wallet.PrivateKey, 32)
	assert.NotEqual(t, strings.Repeat("\x00", 32), string(wallet.PrivateKey))

	t.Run("mnemonic reproduces the same account", func(t *testing.T) {
		again, err := ImportWallet(wallet.Mnemonic)
		require.NoError(t, err)
		assert.Equal(t, wallet.Address, again.Address)
		assert.Equal(t, wallet.PrivateKey, again.PrivateKey)
	})

	t.Run("two wallets never collide", func(t *testing.T) {
		other, err := DeriveNewWallet()
		require.NoError(t, err)
		assert.NotEqual(t, wallet.Address, other.Address)
		assert.NotEqual(t, wallet.Mnemonic, other.Mnemonic)
	})
}

func TestImportWallet(t *testing.T) {
	t.Run("known mnemonic derives the known address", func(t *testing.T) {
		wallet, err := ImportWallet(testMnemonic)
		require.NoError(t, err)
		assert.Equal(t, testAddress, wallet.Address.Hex())
	})

	t.Run("twelve word mnemonics are accepted", func(t *testing.T) {
		wallet, err := ImportWallet(testMnemonic)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(testMnemonic), 12)
		assert.NotEmpty(t, wallet.PrivateKey)
	})

	t.Run("bad checksum is rejected before derivation", func(t *testing.T) {
		_, err := ImportWallet("test test test test test test test test test test test test")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidMnemonic))
	})

	t.Run("garbage input is rejected", func(t *testing.T) {
		_, err := ImportWallet("definitely not a mnemonic")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidMnemonic))
	})
}

func TestZeroize(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	Zeroize(buf)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestZeroizeKey(t *testing.T) {
	wallet, err := DeriveNewWallet()
	require.NoError(t, err)

	key, err := PrivateKeyFromBytes(wallet.PrivateKey)
	require.NoError(t, err)

	ZeroizeKey(key)
	assert.Zero(t, key.D.Sign())
}
