package keys

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lendchat/lendchat/pkg/errors"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	master := bytes.Repeat([]byte{0xAB}, 32)
	cipher, err := NewCipher(master)
	require.NoError(t, err)
	return cipher
}

func TestNewCipher(t *testing.T) {
	t.Run("rejects short master keys", func(t *testing.T) {
		_, err := NewCipher([]byte("too short"))
		require.Error(t, err)
	})

	t.Run("copies the master key", func(t *testing.T) {
		master := bytes.Repeat([]byte{0x01}, 32)
		cipher, err := NewCipher(master)
		require.NoError(t, err)

		// Mutating the caller's buffer must not affect the cipher.
		Zeroize(master)
		secret, err := cipher.EncryptSecret("acct", []byte("payload"))
		require.NoError(t, err)
		plaintext, err := cipher.DecryptSecret(secret, "acct")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), plaintext)
	})
}

func TestEncryptDecryptSecret(t *testing.T) {
	cipher := testCipher(t)
	plaintext := []byte("super secret key material")

	secret, err := cipher.EncryptSecret("15551234567", plaintext)
	require.NoError(t, err)
	require.NotEmpty(t, secret.Ciphertext)
	require.NotEmpty(t, secret.IV)
	require.NotEmpty(t, secret.Salt)
	require.NotEmpty(t, secret.AuthTag)

	t.Run("roundtrip", func(t *testing.T) {
		decrypted, err := cipher.DecryptSecret(secret, "15551234567")
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("fresh salt and nonce per call", func(t *testing.T) {
		again, err := cipher.EncryptSecret("15551234567", plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, secret.IV, again.IV)
		assert.NotEqual(t, secret.Salt, again.Salt)
		assert.NotEqual(t, secret.Ciphertext, again.Ciphertext)
	})

	t.Run("wrong account fails closed", func(t *testing.T) {
		_, err := cipher.DecryptSecret(secret, "15559999999")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthFailure))
	})

	t.Run("tampered ciphertext fails closed", func(t *testing.T) {
		tampered := *secret
		tampered.Ciphertext = "00" + tampered.Ciphertext[2:]
		_, err := cipher.DecryptSecret(&tampered, "15551234567")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthFailure))
	})

	t.Run("tampered tag fails closed", func(t *testing.T) {
		tampered := *secret
		tampered.AuthTag = "deadbeefdeadbeefdeadbeefdeadbeef"
		_, err := cipher.DecryptSecret(&tampered, "15551234567")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthFailure))
	})

	t.Run("missing tag reports corruption before decrypting", func(t *testing.T) {
		corrupted := *secret
		corrupted.AuthTag = ""
		_, err := cipher.DecryptSecret(&corrupted, "15551234567")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeWalletCorrupted))
	})

	t.Run("non-hex fields fail closed", func(t *testing.T) {
		tampered := *secret
		tampered.Salt = "not hex"
		_, err := cipher.DecryptSecret(&tampered, "15551234567")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthFailure))
	})
}

func TestDifferentMasterKeysDoNotInterop(t *testing.T) {
	a, err := NewCipher(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	b, err := NewCipher(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)

	secret, err := a.EncryptSecret("acct", []byte("payload"))
	require.NoError(t, err)

	_, err = b.DecryptSecret(secret, "acct")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthFailure))
}
