package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	apperrors "github.com/lendchat/lendchat/pkg/errors"
	"github.com/lendchat/lendchat/pkg/types"
)

const (
	saltLength    = 32
	nonceLength   = 12
	derivedKeyLen = 32

	// Context prefix bound into HKDF so a key encrypted for one
	// account can never decrypt under another, even with the same
	// master key and salt.
	hkdfInfoPrefix = "lendchat-wallet-v1-"
)

// Cipher encrypts and decrypts per-account wallet secrets under a
// process-wide master key. The master key is read-only after
// construction.
type Cipher struct {
	masterKey []byte
}

// NewCipher creates a Cipher from a 32-byte master key.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != derivedKeyLen {
		return nil, apperrors.NewWithDetail(
			apperrors.ErrCodeEncryptionFailed,
			"Master key must be 32 bytes",
			"",
		)
	}
	key := make([]byte, derivedKeyLen)
	copy(key, masterKey)
	return &Cipher{masterKey: key}, nil
}

// deriveKey derives the per-account AES key with HKDF-SHA256 over the
// master key, the salt and the account-bound context string.
func (c *Cipher) deriveKey(salt []byte, accountID string) ([]byte, error) {
	reader := hkdf.New(sha256.New, c.masterKey, salt, []byte(hkdfInfoPrefix+accountID))
	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptSecret encrypts plaintext key material for an account using
// AES-256-GCM with a fresh salt and nonce on every call.
func (c *Cipher) EncryptSecret(accountID string, plaintext []byte) (*types.EncryptedSecret, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeEncryptionFailed, "Failed to generate salt", err.Error())
	}

	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeEncryptionFailed, "Failed to generate nonce", err.Error())
	}

	key, err := c.deriveKey(salt, accountID)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeEncryptionFailed, "Key derivation failed", err.Error())
	}
	defer Zeroize(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeEncryptionFailed, "Failed to create cipher", err.Error())
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	// GCM appends the 16-byte tag to the ciphertext; store it
	// separately so corruption can be detected before decryption.
	tagStart := len(sealed) - gcm.Overhead()
	return &types.EncryptedSecret{
		Ciphertext: hex.EncodeToString(sealed[:tagStart]),
		IV:         hex.EncodeToString(nonce),
		Salt:       hex.EncodeToString(salt),
		AuthTag:    hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

// DecryptSecret re-derives the per-account key and opens the
// ciphertext. Any tag mismatch, corrupted field or wrong accountID
// fails closed with an authentication failure.
func (c *Cipher) DecryptSecret(secret *types.EncryptedSecret, accountID string) ([]byte, error) {
	if secret.AuthTag == "" {
		return nil, apperrors.ErrWalletCorrupted
	}

	salt, err := hex.DecodeString(secret.Salt)
	if err != nil {
		return nil, apperrors.ErrAuthFailure
	}
	nonce, err := hex.DecodeString(secret.IV)
	if err != nil || len(nonce) != nonceLength {
		return nil, apperrors.ErrAuthFailure
	}
	ciphertext, err := hex.DecodeString(secret.Ciphertext)
	if err != nil {
		return nil, apperrors.ErrAuthFailure
	}
	tag, err := hex.DecodeString(secret.AuthTag)
	if err != nil {
		return nil, apperrors.ErrAuthFailure
	}

	key, err := c.deriveKey(salt, accountID)
	if err != nil {
		return nil, apperrors.ErrAuthFailure
	}
	defer Zeroize(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, apperrors.ErrAuthFailure
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, apperrors.ErrAuthFailure
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
