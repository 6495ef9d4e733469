package types

import (
	"time"
)

// WalletRecord is the persisted custody record for one account.
// The private key is stored only as authenticated ciphertext; the
// address is derived from the plaintext key at creation time and kept
// for balance lookups without decryption.
type WalletRecord struct {
	AccountID  string    `json:"account_id"`
	Address    string    `json:"address"`
	Ciphertext string    `json:"ciphertext"`
	Salt       string    `json:"salt"`
	IV         string    `json:"iv"`
	AuthTag    string    `json:"auth_tag"`
	CreatedAt  time.Time `json:"created_at"`
}

// Corrupted reports whether the record is missing its authentication
// tag. A record without a tag must never be handed to decryption.
func (r *WalletRecord) Corrupted() bool {
	return r.AuthTag == ""
}

// EncryptedSecret is the output of the key-encryption layer: AES-GCM
// ciphertext plus the nonce, the HKDF salt and the authentication tag,
// all hex encoded.
type EncryptedSecret struct {
	Ciphertext string
	IV         string
	Salt       string
	AuthTag    string
}

// SessionKind identifies which command a pending session belongs to.
type SessionKind string

const (
	SessionSend     SessionKind = "send"
	SessionWithdraw SessionKind = "withdraw"
)

// Session is a pending multi-step command waiting for a destination
// address from the same account. At most one exists per account.
type Session struct {
	AccountID string
	Kind      SessionKind
	Amount    string
	Token     string
	CreatedAt time.Time
}

// Outcome is the result of a successful orchestration: the confirmed
// transaction hashes in submission order (one for supply/send, one or
// two for withdraw).
type Outcome struct {
	TxHashes []string
}
