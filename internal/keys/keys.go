// Package keys implements wallet key derivation and encryption at
// rest. Private keys exist in plaintext only inside the scope of a
// single command; callers must zeroize them on every exit path.
package keys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	bip39 "github.com/tyler-smith/go-bip39"

	apperrors "github.com/lendchat/lendchat/pkg/errors"
)

// Standard Ethereum account path: m/44'/60'/0'/0/0
var derivationPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
	0,
}

// DerivedWallet is the transient result of wallet derivation. The
// mnemonic is for one-time display; PrivateKey must be zeroized by the
// caller as soon as it has been encrypted.
type DerivedWallet struct {
	Address    common.Address
	Mnemonic   string
	PrivateKey []byte
}

// DeriveNewWallet generates a 24-word mnemonic (256-bit entropy) and
// derives the first external account key from it.
func DeriveNewWallet() (*DerivedWallet, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeDerivationFailed, "Failed to generate entropy", err.Error())
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeDerivationFailed, "Failed to encode mnemonic", err.Error())
	}

	key, err := deriveAccountKey(mnemonic)
	if err != nil {
		return nil, err
	}

	return &DerivedWallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		Mnemonic:   mnemonic,
		PrivateKey: crypto.FromECDSA(key),
	}, nil
}

// ImportWallet derives the account key from an existing mnemonic.
// The checksum is validated before any key material is computed.
func ImportWallet(mnemonic string) (*DerivedWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, apperrors.ErrInvalidMnemonic
	}

	key, err := deriveAccountKey(mnemonic)
	if err != nil {
		return nil, err
	}

	return &DerivedWallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		Mnemonic:   mnemonic,
		PrivateKey: crypto.FromECDSA(key),
	}, nil
}

// deriveAccountKey walks the HD tree to m/44'/60'/0'/0/0.
func deriveAccountKey(mnemonic string) (*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, apperrors.ErrInvalidMnemonic
	}

	node, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeDerivationFailed, "Failed to derive master key", err.Error())
	}

	for _, index := range derivationPath {
		node, err = node.Derive(index)
		if err != nil {
			return nil, apperrors.NewWithDetail(
				apperrors.ErrCodeDerivationFailed,
				"Failed to derive account key",
				fmt.Sprintf("index %d: %v", index, err),
			)
		}
	}

	btcKey, err := node.ECPrivKey()
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeDerivationFailed, "Failed to extract private key", err.Error())
	}

	return btcKey.ToECDSA(), nil
}

// PrivateKeyFromBytes parses raw private key bytes back into an ECDSA key.
func PrivateKeyFromBytes(b []byte) (*ecdsa.PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeDerivationFailed, "Invalid private key bytes", err.Error())
	}
	return key, nil
}

// AddressFromKey derives the Ethereum address for a private key.
func AddressFromKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Zeroize overwrites a sensitive buffer in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeKey clears the scalar of a parsed ECDSA key.
func ZeroizeKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	bits := key.D.Bits()
	for i := range bits {
		bits[i] = 0
	}
	key.D.SetInt64(0)
}
