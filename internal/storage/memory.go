package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/lendchat/lendchat/pkg/types"
)

// ErrWalletExists is returned when a save would overwrite an existing
// custody record.
var ErrWalletExists = errors.New("wallet record already exists")

// MemoryWalletStore is an in-process WalletStore for local development
// and tests.
type MemoryWalletStore struct {
	mu      sync.RWMutex
	records map[string]types.WalletRecord
}

// NewMemoryWalletStore creates an empty in-memory store.
func NewMemoryWalletStore() *MemoryWalletStore {
	return &MemoryWalletStore{
		records: make(map[string]types.WalletRecord),
	}
}

// GetWallet retrieves the custody record for an account.
func (s *MemoryWalletStore) GetWallet(_ context.Context, accountID string) (*types.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[accountID]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate the stored record.
	out := record
	return &out, nil
}

// SaveWallet inserts a new custody record, refusing overwrites.
func (s *MemoryWalletStore) SaveWallet(_ context.Context, record *types.WalletRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.AccountID]; ok {
		return ErrWalletExists
	}
	s.records[record.AccountID] = *record
	return nil
}
