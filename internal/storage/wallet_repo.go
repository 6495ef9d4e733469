package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lendchat/lendchat/pkg/types"
)

// WalletStore is the persistence contract for custody records. Get
// returns nil, nil when no record exists. Save refuses to overwrite an
// existing record; custody records are write-once.
type WalletStore interface {
	GetWallet(ctx context.Context, accountID string) (*types.WalletRecord, error)
	SaveWallet(ctx context.Context, record *types.WalletRecord) error
}

// WalletRepository is the postgres-backed WalletStore.
type WalletRepository struct {
	store *Store
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(store *Store) *WalletRepository {
	return &WalletRepository{store: store}
}

// GetWallet retrieves the custody record for an account.
func (r *WalletRepository) GetWallet(ctx context.Context, accountID string) (*types.WalletRecord, error) {
	query := `
		SELECT account_id, address, ciphertext, salt, iv, auth_tag, created_at
		FROM wallets
		WHERE account_id = $1
	`

	var record types.WalletRecord
	err := r.store.pool.QueryRow(ctx, query, accountID).Scan(
		&record.AccountID,
		&record.Address,
		&record.Ciphertext,
		&record.Salt,
		&record.IV,
		&record.AuthTag,
		&record.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &record, nil
}

// SaveWallet inserts a new custody record. ON CONFLICT DO NOTHING plus
// the affected-row check makes the write-once rule atomic under
// concurrent creates.
func (r *WalletRepository) SaveWallet(ctx context.Context, record *types.WalletRecord) error {
	query := `
		INSERT INTO wallets (account_id, address, ciphertext, salt, iv, auth_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO NOTHING
	`

	tag, err := r.store.pool.Exec(ctx, query,
		record.AccountID,
		record.Address,
		record.Ciphertext,
		record.Salt,
		record.IV,
		record.AuthTag,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletExists
	}

	return nil
}
