package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainerrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
)

// LinkedWalletRepository handles linked wallet persistence
type LinkedWalletRepository struct {
	db *sqlx.DB
}

// NewLinkedWalletRepository creates a new linked wallet repository
func NewLinkedWalletRepository(db *sqlx.DB) *LinkedWalletRepository {
	return &LinkedWalletRepository{db: db}
}

// Create inserts a new linked wallet. A partial unique index on active
// addresses rejects linking an address that already belongs to another user.
func (r *LinkedWalletRepository) Create(ctx context.Context, wallet *entities.LinkedWallet) error {
	query := `
		INSERT INTO linked_wallets (id, user_id, address, signature, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	wallet.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		wallet.ID,
		wallet.UserID,
		wallet.Address,
		wallet.Signature,
		wallet.Active,
		wallet.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return domainerrors.ErrWalletAlreadyLinked
		}
		return fmt.Errorf("failed to create linked wallet: %w", err)
	}

	return nil
}

// GetActiveByAddress resolves a sender address to its owner. This is the
// matcher's secondary path for treasury deposits.
func (r *LinkedWalletRepository) GetActiveByAddress(ctx context.Context, address string) (*entities.LinkedWallet, error) {
	query := `
		SELECT id, user_id, address, signature, active, created_at
		FROM linked_wallets
		WHERE address = $1 AND active = TRUE
	`

	var wallet entities.LinkedWallet
	err := r.db.GetContext(ctx, &wallet, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrLinkedWalletNotFound
		}
		return nil, fmt.Errorf("failed to get linked wallet: %w", err)
	}

	return &wallet, nil
}

// GetActiveByUserAndAddress checks whether a specific sender belongs to a
// specific user
func (r *LinkedWalletRepository) GetActiveByUserAndAddress(ctx context.Context, userID uuid.UUID, address string) (*entities.LinkedWallet, error) {
	query := `
		SELECT id, user_id, address, signature, active, created_at
		FROM linked_wallets
		WHERE user_id = $1 AND address = $2 AND active = TRUE
	`

	var wallet entities.LinkedWallet
	err := r.db.GetContext(ctx, &wallet, query, userID, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrLinkedWalletNotFound
		}
		return nil, fmt.Errorf("failed to get linked wallet: %w", err)
	}

	return &wallet, nil
}

// ListActiveByUser returns a user's active linked wallets
func (r *LinkedWalletRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*entities.LinkedWallet, error) {
	query := `
		SELECT id, user_id, address, signature, active, created_at
		FROM linked_wallets
		WHERE user_id = $1 AND active = TRUE
		ORDER BY created_at
	`

	var wallets []*entities.LinkedWallet
	if err := r.db.SelectContext(ctx, &wallets, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list linked wallets: %w", err)
	}

	return wallets, nil
}

// Deactivate unlinks a wallet
func (r *LinkedWalletRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE linked_wallets SET active = FALSE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to deactivate linked wallet: %w", err)
	}
	return nil
}
