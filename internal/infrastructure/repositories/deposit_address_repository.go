package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainerrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
)

// DepositAddressRepository handles deposit address persistence
type DepositAddressRepository struct {
	db *sqlx.DB
}

// NewDepositAddressRepository creates a new deposit address repository
func NewDepositAddressRepository(db *sqlx.DB) *DepositAddressRepository {
	return &DepositAddressRepository{db: db}
}

// Create inserts a new deposit address
func (r *DepositAddressRepository) Create(ctx context.Context, addr *entities.DepositAddress) error {
	query := `
		INSERT INTO deposit_addresses (
			id, user_id, address, coin_type, derivation_index,
			derivation_path, version, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	addr.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		addr.ID,
		addr.UserID,
		addr.Address,
		addr.CoinType,
		addr.DerivationIndex,
		addr.DerivationPath,
		addr.Version,
		addr.Active,
		addr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create deposit address: %w", err)
	}

	return nil
}

// GetActiveByUserAndVersion returns the user's active address for a scheme
// version, or ErrDepositAddressNotFound
func (r *DepositAddressRepository) GetActiveByUserAndVersion(ctx context.Context, userID uuid.UUID, version int) (*entities.DepositAddress, error) {
	query := `
		SELECT id, user_id, address, coin_type, derivation_index,
		       derivation_path, version, active, created_at
		FROM deposit_addresses
		WHERE user_id = $1 AND version = $2 AND active = TRUE
	`

	var addr entities.DepositAddress
	err := r.db.GetContext(ctx, &addr, query, userID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrDepositAddressNotFound
		}
		return nil, fmt.Errorf("failed to get deposit address: %w", err)
	}

	return &addr, nil
}

// GetActiveByAddress resolves an on-chain destination address to its owner.
// This is the matcher's primary path.
func (r *DepositAddressRepository) GetActiveByAddress(ctx context.Context, address string) (*entities.DepositAddress, error) {
	query := `
		SELECT id, user_id, address, coin_type, derivation_index,
		       derivation_path, version, active, created_at
		FROM deposit_addresses
		WHERE address = $1 AND active = TRUE
	`

	var addr entities.DepositAddress
	err := r.db.GetContext(ctx, &addr, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrDepositAddressNotFound
		}
		return nil, fmt.Errorf("failed to get deposit address: %w", err)
	}

	return &addr, nil
}

// ListActiveByUser returns all active addresses a user holds across versions
func (r *DepositAddressRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error) {
	query := `
		SELECT id, user_id, address, coin_type, derivation_index,
		       derivation_path, version, active, created_at
		FROM deposit_addresses
		WHERE user_id = $1 AND active = TRUE
		ORDER BY version DESC
	`

	var addrs []*entities.DepositAddress
	if err := r.db.SelectContext(ctx, &addrs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list deposit addresses: %w", err)
	}

	return addrs, nil
}

// NextDerivationIndex allocates the next unused index for a scheme
func (r *DepositAddressRepository) NextDerivationIndex(ctx context.Context, coinType uint32, version int) (uint32, error) {
	query := `
		SELECT COALESCE(MAX(derivation_index) + 1, 0)
		FROM deposit_addresses
		WHERE coin_type = $1 AND version = $2
	`

	var next uint32
	if err := r.db.GetContext(ctx, &next, query, coinType, version); err != nil {
		return 0, fmt.Errorf("failed to allocate derivation index: %w", err)
	}

	return next, nil
}

// Deactivate retires an address. Addresses are never deleted: retired rows
// keep historical transfers attributable.
func (r *DepositAddressRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE deposit_addresses SET active = FALSE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to deactivate deposit address: %w", err)
	}
	return nil
}
