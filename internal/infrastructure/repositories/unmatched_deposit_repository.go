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

// UnmatchedDepositRepository handles the holding area for transfers that
// could not be attributed to any user at scan time
type UnmatchedDepositRepository struct {
	db *sqlx.DB
}

// NewUnmatchedDepositRepository creates a new unmatched deposit repository
func NewUnmatchedDepositRepository(db *sqlx.DB) *UnmatchedDepositRepository {
	return &UnmatchedDepositRepository{db: db}
}

// Create records an unattributable transfer for manual reconciliation
func (r *UnmatchedDepositRepository) Create(ctx context.Context, deposit *entities.UnmatchedDeposit) error {
	query := `
		INSERT INTO unmatched_deposits (
			id, from_address, to_address, amount, transaction_hash,
			block_number, confirmations, matched, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
	`

	deposit.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		deposit.ID,
		deposit.FromAddress,
		deposit.ToAddress,
		deposit.Amount,
		deposit.TransactionHash,
		deposit.BlockNumber,
		deposit.Confirmations,
		deposit.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return domainerrors.ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to create unmatched deposit: %w", err)
	}

	return nil
}

// GetByID retrieves an unmatched deposit
func (r *UnmatchedDepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.UnmatchedDeposit, error) {
	query := `
		SELECT id, from_address, to_address, amount, transaction_hash,
		       block_number, confirmations, matched, matched_user_id, matched_at, created_at
		FROM unmatched_deposits
		WHERE id = $1
	`

	var deposit entities.UnmatchedDeposit
	err := r.db.GetContext(ctx, &deposit, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrUnmatchedDepositNotFound
		}
		return nil, fmt.Errorf("failed to get unmatched deposit: %w", err)
	}

	return &deposit, nil
}

// ExistsByHash reports whether a transfer was already parked as unmatched
func (r *UnmatchedDepositRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM unmatched_deposits WHERE transaction_hash = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, hash); err != nil {
		return false, fmt.Errorf("failed to check unmatched deposit existence: %w", err)
	}

	return exists, nil
}

// ListOpen returns deposits still awaiting admin attribution
func (r *UnmatchedDepositRepository) ListOpen(ctx context.Context) ([]*entities.UnmatchedDeposit, error) {
	query := `
		SELECT id, from_address, to_address, amount, transaction_hash,
		       block_number, confirmations, matched, matched_user_id, matched_at, created_at
		FROM unmatched_deposits
		WHERE matched = FALSE
		ORDER BY created_at
	`

	var deposits []*entities.UnmatchedDeposit
	if err := r.db.SelectContext(ctx, &deposits, query); err != nil {
		return nil, fmt.Errorf("failed to list open unmatched deposits: %w", err)
	}

	return deposits, nil
}

// MarkMatchedIn flips matched permanently true inside the given execer.
// Returns ErrAlreadyMatched when the row was matched before; a deposit is
// never matched twice.
func (r *UnmatchedDepositRepository) MarkMatchedIn(ctx context.Context, ext sqlx.ExtContext, id, userID uuid.UUID) error {
	query := `
		UPDATE unmatched_deposits
		SET matched = TRUE, matched_user_id = $2, matched_at = $3
		WHERE id = $1 AND matched = FALSE
	`

	result, err := ext.ExecContext(ctx, query, id, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark unmatched deposit: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domainerrors.ErrAlreadyMatched
	}

	return nil
}
