package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
)

// BalanceRepository handles balance persistence operations. Balances are only
// ever mutated through atomic increments; the scanner, the user-report path
// and admin matching can all credit the same user concurrently.
type BalanceRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *sqlx.DB, logger *zap.Logger) *BalanceRepository {
	return &BalanceRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the balance for a specific user
func (r *BalanceRepository) Get(ctx context.Context, userID uuid.UUID) (*entities.Balance, error) {
	query := `
		SELECT user_id, xnrt_balance, staked, mining, referral, total_earned, updated_at
		FROM balances
		WHERE user_id = $1
	`

	balance := &entities.Balance{}
	err := r.db.GetContext(ctx, balance, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("balance not found")
		}
		r.logger.Error("failed to get balance",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

// CreditIn atomically increments a user's balance and lifetime earnings using
// the given execer. Upsert-with-increment, never read-modify-write.
func (r *BalanceRepository) CreditIn(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, amount decimal.Decimal) error {
	query := `
		INSERT INTO balances (user_id, xnrt_balance, staked, mining, referral, total_earned, updated_at)
		VALUES ($1, $2, 0, 0, 0, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET
			xnrt_balance = balances.xnrt_balance + EXCLUDED.xnrt_balance,
			total_earned = balances.total_earned + EXCLUDED.total_earned,
			updated_at = EXCLUDED.updated_at
	`

	_, err := ext.ExecContext(ctx, query, userID, amount, time.Now())
	if err != nil {
		r.logger.Error("failed to credit balance",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.String("amount", amount.String()),
		)
		return fmt.Errorf("failed to credit balance: %w", err)
	}

	r.logger.Info("balance credited",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()),
	)

	return nil
}
