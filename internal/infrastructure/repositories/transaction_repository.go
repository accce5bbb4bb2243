package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainerrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
)

// TransactionRepository handles ledger transaction persistence.
// transaction_hash carries a unique constraint; it is the idempotency key
// shared by the scanner, the user-report path and admin matching, and the
// last line of defense against double-credit.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction outside of any enclosing database transaction
func (r *TransactionRepository) Create(ctx context.Context, txn *entities.Transaction) error {
	return r.CreateIn(ctx, r.db, txn)
}

// CreateIn inserts a transaction using the given execer, so the credit engine
// can make the insert and the balance increment commit together
func (r *TransactionRepository) CreateIn(ctx context.Context, ext sqlx.ExtContext, txn *entities.Transaction) error {
	if err := txn.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}

	verificationJSON, err := json.Marshal(txn.VerificationData)
	if err != nil {
		return fmt.Errorf("marshal verification data: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, type, amount, usdt_amount, transaction_hash,
			wallet_address, status, verified, confirmations,
			verification_data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	_, err = ext.ExecContext(ctx, query,
		txn.ID,
		txn.UserID,
		txn.Type,
		txn.Amount,
		txn.UsdtAmount,
		txn.TransactionHash,
		txn.WalletAddress,
		txn.Status,
		txn.Verified,
		txn.Confirmations,
		verificationJSON,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return domainerrors.ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByHash retrieves a transaction by its on-chain hash, or
// ErrTransactionNotFound
func (r *TransactionRepository) GetByHash(ctx context.Context, hash string) (*entities.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, usdt_amount, transaction_hash,
		       wallet_address, status, verified, confirmations,
		       verification_data, created_at, updated_at
		FROM transactions
		WHERE transaction_hash = $1
	`

	row := r.db.QueryRowxContext(ctx, query, hash)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return txn, nil
}

// ExistsByHash reports whether any transaction exists for the hash
func (r *TransactionRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_hash = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, hash); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}

	return exists, nil
}

// ListPendingDeposits returns deposits still awaiting confirmations
func (r *TransactionRepository) ListPendingDeposits(ctx context.Context) ([]*entities.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, usdt_amount, transaction_hash,
		       wallet_address, status, verified, confirmations,
		       verification_data, created_at, updated_at
		FROM transactions
		WHERE type = $1 AND status = $2
		ORDER BY created_at
	`

	rows, err := r.db.QueryxContext(ctx, query, entities.TransactionTypeDeposit, entities.TransactionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deposits: %w", err)
	}
	defer rows.Close()

	var txns []*entities.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending deposit: %w", err)
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

// ApproveIn promotes a pending transaction to approved inside the given
// execer. Returns ErrInvalidTransition when the row is no longer pending;
// status transitions are one-way.
func (r *TransactionRepository) ApproveIn(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, confirmations uint64) error {
	query := `
		UPDATE transactions
		SET status = $2, confirmations = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`

	result, err := ext.ExecContext(ctx, query,
		id,
		entities.TransactionStatusApproved,
		confirmations,
		time.Now(),
		entities.TransactionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to approve transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domainerrors.ErrInvalidTransition
	}

	return nil
}

// UpdateConfirmations refreshes the observed confirmation count of a pending
// transaction without changing its status
func (r *TransactionRepository) UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations uint64) error {
	query := `
		UPDATE transactions
		SET confirmations = $2, updated_at = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, confirmations, time.Now()); err != nil {
		return fmt.Errorf("failed to update confirmations: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*entities.Transaction, error) {
	var txn entities.Transaction
	var verificationJSON []byte

	err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&txn.Type,
		&txn.Amount,
		&txn.UsdtAmount,
		&txn.TransactionHash,
		&txn.WalletAddress,
		&txn.Status,
		&txn.Verified,
		&txn.Confirmations,
		&verificationJSON,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(verificationJSON) > 0 && string(verificationJSON) != "null" {
		var vd entities.VerificationData
		if err := json.Unmarshal(verificationJSON, &vd); err != nil {
			return nil, fmt.Errorf("unmarshal verification data: %w", err)
		}
		txn.VerificationData = &vd
	}

	return &txn, nil
}
