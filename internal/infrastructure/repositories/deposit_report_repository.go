package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainerrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
)

// DepositReportRepository handles user-submitted deposit report persistence
type DepositReportRepository struct {
	db *sqlx.DB
}

// NewDepositReportRepository creates a new deposit report repository
func NewDepositReportRepository(db *sqlx.DB) *DepositReportRepository {
	return &DepositReportRepository{db: db}
}

// Create records a user's deposit report
func (r *DepositReportRepository) Create(ctx context.Context, report *entities.DepositReport) error {
	query := `
		INSERT INTO deposit_reports (
			id, user_id, transaction_hash, claimed_amount, status,
			failure_reason, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	report.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		report.ID,
		report.UserID,
		report.TransactionHash,
		report.ClaimedAmount,
		report.Status,
		report.FailureReason,
		report.CreatedAt,
		report.ResolvedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return domainerrors.ErrDuplicateReport
		}
		return fmt.Errorf("failed to create deposit report: %w", err)
	}

	return nil
}

// ExistsByHash reports whether any report was already filed for the hash
func (r *DepositReportRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM deposit_reports WHERE transaction_hash = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, hash); err != nil {
		return false, fmt.Errorf("failed to check deposit report existence: %w", err)
	}

	return exists, nil
}

// ListOpen returns reports awaiting manual admin review
func (r *DepositReportRepository) ListOpen(ctx context.Context) ([]*entities.DepositReport, error) {
	query := `
		SELECT id, user_id, transaction_hash, claimed_amount, status,
		       failure_reason, created_at, resolved_at
		FROM deposit_reports
		WHERE status = $1
		ORDER BY created_at
	`

	var reports []*entities.DepositReport
	if err := r.db.SelectContext(ctx, &reports, query, entities.DepositReportStatusOpen); err != nil {
		return nil, fmt.Errorf("failed to list open deposit reports: %w", err)
	}

	return reports, nil
}

// Resolve closes a report
func (r *DepositReportRepository) Resolve(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE deposit_reports
		SET status = $2, resolved_at = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, entities.DepositReportStatusResolved, time.Now()); err != nil {
		return fmt.Errorf("failed to resolve deposit report: %w", err)
	}
	return nil
}
