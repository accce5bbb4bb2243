package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/chain"
	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
	"github.com/xnrt-platform/xnrt_service/pkg/metrics"
)

// UnmatchedDepositRepository manages the unattributed holding area
type UnmatchedDepositRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.UnmatchedDeposit, error)
	ListOpen(ctx context.Context) ([]*entities.UnmatchedDeposit, error)
	MarkMatchedIn(ctx context.Context, ext sqlx.ExtContext, id, userID uuid.UUID) error
}

// TransactionRepository handles ledger rows touched during reconciliation
type TransactionRepository interface {
	CreateIn(ctx context.Context, ext sqlx.ExtContext, txn *entities.Transaction) error
	ListPendingDeposits(ctx context.Context) ([]*entities.Transaction, error)
	UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations uint64) error
}

// BalanceRepository applies the credit inside the matching transaction
type BalanceRepository interface {
	CreditIn(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, amount decimal.Decimal) error
}

// TxRunner executes a function inside one database transaction
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error
}

// CreditEngine is the shared arithmetic and pending-approval path
type CreditEngine interface {
	ComputeXnrt(usdtAmount decimal.Decimal) decimal.Decimal
	ApprovePending(ctx context.Context, txn *entities.Transaction, confirmations uint64) error
	RequiredConfirmations() uint64
}

// Service handles the two operator-driven reconciliation flows: assigning an
// unmatched deposit to a user, and sweeping pending deposits whose
// confirmations have accrued since they were first seen.
type Service struct {
	reader          chain.Reader
	unmatchedRepo   UnmatchedDepositRepository
	transactionRepo TransactionRepository
	balanceRepo     BalanceRepository
	txRunner        TxRunner
	engine          CreditEngine
	logger          *logger.Logger
}

// NewService creates a new reconciliation service
func NewService(
	reader chain.Reader,
	unmatchedRepo UnmatchedDepositRepository,
	transactionRepo TransactionRepository,
	balanceRepo BalanceRepository,
	txRunner TxRunner,
	engine CreditEngine,
	logger *logger.Logger,
) *Service {
	return &Service{
		reader:          reader,
		unmatchedRepo:   unmatchedRepo,
		transactionRepo: transactionRepo,
		balanceRepo:     balanceRepo,
		txRunner:        txRunner,
		engine:          engine,
		logger:          logger,
	}
}

// MatchUnmatchedDeposit assigns a held deposit to a user and credits it in
// one database transaction. The deposit was confirmation-gated before it was
// parked, and an admin has reviewed it since, so no further confirmation
// check applies. A deposit can be matched exactly once.
func (s *Service) MatchUnmatchedDeposit(ctx context.Context, depositID, userID uuid.UUID) (*entities.Transaction, error) {
	deposit, err := s.unmatchedRepo.GetByID(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if deposit.Matched {
		return nil, domainErrors.ErrAlreadyMatched
	}

	xnrtAmount := s.engine.ComputeXnrt(deposit.Amount)
	txn := &entities.Transaction{
		ID:              uuid.New(),
		UserID:          userID,
		Type:            entities.TransactionTypeDeposit,
		Status:          entities.TransactionStatusApproved,
		Amount:          xnrtAmount,
		UsdtAmount:      deposit.Amount,
		TransactionHash: deposit.TransactionHash,
		WalletAddress:   deposit.FromAddress,
		Verified:        true,
		Confirmations:   deposit.Confirmations,
		VerificationData: &entities.VerificationData{
			BlockNumber:   deposit.BlockNumber,
			Confirmations: deposit.Confirmations,
			Method:        "admin_match",
			ScannedAt:     time.Now().UTC(),
		},
	}

	err = s.txRunner.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.unmatchedRepo.MarkMatchedIn(ctx, ext, depositID, userID); err != nil {
			return err
		}
		if err := s.transactionRepo.CreateIn(ctx, ext, txn); err != nil {
			return err
		}
		return s.balanceRepo.CreditIn(ctx, ext, userID, xnrtAmount)
	})
	if err != nil {
		return nil, err
	}

	metrics.DepositsCredited.WithLabelValues("admin_match").Inc()
	s.logger.Info("unmatched deposit assigned",
		"deposit_id", depositID,
		"user_id", userID,
		"tx_hash", deposit.TransactionHash,
		"usdt_amount", deposit.Amount.String(),
		"xnrt_amount", xnrtAmount.String())

	return txn, nil
}

// ListUnmatchedDeposits returns deposits awaiting admin assignment
func (s *Service) ListUnmatchedDeposits(ctx context.Context) ([]*entities.UnmatchedDeposit, error) {
	return s.unmatchedRepo.ListOpen(ctx)
}

// SweepPendingDeposits revisits pending deposits, approving those whose
// confirmations now meet the threshold and refreshing the count on the rest.
// One row failing does not stop the sweep.
func (s *Service) SweepPendingDeposits(ctx context.Context) error {
	pending, err := s.transactionRepo.ListPendingDeposits(ctx)
	if err != nil {
		return fmt.Errorf("list pending deposits: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	head, err := s.reader.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get chain height: %w", err)
	}

	var approved, refreshed, failed int
	for _, txn := range pending {
		if txn.VerificationData == nil {
			s.logger.Warn("pending deposit has no verification data, skipping",
				"transaction_id", txn.ID)
			continue
		}

		confirmations := uint64(0)
		if head >= txn.VerificationData.BlockNumber {
			confirmations = head - txn.VerificationData.BlockNumber
		}

		if confirmations >= s.engine.RequiredConfirmations() {
			if err := s.engine.ApprovePending(ctx, txn, confirmations); err != nil {
				if errors.Is(err, domainErrors.ErrInvalidTransition) {
					// Another process approved it between list and update.
					continue
				}
				failed++
				s.logger.Error("failed to approve pending deposit",
					"transaction_id", txn.ID,
					"tx_hash", txn.TransactionHash,
					"error", err)
				continue
			}
			approved++
			continue
		}

		if confirmations != txn.Confirmations {
			if err := s.transactionRepo.UpdateConfirmations(ctx, txn.ID, confirmations); err != nil {
				s.logger.Error("failed to refresh confirmations",
					"transaction_id", txn.ID,
					"error", err)
				continue
			}
			refreshed++
		}
	}

	s.logger.Info("pending deposit sweep complete",
		"checked", len(pending),
		"approved", approved,
		"refreshed", refreshed,
		"failed", failed)
	return nil
}
