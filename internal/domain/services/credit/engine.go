package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/notifier"
	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
	"github.com/xnrt-platform/xnrt_service/pkg/metrics"
)

// TransactionRepository handles ledger transaction persistence
type TransactionRepository interface {
	CreateIn(ctx context.Context, ext sqlx.ExtContext, txn *entities.Transaction) error
	GetByHash(ctx context.Context, hash string) (*entities.Transaction, error)
	ApproveIn(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, confirmations uint64) error
}

// BalanceRepository handles atomic balance increments
type BalanceRepository interface {
	CreditIn(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, amount decimal.Decimal) error
}

// TxRunner executes a function inside one database transaction
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error
}

// EngineConfig holds credit arithmetic parameters
type EngineConfig struct {
	ExchangeRate          decimal.Decimal // XNRT per USDT
	PlatformFeeBps        int64
	RequiredConfirmations uint64
}

// Engine turns a matched on-chain deposit into a ledger credit. Every entry
// path (scanner, user report, admin match, pending sweep) funnels through it,
// so the tx-hash idempotency key and the dual-write atomicity live in exactly
// one place.
type Engine struct {
	txRunner        TxRunner
	transactionRepo TransactionRepository
	balanceRepo     BalanceRepository
	dispatcher      notifier.Dispatcher
	config          EngineConfig
	logger          *logger.Logger
}

// NewEngine creates a new credit engine
func NewEngine(
	txRunner TxRunner,
	transactionRepo TransactionRepository,
	balanceRepo BalanceRepository,
	dispatcher notifier.Dispatcher,
	config EngineConfig,
	logger *logger.Logger,
) *Engine {
	return &Engine{
		txRunner:        txRunner,
		transactionRepo: transactionRepo,
		balanceRepo:     balanceRepo,
		dispatcher:      dispatcher,
		config:          config,
		logger:          logger,
	}
}

// CreditRequest describes a matched deposit ready for crediting
type CreditRequest struct {
	UserID        uuid.UUID
	UsdtAmount    decimal.Decimal
	TxHash        string
	WalletAddress string // destination the funds arrived at
	BlockNumber   uint64
	Confirmations uint64
	Method        string // audit trail: which path produced this credit
}

// CreditResult reports what the engine did
type CreditResult struct {
	Credited    bool // false means recorded as pending
	XnrtAmount  decimal.Decimal
	Transaction *entities.Transaction
}

// ComputeXnrt applies the platform fee and exchange rate:
// net = usdt × (1 − feeBps/10000), xnrt = net × rate
func (e *Engine) ComputeXnrt(usdtAmount decimal.Decimal) decimal.Decimal {
	feeFactor := decimal.NewFromInt(10000 - e.config.PlatformFeeBps).Div(decimal.NewFromInt(10000))
	return usdtAmount.Mul(feeFactor).Mul(e.config.ExchangeRate)
}

// Credit records the deposit and, when confirmations are sufficient, credits
// the balance in the same database transaction. Duplicate hashes surface as
// ErrDuplicateTransaction; callers treat it as a no-op.
func (e *Engine) Credit(ctx context.Context, req *CreditRequest) (*CreditResult, error) {
	xnrtAmount := e.ComputeXnrt(req.UsdtAmount)

	txn := &entities.Transaction{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Type:            entities.TransactionTypeDeposit,
		Amount:          xnrtAmount,
		UsdtAmount:      req.UsdtAmount,
		TransactionHash: req.TxHash,
		WalletAddress:   req.WalletAddress,
		Verified:        true,
		Confirmations:   req.Confirmations,
		VerificationData: &entities.VerificationData{
			BlockNumber:   req.BlockNumber,
			Confirmations: req.Confirmations,
			Method:        req.Method,
			ScannedAt:     time.Now().UTC(),
		},
	}

	if req.Confirmations < e.config.RequiredConfirmations {
		// Not reorg-safe yet: record only, no balance mutation. The pending
		// sweep revisits the row as confirmations accrue.
		txn.Status = entities.TransactionStatusPending
		err := e.txRunner.RunInTx(ctx, func(ext sqlx.ExtContext) error {
			return e.transactionRepo.CreateIn(ctx, ext, txn)
		})
		if err != nil {
			return nil, err
		}

		metrics.DepositsPending.Inc()
		e.logger.Info("deposit recorded as pending",
			"tx_hash", req.TxHash,
			"user_id", req.UserID,
			"confirmations", req.Confirmations,
			"required", e.config.RequiredConfirmations)

		return &CreditResult{Credited: false, XnrtAmount: xnrtAmount, Transaction: txn}, nil
	}

	txn.Status = entities.TransactionStatusApproved
	err := e.txRunner.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		if err := e.transactionRepo.CreateIn(ctx, ext, txn); err != nil {
			return err
		}
		return e.balanceRepo.CreditIn(ctx, ext, req.UserID, xnrtAmount)
	})
	if err != nil {
		return nil, err
	}

	metrics.DepositsCredited.WithLabelValues(req.Method).Inc()
	e.logger.Info("deposit credited",
		"tx_hash", req.TxHash,
		"user_id", req.UserID,
		"usdt_amount", req.UsdtAmount,
		"xnrt_amount", xnrtAmount,
		"method", req.Method)

	e.notifyCredited(ctx, req.UserID, req.TxHash, req.UsdtAmount, xnrtAmount)

	return &CreditResult{Credited: true, XnrtAmount: xnrtAmount, Transaction: txn}, nil
}

// ApprovePending promotes a pending deposit whose confirmations have accrued,
// crediting the balance atomically with the status flip
func (e *Engine) ApprovePending(ctx context.Context, txn *entities.Transaction, confirmations uint64) error {
	if confirmations < e.config.RequiredConfirmations {
		return fmt.Errorf("cannot approve %s with %d of %d confirmations",
			txn.TransactionHash, confirmations, e.config.RequiredConfirmations)
	}

	err := e.txRunner.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		if err := e.transactionRepo.ApproveIn(ctx, ext, txn.ID, confirmations); err != nil {
			return err
		}
		return e.balanceRepo.CreditIn(ctx, ext, txn.UserID, txn.Amount)
	})
	if err != nil {
		return err
	}

	metrics.DepositsCredited.WithLabelValues("pending_sweep").Inc()
	e.logger.Info("pending deposit approved",
		"tx_hash", txn.TransactionHash,
		"user_id", txn.UserID,
		"confirmations", confirmations)

	e.notifyCredited(ctx, txn.UserID, txn.TransactionHash, txn.UsdtAmount, txn.Amount)

	return nil
}

// RequiredConfirmations exposes the gating depth to callers computing windows
func (e *Engine) RequiredConfirmations() uint64 {
	return e.config.RequiredConfirmations
}

func (e *Engine) notifyCredited(ctx context.Context, userID uuid.UUID, txHash string, usdt, xnrt decimal.Decimal) {
	e.dispatcher.Notify(ctx, userID, map[string]interface{}{
		"type":        "deposit_credited",
		"tx_hash":     txHash,
		"usdt_amount": usdt.String(),
		"xnrt_amount": xnrt.String(),
	})
}
