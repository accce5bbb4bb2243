package depositreport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/chain"
	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/credit"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

// amountTolerance absorbs decimal-conversion noise when comparing the
// on-chain sum against the user's claimed amount.
var amountTolerance = decimal.NewFromFloat(0.000001)

// TransactionRepository checks whether the hash has already been credited
type TransactionRepository interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
}

// ReportRepository persists user deposit reports
type ReportRepository interface {
	Create(ctx context.Context, report *entities.DepositReport) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	ListOpen(ctx context.Context) ([]*entities.DepositReport, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

// DepositAddressRepository lists the reporter's own deposit addresses
type DepositAddressRepository interface {
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error)
}

// LinkedWalletRepository checks treasury deposits against the reporter's wallets
type LinkedWalletRepository interface {
	GetActiveByUserAndAddress(ctx context.Context, userID uuid.UUID, address string) (*entities.LinkedWallet, error)
}

// UnmatchedDepositRepository parks verified-but-unattributable transfers
type UnmatchedDepositRepository interface {
	Create(ctx context.Context, deposit *entities.UnmatchedDeposit) error
}

// CreditEngine posts verified deposits to the ledger
type CreditEngine interface {
	Credit(ctx context.Context, req *credit.CreditRequest) (*credit.CreditResult, error)
}

// Config holds report verification settings
type Config struct {
	TreasuryAddress string // lowercase hex
}

// ReportResult tells the reporter what happened to their claim
type ReportResult struct {
	Verified   bool            `json:"verified"`
	Credited   bool            `json:"credited"`
	XnrtAmount decimal.Decimal `json:"xnrt_amount"`
	Message    string          `json:"message"`
}

// Service verifies user-reported deposits against the chain. Verification is
// fail-closed: any failure files an open report for manual review instead of
// crediting, and the user always gets an acknowledgement rather than an error.
type Service struct {
	reader          chain.Reader
	transactionRepo TransactionRepository
	reportRepo      ReportRepository
	addressRepo     DepositAddressRepository
	walletRepo      LinkedWalletRepository
	unmatchedRepo   UnmatchedDepositRepository
	engine          CreditEngine
	config          Config
	logger          *logger.Logger
}

// NewService creates a new deposit report service
func NewService(
	reader chain.Reader,
	transactionRepo TransactionRepository,
	reportRepo ReportRepository,
	addressRepo DepositAddressRepository,
	walletRepo LinkedWalletRepository,
	unmatchedRepo UnmatchedDepositRepository,
	engine CreditEngine,
	config Config,
	logger *logger.Logger,
) *Service {
	return &Service{
		reader:          reader,
		transactionRepo: transactionRepo,
		reportRepo:      reportRepo,
		addressRepo:     addressRepo,
		walletRepo:      walletRepo,
		unmatchedRepo:   unmatchedRepo,
		engine:          engine,
		config:          config,
		logger:          logger,
	}
}

// ReportDeposit verifies a user's claim that transaction txHash deposited
// claimedAmount USDT to the platform. Duplicate hashes are rejected before
// any chain work.
func (s *Service) ReportDeposit(ctx context.Context, userID uuid.UUID, txHash string, claimedAmount decimal.Decimal) (*ReportResult, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if !strings.HasPrefix(txHash, "0x") || len(txHash) != 66 {
		return nil, fmt.Errorf("invalid transaction hash format")
	}
	if claimedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("claimed amount must be positive")
	}

	credited, err := s.transactionRepo.ExistsByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("check existing transaction: %w", err)
	}
	if credited {
		return nil, domainErrors.ErrDuplicateTransaction
	}
	reported, err := s.reportRepo.ExistsByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("check existing report: %w", err)
	}
	if reported {
		return nil, domainErrors.ErrDuplicateReport
	}

	result, verifyErr := s.verify(ctx, userID, txHash, claimedAmount)
	if verifyErr != nil {
		return s.fileOpenReport(ctx, userID, txHash, claimedAmount, verifyErr)
	}
	return result, nil
}

// verify does the on-chain check and credits on success. Returning an error
// sends the report to the manual-review queue.
func (s *Service) verify(ctx context.Context, userID uuid.UUID, txHash string, claimedAmount decimal.Decimal) (*ReportResult, error) {
	receipt, err := s.reader.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if !receipt.Succeeded {
		return nil, domainErrors.ErrTransactionReverted
	}

	ownAddresses := make(map[string]bool)
	addrs, err := s.addressRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list deposit addresses: %w", err)
	}
	for _, a := range addrs {
		ownAddresses[a.Address] = true
	}

	// Sum transfers into the user's derived addresses separately from
	// transfers into the treasury. Own-address funds belong to the user by
	// construction; treasury funds belong to whoever the sender proves to be.
	ownTotal := decimal.Zero
	treasuryByFrom := make(map[string]decimal.Decimal)
	var treasurySenders []string
	for _, t := range receipt.Transfers {
		switch {
		case ownAddresses[t.To]:
			ownTotal = ownTotal.Add(t.Value)
		case strings.EqualFold(t.To, s.config.TreasuryAddress):
			if _, seen := treasuryByFrom[t.From]; !seen {
				treasurySenders = append(treasurySenders, t.From)
			}
			treasuryByFrom[t.From] = treasuryByFrom[t.From].Add(t.Value)
		}
	}
	if ownTotal.IsZero() && len(treasurySenders) == 0 {
		return nil, domainErrors.ErrNoMatchingTransfer
	}

	head, err := s.reader.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain height: %w", err)
	}
	confirmations := uint64(0)
	if head >= receipt.BlockNumber {
		confirmations = head - receipt.BlockNumber
	}

	// A treasury transfer counts only when its sender is a wallet linked to
	// this user. Unattributed treasury funds go to the unmatched queue, never
	// into this user's credit.
	creditable := ownTotal
	var linkedSender string
	for _, from := range treasurySenders {
		wallet, err := s.walletRepo.GetActiveByUserAndAddress(ctx, userID, from)
		if err != nil && !errors.Is(err, domainErrors.ErrLinkedWalletNotFound) {
			return nil, fmt.Errorf("look up linked wallet: %w", err)
		}
		if wallet != nil {
			creditable = creditable.Add(treasuryByFrom[from])
			linkedSender = from
			continue
		}
		parkErr := s.unmatchedRepo.Create(ctx, &entities.UnmatchedDeposit{
			ID:              uuid.New(),
			FromAddress:     from,
			ToAddress:       s.config.TreasuryAddress,
			Amount:          treasuryByFrom[from],
			TransactionHash: txHash,
			BlockNumber:     receipt.BlockNumber,
			Confirmations:   confirmations,
			CreatedAt:       time.Now(),
		})
		if parkErr != nil && !errors.Is(parkErr, domainErrors.ErrDuplicateTransaction) {
			return nil, fmt.Errorf("record unmatched deposit: %w", parkErr)
		}
	}
	if creditable.IsZero() {
		return nil, fmt.Errorf("treasury sender is not linked to this account")
	}
	if creditable.Add(amountTolerance).LessThan(claimedAmount) {
		return nil, fmt.Errorf("%w: attributable on-chain %s, claimed %s",
			domainErrors.ErrAmountMismatch, creditable.String(), claimedAmount.String())
	}

	creditResult, err := s.engine.Credit(ctx, &credit.CreditRequest{
		UserID:        userID,
		UsdtAmount:    creditable,
		TxHash:        txHash,
		WalletAddress: linkedSender,
		BlockNumber:   receipt.BlockNumber,
		Confirmations: confirmations,
		Method:        "user_report",
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrDuplicateTransaction) {
			return &ReportResult{
				Verified: true,
				Credited: false,
				Message:  "deposit was already processed",
			}, nil
		}
		return nil, fmt.Errorf("credit deposit: %w", err)
	}

	message := "deposit verified and credited"
	if !creditResult.Credited {
		message = "deposit verified, awaiting confirmations"
	}
	s.logger.Info("user-reported deposit verified",
		"user_id", userID,
		"tx_hash", txHash,
		"usdt_amount", creditable.String(),
		"credited", creditResult.Credited)

	return &ReportResult{
		Verified:   true,
		Credited:   creditResult.Credited,
		XnrtAmount: creditResult.XnrtAmount,
		Message:    message,
	}, nil
}

// fileOpenReport records a failed verification for admin review. The reporter
// gets an acknowledgement, never the internal failure.
func (s *Service) fileOpenReport(ctx context.Context, userID uuid.UUID, txHash string, claimedAmount decimal.Decimal, cause error) (*ReportResult, error) {
	reason := cause.Error()
	report := &entities.DepositReport{
		ID:              uuid.New(),
		UserID:          userID,
		TransactionHash: txHash,
		ClaimedAmount:   claimedAmount,
		Status:          entities.DepositReportStatusOpen,
		FailureReason:   &reason,
		CreatedAt:       time.Now(),
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		if errors.Is(err, domainErrors.ErrDuplicateReport) {
			return nil, domainErrors.ErrDuplicateReport
		}
		return nil, fmt.Errorf("file deposit report: %w", err)
	}

	s.logger.Warn("deposit report failed verification, queued for review",
		"user_id", userID,
		"tx_hash", txHash,
		"reason", reason)

	return &ReportResult{
		Verified: false,
		Credited: false,
		Message:  "we could not verify this deposit automatically; it has been queued for manual review",
	}, nil
}

// ListOpenReports returns reports awaiting admin review
func (s *Service) ListOpenReports(ctx context.Context) ([]*entities.DepositReport, error) {
	return s.reportRepo.ListOpen(ctx)
}

// ResolveReport closes a report after an admin handled it
func (s *Service) ResolveReport(ctx context.Context, id uuid.UUID) error {
	return s.reportRepo.Resolve(ctx, id)
}
