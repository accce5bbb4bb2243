package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/chain"
	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/credit"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
	"github.com/xnrt-platform/xnrt_service/pkg/metrics"
)

// CursorRepository persists the scanner's resumable cursor state
type CursorRepository interface {
	GetOrCreate(ctx context.Context, initialBlock uint64) (*entities.ScannerCursor, error)
	Get(ctx context.Context) (*entities.ScannerCursor, error)
	Advance(ctx context.Context, toBlock uint64) error
	TouchScanTimestamp(ctx context.Context) error
	SetScanInProgress(ctx context.Context, inProgress bool) error
	RecordError(ctx context.Context, message string) error
}

// DepositAddressRepository resolves destination addresses to owners
type DepositAddressRepository interface {
	GetActiveByAddress(ctx context.Context, address string) (*entities.DepositAddress, error)
}

// LinkedWalletRepository resolves sender addresses for treasury deposits
type LinkedWalletRepository interface {
	GetActiveByAddress(ctx context.Context, address string) (*entities.LinkedWallet, error)
}

// TransactionRepository checks the shared idempotency key
type TransactionRepository interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
}

// UnmatchedDepositRepository is the holding area for unattributable transfers
type UnmatchedDepositRepository interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Create(ctx context.Context, deposit *entities.UnmatchedDeposit) error
}

// CreditEngine posts matched deposits to the ledger
type CreditEngine interface {
	Credit(ctx context.Context, req *credit.CreditRequest) (*credit.CreditResult, error)
}

// Config tunes the scan window
type Config struct {
	BatchSize             uint64
	RequiredConfirmations uint64
	StartFromTip          bool
	StartOffset           uint64 // blocks behind tip on first run when not starting from tip
	TreasuryAddress       string // lowercase hex
}

// Service scans block ranges for token transfers and routes each event to a
// user credit or the unmatched holding area. One scan at a time per process;
// events within a batch are processed strictly sequentially so per-user
// balance updates stay serialized.
type Service struct {
	reader          chain.Reader
	cursorRepo      CursorRepository
	addressRepo     DepositAddressRepository
	walletRepo      LinkedWalletRepository
	transactionRepo TransactionRepository
	unmatchedRepo   UnmatchedDepositRepository
	engine          CreditEngine
	config          Config
	logger          *logger.Logger

	mu       sync.Mutex
	scanning bool
}

// NewService creates a new scanner service
func NewService(
	reader chain.Reader,
	cursorRepo CursorRepository,
	addressRepo DepositAddressRepository,
	walletRepo LinkedWalletRepository,
	transactionRepo TransactionRepository,
	unmatchedRepo UnmatchedDepositRepository,
	engine CreditEngine,
	config Config,
	logger *logger.Logger,
) *Service {
	return &Service{
		reader:          reader,
		cursorRepo:      cursorRepo,
		addressRepo:     addressRepo,
		walletRepo:      walletRepo,
		transactionRepo: transactionRepo,
		unmatchedRepo:   unmatchedRepo,
		engine:          engine,
		config:          config,
		logger:          logger,
	}
}

// ScanTick runs one scan pass. A tick arriving while a scan is in flight is a
// no-op, not queued.
func (s *Service) ScanTick(ctx context.Context) error {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		s.logger.Debug("scan already in progress, skipping tick")
		return nil
	}
	s.scanning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	if err := s.scan(ctx); err != nil {
		metrics.ScanErrors.Inc()
		if recErr := s.cursorRepo.RecordError(ctx, err.Error()); recErr != nil {
			s.logger.Error("failed to record scan error", "error", recErr)
		}
		s.logger.Error("scan batch failed, cursor not advanced", "error", err)
		return err
	}

	return nil
}

func (s *Service) scan(ctx context.Context) error {
	head, err := s.reader.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get chain height: %w", err)
	}

	cursor, err := s.cursorRepo.GetOrCreate(ctx, s.initialBlock(head))
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	// Stay requiredConfirmations behind the tip so no scanned block can still
	// be reorganized away.
	if head < s.config.RequiredConfirmations {
		return s.cursorRepo.TouchScanTimestamp(ctx)
	}
	safeHead := head - s.config.RequiredConfirmations

	fromBlock := cursor.LastScannedBlock + 1
	toBlock := fromBlock + s.config.BatchSize - 1
	if toBlock > safeHead {
		toBlock = safeHead
	}

	if fromBlock > toBlock {
		return s.cursorRepo.TouchScanTimestamp(ctx)
	}

	if err := s.cursorRepo.SetScanInProgress(ctx, true); err != nil {
		return fmt.Errorf("mark scan in progress: %w", err)
	}

	events, err := s.reader.FilterTransfers(ctx, fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("filter transfers [%d, %d]: %w", fromBlock, toBlock, err)
	}

	s.logger.Info("scanning block range",
		"from_block", fromBlock,
		"to_block", toBlock,
		"head", head,
		"events", len(events))

	for _, event := range events {
		metrics.TransfersObserved.Inc()
		if err := s.processEvent(ctx, event, head); err != nil {
			return fmt.Errorf("process event %s: %w", event.TxHash, err)
		}
	}

	if err := s.cursorRepo.Advance(ctx, toBlock); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	metrics.BlocksScanned.Add(float64(toBlock - fromBlock + 1))
	metrics.LastScannedBlock.Set(float64(toBlock))

	return nil
}

// Status exposes the persisted cursor for the operational probe
func (s *Service) Status(ctx context.Context) (*entities.ScannerCursor, error) {
	return s.cursorRepo.Get(ctx)
}

func (s *Service) initialBlock(head uint64) uint64 {
	if s.config.StartFromTip {
		return head
	}
	if s.config.StartOffset >= head {
		return 0
	}
	return head - s.config.StartOffset
}
