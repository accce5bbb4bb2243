package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/chain"
	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/credit"
	"github.com/xnrt-platform/xnrt_service/pkg/metrics"
)

// processEvent attributes one transfer to a user and credits it, or parks it
// in the unmatched holding area. Events already recorded under either
// idempotency key are skipped so re-scanning a range is harmless.
func (s *Service) processEvent(ctx context.Context, event chain.TransferEvent, head uint64) error {
	seen, err := s.alreadyProcessed(ctx, event.TxHash)
	if err != nil {
		return err
	}
	if seen {
		s.logger.Debug("transfer already processed", "tx_hash", event.TxHash)
		return nil
	}

	confirmations := uint64(0)
	if head >= event.BlockNumber {
		confirmations = head - event.BlockNumber
	}

	// Primary match: transfer paid directly to a user's derived deposit address.
	addr, err := s.addressRepo.GetActiveByAddress(ctx, event.To)
	if err != nil && !errors.Is(err, domainErrors.ErrDepositAddressNotFound) {
		return fmt.Errorf("look up deposit address %s: %w", event.To, err)
	}
	if addr != nil {
		return s.creditDeposit(ctx, addr.UserID, event, confirmations)
	}

	// Secondary match: transfer into the treasury from a linked wallet.
	if strings.EqualFold(event.To, s.config.TreasuryAddress) {
		wallet, err := s.walletRepo.GetActiveByAddress(ctx, event.From)
		if err != nil && !errors.Is(err, domainErrors.ErrLinkedWalletNotFound) {
			return fmt.Errorf("look up linked wallet %s: %w", event.From, err)
		}
		if wallet != nil {
			return s.creditDeposit(ctx, wallet.UserID, event, confirmations)
		}
		return s.parkUnmatched(ctx, event, confirmations)
	}

	// Transfer to an address we do not manage; nothing to do.
	s.logger.Debug("transfer to unmanaged address ignored",
		"tx_hash", event.TxHash,
		"to_address", event.To)
	return nil
}

func (s *Service) alreadyProcessed(ctx context.Context, txHash string) (bool, error) {
	exists, err := s.transactionRepo.ExistsByHash(ctx, txHash)
	if err != nil {
		return false, fmt.Errorf("check transaction idempotency: %w", err)
	}
	if exists {
		return true, nil
	}

	exists, err = s.unmatchedRepo.ExistsByHash(ctx, txHash)
	if err != nil {
		return false, fmt.Errorf("check unmatched idempotency: %w", err)
	}
	return exists, nil
}

func (s *Service) creditDeposit(ctx context.Context, userID uuid.UUID, event chain.TransferEvent, confirmations uint64) error {
	result, err := s.engine.Credit(ctx, &credit.CreditRequest{
		UserID:        userID,
		UsdtAmount:    event.Value,
		TxHash:        event.TxHash,
		WalletAddress: event.From,
		BlockNumber:   event.BlockNumber,
		Confirmations: confirmations,
		Method:        "scanner",
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrDuplicateTransaction) {
			s.logger.Debug("credit raced with existing record", "tx_hash", event.TxHash)
			return nil
		}
		return fmt.Errorf("credit deposit: %w", err)
	}

	s.logger.Info("deposit processed",
		"user_id", userID,
		"tx_hash", event.TxHash,
		"usdt_amount", event.Value.String(),
		"credited", result.Credited,
		"confirmations", confirmations)
	return nil
}

func (s *Service) parkUnmatched(ctx context.Context, event chain.TransferEvent, confirmations uint64) error {
	deposit := &entities.UnmatchedDeposit{
		ID:              uuid.New(),
		FromAddress:     event.From,
		ToAddress:       event.To,
		Amount:          event.Value,
		TransactionHash: event.TxHash,
		BlockNumber:     event.BlockNumber,
		Confirmations:   confirmations,
		CreatedAt:       time.Now(),
	}

	if err := s.unmatchedRepo.Create(ctx, deposit); err != nil {
		if errors.Is(err, domainErrors.ErrDuplicateTransaction) {
			return nil
		}
		return fmt.Errorf("record unmatched deposit: %w", err)
	}

	metrics.DepositsUnmatched.Inc()
	s.logger.Warn("unattributable treasury deposit recorded",
		"tx_hash", event.TxHash,
		"from_address", event.From,
		"usdt_amount", event.Value.String())
	return nil
}
