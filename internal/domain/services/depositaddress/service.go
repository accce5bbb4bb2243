package depositaddress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/pkg/hdwallet"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

// Repository persists issued deposit addresses
type Repository interface {
	Create(ctx context.Context, addr *entities.DepositAddress) error
	GetActiveByUserAndVersion(ctx context.Context, userID uuid.UUID, version int) (*entities.DepositAddress, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error)
	NextDerivationIndex(ctx context.Context, coinType uint32, version int) (uint32, error)
}

// Config holds address issuance settings
type Config struct {
	CoinType uint32
	Version  int
}

// Service issues one deterministic deposit address per user per scheme
// version. Issuance is idempotent: asking again returns the existing address.
type Service struct {
	deriver *hdwallet.Deriver
	repo    Repository
	config  Config
	logger  *logger.Logger
}

// NewService creates a new deposit address service
func NewService(deriver *hdwallet.Deriver, repo Repository, config Config, logger *logger.Logger) *Service {
	return &Service{
		deriver: deriver,
		repo:    repo,
		config:  config,
		logger:  logger,
	}
}

// GetOrCreateAddress returns the user's active deposit address for the
// current scheme version, deriving and persisting one on first call
func (s *Service) GetOrCreateAddress(ctx context.Context, userID uuid.UUID) (*entities.DepositAddress, error) {
	existing, err := s.repo.GetActiveByUserAndVersion(ctx, userID, s.config.Version)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domainErrors.ErrDepositAddressNotFound) {
		return nil, fmt.Errorf("look up deposit address: %w", err)
	}

	index, err := s.repo.NextDerivationIndex(ctx, s.config.CoinType, s.config.Version)
	if err != nil {
		return nil, fmt.Errorf("allocate derivation index: %w", err)
	}

	address, err := s.deriver.Derive(s.config.CoinType, index)
	if err != nil {
		return nil, fmt.Errorf("derive address at index %d: %w", index, err)
	}

	addr := &entities.DepositAddress{
		ID:              uuid.New(),
		UserID:          userID,
		Address:         address,
		CoinType:        s.config.CoinType,
		DerivationIndex: index,
		DerivationPath:  hdwallet.DerivationPath(s.config.CoinType, index),
		Version:         s.config.Version,
		Active:          true,
		CreatedAt:       time.Now(),
	}

	if err := s.repo.Create(ctx, addr); err != nil {
		// Concurrent first call for the same user: take the row that won.
		won, lookupErr := s.repo.GetActiveByUserAndVersion(ctx, userID, s.config.Version)
		if lookupErr == nil {
			return won, nil
		}
		return nil, fmt.Errorf("persist deposit address: %w", err)
	}

	s.logger.Info("deposit address issued",
		"user_id", userID,
		"address", address,
		"derivation_index", index,
		"version", s.config.Version)
	return addr, nil
}

// ListAddresses returns all of the user's active deposit addresses across
// scheme versions
func (s *Service) ListAddresses(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}
