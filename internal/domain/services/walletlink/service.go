package walletlink

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

// Repository persists linked wallets
type Repository interface {
	Create(ctx context.Context, wallet *entities.LinkedWallet) error
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*entities.LinkedWallet, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Service links self-custodied wallets to accounts via a signed challenge.
// Ownership is proven by signing a per-user message with the wallet's key;
// without the proof anyone could claim an address and capture its treasury
// deposits.
type Service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService creates a new wallet link service
func NewService(repo Repository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ChallengeMessage is the exact text the wallet must sign to prove ownership
func ChallengeMessage(userID uuid.UUID, address string) string {
	return fmt.Sprintf("Link wallet %s to XNRT account %s", strings.ToLower(address), userID)
}

// LinkWallet verifies the signature over the challenge message and records
// the wallet. An address can be actively linked to at most one account.
func (s *Service) LinkWallet(ctx context.Context, userID uuid.UUID, address, signature string) (*entities.LinkedWallet, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		return nil, fmt.Errorf("invalid wallet address format")
	}

	recovered, err := recoverSigner(ChallengeMessage(userID, address), signature)
	if err != nil {
		return nil, domainErrors.ErrInvalidWalletProof
	}
	if recovered != address {
		return nil, domainErrors.ErrInvalidWalletProof
	}

	wallet := &entities.LinkedWallet{
		ID:        uuid.New(),
		UserID:    userID,
		Address:   address,
		Signature: signature,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		return nil, err
	}

	s.logger.Info("wallet linked", "user_id", userID, "address", address)
	return wallet, nil
}

// ListWallets returns the user's active linked wallets
func (s *Service) ListWallets(ctx context.Context, userID uuid.UUID) ([]*entities.LinkedWallet, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}

// UnlinkWallet deactivates a linked wallet
func (s *Service) UnlinkWallet(ctx context.Context, id uuid.UUID) error {
	return s.repo.Deactivate(ctx, id)
}

// recoverSigner applies the eth_sign envelope and recovers the lowercase hex
// address that produced the signature
func recoverSigner(message, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	// Wallets emit V as 27/28; crypto.SigToPub wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	pubKey, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex()), nil
}
