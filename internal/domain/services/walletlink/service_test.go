package walletlink

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, wallet *entities.LinkedWallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*entities.LinkedWallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LinkedWallet), args.Error(1)
}

func (m *MockRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// signChallenge signs the ownership message the way a wallet's eth_sign does
func signChallenge(t *testing.T, key []byte, message string) string {
	t.Helper()
	privateKey, err := crypto.ToECDSA(key)
	require.NoError(t, err)

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	sig, err := crypto.Sign(hash.Bytes(), privateKey)
	require.NoError(t, err)
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func generateKey(t *testing.T) ([]byte, string) {
	t.Helper()
	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := strings.ToLower(crypto.PubkeyToAddress(privateKey.PublicKey).Hex())
	return crypto.FromECDSA(privateKey), address
}

func TestLinkWallet(t *testing.T) {
	repo := new(MockRepo)
	service := NewService(repo, logger.New("error", "test"))

	userID := uuid.New()
	key, address := generateKey(t)
	signature := signChallenge(t, key, ChallengeMessage(userID, address))

	repo.On("Create", mock.Anything, mock.MatchedBy(func(w *entities.LinkedWallet) bool {
		return w.UserID == userID && w.Address == address && w.Active
	})).Return(nil)

	wallet, err := service.LinkWallet(context.Background(), userID, address, signature)
	assert.NoError(t, err)
	assert.Equal(t, address, wallet.Address)
	repo.AssertExpectations(t)
}

func TestLinkWallet_WrongSigner(t *testing.T) {
	repo := new(MockRepo)
	service := NewService(repo, logger.New("error", "test"))

	userID := uuid.New()
	_, address := generateKey(t)
	otherKey, _ := generateKey(t)
	signature := signChallenge(t, otherKey, ChallengeMessage(userID, address))

	_, err := service.LinkWallet(context.Background(), userID, address, signature)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidWalletProof)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLinkWallet_SignatureForDifferentUser(t *testing.T) {
	repo := new(MockRepo)
	service := NewService(repo, logger.New("error", "test"))

	key, address := generateKey(t)
	signature := signChallenge(t, key, ChallengeMessage(uuid.New(), address))

	// Replaying the proof under another account must fail.
	_, err := service.LinkWallet(context.Background(), uuid.New(), address, signature)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidWalletProof)
}

func TestLinkWallet_AlreadyLinked(t *testing.T) {
	repo := new(MockRepo)
	service := NewService(repo, logger.New("error", "test"))

	userID := uuid.New()
	key, address := generateKey(t)
	signature := signChallenge(t, key, ChallengeMessage(userID, address))

	repo.On("Create", mock.Anything, mock.Anything).
		Return(domainErrors.ErrWalletAlreadyLinked)

	_, err := service.LinkWallet(context.Background(), userID, address, signature)
	assert.ErrorIs(t, err, domainErrors.ErrWalletAlreadyLinked)
}

func TestLinkWallet_MalformedAddress(t *testing.T) {
	service := NewService(new(MockRepo), logger.New("error", "test"))

	_, err := service.LinkWallet(context.Background(), uuid.New(), "bogus", "0x00")
	assert.Error(t, err)
}
