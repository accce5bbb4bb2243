package credit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/notifier"
	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

type fakeTxRunner struct{}

func (f *fakeTxRunner) RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error {
	return fn(nil)
}

type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) CreateIn(ctx context.Context, ext sqlx.ExtContext, txn *entities.Transaction) error {
	args := m.Called(ctx, ext, txn)
	return args.Error(0)
}

func (m *MockTransactionRepo) GetByHash(ctx context.Context, hash string) (*entities.Transaction, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) ApproveIn(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, confirmations uint64) error {
	args := m.Called(ctx, ext, id, confirmations)
	return args.Error(0)
}

type MockBalanceRepo struct {
	mock.Mock
}

func (m *MockBalanceRepo) CreditIn(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, ext, userID, amount)
	return args.Error(0)
}

func newTestEngine(txnRepo *MockTransactionRepo, balRepo *MockBalanceRepo, cfg EngineConfig) *Engine {
	log := logger.New("error", "test")
	return NewEngine(&fakeTxRunner{}, txnRepo, balRepo, notifier.NoopDispatcher{}, cfg, log)
}

func TestComputeXnrt(t *testing.T) {
	tests := []struct {
		name     string
		usdt     string
		rate     string
		feeBps   int64
		expected string
	}{
		{"no fee", "100", "100", 0, "10000"},
		{"two percent fee", "100", "100", 200, "9800"},
		{"fractional amount", "0.5", "100", 0, "50"},
		{"half percent fee", "1000", "10", 50, "9950"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, _ := decimal.NewFromString(tt.rate)
			engine := newTestEngine(nil, nil, EngineConfig{
				ExchangeRate:   rate,
				PlatformFeeBps: tt.feeBps,
			})

			got := engine.ComputeXnrt(decimal.RequireFromString(tt.usdt))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)),
				"expected %s, got %s", tt.expected, got.String())
		})
	}
}

func TestCredit_SufficientConfirmations(t *testing.T) {
	txnRepo := new(MockTransactionRepo)
	balRepo := new(MockBalanceRepo)
	engine := newTestEngine(txnRepo, balRepo, EngineConfig{
		ExchangeRate:          decimal.NewFromInt(100),
		PlatformFeeBps:        200,
		RequiredConfirmations: 12,
	})

	userID := uuid.New()
	expectedXnrt := decimal.RequireFromString("9800")

	txnRepo.On("CreateIn", mock.Anything, mock.Anything, mock.MatchedBy(func(txn *entities.Transaction) bool {
		return txn.Status == entities.TransactionStatusApproved &&
			txn.Verified &&
			txn.Amount.Equal(expectedXnrt)
	})).Return(nil)
	balRepo.On("CreditIn", mock.Anything, mock.Anything, userID, mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(expectedXnrt)
	})).Return(nil)

	result, err := engine.Credit(context.Background(), &CreditRequest{
		UserID:        userID,
		UsdtAmount:    decimal.NewFromInt(100),
		TxHash:        "0xabc",
		BlockNumber:   500,
		Confirmations: 15,
		Method:        "scanner",
	})

	assert.NoError(t, err)
	assert.True(t, result.Credited)
	assert.True(t, result.XnrtAmount.Equal(expectedXnrt))
	txnRepo.AssertExpectations(t)
	balRepo.AssertExpectations(t)
}

func TestCredit_InsufficientConfirmations_NoBalanceWrite(t *testing.T) {
	txnRepo := new(MockTransactionRepo)
	balRepo := new(MockBalanceRepo)
	engine := newTestEngine(txnRepo, balRepo, EngineConfig{
		ExchangeRate:          decimal.NewFromInt(100),
		RequiredConfirmations: 12,
	})

	txnRepo.On("CreateIn", mock.Anything, mock.Anything, mock.MatchedBy(func(txn *entities.Transaction) bool {
		return txn.Status == entities.TransactionStatusPending
	})).Return(nil)

	result, err := engine.Credit(context.Background(), &CreditRequest{
		UserID:        uuid.New(),
		UsdtAmount:    decimal.NewFromInt(50),
		TxHash:        "0xdef",
		Confirmations: 3,
		Method:        "scanner",
	})

	assert.NoError(t, err)
	assert.False(t, result.Credited)
	txnRepo.AssertExpectations(t)
	balRepo.AssertNotCalled(t, "CreditIn", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCredit_DuplicateHash(t *testing.T) {
	txnRepo := new(MockTransactionRepo)
	balRepo := new(MockBalanceRepo)
	engine := newTestEngine(txnRepo, balRepo, EngineConfig{
		ExchangeRate:          decimal.NewFromInt(100),
		RequiredConfirmations: 12,
	})

	txnRepo.On("CreateIn", mock.Anything, mock.Anything, mock.Anything).
		Return(domainErrors.ErrDuplicateTransaction)

	_, err := engine.Credit(context.Background(), &CreditRequest{
		UserID:        uuid.New(),
		UsdtAmount:    decimal.NewFromInt(100),
		TxHash:        "0xaaa",
		Confirmations: 20,
		Method:        "scanner",
	})

	assert.ErrorIs(t, err, domainErrors.ErrDuplicateTransaction)
	balRepo.AssertNotCalled(t, "CreditIn", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApprovePending(t *testing.T) {
	txnRepo := new(MockTransactionRepo)
	balRepo := new(MockBalanceRepo)
	engine := newTestEngine(txnRepo, balRepo, EngineConfig{
		ExchangeRate:          decimal.NewFromInt(100),
		RequiredConfirmations: 12,
	})

	txn := &entities.Transaction{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Amount:          decimal.NewFromInt(5000),
		TransactionHash: "0xbbb",
		Status:          entities.TransactionStatusPending,
	}

	txnRepo.On("ApproveIn", mock.Anything, mock.Anything, txn.ID, uint64(14)).Return(nil)
	balRepo.On("CreditIn", mock.Anything, mock.Anything, txn.UserID, mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(txn.Amount)
	})).Return(nil)

	err := engine.ApprovePending(context.Background(), txn, 14)
	assert.NoError(t, err)
	txnRepo.AssertExpectations(t)
	balRepo.AssertExpectations(t)
}

func TestApprovePending_TooFewConfirmations(t *testing.T) {
	engine := newTestEngine(new(MockTransactionRepo), new(MockBalanceRepo), EngineConfig{
		ExchangeRate:          decimal.NewFromInt(100),
		RequiredConfirmations: 12,
	})

	err := engine.ApprovePending(context.Background(), &entities.Transaction{ID: uuid.New()}, 5)
	assert.Error(t, err)
}
