package reconciliation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/chain"
	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

type fakeTxRunner struct{}

func (f *fakeTxRunner) RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error {
	return fn(nil)
}

type MockReader struct {
	mock.Mock
}

func (m *MockReader) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockReader) FilterTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]chain.TransferEvent, error) {
	args := m.Called(ctx, fromBlock, toBlock)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chain.TransferEvent), args.Error(1)
}

func (m *MockReader) TransactionReceipt(ctx context.Context, txHash string) (*chain.TxReceipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.TxReceipt), args.Error(1)
}

type MockUnmatchedRepo struct {
	mock.Mock
}

func (m *MockUnmatchedRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.UnmatchedDeposit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UnmatchedDeposit), args.Error(1)
}

func (m *MockUnmatchedRepo) ListOpen(ctx context.Context) ([]*entities.UnmatchedDeposit, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.UnmatchedDeposit), args.Error(1)
}

func (m *MockUnmatchedRepo) MarkMatchedIn(ctx context.Context, ext sqlx.ExtContext, id, userID uuid.UUID) error {
	args := m.Called(ctx, ext, id, userID)
	return args.Error(0)
}

type MockTxnRepo struct {
	mock.Mock
}

func (m *MockTxnRepo) CreateIn(ctx context.Context, ext sqlx.ExtContext, txn *entities.Transaction) error {
	args := m.Called(ctx, ext, txn)
	return args.Error(0)
}

func (m *MockTxnRepo) ListPendingDeposits(ctx context.Context) ([]*entities.Transaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

func (m *MockTxnRepo) UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations uint64) error {
	args := m.Called(ctx, id, confirmations)
	return args.Error(0)
}

type MockBalanceRepo struct {
	mock.Mock
}

func (m *MockBalanceRepo) CreditIn(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, ext, userID, amount)
	return args.Error(0)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ComputeXnrt(usdtAmount decimal.Decimal) decimal.Decimal {
	args := m.Called(usdtAmount)
	return args.Get(0).(decimal.Decimal)
}

func (m *MockEngine) ApprovePending(ctx context.Context, txn *entities.Transaction, confirmations uint64) error {
	args := m.Called(ctx, txn, confirmations)
	return args.Error(0)
}

func (m *MockEngine) RequiredConfirmations() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

type reconFixture struct {
	reader        *MockReader
	unmatchedRepo *MockUnmatchedRepo
	txnRepo       *MockTxnRepo
	balanceRepo   *MockBalanceRepo
	engine        *MockEngine
	service       *Service
}

func newReconFixture() *reconFixture {
	f := &reconFixture{
		reader:        new(MockReader),
		unmatchedRepo: new(MockUnmatchedRepo),
		txnRepo:       new(MockTxnRepo),
		balanceRepo:   new(MockBalanceRepo),
		engine:        new(MockEngine),
	}
	f.service = NewService(
		f.reader,
		f.unmatchedRepo,
		f.txnRepo,
		f.balanceRepo,
		&fakeTxRunner{},
		f.engine,
		logger.New("error", "test"),
	)
	return f
}

func TestMatchUnmatchedDeposit(t *testing.T) {
	f := newReconFixture()
	depositID := uuid.New()
	userID := uuid.New()
	xnrt := decimal.NewFromInt(4900)

	deposit := &entities.UnmatchedDeposit{
		ID:              depositID,
		FromAddress:     "0x4444444444444444444444444444444444444444",
		Amount:          decimal.NewFromInt(50),
		TransactionHash: "0xheld",
		BlockNumber:     900,
		Confirmations:   30,
	}

	f.unmatchedRepo.On("GetByID", mock.Anything, depositID).Return(deposit, nil)
	f.engine.On("ComputeXnrt", mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(deposit.Amount)
	})).Return(xnrt)
	f.unmatchedRepo.On("MarkMatchedIn", mock.Anything, mock.Anything, depositID, userID).Return(nil)
	f.txnRepo.On("CreateIn", mock.Anything, mock.Anything, mock.MatchedBy(func(txn *entities.Transaction) bool {
		return txn.UserID == userID &&
			txn.Status == entities.TransactionStatusApproved &&
			txn.TransactionHash == "0xheld" &&
			txn.Amount.Equal(xnrt) &&
			txn.VerificationData != nil &&
			txn.VerificationData.Method == "admin_match"
	})).Return(nil)
	f.balanceRepo.On("CreditIn", mock.Anything, mock.Anything, userID, mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(xnrt)
	})).Return(nil)

	txn, err := f.service.MatchUnmatchedDeposit(context.Background(), depositID, userID)
	assert.NoError(t, err)
	assert.NotNil(t, txn)
	f.unmatchedRepo.AssertExpectations(t)
	f.txnRepo.AssertExpectations(t)
	f.balanceRepo.AssertExpectations(t)
}

func TestMatchUnmatchedDeposit_AlreadyMatched(t *testing.T) {
	f := newReconFixture()
	depositID := uuid.New()

	f.unmatchedRepo.On("GetByID", mock.Anything, depositID).
		Return(&entities.UnmatchedDeposit{ID: depositID, Matched: true}, nil)

	_, err := f.service.MatchUnmatchedDeposit(context.Background(), depositID, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrAlreadyMatched)
	f.txnRepo.AssertNotCalled(t, "CreateIn", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepPendingDeposits(t *testing.T) {
	f := newReconFixture()

	ripe := &entities.Transaction{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		TransactionHash: "0xripe",
		Confirmations:   5,
		VerificationData: &entities.VerificationData{
			BlockNumber: 980, // 20 confirmations at head 1000
		},
	}
	young := &entities.Transaction{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		TransactionHash: "0xyoung",
		Confirmations:   1,
		VerificationData: &entities.VerificationData{
			BlockNumber: 995, // 5 confirmations at head 1000
		},
	}

	f.txnRepo.On("ListPendingDeposits", mock.Anything).
		Return([]*entities.Transaction{ripe, young}, nil)
	f.reader.On("BlockNumber", mock.Anything).Return(uint64(1000), nil)
	f.engine.On("RequiredConfirmations").Return(uint64(12))
	f.engine.On("ApprovePending", mock.Anything, ripe, uint64(20)).Return(nil)
	f.txnRepo.On("UpdateConfirmations", mock.Anything, young.ID, uint64(5)).Return(nil)

	err := f.service.SweepPendingDeposits(context.Background())
	assert.NoError(t, err)
	f.engine.AssertExpectations(t)
	f.txnRepo.AssertExpectations(t)
	f.engine.AssertNotCalled(t, "ApprovePending", mock.Anything, young, mock.Anything)
}

func TestSweepPendingDeposits_Empty(t *testing.T) {
	f := newReconFixture()

	f.txnRepo.On("ListPendingDeposits", mock.Anything).
		Return([]*entities.Transaction{}, nil)

	err := f.service.SweepPendingDeposits(context.Background())
	assert.NoError(t, err)
	f.reader.AssertNotCalled(t, "BlockNumber", mock.Anything)
}
