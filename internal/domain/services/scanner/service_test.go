package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/chain"
	"github.com/xnrt-platform/xnrt_service/internal/domain/entities"
	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/credit"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

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

type MockCursorRepo struct {
	mock.Mock
}

func (m *MockCursorRepo) GetOrCreate(ctx context.Context, initialBlock uint64) (*entities.ScannerCursor, error) {
	args := m.Called(ctx, initialBlock)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ScannerCursor), args.Error(1)
}

func (m *MockCursorRepo) Get(ctx context.Context) (*entities.ScannerCursor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ScannerCursor), args.Error(1)
}

func (m *MockCursorRepo) Advance(ctx context.Context, toBlock uint64) error {
	args := m.Called(ctx, toBlock)
	return args.Error(0)
}

func (m *MockCursorRepo) TouchScanTimestamp(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCursorRepo) SetScanInProgress(ctx context.Context, inProgress bool) error {
	args := m.Called(ctx, inProgress)
	return args.Error(0)
}

func (m *MockCursorRepo) RecordError(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

type MockAddressRepo struct {
	mock.Mock
}

func (m *MockAddressRepo) GetActiveByAddress(ctx context.Context, address string) (*entities.DepositAddress, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DepositAddress), args.Error(1)
}

type MockWalletRepo struct {
	mock.Mock
}

func (m *MockWalletRepo) GetActiveByAddress(ctx context.Context, address string) (*entities.LinkedWallet, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.LinkedWallet), args.Error(1)
}

type MockTxnRepo struct {
	mock.Mock
}

func (m *MockTxnRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

type MockUnmatchedRepo struct {
	mock.Mock
}

func (m *MockUnmatchedRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockUnmatchedRepo) Create(ctx context.Context, deposit *entities.UnmatchedDeposit) error {
	args := m.Called(ctx, deposit)
	return args.Error(0)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Credit(ctx context.Context, req *credit.CreditRequest) (*credit.CreditResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credit.CreditResult), args.Error(1)
}

type scannerFixture struct {
	reader        *MockReader
	cursorRepo    *MockCursorRepo
	addressRepo   *MockAddressRepo
	walletRepo    *MockWalletRepo
	txnRepo       *MockTxnRepo
	unmatchedRepo *MockUnmatchedRepo
	engine        *MockEngine
	service       *Service
}

func newScannerFixture(cfg Config) *scannerFixture {
	f := &scannerFixture{
		reader:        new(MockReader),
		cursorRepo:    new(MockCursorRepo),
		addressRepo:   new(MockAddressRepo),
		walletRepo:    new(MockWalletRepo),
		txnRepo:       new(MockTxnRepo),
		unmatchedRepo: new(MockUnmatchedRepo),
		engine:        new(MockEngine),
	}
	f.service = NewService(
		f.reader,
		f.cursorRepo,
		f.addressRepo,
		f.walletRepo,
		f.txnRepo,
		f.unmatchedRepo,
		f.engine,
		cfg,
		logger.New("error", "test"),
	)
	return f
}

const treasury = "0x1111111111111111111111111111111111111111"

func defaultConfig() Config {
	return Config{
		BatchSize:             300,
		RequiredConfirmations: 12,
		StartFromTip:          false,
		StartOffset:           1000,
		TreasuryAddress:       treasury,
	}
}

func TestScanTick_CreditsDirectDeposit(t *testing.T) {
	f := newScannerFixture(defaultConfig())
	userID := uuid.New()
	depositAddr := "0x2222222222222222222222222222222222222222"

	event := chain.TransferEvent{
		From:        "0x3333333333333333333333333333333333333333",
		To:          depositAddr,
		Value:       decimal.NewFromInt(100),
		BlockNumber: 950,
		TxHash:      "0xfeed",
	}

	f.reader.On("BlockNumber", mock.Anything).Return(uint64(1000), nil)
	f.cursorRepo.On("GetOrCreate", mock.Anything, uint64(0)).
		Return(&entities.ScannerCursor{ID: 1, LastScannedBlock: 900}, nil)
	f.cursorRepo.On("SetScanInProgress", mock.Anything, true).Return(nil)
	// safe head 988, window [901, 988]
	f.reader.On("FilterTransfers", mock.Anything, uint64(901), uint64(988)).
		Return([]chain.TransferEvent{event}, nil)
	f.txnRepo.On("ExistsByHash", mock.Anything, "0xfeed").Return(false, nil)
	f.unmatchedRepo.On("ExistsByHash", mock.Anything, "0xfeed").Return(false, nil)
	f.addressRepo.On("GetActiveByAddress", mock.Anything, depositAddr).
		Return(&entities.DepositAddress{UserID: userID, Address: depositAddr}, nil)
	f.engine.On("Credit", mock.Anything, mock.MatchedBy(func(req *credit.CreditRequest) bool {
		return req.UserID == userID &&
			req.Method == "scanner" &&
			req.Confirmations == 50 &&
			req.UsdtAmount.Equal(decimal.NewFromInt(100))
	})).Return(&credit.CreditResult{Credited: true}, nil)
	f.cursorRepo.On("Advance", mock.Anything, uint64(988)).Return(nil)

	err := f.service.ScanTick(context.Background())
	assert.NoError(t, err)
	f.engine.AssertExpectations(t)
	f.cursorRepo.AssertExpectations(t)
}

func TestScanTick_TreasuryFromUnknownSenderGoesUnmatched(t *testing.T) {
	f := newScannerFixture(defaultConfig())
	sender := "0x4444444444444444444444444444444444444444"

	event := chain.TransferEvent{
		From:        sender,
		To:          treasury,
		Value:       decimal.NewFromInt(25),
		BlockNumber: 910,
		TxHash:      "0xbeef",
	}

	f.reader.On("BlockNumber", mock.Anything).Return(uint64(1000), nil)
	f.cursorRepo.On("GetOrCreate", mock.Anything, uint64(0)).
		Return(&entities.ScannerCursor{ID: 1, LastScannedBlock: 900}, nil)
	f.cursorRepo.On("SetScanInProgress", mock.Anything, true).Return(nil)
	f.reader.On("FilterTransfers", mock.Anything, uint64(901), uint64(988)).
		Return([]chain.TransferEvent{event}, nil)
	f.txnRepo.On("ExistsByHash", mock.Anything, "0xbeef").Return(false, nil)
	f.unmatchedRepo.On("ExistsByHash", mock.Anything, "0xbeef").Return(false, nil)
	f.addressRepo.On("GetActiveByAddress", mock.Anything, treasury).
		Return(nil, domainErrors.ErrDepositAddressNotFound)
	f.walletRepo.On("GetActiveByAddress", mock.Anything, sender).
		Return(nil, domainErrors.ErrLinkedWalletNotFound)
	f.unmatchedRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *entities.UnmatchedDeposit) bool {
		return d.TransactionHash == "0xbeef" && d.FromAddress == sender && !d.Matched
	})).Return(nil)
	f.cursorRepo.On("Advance", mock.Anything, uint64(988)).Return(nil)

	err := f.service.ScanTick(context.Background())
	assert.NoError(t, err)
	f.unmatchedRepo.AssertExpectations(t)
	f.engine.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestScanTick_SkipsAlreadyProcessedEvent(t *testing.T) {
	f := newScannerFixture(defaultConfig())

	event := chain.TransferEvent{
		To:          "0x2222222222222222222222222222222222222222",
		Value:       decimal.NewFromInt(10),
		BlockNumber: 905,
		TxHash:      "0xseen",
	}

	f.reader.On("BlockNumber", mock.Anything).Return(uint64(1000), nil)
	f.cursorRepo.On("GetOrCreate", mock.Anything, uint64(0)).
		Return(&entities.ScannerCursor{ID: 1, LastScannedBlock: 900}, nil)
	f.cursorRepo.On("SetScanInProgress", mock.Anything, true).Return(nil)
	f.reader.On("FilterTransfers", mock.Anything, uint64(901), uint64(988)).
		Return([]chain.TransferEvent{event}, nil)
	f.txnRepo.On("ExistsByHash", mock.Anything, "0xseen").Return(true, nil)
	f.cursorRepo.On("Advance", mock.Anything, uint64(988)).Return(nil)

	err := f.service.ScanTick(context.Background())
	assert.NoError(t, err)
	f.engine.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	f.addressRepo.AssertNotCalled(t, "GetActiveByAddress", mock.Anything, mock.Anything)
}

func TestScanTick_FilterErrorLeavesCursor(t *testing.T) {
	f := newScannerFixture(defaultConfig())

	f.reader.On("BlockNumber", mock.Anything).Return(uint64(1000), nil)
	f.cursorRepo.On("GetOrCreate", mock.Anything, uint64(0)).
		Return(&entities.ScannerCursor{ID: 1, LastScannedBlock: 900}, nil)
	f.cursorRepo.On("SetScanInProgress", mock.Anything, true).Return(nil)
	f.reader.On("FilterTransfers", mock.Anything, uint64(901), uint64(988)).
		Return(nil, errors.New("rpc unavailable"))
	f.cursorRepo.On("RecordError", mock.Anything, mock.Anything).Return(nil)

	err := f.service.ScanTick(context.Background())
	assert.Error(t, err)
	f.cursorRepo.AssertNotCalled(t, "Advance", mock.Anything, mock.Anything)
	f.cursorRepo.AssertCalled(t, "RecordError", mock.Anything, mock.Anything)
}

func TestScanTick_CaughtUpTouchesTimestamp(t *testing.T) {
	f := newScannerFixture(defaultConfig())

	// cursor already at the safe head: nothing to scan
	f.reader.On("BlockNumber", mock.Anything).Return(uint64(1000), nil)
	f.cursorRepo.On("GetOrCreate", mock.Anything, uint64(0)).
		Return(&entities.ScannerCursor{ID: 1, LastScannedBlock: 988}, nil)
	f.cursorRepo.On("TouchScanTimestamp", mock.Anything).Return(nil)

	err := f.service.ScanTick(context.Background())
	assert.NoError(t, err)
	f.reader.AssertNotCalled(t, "FilterTransfers", mock.Anything, mock.Anything, mock.Anything)
	f.cursorRepo.AssertCalled(t, "TouchScanTimestamp", mock.Anything)
}

func TestScanTick_IgnoresUnmanagedDestination(t *testing.T) {
	f := newScannerFixture(defaultConfig())
	other := "0x9999999999999999999999999999999999999999"

	event := chain.TransferEvent{
		From:        "0x3333333333333333333333333333333333333333",
		To:          other,
		Value:       decimal.NewFromInt(7),
		BlockNumber: 920,
		TxHash:      "0xother",
	}

	f.reader.On("BlockNumber", mock.Anything).Return(uint64(1000), nil)
	f.cursorRepo.On("GetOrCreate", mock.Anything, uint64(0)).
		Return(&entities.ScannerCursor{ID: 1, LastScannedBlock: 900}, nil)
	f.cursorRepo.On("SetScanInProgress", mock.Anything, true).Return(nil)
	f.reader.On("FilterTransfers", mock.Anything, uint64(901), uint64(988)).
		Return([]chain.TransferEvent{event}, nil)
	f.txnRepo.On("ExistsByHash", mock.Anything, "0xother").Return(false, nil)
	f.unmatchedRepo.On("ExistsByHash", mock.Anything, "0xother").Return(false, nil)
	f.addressRepo.On("GetActiveByAddress", mock.Anything, other).
		Return(nil, domainErrors.ErrDepositAddressNotFound)
	f.cursorRepo.On("Advance", mock.Anything, uint64(988)).Return(nil)

	err := f.service.ScanTick(context.Background())
	assert.NoError(t, err)
	f.engine.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	f.unmatchedRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestScanTick_StartFromTipInitializesAtHead(t *testing.T) {
	cfg := defaultConfig()
	cfg.StartFromTip = true
	f := newScannerFixture(cfg)

	f.reader.On("BlockNumber", mock.Anything).Return(uint64(1000), nil)
	f.cursorRepo.On("GetOrCreate", mock.Anything, uint64(1000)).
		Return(&entities.ScannerCursor{ID: 1, LastScannedBlock: 1000}, nil)
	f.cursorRepo.On("TouchScanTimestamp", mock.Anything).Return(nil)

	err := f.service.ScanTick(context.Background())
	assert.NoError(t, err)
	f.cursorRepo.AssertCalled(t, "GetOrCreate", mock.Anything, uint64(1000))
}
