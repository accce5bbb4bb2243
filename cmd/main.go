package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xnrt-platform/xnrt_service/internal/adapters/chain"
	"github.com/xnrt-platform/xnrt_service/internal/adapters/notifier"
	"github.com/xnrt-platform/xnrt_service/internal/api/handlers"
	"github.com/xnrt-platform/xnrt_service/internal/api/routes"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/credit"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/depositaddress"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/depositreport"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/reconciliation"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/scanner"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/walletlink"
	"github.com/xnrt-platform/xnrt_service/internal/infrastructure/cache"
	"github.com/xnrt-platform/xnrt_service/internal/infrastructure/config"
	"github.com/xnrt-platform/xnrt_service/internal/infrastructure/database"
	"github.com/xnrt-platform/xnrt_service/internal/infrastructure/repositories"
	depositScanner "github.com/xnrt-platform/xnrt_service/internal/workers/deposit_scanner"
	"github.com/xnrt-platform/xnrt_service/pkg/hdwallet"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close database connection", "error", err)
		}
	}()

	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisClient.Close()

	// Initialize chain reader
	chainClient, err := chain.NewClient(chain.Config{
		RPCURL:        cfg.Blockchain.RPCURL,
		TokenContract: cfg.Blockchain.TokenContract,
		TokenDecimals: cfg.Blockchain.TokenDecimals,
		Timeout:       time.Duration(cfg.Blockchain.RPCTimeout) * time.Second,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to chain RPC", "error", err)
	}
	defer chainClient.Close()

	// Initialize HD address deriver
	deriver, err := hdwallet.NewDeriver(cfg.HDWallet.Mnemonic)
	if err != nil {
		log.Fatal("Failed to initialize HD wallet", "error", err)
	}

	// Repositories
	cursorRepo := repositories.NewCursorRepository(db)
	addressRepo := repositories.NewDepositAddressRepository(db)
	walletRepo := repositories.NewLinkedWalletRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	balanceRepo := repositories.NewBalanceRepository(db, log.Zap())
	unmatchedRepo := repositories.NewUnmatchedDepositRepository(db)
	reportRepo := repositories.NewDepositReportRepository(db)
	txManager := repositories.NewTxManager(db)

	exchangeRate, err := decimal.NewFromString(cfg.Deposit.ExchangeRate)
	if err != nil {
		log.Fatal("Invalid exchange rate", "value", cfg.Deposit.ExchangeRate, "error", err)
	}

	// Services
	dispatcher := notifier.NewRedisDispatcher(redisClient, log.Zap())
	creditEngine := credit.NewEngine(txManager, transactionRepo, balanceRepo, dispatcher, credit.EngineConfig{
		ExchangeRate:          exchangeRate,
		PlatformFeeBps:        cfg.Deposit.PlatformFeeBps,
		RequiredConfirmations: cfg.Scanner.RequiredConfirmations,
	}, log)

	scannerService := scanner.NewService(
		chainClient,
		cursorRepo,
		addressRepo,
		walletRepo,
		transactionRepo,
		unmatchedRepo,
		creditEngine,
		scanner.Config{
			BatchSize:             cfg.Scanner.BatchSize,
			RequiredConfirmations: cfg.Scanner.RequiredConfirmations,
			StartFromTip:          cfg.Scanner.StartFromTip,
			StartOffset:           cfg.Scanner.StartOffset,
			TreasuryAddress:       cfg.Blockchain.TreasuryAddress,
		},
		log,
	)

	reportService := depositreport.NewService(
		chainClient,
		transactionRepo,
		reportRepo,
		addressRepo,
		walletRepo,
		unmatchedRepo,
		creditEngine,
		depositreport.Config{TreasuryAddress: cfg.Blockchain.TreasuryAddress},
		log,
	)

	reconciliationService := reconciliation.NewService(
		chainClient,
		unmatchedRepo,
		transactionRepo,
		balanceRepo,
		txManager,
		creditEngine,
		log,
	)

	addressService := depositaddress.NewService(deriver, addressRepo, depositaddress.Config{
		CoinType: cfg.HDWallet.DefaultCoinType,
		Version:  cfg.HDWallet.AddressVersion,
	}, log)

	walletService := walletlink.NewService(walletRepo, log)

	// Start the scan loop and pending sweep
	worker := depositScanner.NewWorker(scannerService, reconciliationService, &depositScanner.Config{
		ScanInterval:  time.Duration(cfg.Scanner.Interval) * time.Second,
		SweepSchedule: cfg.Scanner.PendingSweepSchedule,
	}, log)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	go worker.Start(workerCtx)

	// HTTP surface
	router := routes.SetupRoutes(cfg, log, &routes.Services{
		DB:              db,
		DepositHandlers: handlers.NewDepositHandlers(addressService, walletService, reportService, log),
		AdminHandlers:   handlers.NewAdminHandlers(reconciliationService, reportService, scannerService, log),
	})

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("Starting server", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	worker.Stop()
	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}
