package deposit_scanner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

// Scanner drives one scan pass per tick
type Scanner interface {
	ScanTick(ctx context.Context) error
}

// Sweeper revisits pending deposits on a schedule
type Sweeper interface {
	SweepPendingDeposits(ctx context.Context) error
}

// Config holds worker configuration
type Config struct {
	ScanInterval  time.Duration
	SweepSchedule string // cron expression
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		ScanInterval:  60 * time.Second,
		SweepSchedule: "*/5 * * * *",
	}
}

// Worker drives the block scanner on a fixed interval and the pending-deposit
// sweep on a cron schedule. The scanner's own single-flight guard makes an
// overlapping tick a no-op, so the worker never queues ticks.
type Worker struct {
	scanner Scanner
	sweeper Sweeper
	config  *Config
	logger  *logger.Logger
	cron    *cron.Cron
	stopCh  chan struct{}
}

// NewWorker creates a new deposit scanner worker
func NewWorker(scanner Scanner, sweeper Sweeper, config *Config, logger *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		scanner: scanner,
		sweeper: sweeper,
		config:  config,
		logger:  logger,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the scan loop and the sweep schedule. Blocks until Stop is
// called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting deposit scanner worker",
		"scan_interval", w.config.ScanInterval.String(),
		"sweep_schedule", w.config.SweepSchedule)

	if _, err := w.cron.AddFunc(w.config.SweepSchedule, func() {
		if err := w.sweeper.SweepPendingDeposits(ctx); err != nil {
			w.logger.Error("pending deposit sweep failed", "error", err)
		}
	}); err != nil {
		w.logger.Error("invalid sweep schedule, pending sweep disabled",
			"schedule", w.config.SweepSchedule,
			"error", err)
	} else {
		w.cron.Start()
		defer w.cron.Stop()
	}

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Deposit scanner worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Deposit scanner worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) tick(ctx context.Context) {
	if err := w.scanner.ScanTick(ctx); err != nil {
		// Already counted and persisted by the scanner; the next tick retries
		// the same window.
		w.logger.Warn("scan tick failed", "error", err)
	}
}
