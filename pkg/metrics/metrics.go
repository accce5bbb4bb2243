package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scanner and crediting metrics, registered on the default registry and
// served through promhttp in main.
var (
	BlocksScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xnrt_scanner_blocks_scanned_total",
		Help: "Number of blocks fully scanned for token transfers",
	})

	ScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xnrt_scanner_errors_total",
		Help: "Number of scan batches that failed and will be retried",
	})

	TransfersObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xnrt_scanner_transfers_observed_total",
		Help: "Number of token Transfer events observed by the scanner",
	})

	DepositsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xnrt_deposits_credited_total",
		Help: "Number of deposits credited to user balances, by entry path",
	}, []string{"path"})

	DepositsPending = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xnrt_deposits_pending_total",
		Help: "Number of deposits recorded as pending on insufficient confirmations",
	})

	DepositsUnmatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xnrt_deposits_unmatched_total",
		Help: "Number of transfers that could not be attributed to a user",
	})

	LastScannedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xnrt_scanner_last_scanned_block",
		Help: "Highest block height fully scanned",
	})
)
