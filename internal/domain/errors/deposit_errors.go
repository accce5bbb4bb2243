package errors

import "errors"

// Deposit pipeline errors
var (
	// Idempotency
	ErrDuplicateTransaction = errors.New("transaction hash already processed")
	ErrDuplicateReport      = errors.New("deposit already reported for this transaction hash")

	// Admin reconciliation
	ErrUnmatchedDepositNotFound = errors.New("unmatched deposit not found")
	ErrAlreadyMatched           = errors.New("unmatched deposit already matched")

	// Wallet linking
	ErrWalletAlreadyLinked  = errors.New("wallet address already linked to another user")
	ErrInvalidWalletProof   = errors.New("wallet signature proof is invalid")
	ErrLinkedWalletNotFound = errors.New("linked wallet not found")

	// Deposit addresses
	ErrDepositAddressNotFound = errors.New("deposit address not found")

	// Chain verification
	ErrReceiptNotFound     = errors.New("transaction receipt not found")
	ErrTransactionReverted = errors.New("transaction reverted on-chain")
	ErrNoMatchingTransfer  = errors.New("no matching token transfer in transaction")
	ErrAmountMismatch      = errors.New("on-chain amount is less than claimed amount")
	ErrInsufficientConfs   = errors.New("insufficient confirmations")

	// Scanner
	ErrScanInProgress = errors.New("scan already in progress")

	// Transactions
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid transaction status transition")
)
