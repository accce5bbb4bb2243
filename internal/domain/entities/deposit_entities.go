package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositAddress is a blockchain address owned by exactly one user for one
// derivation scheme version. Inactive addresses are kept for historical
// scanning but no longer shown to users.
type DepositAddress struct {
	ID              uuid.UUID `json:"id" db:"id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	Address         string    `json:"address" db:"address"` // lowercase hex
	CoinType        uint32    `json:"coin_type" db:"coin_type"`
	DerivationIndex uint32    `json:"derivation_index" db:"derivation_index"`
	DerivationPath  string    `json:"derivation_path" db:"derivation_path"`
	Version         int       `json:"version" db:"version"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// LinkedWallet is a user's self-custodied wallet, proven via a
// signed-challenge flow, used to attribute treasury deposits by sender.
type LinkedWallet struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Address   string    `json:"address" db:"address"` // lowercase hex
	Signature string    `json:"-" db:"signature"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UnmatchedDeposit holds a Transfer event that could not be attributed to any
// user at scan time, pending manual admin reconciliation.
type UnmatchedDeposit struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	FromAddress     string          `json:"from_address" db:"from_address"`
	ToAddress       string          `json:"to_address" db:"to_address"`
	Amount          decimal.Decimal `json:"amount" db:"amount"` // USDT
	TransactionHash string          `json:"transaction_hash" db:"transaction_hash"`
	BlockNumber     uint64          `json:"block_number" db:"block_number"`
	Confirmations   uint64          `json:"confirmations" db:"confirmations"`
	Matched         bool            `json:"matched" db:"matched"`
	MatchedUserID   *uuid.UUID      `json:"matched_user_id,omitempty" db:"matched_user_id"`
	MatchedAt       *time.Time      `json:"matched_at,omitempty" db:"matched_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// DepositReportStatus is the review state of a user-submitted deposit report
type DepositReportStatus string

const (
	DepositReportStatusOpen     DepositReportStatus = "open"
	DepositReportStatusResolved DepositReportStatus = "resolved"
)

// DepositReport records a user's "I sent a deposit" claim. Reports whose
// on-chain verification fails stay open for manual admin review; a user's
// report is never silently dropped.
type DepositReport struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	UserID          uuid.UUID           `json:"user_id" db:"user_id"`
	TransactionHash string              `json:"transaction_hash" db:"transaction_hash"`
	ClaimedAmount   decimal.Decimal     `json:"claimed_amount" db:"claimed_amount"`
	Status          DepositReportStatus `json:"status" db:"status"`
	FailureReason   *string             `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty" db:"resolved_at"`
}
