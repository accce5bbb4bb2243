package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a ledger transaction
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// TransactionStatus represents the lifecycle state of a ledger transaction.
// Transitions are one-way: pending may become approved or rejected, nothing
// ever leaves approved or rejected.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusApproved TransactionStatus = "approved"
	TransactionStatusRejected TransactionStatus = "rejected"
)

// IsValid checks if the status is one of the known states
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusApproved, TransactionStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo enforces the one-way status lifecycle
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusPending &&
		(next == TransactionStatusApproved || next == TransactionStatusRejected)
}

// VerificationData is the opaque audit blob recorded with every verified
// transaction: where the deposit was seen and how it was verified.
type VerificationData struct {
	BlockNumber   uint64    `json:"block_number"`
	Confirmations uint64    `json:"confirmations"`
	Method        string    `json:"method"` // "scanner" | "user_report" | "admin_match" | "pending_sweep"
	ScannedAt     time.Time `json:"scanned_at"`
}

// Transaction is a ledger entry. TransactionHash is globally unique and is
// the idempotency key shared by every credit path.
type Transaction struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	UserID           uuid.UUID         `json:"user_id" db:"user_id"`
	Type             TransactionType   `json:"type" db:"type"`
	Amount           decimal.Decimal   `json:"amount" db:"amount"`           // internal token units (XNRT)
	UsdtAmount       decimal.Decimal   `json:"usdt_amount" db:"usdt_amount"` // gross on-chain amount
	TransactionHash  string            `json:"transaction_hash" db:"transaction_hash"`
	WalletAddress    string            `json:"wallet_address" db:"wallet_address"`
	Status           TransactionStatus `json:"status" db:"status"`
	Verified         bool              `json:"verified" db:"verified"`
	Confirmations    uint64            `json:"confirmations" db:"confirmations"`
	VerificationData *VerificationData `json:"verification_data,omitempty" db:"-"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// Validate checks invariants before persistence
func (t *Transaction) Validate() error {
	if t.UserID == uuid.Nil {
		return fmt.Errorf("transaction requires a user")
	}
	if t.TransactionHash == "" {
		return fmt.Errorf("transaction requires a transaction hash")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid transaction status: %s", t.Status)
	}
	if t.UsdtAmount.IsNegative() {
		return fmt.Errorf("usdt amount cannot be negative")
	}
	return nil
}

// Balance is a user's token balance row. Mutated only through atomic
// increments tied to a Transaction creation, never set from a recomputed
// value.
type Balance struct {
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	XnrtBalance decimal.Decimal `json:"xnrt_balance" db:"xnrt_balance"`
	Staked      decimal.Decimal `json:"staked" db:"staked"`
	Mining      decimal.Decimal `json:"mining" db:"mining"`
	Referral    decimal.Decimal `json:"referral" db:"referral"`
	TotalEarned decimal.Decimal `json:"total_earned" db:"total_earned"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
