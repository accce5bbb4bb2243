package chain

import "github.com/shopspring/decimal"

// TransferEvent is one decoded ERC-20 Transfer log of the watched token
// contract. Addresses are lowercase hex.
type TransferEvent struct {
	From        string
	To          string
	Value       decimal.Decimal // token units, decimals already applied
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// TxReceipt summarizes an independently fetched transaction receipt for the
// user-report verification path
type TxReceipt struct {
	Succeeded   bool
	BlockNumber uint64
	Transfers   []TransferEvent // watched-token Transfers only, unrelated logs dropped
}
