package chain

import "context"

// Reader is a read-only view of the blockchain scoped to one token contract
type Reader interface {
	// BlockNumber returns the current chain height
	BlockNumber(ctx context.Context) (uint64, error)

	// FilterTransfers returns the token contract's Transfer events in
	// [fromBlock, toBlock], in ascending block/log order
	FilterTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]TransferEvent, error)

	// TransactionReceipt fetches and decodes the receipt for a transaction
	// hash. Returns ErrReceiptNotFound when the chain does not know the hash.
	TransactionReceipt(ctx context.Context, txHash string) (*TxReceipt, error)
}

// Ensure Client implements Reader
var _ Reader = (*Client)(nil)
