package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	domainerrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
)

const defaultTimeout = 15 * time.Second

// transferTopic is the keccak256 of Transfer(address,address,uint256)
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Config represents chain client configuration
type Config struct {
	RPCURL        string
	TokenContract string
	TokenDecimals int32
	Timeout       time.Duration
}

// Client is a JSON-RPC chain reader for one ERC-20 token contract. Every call
// carries an explicit timeout; a hung provider must not block a scan tick
// forever.
type Client struct {
	eth            *ethclient.Client
	contract       common.Address
	decimals       int32
	timeout        time.Duration
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient dials the RPC endpoint and builds a reader
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	eth, err := ethclient.Dial(config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}

	cbSettings := gobreaker.Settings{
		Name:        "ChainRPC",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("chain RPC circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		eth:            eth,
		contract:       common.HexToAddress(config.TokenContract),
		decimals:       config.TokenDecimals,
		timeout:        config.Timeout,
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		logger:         logger,
	}, nil
}

// BlockNumber returns the current chain height
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.eth.BlockNumber(callCtx)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return result.(uint64), nil
}

// FilterTransfers returns the contract's Transfer events in [fromBlock, toBlock]
func (c *Client) FilterTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]TransferEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{transferTopic}},
	}

	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.eth.FilterLogs(callCtx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter transfer logs: %w", err)
	}

	logs := result.([]types.Log)
	events := make([]TransferEvent, 0, len(logs))
	for _, log := range logs {
		event, ok := c.decodeTransfer(log)
		if !ok {
			// Malformed logs are skipped individually, never abort the range
			c.logger.Warn("skipping undecodable transfer log",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index))
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// TransactionReceipt fetches and decodes a receipt for the report verifier
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*TxReceipt, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.eth.TransactionReceipt(callCtx, common.HexToHash(txHash))
	})
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, domainerrors.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	receipt := result.(*types.Receipt)
	out := &TxReceipt{
		Succeeded:   receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}

	for _, log := range receipt.Logs {
		if log.Address != c.contract {
			continue // unrelated contract in the same transaction
		}
		event, ok := c.decodeTransfer(*log)
		if !ok {
			continue
		}
		out.Transfers = append(out.Transfers, event)
	}

	return out, nil
}

// decodeTransfer decodes one Transfer log. Both address parameters are
// indexed, so topics are [signature, from, to] and data holds the value.
func (c *Client) decodeTransfer(log types.Log) (TransferEvent, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != transferTopic || len(log.Data) < 32 {
		return TransferEvent{}, false
	}

	value := new(big.Int).SetBytes(log.Data[:32])
	return TransferEvent{
		From:        strings.ToLower(common.BytesToAddress(log.Topics[1].Bytes()).Hex()),
		To:          strings.ToLower(common.BytesToAddress(log.Topics[2].Bytes()).Hex()),
		Value:       decimal.NewFromBigInt(value, -c.decimals),
		BlockNumber: log.BlockNumber,
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		LogIndex:    log.Index,
	}, true
}

// Close releases the underlying RPC connection
func (c *Client) Close() {
	c.eth.Close()
}
