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
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"creditguild/internal/poller"
)

// EVMClient is the subset of the Ethereum RPC the dashboard backend uses.
type EVMClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial opens an RPC client for the endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

var ErrTxReverted = errors.New("transaction reverted")

// ReceiptWaiter resolves a submitted transaction to the block it was mined in.
type ReceiptWaiter struct {
	Client   EVMClient
	Interval time.Duration
	Logger   *zap.Logger
	Sleep    func(ctx context.Context, d time.Duration) error
}

type receiptResult struct {
	receipt *gethtypes.Receipt
}

func (r receiptResult) Version() uint64 {
	if r.receipt == nil || r.receipt.BlockNumber == nil {
		return 0
	}
	return r.receipt.BlockNumber.Uint64()
}

// WaitMined blocks until the receipt exists and returns its block number.
// A reverted transaction is reported as ErrTxReverted.
func (w *ReceiptWaiter) WaitMined(ctx context.Context, txHash common.Hash) (uint64, error) {
	if w == nil || w.Client == nil {
		return 0, fmt.Errorf("receipt waiter not initialised")
	}
	if (txHash == common.Hash{}) {
		return 0, fmt.Errorf("tx hash required")
	}
	fetch := func(ctx context.Context) (receiptResult, error) {
		receipt, err := w.Client.TransactionReceipt(ctx, txHash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return receiptResult{}, nil
			}
			return receiptResult{}, fmt.Errorf("fetch receipt: %w", err)
		}
		if receipt != nil && receipt.Status != gethtypes.ReceiptStatusSuccessful {
			return receiptResult{}, poller.Permanent(fmt.Errorf("%w: %s", ErrTxReverted, txHash.Hex()))
		}
		return receiptResult{receipt: receipt}, nil
	}
	res, err := poller.Until(ctx, fetch, func(r receiptResult) bool {
		return r.receipt != nil && r.receipt.BlockNumber != nil
	}, nil, poller.Options{
		Name:     "receipt " + txHash.Hex(),
		Interval: w.Interval,
		Sleep:    w.Sleep,
		Logger:   w.Logger,
	})
	if err != nil {
		return 0, err
	}
	return res.Version(), nil
}

// ParseTxHash validates a 0x-prefixed 32-byte hash.
func ParseTxHash(value string) (common.Hash, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "0x") || len(value) != 66 {
		return common.Hash{}, fmt.Errorf("invalid tx hash: %q", value)
	}
	raw, err := hexutil.Decode(value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid tx hash: %q: %w", value, err)
	}
	return common.BytesToHash(raw), nil
}

// HeadBlock returns the chain head number.
func HeadBlock(ctx context.Context, client EVMClient) (uint64, error) {
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch head: %w", err)
	}
	if header == nil || header.Number == nil {
		return 0, fmt.Errorf("block metadata unavailable")
	}
	return header.Number.Uint64(), nil
}
