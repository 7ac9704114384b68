package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"creditguild/internal/auction"
)

const auctionHouseABI = `[
	{"inputs":[],"name":"midPoint","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"auctionDuration","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	houseABIOnce sync.Once
	houseABI     abi.ABI
	houseABIErr  error
)

func AuctionHouseABI() (abi.ABI, error) {
	houseABIOnce.Do(func() {
		houseABI, houseABIErr = abi.JSON(strings.NewReader(auctionHouseABI))
	})
	return houseABI, houseABIErr
}

// AuctionHouseReader reads the immutable timing parameters of an
// AuctionHouse contract.
type AuctionHouseReader struct {
	Client EVMClient
}

func (r *AuctionHouseReader) Read(ctx context.Context, address string) (auction.House, error) {
	if r == nil || r.Client == nil {
		return auction.House{}, fmt.Errorf("auction house reader not initialised")
	}
	if !common.IsHexAddress(address) {
		return auction.House{}, fmt.Errorf("invalid auction house address: %q", address)
	}
	parsed, err := AuctionHouseABI()
	if err != nil {
		return auction.House{}, fmt.Errorf("parse auction house abi: %w", err)
	}
	to := common.HexToAddress(address)

	midPoint, err := r.callUint(ctx, parsed, to, "midPoint")
	if err != nil {
		return auction.House{}, err
	}
	duration, err := r.callUint(ctx, parsed, to, "auctionDuration")
	if err != nil {
		return auction.House{}, err
	}
	house := auction.House{
		Address:  auction.NormalizeAddress(address),
		Duration: int64(duration),
		MidPoint: int64(midPoint),
	}
	if !house.Valid() {
		return auction.House{}, fmt.Errorf("auction house %s: midPoint %d outside duration %d", address, midPoint, duration)
	}
	return house, nil
}

func (r *AuctionHouseReader) callUint(ctx context.Context, parsed abi.ABI, to common.Address, method string) (uint64, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return 0, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := r.Client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return 0, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok || v == nil || v.Sign() < 0 || !v.IsUint64() || v.Uint64() > 1<<62 {
		return 0, fmt.Errorf("%s: unexpected value %v", method, values[0])
	}
	return v.Uint64(), nil
}
