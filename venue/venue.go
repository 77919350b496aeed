// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package venue declares the collaborator contracts the engine consumes from
// an external tick-based liquidity venue: pool discovery, pool state,
// receipt-based liquidity provision, swaps, price oracles and token plumbing.
package venue

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Pool fee tiers (hundredths of a basis point)
const (
	Fee001 uint32 = 100    // 0.01% - stablecoins
	Fee005 uint32 = 500    // 0.05% - stable pairs
	Fee030 uint32 = 3000   // 0.30% - standard
	Fee100 uint32 = 10000  // 1.00% - exotic pairs
	FeeMax uint32 = 100000 // 10% max fee
)

// Tick spacing for the default fee tiers
const (
	TickSpacing001 int32 = 1
	TickSpacing005 int32 = 10
	TickSpacing030 int32 = 60
	TickSpacing100 int32 = 200
)

// DefaultFeeTiers lists the fee tiers searched when none are configured.
var DefaultFeeTiers = []uint32{Fee001, Fee005, Fee030, Fee100}

// DefaultTickSpacing returns the spacing conventionally paired with fee.
func DefaultTickSpacing(fee uint32) (int32, bool) {
	switch fee {
	case Fee001:
		return TickSpacing001, true
	case Fee005:
		return TickSpacing005, true
	case Fee030:
		return TickSpacing030, true
	case Fee100:
		return TickSpacing100, true
	}
	return 0, false
}

// Slot0 is the pool's current price state.
type Slot0 struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
}

// Factory resolves deployed pools.
type Factory interface {
	// GetPool returns the zero address when no pool is deployed.
	GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error)
	TickSpacing(ctx context.Context, fee uint32) (int32, error)
}

// PoolReader exposes a pool's price and in-range liquidity.
type PoolReader interface {
	Slot0(ctx context.Context, pool common.Address) (Slot0, error)
	Liquidity(ctx context.Context, pool common.Address) (*uint256.Int, error)
}

// Receipt is the venue's record of a custodied liquidity position.
type Receipt struct {
	ID          uint64
	Owner       common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickLower   int32
	TickUpper   int32
	Liquidity   *uint256.Int
	TokensOwed0 *uint256.Int
	TokensOwed1 *uint256.Int
}

// MintParams opens a new receipt owned by Recipient. Tokens are pulled
// from the caller.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	TickLower      int32
	TickUpper      int32
	Amount0Desired *uint256.Int
	Amount1Desired *uint256.Int
	Amount0Min     *uint256.Int
	Amount1Min     *uint256.Int
	Recipient      common.Address
}

// IncreaseParams adds liquidity to an existing receipt.
type IncreaseParams struct {
	ReceiptID      uint64
	Amount0Desired *uint256.Int
	Amount1Desired *uint256.Int
	Amount0Min     *uint256.Int
	Amount1Min     *uint256.Int
}

// DecreaseParams removes liquidity; the released tokens become collectable.
type DecreaseParams struct {
	ReceiptID  uint64
	Liquidity  *uint256.Int
	Amount0Min *uint256.Int
	Amount1Min *uint256.Int
}

// CollectParams withdraws owed tokens (released liquidity plus fees).
type CollectParams struct {
	ReceiptID  uint64
	Recipient  common.Address
	Amount0Max *uint256.Int
	Amount1Max *uint256.Int
}

// MintResult reports a newly minted receipt.
type MintResult struct {
	ReceiptID uint64
	Liquidity *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
}

// PositionManager is the receipt-based liquidity interface. The caller
// argument is the receipt holder acting on the venue.
type PositionManager interface {
	Mint(ctx context.Context, caller common.Address, params MintParams) (MintResult, error)
	IncreaseLiquidity(ctx context.Context, caller common.Address, params IncreaseParams) (liquidity, amount0, amount1 *uint256.Int, err error)
	DecreaseLiquidity(ctx context.Context, caller common.Address, params DecreaseParams) (amount0, amount1 *uint256.Int, err error)
	Collect(ctx context.Context, caller common.Address, params CollectParams) (amount0, amount1 *uint256.Int, err error)
	Burn(ctx context.Context, caller common.Address, receiptID uint64) error
	Position(ctx context.Context, receiptID uint64) (Receipt, error)
}

// SwapParams describes an exact-input single-pool swap.
type SwapParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32
	Recipient        common.Address
	AmountIn         *uint256.Int
	AmountOutMinimum *uint256.Int
}

// SwapRouter executes swaps against a single pool.
type SwapRouter interface {
	ExactInputSingle(ctx context.Context, caller common.Address, params SwapParams) (*uint256.Int, error)
}

// PriceOracle returns USD per whole token with 6 decimals.
type PriceOracle interface {
	USDPrice(ctx context.Context, token common.Address) (*uint256.Int, error)
}

// TokenInfo exposes token metadata.
type TokenInfo interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// TokenTransferer moves and reports token balances.
type TokenTransferer interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, token, holder common.Address) (*uint256.Int, error)
}

// Venue bundles every collaborator an operation may need.
type Venue interface {
	Factory
	PoolReader
	PositionManager
	SwapRouter
	PriceOracle
	TokenInfo
	TokenTransferer
}
