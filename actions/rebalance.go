// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actions

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/ledger"
	"github.com/parsdao/lpengine/modules"
	"github.com/parsdao/lpengine/venue"
)

// RebalanceArgs moves a running position to a range around the current tick.
type RebalanceArgs struct {
	PositionID    uint64
	TickLowerDiff int32
	TickUpperDiff int32
}

// RebalanceResult describes the replacement receipt.
type RebalanceResult struct {
	ReceiptID uint64
	TickLower int32
	TickUpper int32
	Liquidity *uint256.Int
	Fee0      *uint256.Int
	Fee1      *uint256.Int
	Leftover0 *uint256.Int
	Leftover1 *uint256.Int
}

// rebalance exits the current receipt, swaps the proceeds and leftovers to
// the new range's ratio and mints a replacement receipt.
func (a *actions) rebalance(ctx context.Context, env *modules.Env, args RebalanceArgs) (RebalanceResult, error) {
	if args.TickLowerDiff >= args.TickUpperDiff {
		return RebalanceResult{}, fmt.Errorf("%w: tick diffs [%d, %d)", ledger.ErrInvalidInput, args.TickLowerDiff, args.TickUpperDiff)
	}
	pos, err := runningPosition(env, args.PositionID)
	if err != nil {
		return RebalanceResult{}, err
	}
	r, exit, err := a.exitReceipt(ctx, env, pos.ReceiptID)
	if err != nil {
		return RebalanceResult{}, err
	}
	poolAddr, err := a.Pools.GetPool(ctx, r.Token0, r.Token1, r.Fee)
	if err != nil {
		return RebalanceResult{}, err
	}
	lower, upper, err := a.Pools.ResolveTicks(ctx, poolAddr, r.Fee, args.TickLowerDiff, args.TickUpperDiff)
	if err != nil {
		return RebalanceResult{}, err
	}

	amount0 := new(uint256.Int).Add(exit.Collected0, orZero(pos.Amount0Leftover))
	amount1 := new(uint256.Int).Add(exit.Collected1, orZero(pos.Amount1Leftover))
	amount0, amount1, err = a.swapToRatio(ctx, env, r.Token0, r.Token1, r.Fee, poolAddr, lower, upper, amount0, amount1)
	if err != nil {
		return RebalanceResult{}, err
	}

	minted, err := a.Venue.Mint(ctx, env.Instance, venue.MintParams{
		Token0:         r.Token0,
		Token1:         r.Token1,
		Fee:            r.Fee,
		TickLower:      lower,
		TickUpper:      upper,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Recipient:      env.Instance,
	})
	if err != nil {
		return RebalanceResult{}, fmt.Errorf("mint: %w", err)
	}
	leftover0 := new(uint256.Int).Sub(amount0, minted.Amount0)
	leftover1 := new(uint256.Int).Sub(amount1, minted.Amount1)

	if err := env.Ledger.Rebalance(env.Caller, args.PositionID, ledger.RebalanceParams{
		NewReceiptID:  minted.ReceiptID,
		TickLowerDiff: args.TickLowerDiff,
		TickUpperDiff: args.TickUpperDiff,
		FeeCollected0: exit.Fee0,
		FeeCollected1: exit.Fee1,
		Leftover0:     leftover0,
		Leftover1:     leftover1,
	}); err != nil {
		return RebalanceResult{}, err
	}

	a.log.Info("rebalanced",
		zap.Uint64("position", args.PositionID),
		zap.Uint64("oldReceipt", pos.ReceiptID),
		zap.Uint64("receipt", minted.ReceiptID),
		zap.Int32("tickLower", lower),
		zap.Int32("tickUpper", upper),
	)
	return RebalanceResult{
		ReceiptID: minted.ReceiptID,
		TickLower: lower,
		TickUpper: upper,
		Liquidity: minted.Liquidity,
		Fee0:      exit.Fee0,
		Fee1:      exit.Fee1,
		Leftover0: leftover0,
		Leftover1: leftover1,
	}, nil
}
