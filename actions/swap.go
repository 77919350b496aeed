// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actions

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/ledger"
	"github.com/parsdao/lpengine/modules"
	"github.com/parsdao/lpengine/pool"
)

// SwapToRatioArgs rebalances instance-held balances of a pair toward the
// ratio a range around the current tick needs, without opening a position.
type SwapToRatioArgs struct {
	TokenA        common.Address
	TokenB        common.Address
	Fee           uint32
	AmountA       *uint256.Int
	AmountB       *uint256.Int
	TickLowerDiff int32
	TickUpperDiff int32
}

// SwapToRatioResult holds the balances after the swap in canonical order.
type SwapToRatioResult struct {
	Token0    common.Address
	Token1    common.Address
	TickLower int32
	TickUpper int32
	Amount0   *uint256.Int
	Amount1   *uint256.Int
}

func (a *actions) swapToPositionRatio(ctx context.Context, env *modules.Env, args SwapToRatioArgs) (SwapToRatioResult, error) {
	amountA, amountB := orZero(args.AmountA), orZero(args.AmountB)
	if amountA.IsZero() && amountB.IsZero() {
		return SwapToRatioResult{}, fmt.Errorf("%w: swap to ratio", ErrZeroAmount)
	}
	token0, token1, swapped := pool.ReorderTokens(args.TokenA, args.TokenB)
	if token0 == token1 {
		return SwapToRatioResult{}, fmt.Errorf("%w: identical tokens", ledger.ErrInvalidInput)
	}
	amount0, amount1 := amountA, amountB
	if swapped {
		amount0, amount1 = amountB, amountA
	}

	poolAddr, fee, err := a.resolvePool(ctx, token0, token1, args.Fee)
	if err != nil {
		return SwapToRatioResult{}, err
	}
	lower, upper, err := a.Pools.ResolveTicks(ctx, poolAddr, fee, args.TickLowerDiff, args.TickUpperDiff)
	if err != nil {
		return SwapToRatioResult{}, err
	}
	out0, out1, err := a.swapToRatio(ctx, env, token0, token1, fee, poolAddr, lower, upper, amount0, amount1)
	if err != nil {
		return SwapToRatioResult{}, err
	}
	return SwapToRatioResult{
		Token0:    token0,
		Token1:    token1,
		TickLower: lower,
		TickUpper: upper,
		Amount0:   out0,
		Amount1:   out1,
	}, nil
}

// ZapInArgs opens a position from a single instance-held token. When
// TokenIn is outside the pair it is first swapped into TokenA through the
// deepest TokenIn/TokenA pool.
type ZapInArgs struct {
	TokenIn          common.Address
	TokenA           common.Address
	TokenB           common.Address
	Fee              uint32
	AmountIn         *uint256.Int
	TickLowerDiff    int32
	TickUpperDiff    int32
	StrategyProvider common.Address
	StrategyID       ledger.StrategyID
}

func (a *actions) zapIn(ctx context.Context, env *modules.Env, args ZapInArgs) (DepositResult, error) {
	amountIn := orZero(args.AmountIn)
	if amountIn.IsZero() {
		return DepositResult{}, fmt.Errorf("%w: zap in", ErrZeroAmount)
	}
	if args.TickLowerDiff >= args.TickUpperDiff {
		return DepositResult{}, fmt.Errorf("%w: tick diffs [%d, %d)", ledger.ErrInvalidInput, args.TickLowerDiff, args.TickUpperDiff)
	}
	token0, token1, _ := pool.ReorderTokens(args.TokenA, args.TokenB)
	if token0 == token1 {
		return DepositResult{}, fmt.Errorf("%w: identical tokens", ledger.ErrInvalidInput)
	}

	tokenIn := args.TokenIn
	if tokenIn != token0 && tokenIn != token1 {
		out, err := a.swapThroughDeepest(ctx, env, tokenIn, args.TokenA, amountIn)
		if err != nil {
			return DepositResult{}, err
		}
		tokenIn, amountIn = args.TokenA, out
	}

	amount0, amount1 := amountIn, new(uint256.Int)
	if tokenIn == token1 {
		amount0, amount1 = new(uint256.Int), amountIn
	}
	poolAddr, fee, err := a.resolvePool(ctx, token0, token1, args.Fee)
	if err != nil {
		return DepositResult{}, err
	}

	res, err := a.open(ctx, env, openParams{
		token0:           token0,
		token1:           token1,
		fee:              fee,
		pool:             poolAddr,
		amount0:          amount0,
		amount1:          amount1,
		tickLowerDiff:    args.TickLowerDiff,
		tickUpperDiff:    args.TickUpperDiff,
		strategyProvider: args.StrategyProvider,
		strategyID:       args.StrategyID,
		swapToRatio:      true,
	})
	if err != nil {
		return DepositResult{}, err
	}
	a.log.Info("zapped in",
		zap.Uint64("position", res.PositionID),
		zap.String("tokenIn", args.TokenIn.Hex()),
		zap.String("amountIn", orZero(args.AmountIn).Dec()),
	)
	return res, nil
}

// swapThroughDeepest swaps amountIn of tokenIn into tokenOut through the
// deepest pool of the pair.
func (a *actions) swapThroughDeepest(ctx context.Context, env *modules.Env, tokenIn, tokenOut common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	poolAddr, fee, err := a.Pools.FindDeepestPool(ctx, tokenIn, tokenOut, a.feeTiers())
	if err != nil {
		return nil, err
	}
	slot0, err := a.Venue.Slot0(ctx, poolAddr)
	if err != nil {
		return nil, err
	}
	token0, _, _ := pool.ReorderTokens(tokenIn, tokenOut)
	return a.swap(ctx, env, tokenIn, tokenOut, fee, slot0.SqrtPriceX96, amountIn, tokenIn == token0)
}
