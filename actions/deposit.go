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
	"github.com/parsdao/lpengine/tickmath"
	"github.com/parsdao/lpengine/venue"
)

// DepositArgs opens a position from tokens already held by the instance.
// The pair may be given in either order. A zero Fee picks the deepest pool.
type DepositArgs struct {
	TokenA           common.Address
	TokenB           common.Address
	Fee              uint32
	AmountA          *uint256.Int
	AmountB          *uint256.Int
	TickLowerDiff    int32
	TickUpperDiff    int32
	StrategyProvider common.Address
	StrategyID       ledger.StrategyID
}

// DepositResult describes the opened position. Amounts are in canonical
// token order.
type DepositResult struct {
	PositionID uint64
	ReceiptID  uint64
	Pool       common.Address
	Fee        uint32
	TickLower  int32
	TickUpper  int32
	Liquidity  *uint256.Int
	Amount0    *uint256.Int
	Amount1    *uint256.Int
	Leftover0  *uint256.Int
	Leftover1  *uint256.Int
	DepositUSD *uint256.Int
}

func (a *actions) deposit(ctx context.Context, env *modules.Env, args DepositArgs) (DepositResult, error) {
	amountA, amountB := orZero(args.AmountA), orZero(args.AmountB)
	if amountA.IsZero() && amountB.IsZero() {
		return DepositResult{}, fmt.Errorf("%w: deposit", ErrZeroAmount)
	}
	if args.TickLowerDiff >= args.TickUpperDiff {
		return DepositResult{}, fmt.Errorf("%w: tick diffs [%d, %d)", ledger.ErrInvalidInput, args.TickLowerDiff, args.TickUpperDiff)
	}
	token0, token1, swapped := pool.ReorderTokens(args.TokenA, args.TokenB)
	if token0 == token1 {
		return DepositResult{}, fmt.Errorf("%w: identical tokens", ledger.ErrInvalidInput)
	}
	amount0, amount1 := amountA, amountB
	if swapped {
		amount0, amount1 = amountB, amountA
	}

	poolAddr, fee, err := a.resolvePool(ctx, token0, token1, args.Fee)
	if err != nil {
		return DepositResult{}, err
	}
	return a.open(ctx, env, openParams{
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
	})
}

type openParams struct {
	token0, token1   common.Address
	fee              uint32
	pool             common.Address
	amount0, amount1 *uint256.Int
	tickLowerDiff    int32
	tickUpperDiff    int32
	strategyProvider common.Address
	strategyID       ledger.StrategyID
	swapToRatio      bool
}

// open mints a receipt for the instance and records the position.
func (a *actions) open(ctx context.Context, env *modules.Env, p openParams) (DepositResult, error) {
	lower, upper, err := a.Pools.ResolveTicks(ctx, p.pool, p.fee, p.tickLowerDiff, p.tickUpperDiff)
	if err != nil {
		return DepositResult{}, err
	}

	amount0, amount1 := p.amount0, p.amount1
	if p.swapToRatio {
		amount0, amount1, err = a.swapToRatio(ctx, env, p.token0, p.token1, p.fee, p.pool, lower, upper, amount0, amount1)
		if err != nil {
			return DepositResult{}, err
		}
	}

	minted, err := a.Venue.Mint(ctx, env.Instance, venue.MintParams{
		Token0:         p.token0,
		Token1:         p.token1,
		Fee:            p.fee,
		TickLower:      lower,
		TickUpper:      upper,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Recipient:      env.Instance,
	})
	if err != nil {
		return DepositResult{}, fmt.Errorf("mint: %w", err)
	}

	leftover0 := new(uint256.Int).Sub(amount0, minted.Amount0)
	leftover1 := new(uint256.Int).Sub(amount1, minted.Amount1)
	depositUSD, err := a.pairUSD(ctx, p.token0, p.token1, minted.Amount0, minted.Amount1)
	if err != nil {
		return DepositResult{}, err
	}

	id, err := env.Ledger.CreatePosition(env.Caller, ledger.CreateParams{
		ReceiptID:        minted.ReceiptID,
		StrategyProvider: p.strategyProvider,
		StrategyID:       p.strategyID,
		TotalDepositUSD:  depositUSD,
		TickLowerDiff:    p.tickLowerDiff,
		TickUpperDiff:    p.tickUpperDiff,
		Leftover0:        leftover0,
		Leftover1:        leftover1,
	})
	if err != nil {
		return DepositResult{}, err
	}

	a.log.Info("deposited",
		zap.Uint64("position", id),
		zap.Uint64("receipt", minted.ReceiptID),
		zap.String("pool", p.pool.Hex()),
		zap.Int32("tickLower", lower),
		zap.Int32("tickUpper", upper),
		zap.String("depositUSD", depositUSD.Dec()),
	)
	return DepositResult{
		PositionID: id,
		ReceiptID:  minted.ReceiptID,
		Pool:       p.pool,
		Fee:        p.fee,
		TickLower:  lower,
		TickUpper:  upper,
		Liquidity:  minted.Liquidity,
		Amount0:    minted.Amount0,
		Amount1:    minted.Amount1,
		Leftover0:  leftover0,
		Leftover1:  leftover1,
		DepositUSD: depositUSD,
	}, nil
}

// IncreaseArgs adds instance-held tokens to a running position, in the
// position's canonical token order.
type IncreaseArgs struct {
	PositionID uint64
	Amount0    *uint256.Int
	Amount1    *uint256.Int
}

// IncreaseResult reports the added liquidity and the new deposit total.
type IncreaseResult struct {
	Liquidity  *uint256.Int
	Amount0    *uint256.Int
	Amount1    *uint256.Int
	Leftover0  *uint256.Int
	Leftover1  *uint256.Int
	DepositUSD *uint256.Int
}

// increaseLiquidity adds to the position's receipt. The ledger replaces the
// deposit total, so the new total is computed here as the previous total
// plus the value just added.
func (a *actions) increaseLiquidity(ctx context.Context, env *modules.Env, args IncreaseArgs) (IncreaseResult, error) {
	amount0, amount1 := orZero(args.Amount0), orZero(args.Amount1)
	if amount0.IsZero() && amount1.IsZero() {
		return IncreaseResult{}, fmt.Errorf("%w: increase", ErrZeroAmount)
	}
	pos, err := runningPosition(env, args.PositionID)
	if err != nil {
		return IncreaseResult{}, err
	}
	r, err := a.Venue.Position(ctx, pos.ReceiptID)
	if err != nil {
		return IncreaseResult{}, err
	}

	liquidity, used0, used1, err := a.Venue.IncreaseLiquidity(ctx, env.Instance, venue.IncreaseParams{
		ReceiptID:      pos.ReceiptID,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
	})
	if err != nil {
		return IncreaseResult{}, fmt.Errorf("increase receipt %d: %w", pos.ReceiptID, err)
	}

	added, err := a.pairUSD(ctx, r.Token0, r.Token1, used0, used1)
	if err != nil {
		return IncreaseResult{}, err
	}
	total, overflow := new(uint256.Int).AddOverflow(pos.TotalDepositUSD, added)
	if overflow {
		return IncreaseResult{}, fmt.Errorf("%w: deposit total", tickmath.ErrArithmeticOverflow)
	}
	leftover0 := new(uint256.Int).Sub(amount0, used0)
	leftover1 := new(uint256.Int).Sub(amount1, used1)

	if err := env.Ledger.IncreaseLiquidity(env.Caller, args.PositionID, total, leftover0, leftover1); err != nil {
		return IncreaseResult{}, err
	}
	a.log.Info("liquidity increased",
		zap.Uint64("position", args.PositionID),
		zap.String("liquidity", liquidity.Dec()),
		zap.String("depositUSD", total.Dec()),
	)
	return IncreaseResult{
		Liquidity:  liquidity,
		Amount0:    used0,
		Amount1:    used1,
		Leftover0:  leftover0,
		Leftover1:  leftover1,
		DepositUSD: total,
	}, nil
}
