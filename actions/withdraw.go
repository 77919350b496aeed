// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actions

import (
	"context"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/ledger"
	"github.com/parsdao/lpengine/modules"
	"github.com/parsdao/lpengine/venue"
)

// WithdrawArgs closes a running position.
type WithdrawArgs struct {
	PositionID uint64
}

// WithdrawResult reports what was paid to the owner.
type WithdrawResult struct {
	Fee0        *uint256.Int
	Fee1        *uint256.Int
	Returned0   *uint256.Int
	Returned1   *uint256.Int
	ReturnedUSD *uint256.Int
}

// withdraw exits the receipt and pays everything it held, plus the
// position's leftovers, to the owner.
func (a *actions) withdraw(ctx context.Context, env *modules.Env, args WithdrawArgs) (WithdrawResult, error) {
	pos, err := runningPosition(env, args.PositionID)
	if err != nil {
		return WithdrawResult{}, err
	}
	r, exit, err := a.exitReceipt(ctx, env, pos.ReceiptID)
	if err != nil {
		return WithdrawResult{}, err
	}

	returned0 := new(uint256.Int).Add(exit.Collected0, orZero(pos.Amount0Leftover))
	returned1 := new(uint256.Int).Add(exit.Collected1, orZero(pos.Amount1Leftover))
	if err := a.payOwner(ctx, env, r.Token0, returned0); err != nil {
		return WithdrawResult{}, err
	}
	if err := a.payOwner(ctx, env, r.Token1, returned1); err != nil {
		return WithdrawResult{}, err
	}

	usd0, err := a.usdValue(ctx, r.Token0, returned0)
	if err != nil {
		return WithdrawResult{}, err
	}
	usd1, err := a.usdValue(ctx, r.Token1, returned1)
	if err != nil {
		return WithdrawResult{}, err
	}

	if err := env.Ledger.Close(env.Caller, args.PositionID, ledger.CloseParams{
		FeeCollected0: exit.Fee0,
		FeeCollected1: exit.Fee1,
		Returned0:     returned0,
		Returned1:     returned1,
		ReturnedUSD0:  usd0,
		ReturnedUSD1:  usd1,
	}); err != nil {
		return WithdrawResult{}, err
	}

	total := new(uint256.Int).Add(usd0, usd1)
	a.log.Info("withdrawn",
		zap.Uint64("position", args.PositionID),
		zap.Uint64("receipt", pos.ReceiptID),
		zap.String("returned0", returned0.Dec()),
		zap.String("returned1", returned1.Dec()),
		zap.String("returnedUSD", total.Dec()),
	)
	return WithdrawResult{
		Fee0:        exit.Fee0,
		Fee1:        exit.Fee1,
		Returned0:   returned0,
		Returned1:   returned1,
		ReturnedUSD: total,
	}, nil
}

// ReturnProfitArgs pays a running position's accrued fees to the owner.
type ReturnProfitArgs struct {
	PositionID uint64
}

// ReturnProfitResult reports the fees paid.
type ReturnProfitResult struct {
	Fee0 *uint256.Int
	Fee1 *uint256.Int
}

// returnProfit collects the receipt's owed fees without touching its
// liquidity and forwards them to the owner.
func (a *actions) returnProfit(ctx context.Context, env *modules.Env, args ReturnProfitArgs) (ReturnProfitResult, error) {
	pos, err := runningPosition(env, args.PositionID)
	if err != nil {
		return ReturnProfitResult{}, err
	}
	r, err := a.Venue.Position(ctx, pos.ReceiptID)
	if err != nil {
		return ReturnProfitResult{}, err
	}
	fee0, fee1, err := a.Venue.Collect(ctx, env.Instance, venue.CollectParams{
		ReceiptID: pos.ReceiptID,
		Recipient: env.Instance,
	})
	if err != nil {
		return ReturnProfitResult{}, err
	}
	if err := a.payOwner(ctx, env, r.Token0, fee0); err != nil {
		return ReturnProfitResult{}, err
	}
	if err := a.payOwner(ctx, env, r.Token1, fee1); err != nil {
		return ReturnProfitResult{}, err
	}

	if err := env.Ledger.CollectFees(env.Caller, args.PositionID, fee0, fee1, pos.Amount0Leftover, pos.Amount1Leftover); err != nil {
		return ReturnProfitResult{}, err
	}
	a.log.Info("profit returned",
		zap.Uint64("position", args.PositionID),
		zap.String("fee0", fee0.Dec()),
		zap.String("fee1", fee1.Dec()),
	)
	return ReturnProfitResult{Fee0: fee0, Fee1: fee1}, nil
}
