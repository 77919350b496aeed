// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package memvenue

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/parsdao/lpengine/tickmath"
	"github.com/parsdao/lpengine/venue"
)

// =========================================================================
// venue.PositionManager
// =========================================================================

// Mint opens a receipt owned by params.Recipient, pulling tokens from caller.
func (v *Venue) Mint(_ context.Context, caller common.Address, params venue.MintParams) (venue.MintResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !areTokensSorted(params.Token0, params.Token1) {
		return venue.MintResult{}, ErrCurrencyNotSorted
	}
	key := PoolKey{Token0: params.Token0, Token1: params.Token1, Fee: params.Fee}
	p, ok := v.pools[key.ID()]
	if !ok {
		return venue.MintResult{}, ErrPoolNotFound
	}
	if err := v.checkTicks(p, params.TickLower, params.TickUpper); err != nil {
		return venue.MintResult{}, err
	}

	liquidity, amount0, amount1, err := v.liquidityFor(p, params.TickLower, params.TickUpper,
		params.Amount0Desired, params.Amount1Desired, params.Amount0Min, params.Amount1Min)
	if err != nil {
		return venue.MintResult{}, err
	}
	if err := v.pull(p, caller, amount0, amount1); err != nil {
		return venue.MintResult{}, err
	}

	id := v.nextReceipt
	v.nextReceipt++
	v.receipts[id] = &venue.Receipt{
		ID:          id,
		Owner:       params.Recipient,
		Token0:      params.Token0,
		Token1:      params.Token1,
		Fee:         params.Fee,
		TickLower:   params.TickLower,
		TickUpper:   params.TickUpper,
		Liquidity:   liquidity,
		TokensOwed0: new(uint256.Int),
		TokensOwed1: new(uint256.Int),
	}
	return venue.MintResult{ReceiptID: id, Liquidity: liquidity.Clone(), Amount0: amount0, Amount1: amount1}, nil
}

// IncreaseLiquidity adds liquidity to a receipt the caller owns.
func (v *Venue) IncreaseLiquidity(_ context.Context, caller common.Address, params venue.IncreaseParams) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, p, err := v.ownedReceipt(caller, params.ReceiptID)
	if err != nil {
		return nil, nil, nil, err
	}
	liquidity, amount0, amount1, err := v.liquidityFor(p, r.TickLower, r.TickUpper,
		params.Amount0Desired, params.Amount1Desired, params.Amount0Min, params.Amount1Min)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := v.pull(p, caller, amount0, amount1); err != nil {
		return nil, nil, nil, err
	}
	r.Liquidity = new(uint256.Int).Add(r.Liquidity, liquidity)
	return liquidity, amount0, amount1, nil
}

// DecreaseLiquidity releases liquidity into the receipt's owed balances.
func (v *Venue) DecreaseLiquidity(_ context.Context, caller common.Address, params venue.DecreaseParams) (*uint256.Int, *uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, p, err := v.ownedReceipt(caller, params.ReceiptID)
	if err != nil {
		return nil, nil, err
	}
	if params.Liquidity == nil || params.Liquidity.Gt(r.Liquidity) {
		return nil, nil, ErrInsufficientLiquidity
	}
	if params.Liquidity.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}

	sqrtA, sqrtB, err := rangeSqrt(r.TickLower, r.TickUpper)
	if err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := tickmath.GetAmountsForLiquidity(p.SqrtPriceX96, sqrtA, sqrtB, params.Liquidity)
	if err != nil {
		return nil, nil, err
	}
	if belowMin(amount0, params.Amount0Min) || belowMin(amount1, params.Amount1Min) {
		return nil, nil, ErrSlippage
	}

	r.Liquidity = new(uint256.Int).Sub(r.Liquidity, params.Liquidity)
	r.TokensOwed0 = new(uint256.Int).Add(r.TokensOwed0, amount0)
	r.TokensOwed1 = new(uint256.Int).Add(r.TokensOwed1, amount1)
	return amount0, amount1, nil
}

// Collect transfers owed tokens to params.Recipient. A nil max collects everything.
func (v *Venue) Collect(_ context.Context, caller common.Address, params venue.CollectParams) (*uint256.Int, *uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, p, err := v.ownedReceipt(caller, params.ReceiptID)
	if err != nil {
		return nil, nil, err
	}
	amount0 := capAt(r.TokensOwed0, params.Amount0Max)
	amount1 := capAt(r.TokensOwed1, params.Amount1Max)

	pool := p.Key.Address()
	if v.balance(p.Key.Token0, pool).Lt(amount0) || v.balance(p.Key.Token1, pool).Lt(amount1) {
		return nil, nil, ErrInsufficientBalance
	}
	if err := v.move(p.Key.Token0, pool, params.Recipient, amount0); err != nil {
		return nil, nil, err
	}
	if err := v.move(p.Key.Token1, pool, params.Recipient, amount1); err != nil {
		return nil, nil, err
	}
	r.TokensOwed0 = new(uint256.Int).Sub(r.TokensOwed0, amount0)
	r.TokensOwed1 = new(uint256.Int).Sub(r.TokensOwed1, amount1)
	return amount0, amount1, nil
}

// Burn deletes an empty receipt.
func (v *Venue) Burn(_ context.Context, caller common.Address, receiptID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, _, err := v.ownedReceipt(caller, receiptID)
	if err != nil {
		return err
	}
	if !r.Liquidity.IsZero() || !r.TokensOwed0.IsZero() || !r.TokensOwed1.IsZero() {
		return ErrNotCleared
	}
	delete(v.receipts, receiptID)
	return nil
}

// Position returns a copy of the receipt.
func (v *Venue) Position(_ context.Context, receiptID uint64) (venue.Receipt, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	r, ok := v.receipts[receiptID]
	if !ok {
		return venue.Receipt{}, fmt.Errorf("%w: %d", ErrReceiptNotFound, receiptID)
	}
	out := *r
	out.Liquidity = r.Liquidity.Clone()
	out.TokensOwed0 = r.TokensOwed0.Clone()
	out.TokensOwed1 = r.TokensOwed1.Clone()
	return out, nil
}

// TransferReceipt hands a receipt to a new owner.
func (v *Venue) TransferReceipt(caller, to common.Address, receiptID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, _, err := v.ownedReceipt(caller, receiptID)
	if err != nil {
		return err
	}
	r.Owner = to
	return nil
}

// =========================================================================
// venue.SwapRouter
// =========================================================================

// ExactInputSingle swaps params.AmountIn of TokenIn held by caller. The fee
// is taken from the input and accrues to in-range receipts.
func (v *Venue) ExactInputSingle(_ context.Context, caller common.Address, params venue.SwapParams) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if params.AmountIn == nil || params.AmountIn.IsZero() {
		return nil, fmt.Errorf("%w: zero input", ErrInsufficientLiquidity)
	}
	zeroForOne := areTokensSorted(params.TokenIn, params.TokenOut)
	key := PoolKey{Token0: params.TokenIn, Token1: params.TokenOut, Fee: params.Fee}
	if !zeroForOne {
		key = PoolKey{Token0: params.TokenOut, Token1: params.TokenIn, Fee: params.Fee}
	}
	p, ok := v.pools[key.ID()]
	if !ok {
		return nil, ErrPoolNotFound
	}
	liquidity := v.activeLiquidity(p)
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	// fee rounded up, taken from the input
	feeAmount, err := tickmath.MulDivRoundingUp(params.AmountIn, uint256.NewInt(uint64(p.Key.Fee)), feeDenominator)
	if err != nil {
		return nil, err
	}
	amountInLessFee := new(uint256.Int).Sub(params.AmountIn, feeAmount)

	next, err := tickmath.GetNextSqrtPriceFromInput(p.SqrtPriceX96, liquidity, amountInLessFee, zeroForOne)
	if err != nil {
		return nil, err
	}
	if next.Lt(tickmath.MinSqrtRatio) {
		return nil, ErrInsufficientLiquidity
	}
	var amountOut *uint256.Int
	if zeroForOne {
		amountOut, err = tickmath.GetAmount1Delta(next, p.SqrtPriceX96, liquidity, false)
	} else {
		amountOut, err = tickmath.GetAmount0Delta(p.SqrtPriceX96, next, liquidity, false)
	}
	if err != nil {
		return nil, err
	}
	if belowMin(amountOut, params.AmountOutMinimum) {
		return nil, ErrSlippage
	}
	nextTick, err := tickmath.GetTickAtSqrtRatio(next)
	if err != nil {
		return nil, err
	}

	pool := p.Key.Address()
	if v.balance(params.TokenIn, caller).Lt(params.AmountIn) {
		return nil, ErrInsufficientBalance
	}
	if v.balance(params.TokenOut, pool).Lt(amountOut) {
		return nil, ErrInsufficientLiquidity
	}
	if err := v.move(params.TokenIn, caller, pool, params.AmountIn); err != nil {
		return nil, err
	}
	if err := v.move(params.TokenOut, pool, params.Recipient, amountOut); err != nil {
		return nil, err
	}

	if zeroForOne {
		v.accrueFees(p, liquidity, feeAmount, nil)
	} else {
		v.accrueFees(p, liquidity, nil, feeAmount)
	}
	p.SqrtPriceX96 = next
	p.Tick = nextTick
	return amountOut, nil
}

// =========================================================================
// Internal helpers
// =========================================================================

func (v *Venue) checkTicks(p *Pool, lower, upper int32) error {
	spacing := v.spacings[p.Key.Fee]
	if lower >= upper || lower < tickmath.MinTick || upper > tickmath.MaxTick {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidTickRange, lower, upper)
	}
	if lower%spacing != 0 || upper%spacing != 0 {
		return fmt.Errorf("%w: [%d, %d) not aligned to %d", ErrInvalidTickRange, lower, upper, spacing)
	}
	return nil
}

func rangeSqrt(lower, upper int32) (*uint256.Int, *uint256.Int, error) {
	sqrtA, err := tickmath.GetSqrtRatioAtTick(lower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := tickmath.GetSqrtRatioAtTick(upper)
	if err != nil {
		return nil, nil, err
	}
	return sqrtA, sqrtB, nil
}

// liquidityFor sizes liquidity from desired amounts and returns the amounts consumed.
func (v *Venue) liquidityFor(p *Pool, lower, upper int32, desired0, desired1, min0, min1 *uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	sqrtA, sqrtB, err := rangeSqrt(lower, upper)
	if err != nil {
		return nil, nil, nil, err
	}
	liquidity, err := tickmath.GetLiquidityForAmounts(p.SqrtPriceX96, sqrtA, sqrtB, orZero(desired0), orZero(desired1))
	if err != nil {
		return nil, nil, nil, err
	}
	if liquidity.IsZero() {
		return nil, nil, nil, fmt.Errorf("%w: zero liquidity", ErrInsufficientLiquidity)
	}
	amount0, amount1, err := tickmath.GetAmountsForLiquidity(p.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	if err != nil {
		return nil, nil, nil, err
	}
	if belowMin(amount0, min0) || belowMin(amount1, min1) {
		return nil, nil, nil, ErrSlippage
	}
	return liquidity, amount0, amount1, nil
}

func (v *Venue) pull(p *Pool, from common.Address, amount0, amount1 *uint256.Int) error {
	if v.balance(p.Key.Token0, from).Lt(amount0) || v.balance(p.Key.Token1, from).Lt(amount1) {
		return ErrInsufficientBalance
	}
	pool := p.Key.Address()
	if err := v.move(p.Key.Token0, from, pool, amount0); err != nil {
		return err
	}
	return v.move(p.Key.Token1, from, pool, amount1)
}

func (v *Venue) ownedReceipt(caller common.Address, id uint64) (*venue.Receipt, *Pool, error) {
	r, ok := v.receipts[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrReceiptNotFound, id)
	}
	if r.Owner != caller {
		return nil, nil, ErrNotOwner
	}
	key := PoolKey{Token0: r.Token0, Token1: r.Token1, Fee: r.Fee}
	p, ok := v.pools[key.ID()]
	if !ok {
		return nil, nil, ErrPoolNotFound
	}
	return r, p, nil
}

func belowMin(amount, minimum *uint256.Int) bool {
	return minimum != nil && amount.Lt(minimum)
}

func capAt(owed, limit *uint256.Int) *uint256.Int {
	if limit != nil && limit.Lt(owed) {
		return limit.Clone()
	}
	return owed.Clone()
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}
