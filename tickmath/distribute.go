// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// CalcAmountToSwap returns the single-sided swap that brings amount0 and
// amount1 into the ratio demanded by [tickLower, tickUpper] at the current
// price. Below the range the whole of amount1 is surplus; at or above the
// upper tick the whole of amount0 is. Price impact and swap fees are ignored.
func CalcAmountToSwap(
	sqrtPriceX96 *uint256.Int,
	tickLower, tickUpper, tickCurrent int32,
	amount0, amount1 *uint256.Int,
) (*uint256.Int, bool, error) {
	if amount0.IsZero() && amount1.IsZero() {
		return nil, false, fmt.Errorf("%w: both amounts are zero", ErrInvalidInput)
	}
	if tickLower >= tickUpper {
		return nil, false, fmt.Errorf("%w: tick range [%d, %d)", ErrInvalidInput, tickLower, tickUpper)
	}

	if tickCurrent < tickLower {
		return amount1.Clone(), false, nil
	}
	if tickCurrent >= tickUpper {
		return amount0.Clone(), true, nil
	}

	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return nil, false, fmt.Errorf("%w: zero sqrt price", ErrInvalidInput)
	}
	sqrtLowerX96, err := GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, false, err
	}
	sqrtUpperX96, err := GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, false, err
	}
	if !sqrtPriceX96.Lt(sqrtUpperX96) {
		return amount0.Clone(), true, nil
	}

	q96 := Q96.ToBig()
	sqrtP := new(big.Rat).SetFrac(sqrtPriceX96.ToBig(), q96)
	sqrtL := new(big.Rat).SetFrac(sqrtLowerX96.ToBig(), q96)
	sqrtU := new(big.Rat).SetFrac(sqrtUpperX96.ToBig(), q96)
	if sqrtP.Cmp(sqrtL) < 0 {
		sqrtP = sqrtL
	}

	// token amounts held by one unit of liquidity
	per0 := new(big.Rat).Sub(new(big.Rat).Inv(sqrtP), new(big.Rat).Inv(sqrtU))
	per1 := new(big.Rat).Sub(sqrtP, sqrtL)

	// ratio of token1 to token0 demanded by the range, and spot price
	need := new(big.Rat).Quo(per1, per0)
	price := new(big.Rat).Mul(sqrtP, sqrtP)

	a0 := new(big.Rat).SetInt(amount0.ToBig())
	a1 := new(big.Rat).SetInt(amount1.ToBig())

	// value in token1 units, then the token0 share that satisfies the ratio
	value := new(big.Rat).Add(new(big.Rat).Mul(a0, price), a1)
	target0 := new(big.Rat).Quo(value, new(big.Rat).Add(price, need))

	if a0.Cmp(target0) > 0 {
		out, err := ratToUint256(new(big.Rat).Sub(a0, target0))
		return out, true, err
	}
	target1 := new(big.Rat).Mul(target0, need)
	if a1.Cmp(target1) <= 0 {
		return new(uint256.Int), false, nil
	}
	out, err := ratToUint256(new(big.Rat).Sub(a1, target1))
	return out, false, err
}

// DistributeTargetAmount splits targetUSD across the two balances in
// proportion to the reference value each holds. Prices are USD per whole
// token with USDDecimals decimals. Neither output exceeds its input, and when
// targetUSD covers the full value both inputs are returned unchanged.
func DistributeTargetAmount(
	decimals0, decimals1 uint8,
	amount0, amount1 *uint256.Int,
	price0USD, price1USD *uint256.Int,
	targetUSD *uint256.Int,
) (*uint256.Int, *uint256.Int, error) {
	if price0USD.IsZero() || price1USD.IsZero() {
		return nil, nil, fmt.Errorf("%w: zero price", ErrInvalidInput)
	}

	value0, err := USDValue(amount0, decimals0, price0USD)
	if err != nil {
		return nil, nil, err
	}
	value1, err := USDValue(amount1, decimals1, price1USD)
	if err != nil {
		return nil, nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(value0, value1)
	if overflow {
		return nil, nil, ErrArithmeticOverflow
	}

	if total.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	if !targetUSD.Lt(total) {
		return amount0.Clone(), amount1.Clone(), nil
	}

	// Each side gives up the same fraction target/total of its balance
	out0, err := MulDiv(amount0, targetUSD, total)
	if err != nil {
		return nil, nil, err
	}
	out1, err := MulDiv(amount1, targetUSD, total)
	if err != nil {
		return nil, nil, err
	}
	return out0, out1, nil
}

// USDValue returns amount * priceUSD / 10^decimals.
func USDValue(amount *uint256.Int, decimals uint8, priceUSD *uint256.Int) (*uint256.Int, error) {
	scale, err := Pow10(decimals)
	if err != nil {
		return nil, err
	}
	return MulDiv(amount, priceUSD, scale)
}

func ratToUint256(r *big.Rat) (*uint256.Int, error) {
	if r.Sign() < 0 {
		return nil, ErrInvalidInput
	}
	floor := new(big.Int).Quo(r.Num(), r.Denom())
	v, overflow := uint256.FromBig(floor)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return v, nil
}
