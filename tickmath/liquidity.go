// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import "github.com/holiman/uint256"

func sortSqrt(a, b *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if a.Gt(b) {
		a, b = b, a
	}
	if a.IsZero() || a.Eq(b) {
		return nil, nil, ErrInvalidInput
	}
	return a, b, nil
}

// GetLiquidityForAmount0 returns the liquidity received for amount0 across [sqrtA, sqrtB].
func GetLiquidityForAmount0(sqrtA, sqrtB, amount0 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB, err := sortSqrt(sqrtA, sqrtB)
	if err != nil {
		return nil, err
	}
	intermediate, err := MulDiv(sqrtA, sqrtB, Q96)
	if err != nil {
		return nil, err
	}
	l, err := MulDiv(amount0, intermediate, new(uint256.Int).Sub(sqrtB, sqrtA))
	if err != nil {
		return nil, err
	}
	return toUint128(l)
}

// GetLiquidityForAmount1 returns the liquidity received for amount1 across [sqrtA, sqrtB].
func GetLiquidityForAmount1(sqrtA, sqrtB, amount1 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB, err := sortSqrt(sqrtA, sqrtB)
	if err != nil {
		return nil, err
	}
	l, err := MulDiv(amount1, Q96, new(uint256.Int).Sub(sqrtB, sqrtA))
	if err != nil {
		return nil, err
	}
	return toUint128(l)
}

// GetLiquidityForAmounts returns the maximum liquidity obtainable from
// amount0 and amount1 at the current price for the range [sqrtA, sqrtB].
func GetLiquidityForAmounts(sqrtPriceX96, sqrtA, sqrtB, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB, err := sortSqrt(sqrtA, sqrtB)
	if err != nil {
		return nil, err
	}

	switch {
	case !sqrtPriceX96.Gt(sqrtA):
		return GetLiquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtPriceX96.Lt(sqrtB):
		l0, err := GetLiquidityForAmount0(sqrtPriceX96, sqrtB, amount0)
		if err != nil {
			return nil, err
		}
		l1, err := GetLiquidityForAmount1(sqrtA, sqrtPriceX96, amount1)
		if err != nil {
			return nil, err
		}
		if l0.Lt(l1) {
			return l0, nil
		}
		return l1, nil
	default:
		return GetLiquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

// GetAmount0ForLiquidity returns the token0 value of liquidity across [sqrtA, sqrtB], rounded down.
func GetAmount0ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, error) {
	return GetAmount0Delta(sqrtA, sqrtB, liquidity, false)
}

// GetAmount1ForLiquidity returns the token1 value of liquidity across [sqrtA, sqrtB], rounded down.
func GetAmount1ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, error) {
	return GetAmount1Delta(sqrtA, sqrtB, liquidity, false)
}

// GetAmountsForLiquidity returns the token amounts held by liquidity at the current price.
func GetAmountsForLiquidity(sqrtPriceX96, sqrtA, sqrtB, liquidity *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	sqrtA, sqrtB, err = sortSqrt(sqrtA, sqrtB)
	if err != nil {
		return nil, nil, err
	}

	amount0, amount1 = new(uint256.Int), new(uint256.Int)
	switch {
	case !sqrtPriceX96.Gt(sqrtA):
		amount0, err = GetAmount0ForLiquidity(sqrtA, sqrtB, liquidity)
	case sqrtPriceX96.Lt(sqrtB):
		amount0, err = GetAmount0ForLiquidity(sqrtPriceX96, sqrtB, liquidity)
		if err == nil {
			amount1, err = GetAmount1ForLiquidity(sqrtA, sqrtPriceX96, liquidity)
		}
	default:
		amount1, err = GetAmount1ForLiquidity(sqrtA, sqrtB, liquidity)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// GetAmount0Delta returns liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB).
func GetAmount0Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return nil, ErrInvalidInput
	}
	if liquidity.Gt(MaxUint128) {
		return nil, ErrArithmeticOverflow
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtB, sqrtA)

	if roundUp {
		v, err := MulDivRoundingUp(numerator1, numerator2, sqrtB)
		if err != nil {
			return nil, err
		}
		return divRoundingUp(v, sqrtA), nil
	}
	v, err := MulDiv(numerator1, numerator2, sqrtB)
	if err != nil {
		return nil, err
	}
	return v.Div(v, sqrtA), nil
}

// GetAmount1Delta returns liquidity * (sqrtB - sqrtA).
func GetAmount1Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(uint256.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}

// GetNextSqrtPriceFromInput returns the sqrt price after adding amountIn of
// the input token to a single range holding liquidity.
func GetNextSqrtPriceFromInput(sqrtPriceX96, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPriceX96.IsZero() || liquidity.IsZero() {
		return nil, ErrInvalidInput
	}
	if liquidity.Gt(MaxUint128) {
		return nil, ErrArithmeticOverflow
	}
	if amountIn.IsZero() {
		return sqrtPriceX96.Clone(), nil
	}

	if zeroForOne {
		// L * sqrtP / (L + amountIn * sqrtP / Q96), rounded up
		numerator1 := new(uint256.Int).Lsh(liquidity, 96)
		product, overflow := new(uint256.Int).MulOverflow(amountIn, sqrtPriceX96)
		if !overflow {
			denominator, overflow := new(uint256.Int).AddOverflow(numerator1, product)
			if !overflow {
				return MulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
			}
		}
		q := new(uint256.Int).Div(numerator1, sqrtPriceX96)
		q, overflow = q.AddOverflow(q, amountIn)
		if overflow {
			return nil, ErrArithmeticOverflow
		}
		return divRoundingUp(numerator1, q), nil
	}

	// sqrtP + amountIn * Q96 / L, rounded down
	quotient, err := MulDiv(amountIn, Q96, liquidity)
	if err != nil {
		return nil, err
	}
	next, overflow := new(uint256.Int).AddOverflow(sqrtPriceX96, quotient)
	if overflow || !next.Lt(MaxSqrtRatio) {
		return nil, ErrSqrtPriceOutOfRange
	}
	return next, nil
}
