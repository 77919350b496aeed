// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import (
	"fmt"

	"github.com/holiman/uint256"
)

// quoteAtSqrtRatio converts baseAmount through sqrtPriceX96 the way the
// venue's oracle library does: square in Q192 while it fits, otherwise
// narrow to Q128 first.
func quoteAtSqrtRatio(sqrtPriceX96, baseAmount *uint256.Int, token0IsBase bool) (*uint256.Int, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return nil, ErrInvalidInput
	}
	if baseAmount.IsZero() {
		return new(uint256.Int), nil
	}

	if !sqrtPriceX96.Gt(MaxUint128) {
		ratioX192 := new(uint256.Int).Mul(sqrtPriceX96, sqrtPriceX96)
		if token0IsBase {
			return MulDiv(ratioX192, baseAmount, Q192)
		}
		return MulDiv(Q192, baseAmount, ratioX192)
	}

	ratioX128, err := MulDiv(sqrtPriceX96, sqrtPriceX96, Q64)
	if err != nil {
		return nil, err
	}
	if token0IsBase {
		return MulDiv(ratioX128, baseAmount, Q128)
	}
	return MulDiv(Q128, baseAmount, ratioX128)
}

// GetQuoteAtTick returns the amount of quote token received for baseAmount
// of the base token at tick. baseAmount must fit in 128 bits.
func GetQuoteAtTick(tick int32, baseAmount *uint256.Int, token0IsBase bool) (*uint256.Int, error) {
	if baseAmount.Gt(MaxUint128) {
		return nil, fmt.Errorf("%w: base amount exceeds 128 bits", ErrArithmeticOverflow)
	}
	sqrtPriceX96, err := GetSqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	return quoteAtSqrtRatio(sqrtPriceX96, baseAmount, token0IsBase)
}

// PriceFromTick returns the price of one whole token0 expressed in raw
// token1 units, i.e. a fixed-point value with decimals1 decimals.
func PriceFromTick(tick int32, decimals0, decimals1 uint8) (*uint256.Int, error) {
	if decimals1 > MaxDecimals {
		return nil, fmt.Errorf("%w: decimals1 %d", ErrInvalidInput, decimals1)
	}
	base, err := Pow10(decimals0)
	if err != nil {
		return nil, fmt.Errorf("%w: decimals0 %d", ErrInvalidInput, decimals0)
	}
	return GetQuoteAtTick(tick, base, true)
}

// QuoteFromSqrtPrice converts a raw amountIn of one token into raw units of
// the other at sqrtPriceX96. Raw amounts already carry their token's
// decimals, so decimalsIn and decimalsOut are only range checked.
// Quoting token0 into token1 and back is the identity within rounding.
func QuoteFromSqrtPrice(sqrtPriceX96, amountIn *uint256.Int, decimalsIn, decimalsOut uint8, token0In bool) (*uint256.Int, error) {
	if decimalsIn > MaxDecimals || decimalsOut > MaxDecimals {
		return nil, fmt.Errorf("%w: decimals %d/%d", ErrInvalidInput, decimalsIn, decimalsOut)
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Lt(MinSqrtRatio) || sqrtPriceX96.Gt(MaxSqrtRatio) {
		return nil, ErrSqrtPriceOutOfRange
	}
	return quoteAtSqrtRatio(sqrtPriceX96, amountIn, token0In)
}
