// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import "github.com/holiman/uint256"

// MulDiv computes floor(a*b/denominator) with a 512-bit intermediate.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// MulDivRoundingUp computes ceil(a*b/denominator).
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(a, b, denominator).IsZero() {
		if z.Eq(MaxUint256) {
			return nil, ErrArithmeticOverflow
		}
		z.AddUint64(z, 1)
	}
	return z, nil
}

// divRoundingUp returns ceil(x/y); y must be non-zero.
func divRoundingUp(x, y *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(x, y, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// toUint128 narrows v, failing if it does not fit.
func toUint128(v *uint256.Int) (*uint256.Int, error) {
	if v.Gt(MaxUint128) {
		return nil, ErrArithmeticOverflow
	}
	return v, nil
}

// Pow10 returns 10^n for n <= MaxDecimals.
func Pow10(n uint8) (*uint256.Int, error) {
	if n > MaxDecimals {
		return nil, ErrInvalidInput
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n))), nil
}
