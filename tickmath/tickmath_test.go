// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

func TestGetSqrtRatioAtTick(t *testing.T) {
	tests := []struct {
		name string
		tick int32
		want string
	}{
		{"zero", 0, "79228162514264337593543950336"},
		{"one", 1, "79232123823359799118286999568"},
		{"minus one", -1, "79224201403219477170569942574"},
		{"hundred", 100, "79625275426524748796330556128"},
		{"minus hundred", -100, "78833030112140176575862854579"},
		{"usdc weth", -276325, "79224306130848112672356"},
		{"min tick", MinTick, "4295128739"},
		{"max tick", MaxTick, "1461446703485210103287273052203988822378723970342"},
		{"max tick minus one", MaxTick - 1, "1461373636630004318706518188784493106690254656249"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetSqrtRatioAtTick(tt.tick)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Dec())
		})
	}
}

func TestGetSqrtRatioAtTickOutOfRange(t *testing.T) {
	for _, tick := range []int32{MinTick - 1, MaxTick + 1} {
		_, err := GetSqrtRatioAtTick(tick)
		require.ErrorIs(t, err, ErrTickOutOfRange)
	}
}

func TestGetTickAtSqrtRatio(t *testing.T) {
	tick, err := GetTickAtSqrtRatio(Q96)
	require.NoError(t, err)
	require.Equal(t, int32(0), tick)

	tick, err = GetTickAtSqrtRatio(MinSqrtRatio)
	require.NoError(t, err)
	require.Equal(t, MinTick, tick)

	tick, err = GetTickAtSqrtRatio(new(uint256.Int).SubUint64(MaxSqrtRatio, 1))
	require.NoError(t, err)
	require.Equal(t, MaxTick-1, tick)

	_, err = GetTickAtSqrtRatio(MaxSqrtRatio)
	require.ErrorIs(t, err, ErrSqrtPriceOutOfRange)
	_, err = GetTickAtSqrtRatio(new(uint256.Int).SubUint64(MinSqrtRatio, 1))
	require.ErrorIs(t, err, ErrSqrtPriceOutOfRange)
}

func TestTickRoundTrip(t *testing.T) {
	for _, tick := range []int32{MinTick, -276325, -60, -1, 0, 1, 60, 23027, 200000, MaxTick - 1} {
		sqrt, err := GetSqrtRatioAtTick(tick)
		require.NoError(t, err)
		got, err := GetTickAtSqrtRatio(sqrt)
		require.NoError(t, err)
		require.Equal(t, tick, got)

		// one below the boundary belongs to the previous tick
		if tick > MinTick {
			got, err = GetTickAtSqrtRatio(new(uint256.Int).SubUint64(sqrt, 1))
			require.NoError(t, err)
			require.Equal(t, tick-1, got)
		}
	}
}

func TestMulDiv(t *testing.T) {
	got, err := MulDiv(uint256.NewInt(15), uint256.NewInt(1), uint256.NewInt(2))
	require.NoError(t, err)
	require.Equal(t, uint64(7), got.Uint64())

	got, err = MulDivRoundingUp(uint256.NewInt(15), uint256.NewInt(1), uint256.NewInt(2))
	require.NoError(t, err)
	require.Equal(t, uint64(8), got.Uint64())

	// 512-bit intermediate
	got, err = MulDiv(MaxUint256, MaxUint256, MaxUint256)
	require.NoError(t, err)
	require.True(t, got.Eq(MaxUint256))

	_, err = MulDiv(MaxUint256, MaxUint256, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
	require.ErrorIs(t, err, ErrDivisionByZero)

	_, err = MulDivRoundingUp(MaxUint256, uint256.NewInt(2), uint256.NewInt(2))
	require.NoError(t, err)
}

func TestLiquidityForAmounts(t *testing.T) {
	sqrtA, _ := GetSqrtRatioAtTick(-60)
	sqrtB, _ := GetSqrtRatioAtTick(60)
	one := u("1000000000000000000")

	l, err := GetLiquidityForAmounts(Q96, sqrtA, sqrtB, one, one)
	require.NoError(t, err)
	require.Equal(t, "333850249709699449134", l.Dec())

	amount0, amount1, err := GetAmountsForLiquidity(Q96, sqrtA, sqrtB, l)
	require.NoError(t, err)
	require.Equal(t, "999999999999999999", amount0.Dec())
	require.Equal(t, "999999999999999999", amount1.Dec())

	// arguments in either order
	l2, err := GetLiquidityForAmounts(Q96, sqrtB, sqrtA, one, one)
	require.NoError(t, err)
	require.True(t, l.Eq(l2))

	_, err = GetLiquidityForAmounts(Q96, sqrtA, sqrtA, one, one)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLiquidityOutsideRange(t *testing.T) {
	sqrtA, _ := GetSqrtRatioAtTick(-600)
	sqrtB, _ := GetSqrtRatioAtTick(600)
	below, _ := GetSqrtRatioAtTick(-1200)
	above, _ := GetSqrtRatioAtTick(1200)

	l, err := GetLiquidityForAmounts(below, sqrtA, sqrtB, uint256.NewInt(5_000_000), uint256.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, uint64(83325001), l.Uint64())

	amount0, amount1, err := GetAmountsForLiquidity(below, sqrtA, sqrtB, l)
	require.NoError(t, err)
	require.True(t, amount1.IsZero())
	require.False(t, amount0.Gt(uint256.NewInt(5_000_000)))

	amount0, amount1, err = GetAmountsForLiquidity(above, sqrtA, sqrtB, l)
	require.NoError(t, err)
	require.True(t, amount0.IsZero())
	require.False(t, amount1.IsZero())
}

func TestAmountDeltaRounding(t *testing.T) {
	sqrtA, _ := GetSqrtRatioAtTick(-10)
	sqrtB, _ := GetSqrtRatioAtTick(10)
	l := uint256.NewInt(1_000_000_007)

	down, err := GetAmount0Delta(sqrtA, sqrtB, l, false)
	require.NoError(t, err)
	up, err := GetAmount0Delta(sqrtA, sqrtB, l, true)
	require.NoError(t, err)
	require.Equal(t, down.Uint64()+1, up.Uint64())

	down, err = GetAmount1Delta(sqrtA, sqrtB, l, false)
	require.NoError(t, err)
	up, err = GetAmount1Delta(sqrtA, sqrtB, l, true)
	require.NoError(t, err)
	require.Equal(t, down.Uint64()+1, up.Uint64())
}

func TestGetNextSqrtPriceFromInput(t *testing.T) {
	l := u("1000000000000000000")
	amount := uint256.NewInt(1_000_000_000_000_000)

	next, err := GetNextSqrtPriceFromInput(Q96, l, amount, true)
	require.NoError(t, err)
	require.True(t, next.Lt(Q96))

	next, err = GetNextSqrtPriceFromInput(Q96, l, amount, false)
	require.NoError(t, err)
	require.True(t, next.Gt(Q96))

	next, err = GetNextSqrtPriceFromInput(Q96, l, new(uint256.Int), true)
	require.NoError(t, err)
	require.True(t, next.Eq(Q96))

	_, err = GetNextSqrtPriceFromInput(Q96, new(uint256.Int), amount, true)
	require.ErrorIs(t, err, ErrInvalidInput)
}
