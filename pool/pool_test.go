// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/parsdao/lpengine/tickmath"
	"github.com/parsdao/lpengine/venue"
)

var (
	tokenLow  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenHigh = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

// mockVenue serves fixed pools per fee tier.
type mockVenue struct {
	pools     map[uint32]common.Address
	liquidity map[common.Address]*uint256.Int
	slot0     venue.Slot0
	lookups   atomic.Int32
	failLiq   bool
}

func newMockVenue() *mockVenue {
	return &mockVenue{
		pools:     make(map[uint32]common.Address),
		liquidity: make(map[common.Address]*uint256.Int),
		slot0:     venue.Slot0{SqrtPriceX96: tickmath.Q96, Tick: 0},
	}
}

func (m *mockVenue) addPool(fee uint32, addr common.Address, liquidity uint64) {
	m.pools[fee] = addr
	m.liquidity[addr] = uint256.NewInt(liquidity)
}

func (m *mockVenue) GetPool(_ context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	m.lookups.Add(1)
	if tokenA != tokenLow || tokenB != tokenHigh {
		return common.Address{}, errors.New("tokens not sorted")
	}
	return m.pools[fee], nil
}

func (m *mockVenue) TickSpacing(_ context.Context, fee uint32) (int32, error) {
	spacing, ok := venue.DefaultTickSpacing(fee)
	if !ok {
		return 0, errors.New("unknown fee")
	}
	return spacing, nil
}

func (m *mockVenue) Slot0(context.Context, common.Address) (venue.Slot0, error) {
	return m.slot0, nil
}

func (m *mockVenue) Liquidity(_ context.Context, pool common.Address) (*uint256.Int, error) {
	if m.failLiq {
		return nil, errors.New("rpc unavailable")
	}
	return m.liquidity[pool], nil
}

func newTestHelper(t *testing.T, v PoolVenue) *Helper {
	t.Helper()
	h, err := NewHelper(v, 16, nil)
	require.NoError(t, err)
	return h
}

func TestReorderTokens(t *testing.T) {
	t0, t1, swapped := ReorderTokens(tokenHigh, tokenLow)
	require.Equal(t, tokenLow, t0)
	require.Equal(t, tokenHigh, t1)
	require.True(t, swapped)

	t0, t1, swapped = ReorderTokens(tokenLow, tokenHigh)
	require.Equal(t, tokenLow, t0)
	require.Equal(t, tokenHigh, t1)
	require.False(t, swapped)
}

func TestGetPool(t *testing.T) {
	v := newMockVenue()
	pool := common.HexToAddress("0xaaaa")
	v.addPool(venue.Fee030, pool, 100)
	h := newTestHelper(t, v)
	ctx := context.Background()

	got, err := h.GetPool(ctx, tokenHigh, tokenLow, venue.Fee030)
	require.NoError(t, err)
	require.Equal(t, pool, got)

	// served from cache
	_, err = h.GetPool(ctx, tokenLow, tokenHigh, venue.Fee030)
	require.NoError(t, err)
	require.Equal(t, int32(1), v.lookups.Load())

	_, err = h.GetPool(ctx, tokenLow, tokenHigh, venue.Fee005)
	require.ErrorIs(t, err, ErrPoolNotFound)

	ok, err := h.IsPoolExists(ctx, tokenLow, tokenHigh, venue.Fee030)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = h.IsPoolExists(ctx, tokenLow, tokenHigh, venue.Fee100)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFindDeepestPool(t *testing.T) {
	v := newMockVenue()
	shallow := common.HexToAddress("0x0a")
	deep := common.HexToAddress("0x0b")
	tie := common.HexToAddress("0x0c")
	v.addPool(venue.Fee005, shallow, 1_000)
	v.addPool(venue.Fee030, deep, 9_000)
	v.addPool(venue.Fee100, tie, 9_000)
	h := newTestHelper(t, v)

	pool, fee, err := h.FindDeepestPool(context.Background(), tokenHigh, tokenLow, venue.DefaultFeeTiers)
	require.NoError(t, err)
	require.Equal(t, deep, pool)
	require.Equal(t, venue.Fee030, fee)
}

func TestFindDeepestPoolNoneAvailable(t *testing.T) {
	h := newTestHelper(t, newMockVenue())
	_, _, err := h.FindDeepestPool(context.Background(), tokenLow, tokenHigh, venue.DefaultFeeTiers)
	require.ErrorIs(t, err, ErrNoPoolAvailable)

	_, _, err = h.FindDeepestPool(context.Background(), tokenLow, tokenHigh, nil)
	require.ErrorIs(t, err, ErrNoPoolAvailable)
}

func TestFindDeepestPoolVenueError(t *testing.T) {
	v := newMockVenue()
	v.addPool(venue.Fee030, common.HexToAddress("0x0b"), 1)
	v.failLiq = true
	h := newTestHelper(t, v)

	_, _, err := h.FindDeepestPool(context.Background(), tokenLow, tokenHigh, venue.DefaultFeeTiers)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoPoolAvailable)
}

func TestAdjustDepositTick(t *testing.T) {
	tests := []struct {
		tick    int32
		spacing int32
		want    int32
	}{
		{-5, 10, -10},
		{-4, 10, 0},
		{-6, 10, -10},
		{-15, 10, -20},
		{-14, 10, -10},
		{4, 10, 0},
		{5, 10, 10},
		{15, 10, 20},
		{0, 10, 0},
		{-30, 10, -30},
		{29, 60, 0},
		{30, 60, 60},
		{-30, 60, -60},
		{-887272, 60, -887220},
		{887272, 60, 887220},
		{7, 1, 7},
	}

	for _, tt := range tests {
		got, err := AdjustDepositTick(tt.tick, tt.spacing)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "tick %d spacing %d", tt.tick, tt.spacing)
	}

	_, err := AdjustDepositTick(10, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalcLiquidityAndAmounts(t *testing.T) {
	v := newMockVenue()
	v.addPool(venue.Fee030, common.HexToAddress("0x0b"), 1)
	h := newTestHelper(t, v)
	ctx := context.Background()

	one := uint256.MustFromDecimal("1000000000000000000")
	liquidity, amount0, amount1, err := h.CalcLiquidityAndAmounts(ctx, tokenLow, tokenHigh, venue.Fee030, -60, 60, one, one)
	require.NoError(t, err)
	require.Equal(t, "333850249709699449134", liquidity.Dec())
	require.False(t, amount0.Gt(one))
	require.False(t, amount1.Gt(one))

	// below the range only token0 is consumed
	liquidity, amount0, amount1, err = h.CalcLiquidityAndAmounts(ctx, tokenLow, tokenHigh, venue.Fee030, 600, 1200, one, one)
	require.NoError(t, err)
	require.False(t, liquidity.IsZero())
	require.True(t, amount1.IsZero())
	require.False(t, amount0.Gt(one))

	_, _, _, err = h.CalcLiquidityAndAmounts(ctx, tokenLow, tokenHigh, venue.Fee030, 60, 60, one, one)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, _, _, err = h.CalcLiquidityAndAmounts(ctx, tokenHigh, tokenLow, venue.Fee030, -60, 60, one, one)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolveTicks(t *testing.T) {
	v := newMockVenue()
	pool := common.HexToAddress("0x0b")
	v.addPool(venue.Fee030, pool, 1)
	v.slot0.Tick = 125
	h := newTestHelper(t, v)
	ctx := context.Background()

	lower, upper, err := h.ResolveTicks(ctx, pool, venue.Fee030, -600, 600)
	require.NoError(t, err)
	require.Equal(t, int32(-480), lower)
	require.Equal(t, int32(720), upper)

	// narrow diffs collapse onto one multiple and get widened
	lower, upper, err = h.ResolveTicks(ctx, pool, venue.Fee030, -1, 1)
	require.NoError(t, err)
	require.Equal(t, int32(120), lower)
	require.Equal(t, int32(180), upper)

	_, _, err = h.ResolveTicks(ctx, pool, venue.Fee030, 1, 1)
	require.ErrorIs(t, err, ErrInvalidInput)
}
