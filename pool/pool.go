// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool locates and validates venue pools and sizes deposits
// against their current price.
package pool

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parsdao/lpengine/tickmath"
	"github.com/parsdao/lpengine/venue"
)

// DefaultCacheSize bounds the resolved-pool cache.
const DefaultCacheSize = 1024

// Errors
var (
	ErrPoolNotFound    = errors.New("pool not found")
	ErrNoPoolAvailable = errors.New("no pool available")
	ErrInvalidInput    = errors.New("invalid input")
)

// PoolVenue is the subset of the venue the helper reads.
type PoolVenue interface {
	venue.Factory
	venue.PoolReader
}

type cacheKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

// Helper resolves pools through a venue factory. Resolved addresses are
// cached; pools are never undeployed so entries do not go stale.
type Helper struct {
	venue PoolVenue
	log   *zap.Logger
	cache *lru.Cache[cacheKey, common.Address]
}

// NewHelper creates a helper with an LRU of cacheSize resolved pools.
func NewHelper(v PoolVenue, cacheSize int, log *zap.Logger) (*Helper, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, common.Address](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Helper{venue: v, log: log, cache: cache}, nil
}

// Venue returns the underlying venue reader.
func (h *Helper) Venue() PoolVenue {
	return h.venue
}

// ReorderTokens returns the pair in canonical order and whether it was swapped.
func ReorderTokens(tokenA, tokenB common.Address) (common.Address, common.Address, bool) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA, true
	}
	return tokenA, tokenB, false
}

// GetPool returns the pool for the pair and fee tier.
func (h *Helper) GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	token0, token1, _ := ReorderTokens(tokenA, tokenB)
	key := cacheKey{token0: token0, token1: token1, fee: fee}

	if addr, ok := h.cache.Get(key); ok {
		return addr, nil
	}

	addr, err := h.venue.GetPool(ctx, token0, token1, fee)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s/%s fee %d", ErrPoolNotFound, token0.Hex(), token1.Hex(), fee)
	}

	h.cache.Add(key, addr)
	return addr, nil
}

// IsPoolExists reports whether the pair has a pool at fee.
func (h *Helper) IsPoolExists(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (bool, error) {
	_, err := h.GetPool(ctx, tokenA, tokenB, fee)
	if errors.Is(err, ErrPoolNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindDeepestPool queries every fee tier concurrently and returns the pool
// with the greatest in-range liquidity. Ties keep the earlier tier.
func (h *Helper) FindDeepestPool(ctx context.Context, tokenA, tokenB common.Address, feeTiers []uint32) (common.Address, uint32, error) {
	type candidate struct {
		pool      common.Address
		liquidity *uint256.Int
	}
	candidates := make([]*candidate, len(feeTiers))

	g, gctx := errgroup.WithContext(ctx)
	for i, fee := range feeTiers {
		g.Go(func() error {
			addr, err := h.GetPool(gctx, tokenA, tokenB, fee)
			if errors.Is(err, ErrPoolNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			liquidity, err := h.venue.Liquidity(gctx, addr)
			if err != nil {
				return fmt.Errorf("liquidity of %s: %w", addr.Hex(), err)
			}
			candidates[i] = &candidate{pool: addr, liquidity: liquidity}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return common.Address{}, 0, err
	}

	best := -1
	for i, c := range candidates {
		if c == nil {
			continue
		}
		if best < 0 || c.liquidity.Gt(candidates[best].liquidity) {
			best = i
		}
	}
	if best < 0 {
		return common.Address{}, 0, ErrNoPoolAvailable
	}

	h.log.Debug("deepest pool",
		zap.String("pool", candidates[best].pool.Hex()),
		zap.Uint32("fee", feeTiers[best]),
		zap.String("liquidity", candidates[best].liquidity.Dec()),
	)
	return candidates[best].pool, feeTiers[best], nil
}

// AdjustDepositTick rounds tick to the nearest multiple of spacing. Ties
// round away from zero, so with spacing 10: -5 -> -10, -4 -> 0, 5 -> 10.
func AdjustDepositTick(tick, spacing int32) (int32, error) {
	if spacing <= 0 {
		return 0, fmt.Errorf("%w: tick spacing %d", ErrInvalidInput, spacing)
	}
	rem := tick % spacing
	if rem == 0 {
		return tick, nil
	}

	abs := rem
	if abs < 0 {
		abs = -abs
	}
	adjusted := tick - rem
	if abs*2 >= spacing {
		if tick < 0 {
			adjusted -= spacing
		} else {
			adjusted += spacing
		}
	}

	// keep inside the usable range
	minUsable := tickmath.MinTick / spacing * spacing
	maxUsable := tickmath.MaxTick / spacing * spacing
	if adjusted < minUsable {
		adjusted = minUsable
	}
	if adjusted > maxUsable {
		adjusted = maxUsable
	}
	return adjusted, nil
}

// CalcLiquidityAndAmounts returns the liquidity obtainable from the desired
// amounts at the pool's current price and the amounts it consumes, each
// no greater than desired.
func (h *Helper) CalcLiquidityAndAmounts(
	ctx context.Context,
	token0, token1 common.Address,
	fee uint32,
	tickLower, tickUpper int32,
	amount0Desired, amount1Desired *uint256.Int,
) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	if tickLower >= tickUpper {
		return nil, nil, nil, fmt.Errorf("%w: tick range [%d, %d)", ErrInvalidInput, tickLower, tickUpper)
	}
	if _, _, swapped := ReorderTokens(token0, token1); swapped || token0 == token1 {
		return nil, nil, nil, fmt.Errorf("%w: tokens not in canonical order", ErrInvalidInput)
	}
	addr, err := h.GetPool(ctx, token0, token1, fee)
	if err != nil {
		return nil, nil, nil, err
	}
	slot0, err := h.venue.Slot0(ctx, addr)
	if err != nil {
		return nil, nil, nil, err
	}

	sqrtA, err := tickmath.GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, nil, err
	}
	sqrtB, err := tickmath.GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, nil, err
	}
	liquidity, err := tickmath.GetLiquidityForAmounts(slot0.SqrtPriceX96, sqrtA, sqrtB, amount0Desired, amount1Desired)
	if err != nil {
		return nil, nil, nil, err
	}
	amount0, amount1, err := tickmath.GetAmountsForLiquidity(slot0.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	if err != nil {
		return nil, nil, nil, err
	}
	return liquidity, amount0, amount1, nil
}

// ResolveTicks turns offsets from the pool's current tick into an absolute,
// spacing-aligned range. A range that collapses after alignment is widened
// by one spacing on the upper side.
func (h *Helper) ResolveTicks(ctx context.Context, pool common.Address, fee uint32, lowerDiff, upperDiff int32) (int32, int32, error) {
	if lowerDiff >= upperDiff {
		return 0, 0, fmt.Errorf("%w: tick diffs [%d, %d)", ErrInvalidInput, lowerDiff, upperDiff)
	}
	spacing, err := h.venue.TickSpacing(ctx, fee)
	if err != nil {
		return 0, 0, err
	}
	slot0, err := h.venue.Slot0(ctx, pool)
	if err != nil {
		return 0, 0, err
	}

	lower, err := AdjustDepositTick(clampTick(int64(slot0.Tick)+int64(lowerDiff)), spacing)
	if err != nil {
		return 0, 0, err
	}
	upper, err := AdjustDepositTick(clampTick(int64(slot0.Tick)+int64(upperDiff)), spacing)
	if err != nil {
		return 0, 0, err
	}
	if lower >= upper {
		upper = lower + spacing
		if upper > tickmath.MaxTick {
			return 0, 0, fmt.Errorf("%w: range collapses at tick %d", ErrInvalidInput, lower)
		}
	}
	return lower, upper, nil
}

func clampTick(t int64) int32 {
	if t < int64(tickmath.MinTick) {
		return tickmath.MinTick
	}
	if t > int64(tickmath.MaxTick) {
		return tickmath.MaxTick
	}
	return int32(t)
}
