// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package memvenue is an in-memory venue used by tests and the simulator.
// Pools are single-range: swaps move the price against the liquidity that
// is in range at the start of the swap and never cross initialized ticks.
package memvenue

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/parsdao/lpengine/tickmath"
	"github.com/parsdao/lpengine/venue"
)

// Errors
var (
	ErrPoolExists            = errors.New("pool already exists")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrInvalidFee            = errors.New("invalid fee")
	ErrCurrencyNotSorted     = errors.New("currencies not sorted")
	ErrInvalidSqrtPrice      = errors.New("invalid sqrt price")
	ErrInvalidTickRange      = errors.New("invalid tick range")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrSlippage              = errors.New("slippage check failed")
	ErrReceiptNotFound       = errors.New("receipt not found")
	ErrNotOwner              = errors.New("caller does not own receipt")
	ErrNotCleared            = errors.New("receipt not cleared")
	ErrUnknownToken          = errors.New("unknown token")
	ErrNoPrice               = errors.New("no price for token")
)

var feeDenominator = uint256.NewInt(1_000_000)

// PoolKey uniquely identifies a pool
// Sorted by token address (token0 < token1)
type PoolKey struct {
	Token0 common.Address
	Token1 common.Address
	Fee    uint32
}

// ID computes the unique pool identifier
func (pk PoolKey) ID() [32]byte {
	h := blake3.New()
	h.Write(pk.Token0.Bytes())
	h.Write(pk.Token1.Bytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], pk.Fee)
	h.Write(feeBytes[1:]) // uint24

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// Address derives the pool's address from its id.
func (pk PoolKey) Address() common.Address {
	id := pk.ID()
	return common.BytesToAddress(id[12:])
}

// Pool represents the state of a liquidity pool
type Pool struct {
	Key            PoolKey
	SqrtPriceX96   *uint256.Int
	Tick           int32
	FeeGrowth0X128 *uint256.Int
	FeeGrowth1X128 *uint256.Int
}

// Venue is a mutex-guarded in-memory implementation of venue.Venue.
type Venue struct {
	mu sync.RWMutex

	spacings map[uint32]int32

	// pools by blake3(poolKey), plus the derived pool address
	pools       map[[32]byte]*Pool
	poolsByAddr map[common.Address]*Pool

	receipts    map[uint64]*venue.Receipt
	nextReceipt uint64

	decimals map[common.Address]uint8
	prices   map[common.Address]*uint256.Int
	balances map[common.Address]map[common.Address]*uint256.Int
}

var _ venue.Venue = (*Venue)(nil)

// New creates an empty venue with the default fee tiers enabled.
func New() *Venue {
	v := &Venue{
		spacings:    make(map[uint32]int32),
		pools:       make(map[[32]byte]*Pool),
		poolsByAddr: make(map[common.Address]*Pool),
		receipts:    make(map[uint64]*venue.Receipt),
		nextReceipt: 1,
		decimals:    make(map[common.Address]uint8),
		prices:      make(map[common.Address]*uint256.Int),
		balances:    make(map[common.Address]map[common.Address]*uint256.Int),
	}
	for _, fee := range venue.DefaultFeeTiers {
		spacing, _ := venue.DefaultTickSpacing(fee)
		v.spacings[fee] = spacing
	}
	return v
}

// =========================================================================
// Setup
// =========================================================================

// EnableFeeAmount adds a fee tier.
func (v *Venue) EnableFeeAmount(fee uint32, spacing int32) error {
	if fee >= venue.FeeMax || spacing <= 0 {
		return ErrInvalidFee
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spacings[fee] = spacing
	return nil
}

// RegisterToken records token metadata and its USD price (6 decimals).
func (v *Venue) RegisterToken(token common.Address, decimals uint8, priceUSD *uint256.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.decimals[token] = decimals
	if priceUSD != nil {
		v.prices[token] = priceUSD.Clone()
	}
}

// SetUSDPrice updates a token's oracle price.
func (v *Venue) SetUSDPrice(token common.Address, priceUSD *uint256.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prices[token] = priceUSD.Clone()
}

// MintTo credits holder with newly created tokens.
func (v *Venue) MintTo(token, holder common.Address, amount *uint256.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(token, holder, amount)
}

// CreatePool creates and initializes a new pool
// Returns the pool address and the tick of the starting price
func (v *Venue) CreatePool(tokenA, tokenB common.Address, fee uint32, sqrtPriceX96 *uint256.Int) (common.Address, int32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	token0, token1 := tokenA, tokenB
	if !areTokensSorted(token0, token1) {
		token0, token1 = token1, token0
	}
	if token0 == token1 {
		return common.Address{}, 0, ErrCurrencyNotSorted
	}
	if _, ok := v.spacings[fee]; !ok {
		return common.Address{}, 0, fmt.Errorf("%w: %d", ErrInvalidFee, fee)
	}
	if sqrtPriceX96.Lt(tickmath.MinSqrtRatio) || !sqrtPriceX96.Lt(tickmath.MaxSqrtRatio) {
		return common.Address{}, 0, ErrInvalidSqrtPrice
	}

	key := PoolKey{Token0: token0, Token1: token1, Fee: fee}
	id := key.ID()
	if _, ok := v.pools[id]; ok {
		return common.Address{}, 0, ErrPoolExists
	}

	tick, err := tickmath.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return common.Address{}, 0, err
	}

	pool := &Pool{
		Key:            key,
		SqrtPriceX96:   sqrtPriceX96.Clone(),
		Tick:           tick,
		FeeGrowth0X128: new(uint256.Int),
		FeeGrowth1X128: new(uint256.Int),
	}
	v.pools[id] = pool
	v.poolsByAddr[key.Address()] = pool
	return key.Address(), tick, nil
}

// SetPrice moves a pool to sqrtPriceX96 without a swap.
func (v *Venue) SetPrice(pool common.Address, sqrtPriceX96 *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.poolsByAddr[pool]
	if !ok {
		return ErrPoolNotFound
	}
	tick, err := tickmath.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSqrtPrice, err)
	}
	p.SqrtPriceX96 = sqrtPriceX96.Clone()
	p.Tick = tick
	return nil
}

// Donate pays amount0/amount1 from donor to the in-range liquidity of pool
// as fees.
func (v *Venue) Donate(pool, donor common.Address, amount0, amount1 *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.poolsByAddr[pool]
	if !ok {
		return ErrPoolNotFound
	}
	liquidity := v.activeLiquidity(p)
	if liquidity.IsZero() {
		return ErrInsufficientLiquidity
	}
	if err := v.move(p.Key.Token0, donor, pool, amount0); err != nil {
		return err
	}
	if err := v.move(p.Key.Token1, donor, pool, amount1); err != nil {
		return err
	}
	v.accrueFees(p, liquidity, amount0, amount1)
	return nil
}

// =========================================================================
// venue.Factory / venue.PoolReader
// =========================================================================

// GetPool implements venue.Factory.
func (v *Venue) GetPool(_ context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !areTokensSorted(tokenA, tokenB) {
		tokenA, tokenB = tokenB, tokenA
	}
	key := PoolKey{Token0: tokenA, Token1: tokenB, Fee: fee}
	if _, ok := v.pools[key.ID()]; !ok {
		return common.Address{}, nil
	}
	return key.Address(), nil
}

// TickSpacing implements venue.Factory.
func (v *Venue) TickSpacing(_ context.Context, fee uint32) (int32, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	spacing, ok := v.spacings[fee]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFee, fee)
	}
	return spacing, nil
}

// Slot0 implements venue.PoolReader.
func (v *Venue) Slot0(_ context.Context, pool common.Address) (venue.Slot0, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.poolsByAddr[pool]
	if !ok {
		return venue.Slot0{}, ErrPoolNotFound
	}
	return venue.Slot0{SqrtPriceX96: p.SqrtPriceX96.Clone(), Tick: p.Tick}, nil
}

// Liquidity implements venue.PoolReader.
func (v *Venue) Liquidity(_ context.Context, pool common.Address) (*uint256.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.poolsByAddr[pool]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return v.activeLiquidity(p), nil
}

// PoolState returns a copy of the pool's state.
func (v *Venue) PoolState(pool common.Address) (Pool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.poolsByAddr[pool]
	if !ok {
		return Pool{}, ErrPoolNotFound
	}
	return Pool{
		Key:            p.Key,
		SqrtPriceX96:   p.SqrtPriceX96.Clone(),
		Tick:           p.Tick,
		FeeGrowth0X128: p.FeeGrowth0X128.Clone(),
		FeeGrowth1X128: p.FeeGrowth1X128.Clone(),
	}, nil
}

// =========================================================================
// venue.PriceOracle / venue.TokenInfo / venue.TokenTransferer
// =========================================================================

// USDPrice implements venue.PriceOracle.
func (v *Venue) USDPrice(_ context.Context, token common.Address) (*uint256.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	price, ok := v.prices[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, token.Hex())
	}
	return price.Clone(), nil
}

// Decimals implements venue.TokenInfo.
func (v *Venue) Decimals(_ context.Context, token common.Address) (uint8, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	d, ok := v.decimals[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return d, nil
}

// Transfer implements venue.TokenTransferer.
func (v *Venue) Transfer(_ context.Context, token, from, to common.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.move(token, from, to, amount)
}

// BalanceOf implements venue.TokenTransferer.
func (v *Venue) BalanceOf(_ context.Context, token, holder common.Address) (*uint256.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balance(token, holder).Clone(), nil
}

// =========================================================================
// Internal helpers
// =========================================================================

// areTokensSorted checks if tokens are in canonical order
func areTokensSorted(t0, t1 common.Address) bool {
	return bytes.Compare(t0.Bytes(), t1.Bytes()) < 0
}

func (v *Venue) balance(token, holder common.Address) *uint256.Int {
	if b, ok := v.balances[token][holder]; ok {
		return b
	}
	return new(uint256.Int)
}

func (v *Venue) credit(token, holder common.Address, amount *uint256.Int) {
	if v.balances[token] == nil {
		v.balances[token] = make(map[common.Address]*uint256.Int)
	}
	v.balances[token][holder] = new(uint256.Int).Add(v.balance(token, holder), amount)
}

func (v *Venue) move(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	have := v.balance(token, from)
	if have.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), have.Dec(), token.Hex(), amount.Dec())
	}
	v.balances[token][from] = new(uint256.Int).Sub(have, amount)
	v.credit(token, to, amount)
	return nil
}

// activeLiquidity sums the liquidity of receipts whose range holds the current tick.
func (v *Venue) activeLiquidity(p *Pool) *uint256.Int {
	total := new(uint256.Int)
	for _, r := range v.receipts {
		if r.Token0 == p.Key.Token0 && r.Token1 == p.Key.Token1 && r.Fee == p.Key.Fee &&
			r.TickLower <= p.Tick && p.Tick < r.TickUpper {
			total.Add(total, r.Liquidity)
		}
	}
	return total
}

// accrueFees credits fees pro rata to in-range receipts and advances the
// pool's global fee growth.
func (v *Venue) accrueFees(p *Pool, liquidity, fee0, fee1 *uint256.Int) {
	// feeGrowth += amount * 2^128 / liquidity
	if fee0 != nil && !fee0.IsZero() {
		if growth, err := tickmath.MulDiv(fee0, tickmath.Q128, liquidity); err == nil {
			p.FeeGrowth0X128.Add(p.FeeGrowth0X128, growth)
		}
	}
	if fee1 != nil && !fee1.IsZero() {
		if growth, err := tickmath.MulDiv(fee1, tickmath.Q128, liquidity); err == nil {
			p.FeeGrowth1X128.Add(p.FeeGrowth1X128, growth)
		}
	}

	for _, r := range v.receipts {
		if r.Token0 != p.Key.Token0 || r.Token1 != p.Key.Token1 || r.Fee != p.Key.Fee ||
			r.TickLower > p.Tick || p.Tick >= r.TickUpper || r.Liquidity.IsZero() {
			continue
		}
		if fee0 != nil && !fee0.IsZero() {
			if share, err := tickmath.MulDiv(fee0, r.Liquidity, liquidity); err == nil {
				r.TokensOwed0.Add(r.TokensOwed0, share)
			}
		}
		if fee1 != nil && !fee1.IsZero() {
			if share, err := tickmath.MulDiv(fee1, r.Liquidity, liquidity); err == nil {
				r.TokensOwed1.Add(r.TokensOwed1, share)
			}
		}
	}
}
