// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package actions implements the operation modules dispatched by the router:
// deposit, increase, withdraw, rebalance, swap-to-ratio, zap-in and
// return-profit. Each operation drives the venue on behalf of the instance
// and records the outcome in the instance's ledger.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/ledger"
	"github.com/parsdao/lpengine/modules"
	"github.com/parsdao/lpengine/pool"
	"github.com/parsdao/lpengine/tickmath"
	"github.com/parsdao/lpengine/venue"
)

// Operation signatures
const (
	DepositSig             = "deposit(address,address,uint24,uint256,uint256,int24,int24,address,bytes16)"
	IncreaseLiquiditySig   = "increaseLiquidity(uint256,uint256,uint256)"
	WithdrawSig            = "withdraw(uint256)"
	RebalanceSig           = "rebalance(uint256,int24,int24)"
	SwapToPositionRatioSig = "swapToPositionRatio(address,address,uint24,uint256,uint256,int24,int24)"
	ZapInSig               = "zapIn(address,address,address,uint24,uint256,int24,int24,address,bytes16)"
	ReturnProfitSig        = "returnProfit(uint256)"
)

// Module names
const (
	DepositName             = "deposit"
	IncreaseLiquidityName   = "increaseLiquidity"
	WithdrawName            = "withdraw"
	RebalanceName           = "rebalance"
	SwapToPositionRatioName = "swapToPositionRatio"
	ZapInName               = "zapIn"
	ReturnProfitName        = "returnProfit"
)

// Errors
var (
	ErrInvalidArgs = errors.New("invalid operation arguments")
	ErrZeroAmount  = errors.New("zero amount")
	ErrFeeTier     = errors.New("fee tier not allowed")
)

// DefaultSlippageBps bounds swaps against the pre-swap spot quote.
const DefaultSlippageBps = 100

const (
	bpsDenominator = 10_000
	feeDenominator = 1_000_000
)

// Deps are the collaborators every action uses.
type Deps struct {
	Venue venue.Venue
	Pools *pool.Helper
	// FeeTiers are searched for the deepest pool when an operation does not
	// name a fee tier.
	FeeTiers []uint32
	// FeeTierAllowed gates explicitly named fee tiers. Nil allows any tier.
	FeeTierAllowed func(fee uint32) bool
	// SlippageBps is the tolerated shortfall against the spot quote. Zero
	// disables the check.
	SlippageBps uint32
	Logger      *zap.Logger
}

type actions struct {
	Deps
	log *zap.Logger
}

func newActions(d Deps) *actions {
	if len(d.FeeTiers) == 0 {
		d.FeeTiers = venue.DefaultFeeTiers
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &actions{Deps: d, log: log}
}

// module serves one operation under one selector.
type module struct {
	name string
	sel  modules.Selector
	op   modules.Operation
}

func (m *module) Name() string { return m.name }

func (m *module) Selectors() []modules.Selector { return []modules.Selector{m.sel} }

func (m *module) Operation(sel modules.Selector) (modules.Operation, bool) {
	if sel != m.sel {
		return nil, false
	}
	return m.op, true
}

// Modules returns every action module in a fixed order.
func Modules(d Deps) []modules.Module {
	a := newActions(d)
	return []modules.Module{
		newModule(DepositName, DepositSig, a.deposit),
		newModule(IncreaseLiquidityName, IncreaseLiquiditySig, a.increaseLiquidity),
		newModule(WithdrawName, WithdrawSig, a.withdraw),
		newModule(RebalanceName, RebalanceSig, a.rebalance),
		newModule(SwapToPositionRatioName, SwapToPositionRatioSig, a.swapToPositionRatio),
		newModule(ZapInName, ZapInSig, a.zapIn),
		newModule(ReturnProfitName, ReturnProfitSig, a.returnProfit),
	}
}

func newModule[A, R any](name, signature string, fn func(context.Context, *modules.Env, A) (R, error)) modules.Module {
	return &module{
		name: name,
		sel:  modules.SelectorOf(signature),
		op: modules.OperationFunc(func(ctx context.Context, env *modules.Env, args any) (any, error) {
			a, err := argsAs[A](args)
			if err != nil {
				return nil, err
			}
			return fn(ctx, env, a)
		}),
	}
}

func argsAs[T any](args any) (T, error) {
	switch a := args.(type) {
	case T:
		return a, nil
	case *T:
		if a != nil {
			return *a, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: want %T, got %T", ErrInvalidArgs, zero, args)
}

// =========================================================================
// Shared helpers
// =========================================================================

// runningPosition loads a position that is still open.
func runningPosition(env *modules.Env, id uint64) (ledger.Position, error) {
	pos, err := env.Ledger.PositionInfo(id)
	if err != nil {
		return ledger.Position{}, err
	}
	if pos.Closed {
		return ledger.Position{}, fmt.Errorf("%w: %d", ledger.ErrAlreadyClosed, id)
	}
	return pos, nil
}

// usdValue prices a raw token amount with the oracle.
func (a *actions) usdValue(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return new(uint256.Int), nil
	}
	decimals, err := a.Venue.Decimals(ctx, token)
	if err != nil {
		return nil, err
	}
	price, err := a.Venue.USDPrice(ctx, token)
	if err != nil {
		return nil, err
	}
	return tickmath.USDValue(amount, decimals, price)
}

func (a *actions) pairUSD(ctx context.Context, token0, token1 common.Address, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	v0, err := a.usdValue(ctx, token0, amount0)
	if err != nil {
		return nil, err
	}
	v1, err := a.usdValue(ctx, token1, amount1)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(v0, v1)
	if overflow {
		return nil, tickmath.ErrArithmeticOverflow
	}
	return sum, nil
}

// feeTiers returns the candidate tiers that are currently allowed.
func (a *actions) feeTiers() []uint32 {
	if a.FeeTierAllowed == nil {
		return a.FeeTiers
	}
	tiers := make([]uint32, 0, len(a.FeeTiers))
	for _, fee := range a.FeeTiers {
		if a.FeeTierAllowed(fee) {
			tiers = append(tiers, fee)
		}
	}
	return tiers
}

// resolvePool returns the pool for the pair, searching the configured fee
// tiers for the deepest one when fee is zero.
func (a *actions) resolvePool(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, uint32, error) {
	if fee == 0 {
		return a.Pools.FindDeepestPool(ctx, token0, token1, a.feeTiers())
	}
	if a.FeeTierAllowed != nil && !a.FeeTierAllowed(fee) {
		return common.Address{}, 0, fmt.Errorf("%w: %d", ErrFeeTier, fee)
	}
	addr, err := a.Pools.GetPool(ctx, token0, token1, fee)
	return addr, fee, err
}

// exitReceipt removes all liquidity from a receipt, collects everything it
// owes to the instance and burns it. Fees are what was collected beyond the
// released principal.
func (a *actions) exitReceipt(ctx context.Context, env *modules.Env, receiptID uint64) (venue.Receipt, exitResult, error) {
	r, err := a.Venue.Position(ctx, receiptID)
	if err != nil {
		return venue.Receipt{}, exitResult{}, err
	}
	principal0, principal1 := new(uint256.Int), new(uint256.Int)
	if !r.Liquidity.IsZero() {
		principal0, principal1, err = a.Venue.DecreaseLiquidity(ctx, env.Instance, venue.DecreaseParams{
			ReceiptID: receiptID,
			Liquidity: r.Liquidity,
		})
		if err != nil {
			return venue.Receipt{}, exitResult{}, fmt.Errorf("decrease receipt %d: %w", receiptID, err)
		}
	}
	collected0, collected1, err := a.Venue.Collect(ctx, env.Instance, venue.CollectParams{
		ReceiptID: receiptID,
		Recipient: env.Instance,
	})
	if err != nil {
		return venue.Receipt{}, exitResult{}, fmt.Errorf("collect receipt %d: %w", receiptID, err)
	}
	if err := a.Venue.Burn(ctx, env.Instance, receiptID); err != nil {
		return venue.Receipt{}, exitResult{}, fmt.Errorf("burn receipt %d: %w", receiptID, err)
	}
	return r, exitResult{
		Collected0: collected0,
		Collected1: collected1,
		Fee0:       saturatingSub(collected0, principal0),
		Fee1:       saturatingSub(collected1, principal1),
	}, nil
}

type exitResult struct {
	Collected0 *uint256.Int
	Collected1 *uint256.Int
	Fee0       *uint256.Int
	Fee1       *uint256.Int
}

// swapToRatio swaps the surplus side of amount0/amount1 so the balances
// suit [tickLower, tickUpper] at the pool's current price, and returns the
// balances after the swap.
func (a *actions) swapToRatio(
	ctx context.Context,
	env *modules.Env,
	token0, token1 common.Address,
	fee uint32,
	poolAddr common.Address,
	tickLower, tickUpper int32,
	amount0, amount1 *uint256.Int,
) (*uint256.Int, *uint256.Int, error) {
	if amount0.IsZero() && amount1.IsZero() {
		return amount0, amount1, nil
	}
	slot0, err := a.Venue.Slot0(ctx, poolAddr)
	if err != nil {
		return nil, nil, err
	}
	amountIn, zeroForOne, err := tickmath.CalcAmountToSwap(slot0.SqrtPriceX96, tickLower, tickUpper, slot0.Tick, amount0, amount1)
	if err != nil {
		return nil, nil, err
	}
	if amountIn.IsZero() {
		return amount0, amount1, nil
	}

	tokenIn, tokenOut := token0, token1
	if !zeroForOne {
		tokenIn, tokenOut = token1, token0
	}
	amountOut, err := a.swap(ctx, env, tokenIn, tokenOut, fee, slot0.SqrtPriceX96, amountIn, zeroForOne)
	if err != nil {
		return nil, nil, err
	}

	if zeroForOne {
		return new(uint256.Int).Sub(amount0, amountIn), new(uint256.Int).Add(amount1, amountOut), nil
	}
	return new(uint256.Int).Add(amount0, amountOut), new(uint256.Int).Sub(amount1, amountIn), nil
}

// swap runs an exact-input swap from the instance, bounded by the spot
// quote less the configured slippage.
func (a *actions) swap(
	ctx context.Context,
	env *modules.Env,
	tokenIn, tokenOut common.Address,
	fee uint32,
	sqrtPriceX96, amountIn *uint256.Int,
	zeroForOne bool,
) (*uint256.Int, error) {
	var minOut *uint256.Int
	if a.SlippageBps > 0 {
		decimalsIn, err := a.Venue.Decimals(ctx, tokenIn)
		if err != nil {
			return nil, err
		}
		decimalsOut, err := a.Venue.Decimals(ctx, tokenOut)
		if err != nil {
			return nil, err
		}
		quote, err := tickmath.QuoteFromSqrtPrice(sqrtPriceX96, amountIn, decimalsIn, decimalsOut, zeroForOne)
		if err != nil {
			return nil, err
		}
		// spot quote less the pool fee, less slippage, less a unit of rounding
		afterFee, err := tickmath.MulDiv(quote, uint256.NewInt(uint64(feeDenominator-min(fee, feeDenominator))), uint256.NewInt(feeDenominator))
		if err != nil {
			return nil, err
		}
		keep := uint256.NewInt(uint64(bpsDenominator - min(a.SlippageBps, bpsDenominator)))
		minOut, err = tickmath.MulDiv(afterFee, keep, uint256.NewInt(bpsDenominator))
		if err != nil {
			return nil, err
		}
		minOut = saturatingSub(minOut, uint256.NewInt(1))
	}

	amountOut, err := a.Venue.ExactInputSingle(ctx, env.Instance, venue.SwapParams{
		TokenIn:          tokenIn,
		TokenOut:         tokenOut,
		Fee:              fee,
		Recipient:        env.Instance,
		AmountIn:         amountIn,
		AmountOutMinimum: minOut,
	})
	if err != nil {
		return nil, fmt.Errorf("swap %s -> %s: %w", tokenIn.Hex(), tokenOut.Hex(), err)
	}
	a.log.Debug("swapped",
		zap.String("tokenIn", tokenIn.Hex()),
		zap.String("amountIn", amountIn.Dec()),
		zap.String("amountOut", amountOut.Dec()),
	)
	return amountOut, nil
}

// payOwner transfers amount of token from the instance to its owner.
func (a *actions) payOwner(ctx context.Context, env *modules.Env, token common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := a.Venue.Transfer(ctx, token, env.Instance, env.Owner, amount); err != nil {
		return fmt.Errorf("pay owner %s: %w", token.Hex(), err)
	}
	return nil
}

func saturatingSub(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}
