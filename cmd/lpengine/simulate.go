// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/actions"
	"github.com/parsdao/lpengine/config"
	"github.com/parsdao/lpengine/manager"
	"github.com/parsdao/lpengine/modules"
	"github.com/parsdao/lpengine/pool"
	"github.com/parsdao/lpengine/registry"
	"github.com/parsdao/lpengine/tickmath"
	"github.com/parsdao/lpengine/venue"
	"github.com/parsdao/lpengine/venue/memvenue"
)

// Addresses used when the configuration names none.
var (
	simToken0   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	simToken1   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	simUser     = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	simOperator = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	simSeeder   = common.HexToAddress("0x00000000000000000000000000000000000005ee")
)

const simDecimals = 18

type simParams struct {
	amount   string
	feesBps  uint64
	rangeLo  int32
	rangeHi  int32
	widenBy  int32
	slippage uint32
}

func newSimulateCmd(a *app) *cobra.Command {
	p := simParams{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a deposit, fee, rebalance and withdraw cycle on the in-memory venue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return simulate(cmd.Context(), cmd.OutOrStdout(), a.cfg, a.log, p)
		},
	}
	cmd.Flags().StringVar(&p.amount, "amount", "10", "amount of each token to deposit")
	cmd.Flags().Uint64Var(&p.feesBps, "fees-bps", 50, "fees donated to the pool, in bps of the deposit")
	cmd.Flags().Int32Var(&p.rangeLo, "lower", -600, "lower tick distance from the current tick")
	cmd.Flags().Int32Var(&p.rangeHi, "upper", 600, "upper tick distance from the current tick")
	cmd.Flags().Int32Var(&p.widenBy, "widen", 600, "ticks added on each side when rebalancing")
	cmd.Flags().Uint32Var(&p.slippage, "slippage-bps", actions.DefaultSlippageBps, "tolerated swap slippage in bps")
	return cmd
}

func simulate(ctx context.Context, out io.Writer, cfg config.Config, log *zap.Logger, p simParams) error {
	if ctx == nil {
		ctx = context.Background()
	}
	amount, err := parseAmount(p.amount, simDecimals)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: zero deposit", errInvalidAmount)
	}

	user := simUser
	if cfg.Engine.Owner != "" {
		user = cfg.OwnerAddress()
	}
	operators := append(cfg.Callers(), simOperator)

	v := memvenue.New()
	oneUSD := uint256.NewInt(1_000_000)
	v.RegisterToken(simToken0, simDecimals, oneUSD)
	v.RegisterToken(simToken1, simDecimals, oneUSD)

	// third-party liquidity a hundred times the deposit
	depth := new(uint256.Int).Mul(amount, uint256.NewInt(100))
	v.MintTo(simToken0, simSeeder, new(uint256.Int).Mul(depth, uint256.NewInt(2)))
	v.MintTo(simToken1, simSeeder, new(uint256.Int).Mul(depth, uint256.NewInt(2)))
	poolAddr, _, err := v.CreatePool(simToken0, simToken1, venue.Fee030, tickmath.Q96)
	if err != nil {
		return err
	}
	if _, err := v.Mint(ctx, simSeeder, venue.MintParams{
		Token0:         simToken0,
		Token1:         simToken1,
		Fee:            venue.Fee030,
		TickLower:      -60000,
		TickUpper:      60000,
		Amount0Desired: depth,
		Amount1Desired: depth,
		Recipient:      simSeeder,
	}); err != nil {
		return fmt.Errorf("failed to seed pool: %w", err)
	}

	reg, err := registry.New(user, registry.Options{
		MinDelay:  cfg.Timelock.MinDelay,
		MaxDelay:  cfg.Timelock.MaxDelay,
		FeeTiers:  cfg.Venue.FeeTiers,
		Operators: operators,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	helper, err := pool.NewHelper(v, cfg.Venue.PoolCacheSize, log)
	if err != nil {
		return err
	}
	db := memdb.New()
	defer db.Close()

	m, err := manager.New(db, reg, manager.Options{
		Deps: actions.Deps{
			Venue:       v,
			Pools:       helper,
			FeeTiers:    cfg.Venue.FeeTiers,
			SlippageBps: p.slippage,
		},
		MaxPageSize: cfg.Engine.MaxPageSize,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	inst, err := m.Instance(user)
	if err != nil {
		return err
	}
	v.MintTo(simToken0, inst.Address, amount)
	v.MintTo(simToken1, inst.Address, amount)

	dispatch := func(sig string, args any) (any, error) {
		return m.Dispatch(ctx, user, simOperator, modules.SelectorOf(sig), args)
	}

	res, err := dispatch(actions.DepositSig, actions.DepositArgs{
		TokenA:        simToken0,
		TokenB:        simToken1,
		AmountA:       amount,
		AmountB:       amount,
		TickLowerDiff: p.rangeLo,
		TickUpperDiff: p.rangeHi,
	})
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	dep := res.(actions.DepositResult)
	fmt.Fprintf(out, "deposit:   position %d receipt %d ticks [%d, %d] fee %d\n",
		dep.PositionID, dep.ReceiptID, dep.TickLower, dep.TickUpper, dep.Fee)
	fmt.Fprintf(out, "           amounts %s / %s leftover %s / %s value %s\n",
		human(dep.Amount0, simDecimals), human(dep.Amount1, simDecimals),
		human(dep.Leftover0, simDecimals), human(dep.Leftover1, simDecimals), usd(dep.DepositUSD))

	if p.feesBps > 0 {
		fee := new(uint256.Int).Mul(amount, uint256.NewInt(p.feesBps))
		fee.Div(fee, uint256.NewInt(10_000))
		v.MintTo(simToken0, simSeeder, fee)
		v.MintTo(simToken1, simSeeder, fee)
		if err := v.Donate(poolAddr, simSeeder, fee, fee); err != nil {
			return fmt.Errorf("donate: %w", err)
		}
		res, err = dispatch(actions.ReturnProfitSig, actions.ReturnProfitArgs{PositionID: dep.PositionID})
		if err != nil {
			return fmt.Errorf("return profit: %w", err)
		}
		profit := res.(actions.ReturnProfitResult)
		fmt.Fprintf(out, "profit:    %s / %s paid to %s\n",
			human(profit.Fee0, simDecimals), human(profit.Fee1, simDecimals), user.Hex())
	}

	res, err = dispatch(actions.RebalanceSig, actions.RebalanceArgs{
		PositionID:    dep.PositionID,
		TickLowerDiff: p.rangeLo - p.widenBy,
		TickUpperDiff: p.rangeHi + p.widenBy,
	})
	if err != nil {
		return fmt.Errorf("rebalance: %w", err)
	}
	reb := res.(actions.RebalanceResult)
	fmt.Fprintf(out, "rebalance: receipt %d ticks [%d, %d]\n", reb.ReceiptID, reb.TickLower, reb.TickUpper)

	res, err = dispatch(actions.WithdrawSig, actions.WithdrawArgs{PositionID: dep.PositionID})
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	wd := res.(actions.WithdrawResult)
	fmt.Fprintf(out, "withdraw:  returned %s / %s value %s\n",
		human(wd.Returned0, simDecimals), human(wd.Returned1, simDecimals), usd(wd.ReturnedUSD))

	pos, err := inst.Ledger.PositionInfo(dep.PositionID)
	if err != nil {
		return err
	}
	closed, _ := inst.Ledger.ClosedPositions(0, cfg.Engine.DefaultPageSize)
	receipts, _ := inst.Ledger.OwnedReceipts(0, cfg.Engine.DefaultPageSize)
	fmt.Fprintf(out, "ledger:    closed %v receipts %v fees %s / %s\n", closed, receipts,
		human(pos.Amount0CollectedFee, simDecimals), human(pos.Amount1CollectedFee, simDecimals))
	return nil
}
