// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/parsdao/lpengine/tickmath"
)

func newTickCmd() *cobra.Command {
	var decimals0, decimals1 uint8

	cmd := &cobra.Command{
		Use:   "tick <tick>",
		Short: "Show the sqrt price and token0 price at a tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid tick %q: %w", args[0], err)
			}
			tick := int32(t)

			sqrt, err := tickmath.GetSqrtRatioAtTick(tick)
			if err != nil {
				return err
			}
			price, err := tickmath.PriceFromTick(tick, decimals0, decimals1)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tick:          %d\n", tick)
			fmt.Fprintf(out, "sqrtPriceX96:  %s\n", sqrt.Dec())
			fmt.Fprintf(out, "price:         %s\n", human(price, decimals1))
			return nil
		},
	}
	cmd.Flags().Uint8Var(&decimals0, "decimals0", 18, "token0 decimals")
	cmd.Flags().Uint8Var(&decimals1, "decimals1", 18, "token1 decimals")
	return cmd
}

func newQuoteCmd() *cobra.Command {
	var (
		tick        int32
		sqrtPrice   string
		amount      string
		decimalsIn  uint8
		decimalsOut uint8
		token1In    bool
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Convert an amount of one pool token into the other",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				sqrt *uint256.Int
				err  error
			)
			if sqrtPrice != "" {
				sqrt, err = uint256.FromDecimal(sqrtPrice)
				if err != nil {
					return fmt.Errorf("invalid sqrt price %q: %w", sqrtPrice, err)
				}
			} else if sqrt, err = tickmath.GetSqrtRatioAtTick(tick); err != nil {
				return err
			}

			in, err := parseAmount(amount, decimalsIn)
			if err != nil {
				return err
			}
			quote, err := tickmath.QuoteFromSqrtPrice(sqrt, in, decimalsIn, decimalsOut, !token1In)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", human(in, decimalsIn), human(quote, decimalsOut))
			return nil
		},
	}
	cmd.Flags().Int32Var(&tick, "tick", 0, "pool tick, ignored when --sqrt-price is set")
	cmd.Flags().StringVar(&sqrtPrice, "sqrt-price", "", "pool sqrtPriceX96")
	cmd.Flags().StringVar(&amount, "amount", "1", "amount of the input token")
	cmd.Flags().Uint8Var(&decimalsIn, "decimals-in", 18, "input token decimals")
	cmd.Flags().Uint8Var(&decimalsOut, "decimals-out", 18, "output token decimals")
	cmd.Flags().BoolVar(&token1In, "token1-in", false, "quote token1 into token0")
	return cmd
}
