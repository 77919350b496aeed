// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parsdao/lpengine/config"
	"github.com/parsdao/lpengine/tickmath"
)

// Version is set at build time.
var Version = "0.1.0-dev"

var errInvalidAmount = errors.New("invalid amount")

type app struct {
	configFile string
	cfg        config.Config
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "lpengine",
		Short:         "Concentrated liquidity position engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			log, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "configuration file path")

	root.AddCommand(
		newTickCmd(),
		newQuoteCmd(),
		newSimulateCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "lpengine version %s\n", Version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// human renders a raw amount with its decimals.
func human(x *uint256.Int, decimals uint8) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x.ToBig(), -int32(decimals)).String()
}

func usd(x *uint256.Int) string {
	return "$" + decimal.NewFromBigInt(x.ToBig(), -tickmath.USDDecimals).StringFixed(tickmath.USDDecimals)
}

// parseAmount reads a human amount into raw units.
func parseAmount(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errInvalidAmount, s)
	}
	raw := d.Shift(int32(decimals))
	if raw.IsNegative() || !raw.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals or is negative", errInvalidAmount, s, decimals)
	}
	out, overflow := uint256.FromBig(raw.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q overflows", errInvalidAmount, s)
	}
	return out, nil
}
