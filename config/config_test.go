// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestDefaultVerifies(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Verify())
	require.True(t, cfg.Equal(Default()))
	require.Equal(t, common.Address{}, cfg.OwnerAddress())
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidLogLevel},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, ErrInvalidLogFormat},
		{"no fee tiers", func(c *Config) { c.Venue.FeeTiers = nil }, ErrInvalidFeeTier},
		{"zero fee tier", func(c *Config) { c.Venue.FeeTiers = []uint32{0} }, ErrInvalidFeeTier},
		{"fee tier too high", func(c *Config) { c.Venue.FeeTiers = []uint32{200_000} }, ErrInvalidFeeTier},
		{"bad owner", func(c *Config) { c.Engine.Owner = "0x1234" }, ErrInvalidAddress},
		{"bad caller", func(c *Config) { c.Engine.AuthorizedCallers = []string{"nope"} }, ErrInvalidAddress},
		{"zero max page", func(c *Config) { c.Engine.MaxPageSize = 0 }, ErrInvalidPageSize},
		{"default above max", func(c *Config) { c.Engine.DefaultPageSize = c.Engine.MaxPageSize + 1 }, ErrInvalidPageSize},
		{"min above max", func(c *Config) { c.Timelock.MinDelay = c.Timelock.MaxDelay + time.Second }, ErrInvalidTimelock},
		{"zero min", func(c *Config) { c.Timelock.MinDelay = 0 }, ErrInvalidTimelock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Verify(), tt.wantErr)
			require.False(t, cfg.Equal(Default()))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lpengine.yaml")
	data := []byte(`log_level: debug
log_format: json
venue:
  fee_tiers: [500, 3000]
  pool_cache_size: 64
engine:
  owner: "0x00000000000000000000000000000000000000a1"
  authorized_callers:
    - "0x00000000000000000000000000000000000000a2"
  default_page_size: 10
  max_page_size: 50
timelock:
  min_delay: 1h
  max_delay: 24h
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, []uint32{500, 3000}, cfg.Venue.FeeTiers)
	require.Equal(t, 64, cfg.Venue.PoolCacheSize)
	require.Equal(t, common.HexToAddress("0xa1"), cfg.OwnerAddress())
	require.Equal(t, []common.Address{common.HexToAddress("0xa2")}, cfg.Callers())
	require.Equal(t, uint64(10), cfg.Engine.DefaultPageSize)
	require.Equal(t, uint64(50), cfg.Engine.MaxPageSize)
	require.Equal(t, time.Hour, cfg.Timelock.MinDelay)
	require.Equal(t, 24*time.Hour, cfg.Timelock.MaxDelay)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("LPENGINE_LOG_LEVEL", "warn")
	t.Setenv("LPENGINE_VENUE_FEE_TIERS", "100,10000")
	t.Setenv("LPENGINE_ENGINE_OWNER", "0x00000000000000000000000000000000000000b1")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, []uint32{100, 10000}, cfg.Venue.FeeTiers)
	require.Equal(t, common.HexToAddress("0xb1"), cfg.OwnerAddress())
	require.Equal(t, Default().Timelock, cfg.Timelock)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_format: xml\n"), 0o600))
	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalidLogFormat)
}
