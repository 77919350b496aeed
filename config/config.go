// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the engine configuration and its loader.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/parsdao/lpengine/ledger"
	"github.com/parsdao/lpengine/registry"
	"github.com/parsdao/lpengine/venue"
)

// EnvPrefix prefixes environment overrides, e.g. LPENGINE_ENGINE_OWNER.
const EnvPrefix = "LPENGINE"

var (
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
	ErrInvalidFeeTier   = errors.New("invalid fee tier")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidPageSize  = errors.New("invalid page size")
	ErrInvalidTimelock  = errors.New("invalid timelock bounds")
)

// Config is the full engine configuration.
type Config struct {
	LogLevel  string         `json:"logLevel" mapstructure:"log_level"`
	LogFormat string         `json:"logFormat" mapstructure:"log_format"`
	Venue     VenueConfig    `json:"venue" mapstructure:"venue"`
	Engine    EngineConfig   `json:"engine" mapstructure:"engine"`
	Timelock  TimelockConfig `json:"timelock" mapstructure:"timelock"`
}

// VenueConfig configures pool discovery.
type VenueConfig struct {
	FeeTiers      []uint32 `json:"feeTiers" mapstructure:"fee_tiers"`
	PoolCacheSize int      `json:"poolCacheSize" mapstructure:"pool_cache_size"`
}

// EngineConfig configures instances.
type EngineConfig struct {
	Owner             string   `json:"owner" mapstructure:"owner"`
	AuthorizedCallers []string `json:"authorizedCallers" mapstructure:"authorized_callers"`
	DefaultPageSize   uint64   `json:"defaultPageSize" mapstructure:"default_page_size"`
	MaxPageSize       uint64   `json:"maxPageSize" mapstructure:"max_page_size"`
}

// TimelockConfig bounds governance delays.
type TimelockConfig struct {
	MinDelay time.Duration `json:"minDelay" mapstructure:"min_delay"`
	MaxDelay time.Duration `json:"maxDelay" mapstructure:"max_delay"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Venue: VenueConfig{
			FeeTiers:      slices.Clone(venue.DefaultFeeTiers),
			PoolCacheSize: 1024,
		},
		Engine: EngineConfig{
			DefaultPageSize: 100,
			MaxPageSize:     ledger.DefaultMaxPageSize,
		},
		Timelock: TimelockConfig{
			MinDelay: registry.DefaultMinDelay,
			MaxDelay: registry.DefaultMaxDelay,
		},
	}
}

// Verify checks the configuration for consistency.
func (c Config) Verify() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}

	if len(c.Venue.FeeTiers) == 0 {
		return fmt.Errorf("%w: no fee tiers", ErrInvalidFeeTier)
	}
	for _, fee := range c.Venue.FeeTiers {
		if fee == 0 || fee > venue.FeeMax {
			return fmt.Errorf("%w: %d", ErrInvalidFeeTier, fee)
		}
	}

	if c.Engine.Owner != "" && !common.IsHexAddress(c.Engine.Owner) {
		return fmt.Errorf("%w: owner %q", ErrInvalidAddress, c.Engine.Owner)
	}
	for _, caller := range c.Engine.AuthorizedCallers {
		if !common.IsHexAddress(caller) {
			return fmt.Errorf("%w: caller %q", ErrInvalidAddress, caller)
		}
	}
	if c.Engine.MaxPageSize == 0 || c.Engine.DefaultPageSize == 0 {
		return fmt.Errorf("%w: page sizes must be positive", ErrInvalidPageSize)
	}
	if c.Engine.DefaultPageSize > c.Engine.MaxPageSize {
		return fmt.Errorf("%w: default %d > max %d", ErrInvalidPageSize, c.Engine.DefaultPageSize, c.Engine.MaxPageSize)
	}

	if c.Timelock.MinDelay <= 0 || c.Timelock.MinDelay > c.Timelock.MaxDelay {
		return fmt.Errorf("%w: min %s, max %s", ErrInvalidTimelock, c.Timelock.MinDelay, c.Timelock.MaxDelay)
	}
	return nil
}

// Equal returns true if c and other are the same configuration.
func (c Config) Equal(other Config) bool {
	return c.LogLevel == other.LogLevel &&
		c.LogFormat == other.LogFormat &&
		slices.Equal(c.Venue.FeeTiers, other.Venue.FeeTiers) &&
		c.Venue.PoolCacheSize == other.Venue.PoolCacheSize &&
		strings.EqualFold(c.Engine.Owner, other.Engine.Owner) &&
		slices.EqualFunc(c.Engine.AuthorizedCallers, other.Engine.AuthorizedCallers, strings.EqualFold) &&
		c.Engine.DefaultPageSize == other.Engine.DefaultPageSize &&
		c.Engine.MaxPageSize == other.Engine.MaxPageSize &&
		c.Timelock == other.Timelock
}

// OwnerAddress returns the configured owner, or the zero address.
func (c Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Engine.Owner)
}

// Callers returns the authorized callers as addresses.
func (c Config) Callers() []common.Address {
	out := make([]common.Address, 0, len(c.Engine.AuthorizedCallers))
	for _, caller := range c.Engine.AuthorizedCallers {
		out = append(out, common.HexToAddress(caller))
	}
	return out
}

// Load reads the configuration at path over the defaults. An empty path
// reads defaults and environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Verify(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("venue.fee_tiers", d.Venue.FeeTiers)
	v.SetDefault("venue.pool_cache_size", d.Venue.PoolCacheSize)
	v.SetDefault("engine.owner", d.Engine.Owner)
	v.SetDefault("engine.authorized_callers", d.Engine.AuthorizedCallers)
	v.SetDefault("engine.default_page_size", d.Engine.DefaultPageSize)
	v.SetDefault("engine.max_page_size", d.Engine.MaxPageSize)
	v.SetDefault("timelock.min_delay", d.Timelock.MinDelay)
	v.SetDefault("timelock.max_delay", d.Timelock.MaxDelay)
}

// NewLogger builds the logger described by the configuration.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	var zc zap.Config
	if c.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
