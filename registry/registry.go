// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry is the governance collaborator consulted by every engine
// instance: the fee tier whitelist, module addresses by name, the global
// operator allow-list and a timelock for privileged parameter changes.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

// ============================================================================
// MODULE ADDRESS SCHEME
// ============================================================================
//
// Operation modules use trailing-significant 20-byte addresses:
//   Format: 0x00000000000000000000000000000000000091II
//
//   0x91II → liquidity actions, II = item
//   0x92II → strategy provider extensions
//
// Example: withdraw = 0x0000000000000000000000000000000000009103

const (
	DepositModule             = "0x0000000000000000000000000000000000009101"
	IncreaseLiquidityModule   = "0x0000000000000000000000000000000000009102"
	WithdrawModule            = "0x0000000000000000000000000000000000009103"
	RebalanceModule           = "0x0000000000000000000000000000000000009104"
	SwapToPositionRatioModule = "0x0000000000000000000000000000000000009105"
	ZapInModule               = "0x0000000000000000000000000000000000009106"
	ReturnProfitModule        = "0x0000000000000000000000000000000000009107"
)

// ModuleInfo contains metadata about a module
type ModuleInfo struct {
	Address     string
	Name        string
	Description string
}

// DefaultModules lists the modules a new registry resolves by name.
var DefaultModules = []ModuleInfo{
	{DepositModule, "deposit", "Open a position from held tokens"},
	{IncreaseLiquidityModule, "increaseLiquidity", "Add held tokens to a running position"},
	{WithdrawModule, "withdraw", "Close a position and pay the owner"},
	{RebalanceModule, "rebalance", "Move a position onto a new range"},
	{SwapToPositionRatioModule, "swapToPositionRatio", "Swap held tokens to a range's ratio"},
	{ZapInModule, "zapIn", "Open a position from a single token"},
	{ReturnProfitModule, "returnProfit", "Pay accrued fees to the owner"},
}

// Timelock bounds
const (
	DefaultMinDelay = 2 * 24 * time.Hour
	DefaultMaxDelay = 30 * 24 * time.Hour
	GracePeriod     = 14 * 24 * time.Hour
)

// Errors
var (
	ErrNotGovernance    = errors.New("caller is not governance")
	ErrDelayOutOfRange  = errors.New("timelock delay out of range")
	ErrAlreadyQueued    = errors.New("change already queued")
	ErrNotQueued        = errors.New("change not queued")
	ErrTimelockNotReady = errors.New("timelock not elapsed")
	ErrStaleChange      = errors.New("change expired")
	ErrInvalidChange    = errors.New("invalid change")
)

// Options configures a registry.
type Options struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// FeeTiers seeds the whitelist.
	FeeTiers []uint32
	// Operators seeds the global operator allow-list.
	Operators []common.Address
	// Now overrides the clock, for tests.
	Now    func() time.Time
	Logger *zap.Logger
}

// Registry is the governance state shared by all instances.
type Registry struct {
	mu sync.RWMutex

	governance common.Address
	minDelay   time.Duration
	maxDelay   time.Duration
	now        func() time.Time
	log        *zap.Logger

	feeTiers  map[uint32]struct{}
	modules   map[string]common.Address
	operators map[common.Address]struct{}
	queue     map[ChangeID]*QueuedChange
	nonce     uint64
}

// New creates a registry governed by governance.
func New(governance common.Address, opts Options) (*Registry, error) {
	if opts.MinDelay == 0 {
		opts.MinDelay = DefaultMinDelay
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MinDelay > opts.MaxDelay {
		return nil, fmt.Errorf("%w: min %s > max %s", ErrDelayOutOfRange, opts.MinDelay, opts.MaxDelay)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &Registry{
		governance: governance,
		minDelay:   opts.MinDelay,
		maxDelay:   opts.MaxDelay,
		now:        opts.Now,
		log:        opts.Logger,
		feeTiers:   make(map[uint32]struct{}, len(opts.FeeTiers)),
		modules:    make(map[string]common.Address, len(DefaultModules)),
		operators:  make(map[common.Address]struct{}, len(opts.Operators)),
		queue:      make(map[ChangeID]*QueuedChange),
	}
	for _, fee := range opts.FeeTiers {
		r.feeTiers[fee] = struct{}{}
	}
	for _, m := range DefaultModules {
		r.modules[m.Name] = common.HexToAddress(m.Address)
	}
	for _, op := range opts.Operators {
		r.operators[op] = struct{}{}
	}
	return r, nil
}

// Governance returns the address allowed to queue and execute changes.
func (r *Registry) Governance() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.governance
}

// IsFeeTierAllowed reports whether fee is whitelisted.
func (r *Registry) IsFeeTierAllowed(fee uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.feeTiers[fee]
	return ok
}

// FeeTiers returns the whitelisted fee tiers in ascending order.
func (r *Registry) FeeTiers() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uint32, 0, len(r.feeTiers))
	for fee := range r.feeTiers {
		out = append(out, fee)
	}
	slices.Sort(out)
	return out
}

// ModuleAddress resolves a module by name.
func (r *Registry) ModuleAddress(name string) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.modules[name]
	return addr, ok
}

// ModuleNames returns the resolvable module names in order.
func (r *Registry) ModuleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.modules))
	for name := range r.modules {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// IsAuthorized reports whether caller is a global operator. It satisfies
// ledger.Authorizer.
func (r *Registry) IsAuthorized(caller common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.operators[caller]
	return ok
}
