// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/geth/common"
)

var (
	ErrReservedAddress  = errors.New("address not in a module range")
	ErrDuplicateName    = errors.New("module name already registered")
	ErrDuplicateAddress = errors.New("module address already registered")
)

// AddressRange represents a continuous range of addresses
type AddressRange struct {
	Start common.Address
	End   common.Address
}

// Contains returns true iff [addr] is contained within the (inclusive)
// range of addresses defined by [a].
func (a *AddressRange) Contains(addr common.Address) bool {
	addrBytes := addr.Bytes()
	return bytes.Compare(addrBytes, a.Start[:]) >= 0 && bytes.Compare(addrBytes, a.End[:]) <= 0
}

// BlackholeAddr is the address where assets are burned
var BlackholeAddr = common.Address{
	1, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var (
	// Low-byte ranges for operation modules:
	// 0x9100-0x91FF: liquidity actions (deposit, withdraw, rebalance, ...)
	// 0x9200-0x92FF: strategy provider extensions
	ActionRange = AddressRange{
		Start: common.HexToAddress("0x0000000000000000000000000000000000009100"),
		End:   common.HexToAddress("0x00000000000000000000000000000000000091ff"),
	}
	ExtensionRange = AddressRange{
		Start: common.HexToAddress("0x0000000000000000000000000000000000009200"),
		End:   common.HexToAddress("0x00000000000000000000000000000000000092ff"),
	}

	// Addresses that can never host a module
	deadAddresses = []common.Address{
		{},
		common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
		common.HexToAddress("0xdEaD000000000000000000000000000000000000"),
	}
)

// ActionAddress returns the n-th address of the action range.
func ActionAddress(n uint8) common.Address {
	addr := ActionRange.Start
	addr[len(addr)-1] = n
	return addr
}

// Catalog holds the operation modules available to routers, sorted by
// address for deterministic iteration.
type Catalog struct {
	mu      sync.RWMutex
	ranges  []AddressRange
	entries []Entry
}

// NewCatalog creates a catalog accepting modules in ranges, or in the
// action and extension ranges when none are given.
func NewCatalog(ranges ...AddressRange) *Catalog {
	if len(ranges) == 0 {
		ranges = []AddressRange{ActionRange, ExtensionRange}
	}
	return &Catalog{ranges: ranges}
}

// ReservedAddress returns true if [addr] is in one of the catalog's module ranges
func (c *Catalog) ReservedAddress(addr common.Address) bool {
	for _, reservedRange := range c.ranges {
		if reservedRange.Contains(addr) {
			return true
		}
	}
	return false
}

// Register installs a module at address.
func (c *Catalog) Register(address common.Address, m Module) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if address == BlackholeAddr {
		return fmt.Errorf("address %s overlaps with blackhole address", address)
	}
	for _, dead := range deadAddresses {
		if address == dead {
			return fmt.Errorf("%w: %s is a dead address", ErrReservedAddress, address)
		}
	}
	if !c.ReservedAddress(address) {
		return fmt.Errorf("%w: %s", ErrReservedAddress, address)
	}

	key := m.Name()
	for _, registered := range c.entries {
		if registered.Module.Name() == key {
			return fmt.Errorf("%w: %s", ErrDuplicateName, key)
		}
		if registered.Address == address {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, address)
		}
	}
	c.entries = insertSortedByAddress(c.entries, Entry{Address: address, Module: m})
	return nil
}

// GetByAddress returns the module installed at address.
func (c *Catalog) GetByAddress(address common.Address) (Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.Address == address {
			return e.Module, true
		}
	}
	return nil, false
}

// GetByName returns the module registered under name and its address.
func (c *Catalog) GetByName(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.Module.Name() == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns the registered modules in address order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entry(nil), c.entries...)
}

func insertSortedByAddress(data []Entry, e Entry) []Entry {
	data = append(data, e)
	sort.Sort(moduleArray(data))
	return data
}
